package ir

import "strconv"

// UniqueName returns base if not in used, otherwise base followed by the
// smallest integer n >= 2 such that the result is not in used.
func UniqueName(base string, used map[string]bool) string {
	if !used[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + strconv.Itoa(n)
		if !used[candidate] {
			return candidate
		}
	}
}
