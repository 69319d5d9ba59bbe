package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NewClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current(), "new clock should start at 0")
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, int64(100), c.Current())
}

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_Observe(t *testing.T) {
	c := NewClockAt(5)

	c.Observe(3)
	assert.Equal(t, int64(5), c.Current(), "observing the past never moves the clock back")

	c.Observe(9)
	assert.Equal(t, int64(10), c.Next(), "next stamp exceeds everything observed")
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	stamps := make(chan int64, goroutines*callsPerGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				c.Observe(int64(i))
				stamps <- c.Next()
			}
		}(i)
	}
	wg.Wait()
	close(stamps)

	seen := make(map[int64]bool)
	for s := range stamps {
		assert.False(t, seen[s], "stamp %d issued twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}
