// Package registry tracks the interactive entities a program can refer to.
//
// The editor surface owns the entity list and pushes full snapshots with
// Update. Readers take an immutable View; they never see a half-applied
// update. Stale identifiers resolve to the fallback entity.
package registry

import (
	"slices"
	"strings"
	"sync/atomic"

	"github.com/roach88/geckode/internal/ir"
)

// FallbackEntityID is what an unknown or empty entity reference resolves to.
const FallbackEntityID = "__hero__"

// Entity is one (id, label) pair from the editor surface.
type Entity struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// Option is one entry in an entity dropdown.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Registry holds the latest entity snapshot. Safe for concurrent use.
type Registry struct {
	current atomic.Pointer[View]
}

// New returns a registry seeded with entities.
func New(entities ...Entity) *Registry {
	r := &Registry{}
	r.Update(entities)
	return r
}

// Update replaces the snapshot. Later duplicates of an id win.
func (r *Registry) Update(entities []Entity) {
	v := &View{byID: make(map[string]Entity, len(entities))}
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		if _, seen := v.byID[e.ID]; !seen {
			v.order = append(v.order, e.ID)
		}
		v.byID[e.ID] = e
	}
	r.current.Store(v)
}

// View returns the current snapshot.
func (r *Registry) View() *View {
	if v := r.current.Load(); v != nil {
		return v
	}
	return &View{}
}

// View is an immutable entity snapshot.
type View struct {
	byID  map[string]Entity
	order []string
}

// Len returns the number of entities.
func (v *View) Len() int {
	return len(v.order)
}

// Lookup returns the entity with id.
func (v *View) Lookup(id string) (Entity, bool) {
	e, ok := v.byID[id]
	return e, ok
}

// Resolve maps id to a known entity id, or FallbackEntityID when stale.
func (v *View) Resolve(id string) string {
	if _, ok := v.byID[id]; ok {
		return id
	}
	return FallbackEntityID
}

// Label returns the display label for id. Stale ids have a blank label.
func (v *View) Label(id string) string {
	if e, ok := v.byID[id]; ok {
		return e.Label
	}
	return ""
}

// Entities returns the snapshot in feed order.
func (v *View) Entities() []Entity {
	out := make([]Entity, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.byID[id])
	}
	return out
}

// Options returns dropdown options sorted by label then id. An empty
// registry yields the single fallback option.
func (v *View) Options() []Option {
	if len(v.order) == 0 {
		return []Option{{Label: " ", Value: FallbackEntityID}}
	}
	out := make([]Option, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, Option{Label: v.byID[id].Label, Value: id})
	}
	slices.SortFunc(out, func(a, b Option) int {
		if c := strings.Compare(a.Label, b.Label); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
	return out
}

// UniqueLabel returns name if unused, else the first of name2, name3, ...
// that no entity carries.
func (v *View) UniqueLabel(name string) string {
	used := make(map[string]bool, len(v.order))
	for _, id := range v.order {
		used[v.byID[id].Label] = true
	}
	return ir.UniqueName(name, used)
}
