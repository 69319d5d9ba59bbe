package channel

import "github.com/roach88/geckode/internal/ir"

// outbox holds local deltas until the relay acknowledges them. Keys are
// unique; a delta queued twice is kept once.
type outbox struct {
	deltas []ir.Delta
	keys   map[ir.DeltaKey]bool
}

func newOutbox() *outbox {
	return &outbox{keys: make(map[ir.DeltaKey]bool)}
}

// add queues ds and returns the ones that were not already queued.
func (o *outbox) add(ds []ir.Delta) []ir.Delta {
	var added []ir.Delta
	for _, d := range ds {
		if o.keys[d.Key()] {
			continue
		}
		o.keys[d.Key()] = true
		o.deltas = append(o.deltas, d)
		added = append(added, d)
	}
	return added
}

// ack drops everything the relay version covers.
func (o *outbox) ack(v ir.Version) {
	kept := o.deltas[:0]
	for _, d := range o.deltas {
		if v.Covers(d.Actor, d.Seq) {
			delete(o.keys, d.Key())
			continue
		}
		kept = append(kept, d)
	}
	clear(o.deltas[len(kept):])
	o.deltas = kept
}

func (o *outbox) reset(ds []ir.Delta) {
	o.deltas = nil
	clear(o.keys)
	o.add(ds)
}

func (o *outbox) pending() []ir.Delta {
	return append([]ir.Delta(nil), o.deltas...)
}

func (o *outbox) size() int {
	return len(o.deltas)
}
