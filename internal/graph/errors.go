package graph

import (
	"errors"
	"fmt"

	"github.com/roach88/geckode/internal/ir"
)

// ErrDeltaConflict is returned when a delta arrives whose identity
// (actor, seq) is already applied with different content.
var ErrDeltaConflict = errors.New("delta conflict")

// RejectedDeltaError reports a structurally malformed delta. Well-formed
// deltas are never rejected, whatever state they produce.
type RejectedDeltaError struct {
	Key    ir.DeltaKey
	Op     ir.Op
	Reason string
}

func (e *RejectedDeltaError) Error() string {
	return fmt.Sprintf("rejected delta %s/%d (%s): %s", e.Key.Actor, e.Key.Seq, e.Op, e.Reason)
}

// IsRejectedDelta reports whether err is a RejectedDeltaError.
func IsRejectedDelta(err error) bool {
	var re *RejectedDeltaError
	return errors.As(err, &re)
}

func validateDelta(d ir.Delta) error {
	reject := func(reason string) error {
		return &RejectedDeltaError{Key: d.Key(), Op: d.Op, Reason: reason}
	}
	switch {
	case d.Actor == "":
		return reject("missing actor")
	case d.Seq < 1:
		return reject("seq must be positive")
	case d.Lamport < 1:
		return reject("lamport must be positive")
	case !d.Op.Valid():
		return reject("unknown op")
	}

	switch d.Op {
	case ir.OpInsertNode:
		if d.Node == "" || d.Kind == "" {
			return reject("insert needs node and kind")
		}
	case ir.OpRemoveNode, ir.OpSetNext:
		if d.Node == "" {
			return reject("missing node")
		}
	case ir.OpSetField, ir.OpSetSlot:
		if d.Node == "" || d.Name == "" {
			return reject("missing node or name")
		}
	case ir.OpCreateVariable, ir.OpRenameVariable:
		if d.Var == "" || d.Name == "" {
			return reject("missing variable or name")
		}
	case ir.OpDeleteVariable:
		if d.Var == "" {
			return reject("missing variable")
		}
	}
	if (d.Op == ir.OpSetSlot || d.Op == ir.OpSetNext) && d.Target == d.Node {
		return reject("node cannot contain itself")
	}
	return nil
}
