package catalog

import (
	"fmt"

	"github.com/roach88/geckode/internal/ir"
)

// ConnectionError explains why a child cannot occupy a position.
type ConnectionError struct {
	Parent  string
	Slot    string
	Child   string
	Message string
}

func (e *ConnectionError) Error() string {
	if e.Slot == "" {
		return fmt.Sprintf("cannot connect %s after %s: %s", e.Child, e.Parent, e.Message)
	}
	return fmt.Sprintf("cannot connect %s into %s.%s: %s", e.Child, e.Parent, e.Slot, e.Message)
}

// CheckSlot reports whether child may occupy parent's named slot.
func CheckSlot(parent *BlockDef, slot string, child *BlockDef) error {
	fail := func(format string, args ...any) error {
		return &ConnectionError{Parent: parent.Type, Slot: slot, Child: child.Type, Message: fmt.Sprintf(format, args...)}
	}

	def, ok := parent.Slot(slot)
	if !ok {
		return fail("no such slot")
	}

	switch child.Category {
	case CategoryEvent:
		return fail("event blocks are roots")
	case CategoryStatement:
		if def.Kind != SlotStatement {
			return fail("statement in a value slot")
		}
	case CategoryValue:
		if def.Kind != SlotValue {
			return fail("value in a statement slot")
		}
		if def.Check != "" && child.Output != "" && def.Check != child.Output {
			return fail("slot expects %s, block outputs %s", def.Check, child.Output)
		}
	default:
		return fail("unknown category %q", child.Category)
	}
	return nil
}

// CheckNext reports whether next may follow prev in a statement chain.
func CheckNext(prev, next *BlockDef) error {
	fail := func(msg string) error {
		return &ConnectionError{Parent: prev.Type, Child: next.Type, Message: msg}
	}

	switch prev.Category {
	case CategoryStatement:
		if !prev.HasNext {
			return fail("block ends its chain")
		}
	case CategoryEvent, CategoryValue:
		return fail("only statements chain")
	default:
		return fail("unknown category")
	}

	switch next.Category {
	case CategoryStatement:
		return nil
	case CategoryEvent, CategoryValue:
		return fail("only statements chain")
	default:
		return fail("unknown category")
	}
}

// CheckField reports whether v is a legal value for the field. IRNull
// (cleared) is always legal here; required fields are enforced at
// generation time. Variable and entity existence is checked by callers
// that hold the workspace and registry.
func CheckField(def FieldDef, v ir.IRValue) error {
	if ir.IsNull(v) {
		return nil
	}
	switch def.Type {
	case FieldNumber:
		if _, ok := v.(ir.IRInt); !ok {
			return fmt.Errorf("field %s expects an integer, got %T", def.Name, v)
		}
	case FieldText, FieldEntity, FieldVariable:
		if _, ok := v.(ir.IRString); !ok {
			return fmt.Errorf("field %s expects a string, got %T", def.Name, v)
		}
	case FieldOption:
		s, ok := v.(ir.IRString)
		if !ok {
			return fmt.Errorf("field %s expects an option, got %T", def.Name, v)
		}
		if !def.HasOption(string(s)) {
			return fmt.Errorf("field %s has no option %q", def.Name, s)
		}
	default:
		return fmt.Errorf("field %s has unknown type %q", def.Name, def.Type)
	}
	return nil
}
