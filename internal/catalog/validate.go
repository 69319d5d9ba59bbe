package catalog

import (
	"fmt"
	"strings"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidCategory  = "E101" // category outside the closed set
	ErrEventMissing     = "E102" // event block without event name
	ErrEventMisplaced   = "E103" // event name on a non-event block
	ErrOutputMisplaced  = "E104" // output type on a non-value block
	ErrNextMisplaced    = "E105" // next link on a non-statement block
	ErrInvalidSlotKind  = "E106" // slot kind outside statement|value
	ErrDuplicateName    = "E107" // duplicate slot or field name
	ErrInvalidFieldType = "E108" // field type outside the closed set
	ErrOptionsMissing   = "E109" // option field without options
	ErrTemplateEmpty    = "E110" // empty template
	ErrCheckMisplaced   = "E111" // check on a statement slot
	ErrOptionDefault    = "E112" // option default outside the option values
)

// ValidationError is a catalog schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks every definition against the catalog rules.
// Returns all errors found (does not fail-fast).
func Validate(c *Catalog) []ValidationError {
	var errs []ValidationError
	for _, b := range c.Blocks() {
		errs = append(errs, validateBlock(b)...)
	}
	return errs
}

func validateBlock(b *BlockDef) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   b.Type + "." + field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	switch b.Category {
	case CategoryEvent:
		if b.Event == "" {
			add("event", ErrEventMissing, "event block must name its event")
		}
		if b.Output != "" {
			add("output", ErrOutputMisplaced, "event block cannot have an output")
		}
		if b.HasNext {
			add("next", ErrNextMisplaced, "event block cannot have a next link")
		}
	case CategoryStatement:
		if b.Event != "" {
			add("event", ErrEventMisplaced, "only event blocks name an event")
		}
		if b.Output != "" {
			add("output", ErrOutputMisplaced, "statement block cannot have an output")
		}
	case CategoryValue:
		if b.Event != "" {
			add("event", ErrEventMisplaced, "only event blocks name an event")
		}
		if b.HasNext {
			add("next", ErrNextMisplaced, "value block cannot have a next link")
		}
	default:
		add("category", ErrInvalidCategory, "invalid category %q", b.Category)
	}

	names := make(map[string]bool)
	for i, s := range b.Slots {
		if names[s.Name] {
			add(fmt.Sprintf("slots[%d].name", i), ErrDuplicateName, "duplicate name %q", s.Name)
		}
		names[s.Name] = true
		switch s.Kind {
		case SlotStatement:
			if s.Check != "" {
				add(fmt.Sprintf("slots[%d].check", i), ErrCheckMisplaced, "statement slot %q cannot have a check", s.Name)
			}
		case SlotValue:
		default:
			add(fmt.Sprintf("slots[%d].kind", i), ErrInvalidSlotKind, "invalid slot kind %q", s.Kind)
		}
	}
	for i, f := range b.Fields {
		if names[f.Name] {
			add(fmt.Sprintf("fields[%d].name", i), ErrDuplicateName, "duplicate name %q", f.Name)
		}
		names[f.Name] = true
		switch f.Type {
		case FieldOption:
			if len(f.Options) == 0 {
				add(fmt.Sprintf("fields[%d].options", i), ErrOptionsMissing, "option field %q has no options", f.Name)
			} else if !f.HasOption(f.Default) {
				add(fmt.Sprintf("fields[%d].default", i), ErrOptionDefault, "option field %q defaults to %q, not one of its options", f.Name, f.Default)
			}
		case FieldNumber, FieldText, FieldEntity, FieldVariable:
		default:
			add(fmt.Sprintf("fields[%d].type", i), ErrInvalidFieldType, "invalid field type %q", f.Type)
		}
	}

	if strings.TrimSpace(b.TemplateSource) == "" {
		add("template", ErrTemplateEmpty, "template is required")
	}
	return errs
}
