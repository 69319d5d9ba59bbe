package catalog

import (
	"text/template"
)

// Category is the closed set of node categories. Switches over Category
// must be exhaustive.
type Category string

const (
	CategoryStatement Category = "statement"
	CategoryValue     Category = "value"
	CategoryEvent     Category = "event"
)

// SlotKind says what a slot accepts.
type SlotKind string

const (
	SlotStatement SlotKind = "statement"
	SlotValue     SlotKind = "value"
)

// FieldType is the scalar type of a field.
type FieldType string

const (
	FieldNumber   FieldType = "number"
	FieldText     FieldType = "text"
	FieldOption   FieldType = "option"
	FieldEntity   FieldType = "entity"
	FieldVariable FieldType = "variable"
)

// Option is one dropdown entry.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SlotDef declares a named child slot.
type SlotDef struct {
	Name string   `json:"name"`
	Kind SlotKind `json:"kind"`
	// Check restricts value slots to children whose Output matches.
	// Empty accepts any value.
	Check    string `json:"check,omitempty"`
	Required bool   `json:"required,omitempty"`
	// Default is the code emitted for an empty, non-required value slot.
	Default string `json:"default,omitempty"`
}

// FieldDef declares a named scalar field.
type FieldDef struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Options  []Option  `json:"options,omitempty"`
	Required bool      `json:"required,omitempty"`
	Default  string    `json:"default,omitempty"`
}

// HasOption reports whether value is one of the field's option values.
func (f FieldDef) HasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// BlockDef is the compiled definition of one node kind.
type BlockDef struct {
	Type     string     `json:"type"`
	Category Category   `json:"category"`
	Event    string     `json:"event,omitempty"`
	Output   string     `json:"output,omitempty"`
	HasNext  bool       `json:"next,omitempty"`
	Slots    []SlotDef  `json:"slots,omitempty"`
	Fields   []FieldDef `json:"fields,omitempty"`

	TemplateSource string             `json:"template"`
	Template       *template.Template `json:"-"`
}

// Slot looks up a slot definition by name.
func (b *BlockDef) Slot(name string) (SlotDef, bool) {
	for _, s := range b.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return SlotDef{}, false
}

// Field looks up a field definition by name.
func (b *BlockDef) Field(name string) (FieldDef, bool) {
	for _, f := range b.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Catalog is an immutable set of block definitions. Safe for concurrent use.
type Catalog struct {
	blocks map[string]*BlockDef
	order  []string
}

// Lookup returns the definition of kind.
func (c *Catalog) Lookup(kind string) (*BlockDef, bool) {
	b, ok := c.blocks[kind]
	return b, ok
}

// Kinds returns every kind in declaration order.
func (c *Catalog) Kinds() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Blocks returns every definition in declaration order.
func (c *Catalog) Blocks() []*BlockDef {
	out := make([]*BlockDef, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.blocks[k])
	}
	return out
}

// Events returns the distinct event names declared by event blocks.
func (c *Catalog) Events() []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range c.order {
		b := c.blocks[k]
		if b.Category == CategoryEvent && !seen[b.Event] {
			seen[b.Event] = true
			out = append(out, b.Event)
		}
	}
	return out
}
