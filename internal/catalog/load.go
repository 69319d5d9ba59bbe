package catalog

import (
	_ "embed"
	"fmt"
	"text/template"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed blocks.cue
var builtinBlocks []byte

// CompileError is a catalog definition error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load compiles the built-in catalog.
func Load() (*Catalog, error) {
	return Compile(builtinBlocks, "blocks.cue")
}

// MustLoad is like Load but panics on error. The built-in catalog is
// covered by tests, so a failure here is a build defect.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Compile builds a catalog from CUE source holding a top-level blocks struct.
func Compile(src []byte, filename string) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return fromValue(v)
}

// LoadDir builds a catalog from the CUE package in dir. Used to run the
// generator against an extended block set.
func LoadDir(dir string) (*Catalog, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return fromValue(v)
}

func fromValue(v cue.Value) (*Catalog, error) {
	blocksVal := v.LookupPath(cue.ParsePath("blocks"))
	if !blocksVal.Exists() {
		return nil, &CompileError{Field: "blocks", Message: "blocks struct is required", Pos: v.Pos()}
	}
	iter, err := blocksVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	c := &Catalog{blocks: make(map[string]*BlockDef)}
	for iter.Next() {
		def, err := compileBlock(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		c.blocks[def.Type] = def
		c.order = append(c.order, def.Type)
	}

	if errs := Validate(c); len(errs) > 0 {
		return nil, errs[0]
	}
	return c, nil
}

func compileBlock(name string, v cue.Value) (*BlockDef, error) {
	def := &BlockDef{Type: name}

	category, err := stringAt(v, "category")
	if err != nil {
		return nil, err
	}
	def.Category = Category(category)

	if def.Event, err = stringAt(v, "event"); err != nil {
		return nil, err
	}
	if def.Output, err = stringAt(v, "output"); err != nil {
		return nil, err
	}
	if def.TemplateSource, err = stringAt(v, "template"); err != nil {
		return nil, err
	}
	if nextVal := v.LookupPath(cue.ParsePath("next")); nextVal.Exists() {
		if def.HasNext, err = concrete(nextVal).Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if def.Slots, err = compileSlots(v.LookupPath(cue.ParsePath("slots"))); err != nil {
		return nil, err
	}
	if def.Fields, err = compileFields(v.LookupPath(cue.ParsePath("fields"))); err != nil {
		return nil, err
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(def.TemplateSource)
	if err != nil {
		return nil, &CompileError{
			Field:   name + ".template",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("template")).Pos(),
		}
	}
	def.Template = tmpl

	return def, nil
}

func compileSlots(v cue.Value) ([]SlotDef, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := concrete(v).List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var slots []SlotDef
	for iter.Next() {
		sv := iter.Value()
		var s SlotDef
		if s.Name, err = stringAt(sv, "name"); err != nil {
			return nil, err
		}
		kind, err := stringAt(sv, "kind")
		if err != nil {
			return nil, err
		}
		s.Kind = SlotKind(kind)
		if s.Check, err = stringAt(sv, "check"); err != nil {
			return nil, err
		}
		if s.Default, err = stringAt(sv, "default"); err != nil {
			return nil, err
		}
		if s.Required, err = boolAt(sv, "required"); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, nil
}

func compileFields(v cue.Value) ([]FieldDef, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := concrete(v).List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var fields []FieldDef
	for iter.Next() {
		fv := iter.Value()
		var f FieldDef
		if f.Name, err = stringAt(fv, "name"); err != nil {
			return nil, err
		}
		typ, err := stringAt(fv, "type")
		if err != nil {
			return nil, err
		}
		f.Type = FieldType(typ)
		if f.Default, err = stringAt(fv, "default"); err != nil {
			return nil, err
		}
		if f.Required, err = boolAt(fv, "required"); err != nil {
			return nil, err
		}
		if f.Options, err = compileOptions(fv.LookupPath(cue.ParsePath("options"))); err != nil {
			return nil, err
		}
		// An unset dropdown shows its first entry; emit that, never "".
		if f.Type == FieldOption && f.Default == "" && len(f.Options) > 0 {
			f.Default = f.Options[0].Value
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// compileOptions reads [label, value] pairs.
func compileOptions(v cue.Value) ([]Option, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var opts []Option
	for iter.Next() {
		var pair []string
		if err := iter.Value().Decode(&pair); err != nil {
			return nil, formatCUEError(err)
		}
		if len(pair) != 2 {
			return nil, &CompileError{Field: "options", Message: "option must be [label, value]", Pos: iter.Value().Pos()}
		}
		opts = append(opts, Option{Label: pair[0], Value: pair[1]})
	}
	return opts, nil
}

// concrete resolves a default disjunction (*x | y) to its default.
func concrete(v cue.Value) cue.Value {
	d, _ := v.Default()
	return d
}

// stringAt reads an optional string; absent yields "".
func stringAt(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := concrete(fv).String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func boolAt(v cue.Value, path string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return false, nil
	}
	b, err := concrete(fv).Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
