package codegen

import (
	"strings"
)

// runtimeHooks names the scene callback that runs each event's handlers.
var runtimeHooks = []struct {
	event string
	hook  string
}{
	{"start", "scene.startHook"},
	{"update", "scene.update"},
}

// Bundle renders the program the runtime loads: variable prelude, every
// scope in generation order, then one hook per event calling its handlers
// with their entity id.
func (o *Output) Bundle() string {
	var b strings.Builder
	if o.Prelude != "" {
		b.WriteString(o.Prelude)
		b.WriteByte('\n')
	}
	for _, s := range o.Scopes {
		b.WriteString(s.Source)
		b.WriteByte('\n')
	}
	for i, h := range runtimeHooks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(h.hook)
		b.WriteString(" = () => {\n")
		for _, r := range o.Dispatch {
			if r.Event != h.event {
				continue
			}
			for _, fn := range r.Functions {
				b.WriteString("  ")
				b.WriteString(fn)
				b.WriteByte('(')
				b.WriteString(quote(r.Entity))
				b.WriteString(");\n")
			}
		}
		b.WriteString("};\n")
	}
	return b.String()
}
