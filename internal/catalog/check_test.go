package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geckode/internal/ir"
)

func lookup(t *testing.T, c *Catalog, kind string) *BlockDef {
	t.Helper()
	b, ok := c.Lookup(kind)
	require.True(t, ok, "missing kind %s", kind)
	return b
}

func TestCheckSlot(t *testing.T) {
	c := MustLoad()

	tests := []struct {
		name   string
		parent string
		slot   string
		child  string
		ok     bool
	}{
		{"statement into event", "onStart", "INNER", "setProperty", true},
		{"value into statement slot", "onStart", "INNER", "math_number", false},
		{"statement into value slot", "setProperty", "VALUE", "consoleLog", false},
		{"matching check", "setProperty", "VALUE", "math_number", true},
		{"mismatched check", "setProperty", "VALUE", "keyPressed", false},
		{"unchecked output accepted", "setProperty", "VALUE", "variables_get", true},
		{"unchecked slot accepts anything", "consoleLog", "VALUE", "text", true},
		{"event never a child", "forever", "DO", "onUpdate", false},
		{"unknown slot", "setProperty", "NOPE", "math_number", false},
		{"boolean condition", "controls_if", "IF0", "logic_compare", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSlot(lookup(t, c, tt.parent), tt.slot, lookup(t, c, tt.child))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ce *ConnectionError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestCheckNext(t *testing.T) {
	c := MustLoad()

	assert.NoError(t, CheckNext(lookup(t, c, "setProperty"), lookup(t, c, "consoleLog")))
	assert.NoError(t, CheckNext(lookup(t, c, "consoleLog"), lookup(t, c, "forever")))
	assert.Error(t, CheckNext(lookup(t, c, "forever"), lookup(t, c, "consoleLog")), "forever ends the chain")
	assert.Error(t, CheckNext(lookup(t, c, "onStart"), lookup(t, c, "consoleLog")))
	assert.Error(t, CheckNext(lookup(t, c, "consoleLog"), lookup(t, c, "math_number")))
}

func TestCheckField(t *testing.T) {
	c := MustLoad()
	prop, _ := lookup(t, c, "setProperty").Field("PROPERTY")
	num, _ := lookup(t, c, "math_number").Field("NUM")

	assert.NoError(t, CheckField(prop, ir.IRString("VelocityY")))
	assert.Error(t, CheckField(prop, ir.IRString("velocity.y")))
	assert.NoError(t, CheckField(num, ir.IRInt(-3)))
	assert.Error(t, CheckField(num, ir.IRString("3")))
	assert.NoError(t, CheckField(num, ir.IRNull{}))
}
