package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geckode/internal/ir"
)

func TestFrameRoundTrip(t *testing.T) {
	deltas, err := FromDeltas([]ir.Delta{
		{Actor: "a", Seq: 1, Lamport: 1, Op: ir.OpInsertNode, Node: "n1", Kind: "onStart"},
		{Actor: "a", Seq: 2, Lamport: 2, Op: ir.OpSetField, Node: "n1", Name: "X", Value: ir.IRInt(4)},
	})
	require.NoError(t, err)

	in := Frame{
		Type:    FrameState,
		Channel: "proj-1",
		Version: ir.Version{"a": 2, "b": 7},
		Deltas:  deltas,
	}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	back, err := ToDeltas(out.Deltas)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(4), back[1].Value)
	assert.Nil(t, back[0].Value, "only set_field carries a value")
}

func TestClearedValueSurvives(t *testing.T) {
	d := ir.Delta{Actor: "a", Seq: 3, Lamport: 5, Op: ir.OpSetField, Node: "n1", Name: "X", Value: ir.IRNull{}}
	data, err := MarshalDelta(d)
	require.NoError(t, err)

	back, err := UnmarshalDelta(data)
	require.NoError(t, err)
	assert.Equal(t, d, back)
	assert.Equal(t, ir.MustDeltaHash(d), ir.MustDeltaHash(back))
}

func TestPresenceFrame(t *testing.T) {
	in := Frame{Type: FramePresence, Presence: &ir.Presence{Actor: "b", Seq: 4, Selected: "n9", CursorX: 10, CursorY: -2}}
	data, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xc1})
	assert.Error(t, err)

	data, err := Encode(Frame{})
	require.NoError(t, err)
	_, err = Decode(data)
	assert.Error(t, err, "frames must carry a type")
}
