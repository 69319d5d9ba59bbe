package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDelta() Delta {
	return Delta{
		Actor:   "alice",
		Seq:     3,
		Lamport: 9,
		Op:      OpSetField,
		Node:    "n1",
		Name:    "X",
		Value:   IRInt(10),
	}
}

func TestDeltaHashDeterminism(t *testing.T) {
	h1, err := DeltaHash(sampleDelta())
	require.NoError(t, err)
	h2, err := DeltaHash(sampleDelta())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestDeltaHashChangesWithPayload(t *testing.T) {
	base := MustDeltaHash(sampleDelta())

	changedValue := sampleDelta()
	changedValue.Value = IRInt(11)
	changedLamport := sampleDelta()
	changedLamport.Lamport = 10
	cleared := sampleDelta()
	cleared.Value = IRNull{}

	assert.NotEqual(t, base, MustDeltaHash(changedValue))
	assert.NotEqual(t, base, MustDeltaHash(changedLamport))
	assert.NotEqual(t, base, MustDeltaHash(cleared))
}

func TestDeltaHashClearedValueForms(t *testing.T) {
	a := sampleDelta()
	a.Value = nil
	b := sampleDelta()
	b.Value = IRNull{}
	assert.Equal(t, MustDeltaHash(a), MustDeltaHash(b))
}

func TestSnapshotHashOrderSensitive(t *testing.T) {
	d1 := sampleDelta()
	d2 := sampleDelta()
	d2.Seq = 4
	d2.Lamport = 10

	h1, err := SnapshotHash([]Delta{d1, d2})
	require.NoError(t, err)
	h2, err := SnapshotHash([]Delta{d2, d1})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
