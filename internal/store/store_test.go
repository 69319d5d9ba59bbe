package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/roach88/geckode/internal/ir"
)

// createTestStore creates a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDelta(actor ir.ActorID, seq, lamport int64, op ir.Op) ir.Delta {
	d := ir.Delta{Actor: actor, Seq: seq, Lamport: lamport, Op: op, Node: "n1"}
	switch op {
	case ir.OpInsertNode:
		d.Kind = "math_number"
	case ir.OpSetField:
		d.Name, d.Value = "NUM", ir.IRInt(seq)
	}
	return d
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.expected); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_CreatesLoadOrderIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'deltas' AND name = 'idx_deltas_channel_order'`).Scan(&name)
	if err != nil {
		t.Fatalf("load-order index missing: %v", err)
	}
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 2"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if s, err := Open(path); err == nil {
		s.Close()
		t.Fatal("Open() accepted a newer schema version")
	}
}

func TestAppendDeltas_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	batch := []ir.Delta{
		testDelta("alice", 1, 1, ir.OpInsertNode),
		testDelta("alice", 2, 2, ir.OpSetField),
	}
	n, err := s.AppendDeltas(ctx, "proj-1", batch)
	if err != nil {
		t.Fatalf("AppendDeltas() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	n, err = s.AppendDeltas(ctx, "proj-1", append(batch, testDelta("bob", 1, 3, ir.OpSetField)))
	if err != nil {
		t.Fatalf("second AppendDeltas() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	count, err := s.CountDeltas(ctx, "proj-1")
	if err != nil {
		t.Fatalf("CountDeltas() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestLoadDeltas_OrderAndRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := []ir.Delta{
		testDelta("bob", 1, 2, ir.OpSetField),
		testDelta("alice", 2, 2, ir.OpSetField),
		testDelta("alice", 1, 1, ir.OpInsertNode),
	}
	if _, err := s.AppendDeltas(ctx, "proj-1", in); err != nil {
		t.Fatalf("AppendDeltas() failed: %v", err)
	}
	if _, err := s.AppendDeltas(ctx, "proj-2", []ir.Delta{testDelta("carol", 1, 1, ir.OpRemoveNode)}); err != nil {
		t.Fatalf("AppendDeltas() failed: %v", err)
	}

	got, err := s.LoadDeltas(ctx, "proj-1")
	if err != nil {
		t.Fatalf("LoadDeltas() failed: %v", err)
	}
	want := []ir.Delta{in[2], in[1], in[0]}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadDeltas() = %+v, want %+v", got, want)
	}
}

func TestLoadDeltas_UnknownChannel(t *testing.T) {
	s := createTestStore(t)

	got, err := s.LoadDeltas(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LoadDeltas() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("LoadDeltas() = %#v, want empty non-nil slice", got)
	}
}

func TestSnapshot_SaveReplacesAndLoads(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.LoadSnapshot(ctx, "proj-1"); err != nil || ok {
		t.Fatalf("LoadSnapshot() on empty store = ok %v, err %v", ok, err)
	}

	first := Snapshot{Channel: "proj-1", Format: "1", Hash: "h1", Deltas: 2, State: []byte{1, 2}}
	second := Snapshot{Channel: "proj-1", Format: "1", Hash: "h2", Deltas: 5, State: []byte{3, 4, 5}}
	for _, snap := range []Snapshot{first, second} {
		if err := s.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot() failed: %v", err)
		}
	}

	got, ok, err := s.LoadSnapshot(ctx, "proj-1")
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot() = ok %v, err %v", ok, err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Errorf("LoadSnapshot() = %+v, want %+v", got, second)
	}
}

func TestChannels(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendDeltas(ctx, "b", []ir.Delta{testDelta("alice", 1, 1, ir.OpInsertNode)}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot(ctx, Snapshot{Channel: "a", Format: "1", Hash: "h", State: []byte{0}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendDeltas(ctx, "a", []ir.Delta{testDelta("alice", 1, 1, ir.OpInsertNode)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Channels(ctx)
	if err != nil {
		t.Fatalf("Channels() failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Channels() = %v, want [a b]", got)
	}
}
