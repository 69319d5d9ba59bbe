// Package wire defines the relay protocol frames and the serialized delta
// form shared by the channel, the relay, the store and graph snapshots.
//
// Frames are msgpack encoded and sent as binary websocket messages. Field
// values travel as JSON text so the IR value model (no floats, explicit
// null) survives the trip unchanged.
package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/geckode/internal/ir"
)

// FrameType names a protocol message.
type FrameType string

const (
	// FrameHello opens a session: client actor and version.
	FrameHello FrameType = "hello"
	// FrameState answers hello with the deltas the client lacks and the
	// relay's version.
	FrameState FrameType = "state"
	// FrameDeltas carries structural deltas in either direction.
	FrameDeltas FrameType = "deltas"
	// FrameAck confirms the relay's version after applying client deltas.
	FrameAck FrameType = "ack"
	// FramePresence carries ephemeral per-actor state.
	FramePresence FrameType = "presence"
	// FrameError reports a refused request.
	FrameError FrameType = "error"
)

// Error codes carried by FrameError.
const (
	CodeReadOnly    = "READ_ONLY"
	CodeConflict    = "CONFLICT"
	CodeMalformed   = "MALFORMED"
	CodeProtocol    = "PROTOCOL"
	CodeUnavailable = "UNAVAILABLE" // batch not persisted and not applied; re-send it
)

// Frame is one protocol message.
type Frame struct {
	Type     FrameType    `msgpack:"type"`
	Channel  string       `msgpack:"channel,omitempty"`
	Actor    ir.ActorID   `msgpack:"actor,omitempty"`
	Version  ir.Version   `msgpack:"version,omitempty"`
	Deltas   []Delta      `msgpack:"deltas,omitempty"`
	Presence *ir.Presence `msgpack:"presence,omitempty"`
	ReadOnly bool         `msgpack:"read_only,omitempty"`
	Code     string       `msgpack:"code,omitempty"`
	Message  string       `msgpack:"message,omitempty"`
}

// Encode serializes a frame.
func Encode(f Frame) ([]byte, error) {
	data, err := msgpack.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// Decode parses a frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

// Delta is the serialized form of ir.Delta.
type Delta struct {
	Actor   string `msgpack:"a"`
	Seq     int64  `msgpack:"s"`
	Lamport int64  `msgpack:"l"`
	Op      string `msgpack:"o"`
	Node    string `msgpack:"n,omitempty"`
	Kind    string `msgpack:"k,omitempty"`
	Name    string `msgpack:"m,omitempty"`
	Value   []byte `msgpack:"v,omitempty"`
	Target  string `msgpack:"t,omitempty"`
	Var     string `msgpack:"r,omitempty"`
}

// FromDelta converts to the serialized form. Only set_field carries a value.
func FromDelta(d ir.Delta) (Delta, error) {
	out := Delta{
		Actor:   string(d.Actor),
		Seq:     d.Seq,
		Lamport: d.Lamport,
		Op:      string(d.Op),
		Node:    string(d.Node),
		Kind:    d.Kind,
		Name:    d.Name,
		Target:  string(d.Target),
		Var:     string(d.Var),
	}
	if d.Op == ir.OpSetField {
		v, err := ir.MarshalIRValue(d.Value)
		if err != nil {
			return Delta{}, fmt.Errorf("delta %s/%d: %w", d.Actor, d.Seq, err)
		}
		out.Value = v
	}
	return out, nil
}

// ToDelta converts back to ir.Delta.
func (w Delta) ToDelta() (ir.Delta, error) {
	d := ir.Delta{
		Actor:   ir.ActorID(w.Actor),
		Seq:     w.Seq,
		Lamport: w.Lamport,
		Op:      ir.Op(w.Op),
		Node:    ir.NodeID(w.Node),
		Kind:    w.Kind,
		Name:    w.Name,
		Target:  ir.NodeID(w.Target),
		Var:     ir.VarID(w.Var),
	}
	if d.Op == ir.OpSetField {
		if len(w.Value) == 0 {
			d.Value = ir.IRNull{}
		} else {
			v, err := ir.DecodeIRValue(w.Value)
			if err != nil {
				return ir.Delta{}, fmt.Errorf("delta %s/%d value: %w", w.Actor, w.Seq, err)
			}
			d.Value = v
		}
	}
	return d, nil
}

// FromDeltas converts a batch.
func FromDeltas(ds []ir.Delta) ([]Delta, error) {
	out := make([]Delta, 0, len(ds))
	for _, d := range ds {
		w, err := FromDelta(d)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// ToDeltas converts a batch back.
func ToDeltas(ws []Delta) ([]ir.Delta, error) {
	out := make([]ir.Delta, 0, len(ws))
	for _, w := range ws {
		d, err := w.ToDelta()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// MarshalDelta encodes one delta for storage.
func MarshalDelta(d ir.Delta) ([]byte, error) {
	w, err := FromDelta(d)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&w)
}

// UnmarshalDelta decodes one stored delta.
func UnmarshalDelta(data []byte) (ir.Delta, error) {
	var w Delta
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return ir.Delta{}, fmt.Errorf("decode delta: %w", err)
	}
	return w.ToDelta()
}
