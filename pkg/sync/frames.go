package sync

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame types on the sync channel.
const (
	FrameMutation = "mut"     // client -> server
	FrameConfirm  = "confirm" // server -> client
	FramePing     = "ping"
	FramePong     = "pong"
)

// MutationFrame carries one optimistic mutation to the server. Op names
// the declared action; Value is the action input for parameterized
// actions. Version tags the response the server must send back.
type MutationFrame struct {
	Type    string `msgpack:"t"`
	Unit    string `msgpack:"u"`
	Field   string `msgpack:"f"`
	Op      string `msgpack:"op,omitempty"`
	Version uint64 `msgpack:"v"`
	Value   any    `msgpack:"val"`
}

// ConfirmFrame carries the server's authoritative value for one field,
// tagged with the version of the mutation it responds to. Derived-field
// confirmations triggered by the same mutation reuse its version.
type ConfirmFrame struct {
	Type    string `msgpack:"t"`
	Unit    string `msgpack:"u"`
	Field   string `msgpack:"f"`
	Version uint64 `msgpack:"v"`
	Value   any    `msgpack:"val"`
}

// EncodeMutation encodes a mutation frame.
func EncodeMutation(m *MutationFrame) ([]byte, error) {
	m.Type = FrameMutation
	return msgpack.Marshal(m)
}

// EncodeConfirm encodes a confirmation frame.
func EncodeConfirm(c *ConfirmFrame) ([]byte, error) {
	c.Type = FrameConfirm
	return msgpack.Marshal(c)
}

// frameHeader peeks the frame type.
type frameHeader struct {
	Type string `msgpack:"t"`
}

// DecodeFrame decodes an incoming frame to its concrete type:
// *MutationFrame, *ConfirmFrame, or the FramePing/FramePong string.
func DecodeFrame(data []byte) (any, error) {
	var h frameHeader
	if err := msgpack.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("sync: decoding frame header: %w", err)
	}
	switch h.Type {
	case FrameMutation:
		var m MutationFrame
		if err := msgpack.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("sync: decoding mutation: %w", err)
		}
		return &m, nil
	case FrameConfirm:
		var c ConfirmFrame
		if err := msgpack.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("sync: decoding confirmation: %w", err)
		}
		return &c, nil
	case FramePing:
		return FramePing, nil
	case FramePong:
		return FramePong, nil
	default:
		return nil, fmt.Errorf("sync: unknown frame type %q", h.Type)
	}
}
