package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"
)

var ErrDecode = errors.New("undecodable message")

// Codec turns messages into frame payloads and back.
type Codec interface {
	Name() string
	Marshal(m *Message) ([]byte, error)
	Unmarshal(data []byte, m *Message) error
}

var (
	// JSON is the textual encoding every peer understands.
	JSON Codec = jsonCodec{}
	// Msgpack is the compact encoding a peer may ask for with "codec".
	Msgpack Codec = newMsgpackCodec()
)

// CodecByName resolves the "codec" field of a create/join request. The empty
// name selects JSON.
func CodecByName(name string) (Codec, bool) {
	switch name {
	case "", "json":
		return JSON, true
	case "msgpack":
		return Msgpack, true
	}
	return nil, false
}

// Decode accepts either encoding: a payload opening with '{' is tried as JSON
// first, anything else as msgpack first. The codec that succeeded is
// returned so replies can mirror it.
func Decode(data []byte) (*Message, Codec, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	order := [2]Codec{Msgpack, JSON}
	if trimmed[0] == '{' {
		order = [2]Codec{JSON, Msgpack}
	}
	var firstErr error
	for _, c := range order {
		var m Message
		err := c.Unmarshal(data, &m)
		if err == nil && m.Type == "" {
			err = errors.New("missing type")
		}
		if err == nil {
			return &m, c, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, nil, fmt.Errorf("%w: %v", ErrDecode, firstErr)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(m *Message) ([]byte, error) { return json.Marshal(m) }

func (jsonCodec) Unmarshal(data []byte, m *Message) error { return json.Unmarshal(data, m) }

type msgpackCodec struct {
	h *codec.MsgpackHandle
}

func newMsgpackCodec() msgpackCodec {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	h.RawToString = true
	return msgpackCodec{h: h}
}

func (msgpackCodec) Name() string { return "msgpack" }

func (c msgpackCodec) Marshal(m *Message) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, c.h).Encode(m); err != nil {
		return nil, err
	}
	return out, nil
}

func (c msgpackCodec) Unmarshal(data []byte, m *Message) error {
	return codec.NewDecoderBytes(data, c.h).Decode(m)
}
