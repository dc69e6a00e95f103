package codec

import (
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec is the default codec. Msgpack distinguishes raw binary from
// strings, keeps sequence order, and encodes time.Time natively, so
// arbitrary call arguments and return values survive the round trip.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgpack
}
