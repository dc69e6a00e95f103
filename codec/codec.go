// Package codec selects the payload serialization format.
//
// The wire format must round-trip generic structured values — ordered
// sequences, string-keyed mappings, and opaque binary blobs — so msgpack is
// the default. A JSON codec is kept as a human-readable alternative for
// debugging; note that JSON turns binary blobs into base64 strings and does
// not round-trip them.
package codec

type CodecType byte

const (
	CodecTypeMsgpack CodecType = 0
	CodecTypeJSON    CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}
	return &MsgpackCodec{}
}
