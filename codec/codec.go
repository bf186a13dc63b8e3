// Package codec encodes request bodies and decodes response bodies for typed calls.
package codec

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
	ContentType() string // Sent as Content-Type on encoded bodies
}

// GetCodec returns the codec for codecType. JSON is the only wire format
// backends speak today, so unknown types fall back to it.
func GetCodec(codecType CodecType) Codec {
	return &JSONCodec{}
}
