package save

import (
	"fmt"

	"github.com/golang/snappy"
)

// Codec transforms payloads on their way to and from storage. Codecs see
// the value bytes only; keys and the storage format are untouched.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// SnappyCodec compresses payloads with snappy block encoding. Worthwhile
// for chunk data, which tends to be highly repetitive.
type SnappyCodec struct{}

func (SnappyCodec) Encode(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (SnappyCodec) Decode(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress entry: %w", err)
	}
	return out, nil
}
