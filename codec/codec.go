// Package codec turns order-store values into bytes and back.
package codec

import (
	"fmt"
	"strings"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names accepted by ByName.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
	NameCBOR    = "cbor"
)

// ByName returns the codec registered under name, wrapped in a LimitCodec
// when maxDecode > 0.
func ByName[V any](name string, maxDecode int) (Codec[V], error) {
	var c Codec[V]
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameJSON:
		c = JSONCodec[V]{}
	case NameMsgpack:
		c = Msgpack[V]{}
	case NameCBOR:
		cb, err := NewCBOR[V](true)
		if err != nil {
			return nil, err
		}
		c = cb
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	if maxDecode > 0 {
		c = LimitCodec[V]{Inner: c, MaxDecode: maxDecode}
	}
	return c, nil
}
