// Package body serializes message bodies for the wire. A body is always a
// string keyed mapping; the body kind picks the encoding.
package body

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Body is a message as seen by stack consumers.
type Body = map[string]any

// RawKey is the single key of a raw body. Its value is carried unchanged.
const RawKey = "raw"

// Kind selects how a body is encoded.
type Kind uint8

const (
	Nada    Kind = 0
	JSON    Kind = 1
	Raw     Kind = 2
	Msgpack Kind = 3
	CBOR    Kind = 4
)

// ErrBody is returned when a body cannot be encoded or decoded.
var ErrBody = errors.New("body")

// ErrKind is returned for an unrecognized body kind tag.
var ErrKind = fmt.Errorf("%w: unknown kind", ErrBody)

var kindNames = [...]string{Nada: "nada", JSON: "json", Raw: "raw", Msgpack: "msgpack", CBOR: "cbor"}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return int(k) < len(kindNames) }

// ParseKind converts a wire tag into a Kind.
func ParseKind(tag uint64) (Kind, error) {
	k := Kind(tag)
	if tag > 0xff || !k.Valid() {
		return 0, fmt.Errorf("%w %d", ErrKind, tag)
	}
	return k, nil
}

// KindByName resolves a configuration name such as "msgpack".
func KindByName(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrKind, name)
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	if cborEnc, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Pack encodes b according to kind.
func Pack(kind Kind, b Body) ([]byte, error) {
	switch kind {
	case Nada:
		if len(b) != 0 {
			return nil, fmt.Errorf("%w: nada kind with %d keys", ErrBody, len(b))
		}
		return []byte{}, nil
	case JSON:
		data, err := json.Marshal(jsonFloats(b))
		if err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrBody, err)
		}
		return data, nil
	case Raw:
		return packRaw(b)
	case Msgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		if err := enc.Encode(b); err != nil {
			return nil, fmt.Errorf("%w: msgpack: %v", ErrBody, err)
		}
		return buf.Bytes(), nil
	case CBOR:
		data, err := cborEnc.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%w: cbor: %v", ErrBody, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w %d", ErrKind, kind)
	}
}

// Unpack decodes data according to kind.
func Unpack(kind Kind, data []byte) (Body, error) {
	switch kind {
	case Nada:
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: nada kind with %d bytes", ErrBody, len(data))
		}
		return Body{}, nil
	case JSON:
		var b Body
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrBody, err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, fmt.Errorf("%w: json: trailing data", ErrBody)
		}
		return decoded(b)
	case Raw:
		return Body{RawKey: append([]byte(nil), data...)}, nil
	case Msgpack:
		var b Body
		if err := msgpack.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%w: msgpack: %v", ErrBody, err)
		}
		return decoded(b)
	case CBOR:
		var b Body
		if err := cborDec.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%w: cbor: %v", ErrBody, err)
		}
		return decoded(b)
	default:
		return nil, fmt.Errorf("%w %d", ErrKind, kind)
	}
}

func packRaw(b Body) ([]byte, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("%w: raw body needs exactly the %q key", ErrBody, RawKey)
	}
	switch v := b[RawKey].(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%w: raw body value is %T", ErrBody, b[RawKey])
	}
}

func decoded(b Body) (Body, error) {
	if _, err := notNull(b); err != nil {
		return nil, err
	}
	return normalize(b).(Body), nil
}

// A wire "null" decodes to a nil map, which is not a mapping body.
func notNull(b Body) (Body, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: body is not a mapping", ErrBody)
	}
	return b, nil
}
