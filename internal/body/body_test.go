package body

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBody() Body {
	return Body{
		"route": map[string]any{
			"src": []any{"alpha", "yard", "share"},
			"dst": []any{"beta", "yard", "share"},
		},
		"content": "Hello all yards.",
		"urgent":  true,
	}
}

func TestRoundTripAllMappingKinds(t *testing.T) {
	for _, kind := range []Kind{JSON, Msgpack, CBOR} {
		t.Run(kind.String(), func(t *testing.T) {
			data, err := Pack(kind, sampleBody())
			require.NoError(t, err)

			got, err := Unpack(kind, data)
			require.NoError(t, err)
			assert.Equal(t, sampleBody(), got)
		})
	}
}

func TestPackIsDeterministic(t *testing.T) {
	for _, kind := range []Kind{JSON, Msgpack, CBOR} {
		first, err := Pack(kind, sampleBody())
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := Pack(kind, sampleBody())
			require.NoError(t, err)
			assert.Equal(t, first, again, kind.String())
		}
	}
}

func TestRawPassthrough(t *testing.T) {
	data, err := Pack(Raw, Body{RawKey: []byte{0x00, 0xff, 0x10}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, data)

	got, err := Unpack(Raw, data)
	require.NoError(t, err)
	assert.Equal(t, Body{RawKey: []byte{0x00, 0xff, 0x10}}, got)

	data, err = Pack(Raw, Body{RawKey: "text"})
	require.NoError(t, err)
	assert.Equal(t, []byte("text"), data)

	_, err = Pack(Raw, Body{"other": "x"})
	assert.ErrorIs(t, err, ErrBody)
	_, err = Pack(Raw, Body{RawKey: 12})
	assert.ErrorIs(t, err, ErrBody)
}

func TestNada(t *testing.T) {
	data, err := Pack(Nada, nil)
	require.NoError(t, err)
	assert.Empty(t, data)

	got, err := Unpack(Nada, nil)
	require.NoError(t, err)
	assert.Equal(t, Body{}, got)

	_, err = Pack(Nada, Body{"x": "y"})
	assert.ErrorIs(t, err, ErrBody)
	_, err = Unpack(Nada, []byte("x"))
	assert.ErrorIs(t, err, ErrBody)
}

func TestUnpackRejectsGarbage(t *testing.T) {
	_, err := Unpack(JSON, []byte("{not json"))
	assert.ErrorIs(t, err, ErrBody)

	_, err = Unpack(JSON, []byte("null"))
	assert.ErrorIs(t, err, ErrBody)

	_, err = Unpack(JSON, []byte(`["list"]`))
	assert.ErrorIs(t, err, ErrBody)

	_, err = Unpack(Msgpack, []byte{0xc1})
	assert.ErrorIs(t, err, ErrBody)
}

func TestKindParsing(t *testing.T) {
	k, err := ParseKind(3)
	require.NoError(t, err)
	assert.Equal(t, Msgpack, k)

	_, err = ParseKind(9)
	assert.ErrorIs(t, err, ErrKind)
	_, err = ParseKind(0x1ff)
	assert.ErrorIs(t, err, ErrKind)

	k, err = KindByName("cbor")
	require.NoError(t, err)
	assert.Equal(t, CBOR, k)
	_, err = KindByName("xml")
	assert.ErrorIs(t, err, ErrKind)

	_, err = Pack(Kind(77), Body{})
	assert.ErrorIs(t, err, ErrKind)
}

func TestNumbersKeepTheirType(t *testing.T) {
	want := Body{
		"count": 3,
		"neg":   -7,
		"ratio": 0.5,
		"whole": 2.0,
		"big":   uint64(math.MaxUint64),
		"list":  []any{1, 1.5, "x"},
		"inner": map[string]any{"n": 42},
	}
	for _, kind := range []Kind{JSON, Msgpack, CBOR} {
		t.Run(kind.String(), func(t *testing.T) {
			data, err := Pack(kind, want)
			require.NoError(t, err)
			got, err := Unpack(kind, data)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestJSONKeepsIntegralFloats(t *testing.T) {
	data, err := Pack(JSON, Body{"f": 3.0, "i": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"f":3.0,"i":3}`, string(data))
	assert.Contains(t, string(data), `"f":3.0`)

	_, err = Unpack(JSON, []byte(`{"a":1} {"b":2}`))
	assert.ErrorIs(t, err, ErrBody)
}
