package amf0

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
	"github.com/DMA-Software/dma-goamf/pkg/amf3/flex"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEncodeScalars(t *testing.T) {
	tests := []struct {
		name  string
		value amf.Value
		want  []byte
	}{
		{"number", amf.Number(1), []byte{0x00, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0}},
		{"true", amf.Bool(true), []byte{0x01, 0x01}},
		{"false", amf.Bool(false), []byte{0x01, 0x00}},
		{"string", amf.String("hi"), []byte{0x02, 0x00, 0x02, 'h', 'i'}},
		{"null", amf.Null{}, []byte{0x05}},
		{"undefined", amf.Undefined{}, []byte{0x06}},
		{"unsupported", amf.Unsupported{}, []byte{0x0D}},
		{"reference", amf.Reference(258), []byte{0x07, 0x01, 0x02}},
		{"date", amf.Date{Time: 1, Timezone: 5, HasTimezone: true}, []byte{0x0B, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0, 0x00, 0x05}},
		{"date without timezone", amf.Date{Time: 1, Timezone: 5}, []byte{0x0B, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0, 0x00, 0x00}},
		{"xml", amf.XML{Content: "<a/>"}, []byte{0x0F, 0, 0, 0, 4, '<', 'a', '/', '>'}},
		{"integer has no amf0 form", amf.Integer(1), []byte{0x0D}},
		{"byte array has no amf0 form", amf.ByteArray{1}, []byte{0x0D}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Marshal(tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, data)
		})
	}
}

func TestStringBoundary(t *testing.T) {
	short := strings.Repeat("a", 65535)
	data, err := Marshal(amf.String(short))
	require.NoError(t, err)
	assert.Equal(t, []byte{TypeString, 0xFF, 0xFF}, data[:3])
	assert.Len(t, data, 3+65535)

	long := strings.Repeat("a", 65536)
	data, err = Marshal(amf.String(long))
	require.NoError(t, err)
	assert.Equal(t, []byte{TypeLongString, 0x00, 0x01, 0x00, 0x00}, data[:5])
	assert.Len(t, data, 5+65536)

	for _, s := range []string{short, long} {
		data, err := Marshal(amf.String(s))
		require.NoError(t, err)
		v, err := Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, amf.String(s), v)
	}
}

func TestObject(t *testing.T) {
	obj := &amf.Object{Elements: []amf.Element{
		amf.NewElement("b", amf.Number(2)),
		amf.NewElement("a", amf.String("x")),
	}}
	data, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x03,
		0x00, 0x01, 'b', 0x00, 0x40, 0x00, 0, 0, 0, 0, 0, 0,
		0x00, 0x01, 'a', 0x02, 0x00, 0x01, 'x',
		0x00, 0x00, 0x09,
	}, data)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, amf.Equal(obj, decoded))
	assert.Nil(t, decoded.(*amf.Object).Class)
}

func TestTypedObject(t *testing.T) {
	obj := &amf.Object{
		Elements: []amf.Element{amf.NewElement("n", amf.Null{})},
		Class:    &amf.ClassDefinition{Name: "Foo", Attributes: amf.AttributeDynamic},
	}
	data, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x10, 0x00, 0x03, 'F', 'o', 'o',
		0x00, 0x01, 'n', 0x05,
		0x00, 0x00, 0x09,
	}, data)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, amf.Equal(obj, decoded))
}

func TestEcmaArray(t *testing.T) {
	array := &amf.ECMAArray{
		Dense:  []amf.Value{amf.Number(1)},
		Assoc:  []amf.Element{amf.NewElement("a", amf.Bool(true))},
		Length: 1,
	}
	data, err := Marshal(array)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x08, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x01, '0', 0x00, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0,
		0x00, 0x01, 'a', 0x01, 0x01,
		0x00, 0x00, 0x09,
	}, data)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, amf.Equal(array, decoded))
}

func TestEcmaArrayOutOfOrderKeys(t *testing.T) {
	data := []byte{
		0x08, 0x00, 0x00, 0x00, 0x02,
		0x00, 0x01, '1', 0x05,
		0x00, 0x01, '0', 0x06,
		0x00, 0x00, 0x09,
	}
	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	array := decoded.(*amf.ECMAArray)
	assert.Empty(t, array.Dense)
	assert.Equal(t, []amf.Element{
		amf.NewElement("1", amf.Null{}),
		amf.NewElement("0", amf.Undefined{}),
	}, array.Assoc)
	assert.Equal(t, uint32(2), array.Length)

	// A numeric key after an associative one stays associative
	data = []byte{
		0x08, 0x00, 0x00, 0x00, 0x02,
		0x00, 0x01, '0', 0x05,
		0x00, 0x01, 'x', 0x05,
		0x00, 0x01, '1', 0x06,
		0x00, 0x00, 0x09,
	}
	decoded, err = Unmarshal(data)
	require.NoError(t, err)
	array = decoded.(*amf.ECMAArray)
	assert.Equal(t, []amf.Value{amf.Null{}}, array.Dense)
	assert.Equal(t, []amf.Element{
		amf.NewElement("x", amf.Null{}),
		amf.NewElement("1", amf.Undefined{}),
	}, array.Assoc)
}

func TestStrictArrayAndDate(t *testing.T) {
	array := &amf.StrictArray{Values: []amf.Value{
		amf.Date{Time: 1.5e12, Timezone: 0xFFC4, HasTimezone: true},
		amf.String("x"),
	}}
	data, err := Marshal(array)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, amf.Equal(array, decoded))
}

func TestAMF3Switch(t *testing.T) {
	array := &amf.StrictArray{Values: []amf.Value{
		amf.AMF3{Value: amf.String("hi")},
		amf.AMF3{Value: amf.String("hi")},
	}}
	data, err := Marshal(array)
	require.NoError(t, err)
	// Each switch starts with empty reference tables
	assert.Equal(t, []byte{
		0x0A, 0x00, 0x00, 0x00, 0x02,
		0x11, 0x06, 0x05, 'h', 'i',
		0x11, 0x06, 0x05, 'h', 'i',
	}, data)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, amf.Equal(array, decoded))
}

func TestAMF3SwitchUsesRegistry(t *testing.T) {
	value := amf.AMF3{Value: flex.ArrayCollection(amf.Integer(1))}

	_, err := Marshal(value)
	assert.ErrorIs(t, err, amf.ErrUnsupportedExternalType)

	data, err := Marshal(value, WithRegistry(flex.NewRegistry()))
	require.NoError(t, err)

	decoded, err := Unmarshal(data, WithRegistry(flex.NewRegistry()))
	require.NoError(t, err)
	assert.True(t, amf.Equal(value, decoded))

	_, err = Unmarshal(data, WithRegistry(amf3.NewRegistry()))
	assert.ErrorIs(t, err, amf.ErrUnsupportedExternalType)
}

func TestResolve(t *testing.T) {
	inner := &amf.Object{Elements: []amf.Element{amf.NewElement("k", amf.Number(1))}}
	outer := &amf.StrictArray{Values: []amf.Value{inner, amf.Reference(1)}}

	data, err := Marshal(outer)
	require.NoError(t, err)

	dec := NewDecoder(bytes.NewReader(data))
	v, err := dec.Decode()
	require.NoError(t, err)

	values := v.(*amf.StrictArray).Values
	require.Len(t, values, 2)
	ref, ok := values[1].(amf.Reference)
	require.True(t, ok)

	resolved, err := dec.Resolve(ref)
	require.NoError(t, err)
	assert.Same(t, values[0], resolved)

	first, err := dec.Resolve(0)
	require.NoError(t, err)
	assert.Same(t, v, first)

	_, err = dec.Resolve(2)
	assert.ErrorIs(t, err, amf.ErrInvalidReferenceIndex)

	dec.Reset()
	_, err = dec.Resolve(0)
	assert.ErrorIs(t, err, amf.ErrInvalidReferenceIndex)
}

func TestElements(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.EncodeElement(amf.NewElement("x", amf.Bool(true))))
	assert.Equal(t, []byte{0x00, 0x01, 'x', 0x01, 0x01}, buf.Bytes())

	dec := NewDecoder(&buf)
	el, err := dec.DecodeElement()
	require.NoError(t, err)
	assert.Equal(t, amf.NewElement("x", amf.Bool(true)), el)

	_, err = dec.DecodeElement()
	assert.Equal(t, io.EOF, err)
}

func TestEmptyPropertyName(t *testing.T) {
	_, err := Marshal(&amf.Object{Elements: []amf.Element{amf.NewElement("", amf.Null{})}})
	assert.ErrorIs(t, err, amf.ErrUnsupportedValue)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"truncated number", []byte{0x00, 0x3F}, amf.ErrTruncatedInput},
		{"truncated string", []byte{0x02, 0x00, 0x05, 'a'}, amf.ErrTruncatedInput},
		{"truncated long string", []byte{0x0C, 0xFF, 0xFF, 0xFF, 0xFF}, amf.ErrTruncatedInput},
		{"unterminated object", []byte{0x03, 0x00, 0x01, 'a', 0x05}, amf.ErrTruncatedInput},
		{"bad object end", []byte{0x03, 0x00, 0x00, 0x05}, amf.ErrUnexpectedMarker},
		{"movie clip", []byte{0x04}, amf.ErrUnexpectedMarker},
		{"record set", []byte{0x0E}, amf.ErrUnexpectedMarker},
		{"unknown marker", []byte{0x12}, amf.ErrUnexpectedMarker},
		{"empty amf3 switch", []byte{0x11}, amf.ErrTruncatedInput},
		{"bad amf3 payload", []byte{0x11, 0x06, 0x00}, amf.ErrInvalidReferenceIndex},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal(tc.data)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := Unmarshal(nil)
	assert.Equal(t, io.EOF, err)
}

func FuzzUnmarshal(f *testing.F) {
	seeds := [][]byte{
		{0x02, 0x00, 0x02, 'h', 'i'},
		{0x03, 0x00, 0x01, 'a', 0x05, 0x00, 0x00, 0x09},
		{0x08, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, '0', 0x06, 0x00, 0x00, 0x09},
		{0x0A, 0x00, 0x00, 0x00, 0x01, 0x11, 0x06, 0x05, 'h', 'i'},
		{0x10, 0x00, 0x01, 'C', 0x00, 0x00, 0x09},
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		dec := NewDecoder(bytes.NewReader(data), WithRegistry(flex.NewRegistry()))
		for {
			if _, err := dec.Decode(); err != nil {
				if !errors.Is(err, amf.ErrTruncatedInput) &&
					!errors.Is(err, amf.ErrUnexpectedMarker) &&
					!errors.Is(err, amf.ErrInvalidReferenceIndex) &&
					!errors.Is(err, amf.ErrUnsupportedExternalType) &&
					!errors.Is(err, io.EOF) {
					t.Fatalf("unexpected error class: %v", err)
				}
				return
			}
		}
	})
}
