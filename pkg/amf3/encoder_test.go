package amf3

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

func encodeAll(t *testing.T, enc *Encoder, values ...amf.Value) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, enc.Encode(v))
	}
}

func TestEncodeStringReferences(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	encodeAll(t, enc,
		amf.String("hello"),
		amf.String("hello"),
		amf.String(""),
		amf.String(""),
		amf.String("a"),
		amf.String("a"),
	)

	assert.Equal(t, []byte{
		0x06, 0x0B, 'h', 'e', 'l', 'l', 'o',
		0x06, 0x00,
		0x06, 0x01,
		0x06, 0x01, // empty string never enters the table
		0x06, 0x03, 'a',
		0x06, 0x02,
	}, buf.Bytes())
}

func TestEncodeTraitReference(t *testing.T) {
	class := amf.NewClassDefinition("Foo", 0, "x")

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	encodeAll(t, enc,
		&amf.Object{Elements: []amf.Element{amf.NewElement("x", amf.Integer(1))}, Class: class},
		&amf.Object{Elements: []amf.Element{amf.NewElement("x", amf.Integer(2))}, Class: class},
	)

	assert.Equal(t, []byte{
		0x0A, 0x13, 0x07, 'F', 'o', 'o', 0x03, 'x', 0x04, 0x01,
		0x0A, 0x01, 0x04, 0x02,
	}, buf.Bytes())

	dec := NewDecoder(bytes.NewReader(buf.Bytes()))
	for _, x := range []amf.Integer{1, 2} {
		v, err := dec.Decode()
		require.NoError(t, err)
		obj, ok := v.(*amf.Object)
		require.True(t, ok)
		require.NotNil(t, obj.Class)
		assert.True(t, obj.Class.Equal(*class))
		assert.Equal(t, []amf.Element{amf.NewElement("x", x)}, obj.Elements)
	}
}

func TestEncodeStructurallyEqualObjects(t *testing.T) {
	first := &amf.Object{Elements: []amf.Element{amf.NewElement("a", amf.Integer(1))}}
	second := &amf.Object{Elements: []amf.Element{amf.NewElement("a", amf.Integer(1))}}

	data, err := Marshal(&amf.StrictArray{Values: []amf.Value{first, second}})
	require.NoError(t, err)
	// Second object is written as a reference to table slot 1
	assert.Equal(t, []byte{0x0A, 0x02}, data[len(data)-2:])
}

func TestEncodeSealedMissingProperty(t *testing.T) {
	obj := &amf.Object{Class: amf.NewClassDefinition("P", 0, "x")}
	data, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0A, 0x13, 0x03, 'P', 0x03, 'x', 0x00}, data)
}

func TestEncodeDynamicWithStatic(t *testing.T) {
	obj := &amf.Object{
		Elements: []amf.Element{
			amf.NewElement("extra", amf.Bool(true)),
			amf.NewElement("x", amf.Integer(7)),
		},
		Class: amf.NewClassDefinition("P", amf.AttributeDynamic, "x"),
	}
	data, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x0A, 0x1B, 0x03, 'P', 0x03, 'x',
		0x04, 0x07,
		0x0B, 'e', 'x', 't', 'r', 'a', 0x03,
		0x01,
	}, data)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, []amf.Element{
		amf.NewElement("x", amf.Integer(7)),
		amf.NewElement("extra", amf.Bool(true)),
	}, decoded.(*amf.Object).Elements)
}

func TestEncodeDictionaryDoubleAccounting(t *testing.T) {
	dict := &amf.Dictionary{Entries: []amf.DictionaryEntry{
		{Key: amf.String("k"), Value: amf.Integer(1)},
	}}
	array := &amf.StrictArray{Values: []amf.Value{dict, dict, amf.ByteArray{9}, amf.ByteArray{9}}}

	data, err := Marshal(array)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x09, 0x09, 0x01,
		0x11, 0x03, 0x00, 0x06, 0x03, 'k', 0x04, 0x01,
		0x11, 0x02,
		// Byte array lands in slot 3 because the dictionary took slots 1 and 2
		0x0C, 0x03, 0x09,
		0x0C, 0x06,
	}, data)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	strict, ok := decoded.(*amf.StrictArray)
	require.True(t, ok)
	require.Len(t, strict.Values, 4)

	first, ok := strict.Values[0].(*amf.Dictionary)
	require.True(t, ok)
	assert.Equal(t, amf.ObjectReference{ID: first.ID}, strict.Values[1])
	assert.Equal(t, amf.ByteArray{9}, strict.Values[2])
	assert.Equal(t, amf.ByteArray{9}, strict.Values[3])
}

func TestEncodeXMLOccupiesSlot(t *testing.T) {
	xml := amf.XML{Content: "<a/>"}
	array := &amf.StrictArray{Values: []amf.Value{xml, xml, amf.ByteArray{1}, amf.ByteArray{1}}}

	data, err := Marshal(array)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x09, 0x09, 0x01,
		0x07, 0x09, '<', 'a', '/', '>',
		0x07, 0x09, '<', 'a', '/', '>',
		0x0C, 0x03, 0x01,
		0x0C, 0x06,
	}, data)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, amf.Equal(array, decoded))
}

func TestEncodeDateReference(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	encodeAll(t, enc,
		amf.Date{Time: 0},
		amf.Date{Time: 0, Timezone: 60, HasTimezone: true},
	)
	assert.Equal(t, []byte{0x08, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0x08, 0x00}, buf.Bytes())

	dec := NewDecoder(bytes.NewReader(buf.Bytes()))
	for range 2 {
		v, err := dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, amf.Date{Time: 0}, v)
	}
}

func TestEncodeIntegerOutOfRange(t *testing.T) {
	data, err := Marshal(amf.Integer(1 << 28))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x41, 0xB0, 0, 0, 0, 0, 0, 0}, data)

	data, err = Marshal(amf.Integer(-1<<28 - 1))
	require.NoError(t, err)
	assert.Equal(t, byte(TypeDouble), data[0])
}

func TestEncodeUnsupportedIsUndefined(t *testing.T) {
	data, err := Marshal(amf.Unsupported{})
	require.NoError(t, err)
	assert.Equal(t, []byte{TypeUndefined}, data)
}

func TestEncodeReferenceFails(t *testing.T) {
	_, err := Marshal(amf.Reference(1))
	assert.ErrorIs(t, err, amf.ErrUnsupportedValue)

	_, err = Marshal(amf.ObjectReference{ID: 1})
	assert.ErrorIs(t, err, amf.ErrUnsupportedValue)
}

func TestEncodeUnknownExternal(t *testing.T) {
	custom := &amf.Custom{Class: amf.NewClassDefinition("com.example.Unknown", amf.AttributeExternal)}

	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode(custom)
	assert.ErrorIs(t, err, amf.ErrUnsupportedExternalType)
	assert.Zero(t, buf.Len(), "nothing is written for an unknown external class")

	// External class on a plain object is rejected the same way
	err = NewEncoder(&buf).Encode(&amf.Object{Class: custom.Class})
	assert.ErrorIs(t, err, amf.ErrUnsupportedExternalType)
	assert.Zero(t, buf.Len())
}

func TestEncodeElementAndReset(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.EncodeElement(amf.NewElement("a", amf.String("a"))))
	enc.Reset()
	require.NoError(t, enc.Encode(amf.String("a")))

	assert.Equal(t, []byte{0x03, 'a', 0x06, 0x00, 0x06, 0x03, 'a'}, buf.Bytes())
}

func TestEncoderMarshalSharesTables(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(amf.String("shared")))

	nested, err := enc.Marshal(amf.String("shared"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06, 0x00}, nested)

	raw, err := enc.MarshalString("shared")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, raw)

	// Captured output never reaches the underlying writer
	assert.Equal(t, 8, buf.Len())
}
