package flex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

func TestRegister(t *testing.T) {
	assert.Equal(t, []string{
		ArrayCollectionClass,
		ArrayListClass,
		ObjectProxyClass,
	}, NewRegistry().Names())
}

func TestArrayCollection(t *testing.T) {
	collection := ArrayCollection(amf.Integer(1), amf.String("a"))

	data, err := amf3.Marshal(collection, amf3.WithRegistry(NewRegistry()))
	require.NoError(t, err)

	want := []byte{0x0A, 0x07, 0x43}
	want = append(want, ArrayCollectionClass...)
	want = append(want, 0x09, 0x05, 0x01, 0x04, 0x01, 0x06, 0x03, 'a')
	assert.Equal(t, want, data)

	decoded, err := amf3.Unmarshal(data, amf3.WithRegistry(NewRegistry()))
	require.NoError(t, err)
	assert.True(t, amf.Equal(collection, decoded))

	custom, ok := decoded.(*amf.Custom)
	require.True(t, ok)
	require.Len(t, custom.External, 1)
	assert.Equal(t, SourceElement, custom.External[0].Name)
}

func TestObjectProxy(t *testing.T) {
	inner := &amf.Object{Elements: []amf.Element{amf.NewElement("id", amf.Integer(42))}}
	proxy := ObjectProxy(inner)

	data, err := amf3.Marshal(proxy, amf3.WithRegistry(NewRegistry()))
	require.NoError(t, err)

	decoded, err := amf3.Unmarshal(data, amf3.WithRegistry(NewRegistry()))
	require.NoError(t, err)
	assert.True(t, amf.Equal(proxy, decoded))
}

func TestMissingElementIsNull(t *testing.T) {
	list := &amf.Custom{Class: amf.NewClassDefinition(ArrayListClass, amf.AttributeExternal)}

	data, err := amf3.Marshal(list, amf3.WithRegistry(NewRegistry()))
	require.NoError(t, err)

	decoded, err := amf3.Unmarshal(data, amf3.WithRegistry(NewRegistry()))
	require.NoError(t, err)
	assert.Equal(t, []amf.Element{amf.NewElement(SourceElement, amf.Null{})}, decoded.(*amf.Custom).External)
}

func TestTruncatedPayload(t *testing.T) {
	data, err := amf3.Marshal(ArrayCollection(amf.String("abc")), amf3.WithRegistry(NewRegistry()))
	require.NoError(t, err)

	_, err = amf3.Unmarshal(data[:len(data)-2], amf3.WithRegistry(NewRegistry()))
	assert.ErrorIs(t, err, amf.ErrTruncatedInput)
}
