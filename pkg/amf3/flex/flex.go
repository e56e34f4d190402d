// Package flex provides external codecs for the Flex collection and proxy
// classes commonly found in AMF3 remoting payloads and shared objects. Each
// of them externalizes a single nested AMF3 value.
package flex

import (
	"fmt"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

// Externalizable Flex class names
const (
	ArrayCollectionClass = "flex.messaging.io.ArrayCollection"
	ArrayListClass       = "flex.messaging.io.ArrayList"
	ObjectProxyClass     = "mx.utils.ObjectProxy"
)

// Element names under which the wrapped value is surfaced
const (
	SourceElement = "source"
	ObjectElement = "object"
)

// Register installs the codecs of this package into r
func Register(r *amf3.Registry) {
	r.Register(ArrayCollectionClass, SingleValue(SourceElement))
	r.Register(ArrayListClass, SingleValue(SourceElement))
	r.Register(ObjectProxyClass, SingleValue(ObjectElement))
}

// NewRegistry returns a registry holding the codecs of this package
func NewRegistry() *amf3.Registry {
	r := amf3.NewRegistry()
	Register(r)
	return r
}

// SingleValue is a codec for classes whose payload is one AMF3 value,
// surfaced as the element called name
type SingleValue string

// EncodeExternal writes the value of the named element, or null when absent
func (name SingleValue) EncodeExternal(enc *amf3.Encoder, elements []amf.Element, class *amf.ClassDefinition) ([]byte, error) {
	var value amf.Value = amf.Null{}
	for _, el := range elements {
		if el.Name == string(name) {
			value = el.Value
			break
		}
	}
	return enc.Marshal(value)
}

// DecodeExternal reads the wrapped value
func (name SingleValue) DecodeExternal(dec *amf3.Decoder, class *amf.ClassDefinition) ([]amf.Element, error) {
	value, err := dec.ReadValue()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", class.Name, err)
	}
	return []amf.Element{{Name: string(name), Value: value}}, nil
}

// ArrayCollection builds a Custom value for a Flex ArrayCollection of items
func ArrayCollection(items ...amf.Value) *amf.Custom {
	return &amf.Custom{
		External: []amf.Element{{Name: SourceElement, Value: &amf.StrictArray{Values: items}}},
		Class:    amf.NewClassDefinition(ArrayCollectionClass, amf.AttributeExternal),
	}
}

// ObjectProxy builds a Custom value wrapping object in an mx.utils.ObjectProxy
func ObjectProxy(object amf.Value) *amf.Custom {
	return &amf.Custom{
		External: []amf.Element{{Name: ObjectElement, Value: object}},
		Class:    amf.NewClassDefinition(ObjectProxyClass, amf.AttributeExternal),
	}
}
