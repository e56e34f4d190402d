package amf3

import (
	"slices"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// ExternalCodec serializes the payload of an externalizable class. The
// payload format is opaque to the engine; codecs use the owning Encoder or
// Decoder to read and write nested values so they share its reference
// tables.
type ExternalCodec interface {
	// EncodeExternal returns the raw payload for elements
	EncodeExternal(enc *Encoder, elements []amf.Element, class *amf.ClassDefinition) ([]byte, error)
	// DecodeExternal consumes the payload from dec
	DecodeExternal(dec *Decoder, class *amf.ClassDefinition) ([]amf.Element, error)
}

// ExternalFuncs adapts a pair of functions to an ExternalCodec
type ExternalFuncs struct {
	Encode func(enc *Encoder, elements []amf.Element, class *amf.ClassDefinition) ([]byte, error)
	Decode func(dec *Decoder, class *amf.ClassDefinition) ([]amf.Element, error)
}

func (f ExternalFuncs) EncodeExternal(enc *Encoder, elements []amf.Element, class *amf.ClassDefinition) ([]byte, error) {
	return f.Encode(enc, elements, class)
}

func (f ExternalFuncs) DecodeExternal(dec *Decoder, class *amf.ClassDefinition) ([]amf.Element, error) {
	return f.Decode(dec, class)
}

// Registry maps class names to external codecs. A Registry is read by
// engines during a pass and must not be modified concurrently with one.
type Registry struct {
	codecs map[string]ExternalCodec
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]ExternalCodec)}
}

// Register installs codec for className, replacing any previous one
func (r *Registry) Register(className string, codec ExternalCodec) {
	r.codecs[className] = codec
}

// Lookup returns the codec for className. A nil Registry has no codecs.
func (r *Registry) Lookup(className string) (ExternalCodec, bool) {
	if r == nil {
		return nil, false
	}
	codec, ok := r.codecs[className]
	return codec, ok
}

// Names returns the registered class names in sorted order
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
