package amf3

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/DMA-Software/dma-goamf/internal/u29"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Encoder writes amf.Values in the AMF3 grammar
type Encoder struct {
	writer io.Writer
	refs   referenceContext
	opts   options
}

// NewEncoder creates a new AMF3 encoder that writes to the provided writer
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	return &Encoder{
		writer: w,
		refs:   newReferenceContext(true),
		opts:   newOptions(opts),
	}
}

// Marshal encodes v with a fresh set of reference tables
func Marshal(v amf.Value, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf, opts...).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes a single value. Reference tables carry over to later calls.
func (e *Encoder) Encode(v amf.Value) error {
	return e.encodeValue(v)
}

// EncodeElement writes an element as a byte-string name followed by its value
func (e *Encoder) EncodeElement(el amf.Element) error {
	if err := e.writeByteString(el.Name); err != nil {
		return err
	}
	return e.encodeValue(el.Value)
}

// Marshal encodes v into a byte slice using this encoder's live reference
// tables. External codecs use it for nested values.
func (e *Encoder) Marshal(v amf.Value) ([]byte, error) {
	return e.capture(func() error { return e.encodeValue(v) })
}

// MarshalString encodes s as a bare byte-string (no type marker) using the
// string table
func (e *Encoder) MarshalString(s string) ([]byte, error) {
	return e.capture(func() error { return e.writeByteString(s) })
}

// Reset clears the reference tables, starting a new pass
func (e *Encoder) Reset() {
	e.refs.reset()
}

func (e *Encoder) capture(fn func() error) ([]byte, error) {
	var buf bytes.Buffer
	saved := e.writer
	e.writer = &buf
	defer func() { e.writer = saved }()

	if err := fn(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeValue dispatches on the value kind
func (e *Encoder) encodeValue(value amf.Value) error {
	switch v := value.(type) {
	case nil:
		return e.writeByte(TypeNull)
	case amf.Number:
		return e.encodeDouble(float64(v))
	case amf.Bool:
		if v {
			return e.writeByte(TypeTrue)
		}
		return e.writeByte(TypeFalse)
	case amf.String:
		if err := e.writeByte(TypeString); err != nil {
			return err
		}
		return e.writeByteString(string(v))
	case *amf.Object:
		return e.encodeObject(v, v.Elements, v.Elements, v.Class)
	case amf.Null:
		return e.writeByte(TypeNull)
	case amf.Undefined, amf.Unsupported:
		return e.writeByte(TypeUndefined)
	case *amf.ECMAArray:
		return e.encodeArray(v, v.Dense, v.Assoc)
	case *amf.StrictArray:
		return e.encodeArray(v, v.Values, nil)
	case amf.Date:
		return e.encodeDate(v)
	case amf.XML:
		return e.encodeXML(v)
	case amf.AMF3:
		return e.encodeValue(v.Value)
	case amf.Integer:
		return e.encodeInteger(int32(v))
	case amf.ByteArray:
		return e.encodeByteArray(v)
	case amf.VectorInt:
		return e.encodeVector(TypeVectorInt, v, len(v.Items), v.Fixed, func(buf []byte) []byte {
			for _, i := range v.Items {
				buf = binary.BigEndian.AppendUint32(buf, uint32(i))
			}
			return buf
		})
	case amf.VectorUInt:
		return e.encodeVector(TypeVectorUInt, v, len(v.Items), v.Fixed, func(buf []byte) []byte {
			for _, i := range v.Items {
				buf = binary.BigEndian.AppendUint32(buf, i)
			}
			return buf
		})
	case amf.VectorDouble:
		return e.encodeVector(TypeVectorDouble, v, len(v.Items), v.Fixed, func(buf []byte) []byte {
			for _, f := range v.Items {
				buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(f))
			}
			return buf
		})
	case *amf.VectorObject:
		return e.encodeObjectVector(v)
	case *amf.Dictionary:
		return e.encodeDictionary(v)
	case *amf.Custom:
		return e.encodeObject(v, v.Elements, v.External, v.Class)
	case amf.Reference, amf.ObjectReference:
		return fmt.Errorf("%w: %s cannot be written as AMF3", amf.ErrUnsupportedValue, value.Kind())
	default:
		return fmt.Errorf("%w: %T", amf.ErrUnsupportedValue, value)
	}
}

// encodeInteger writes a 29-bit signed integer, falling back to a double
// outside that range
func (e *Encoder) encodeInteger(value int32) error {
	if !u29.InRange(int64(value)) {
		return e.encodeDouble(float64(value))
	}
	if err := e.writeByte(TypeInteger); err != nil {
		return err
	}
	return u29.Write(e.writer, value)
}

// encodeDouble encodes an IEEE-754 double precision floating point number
func (e *Encoder) encodeDouble(value float64) error {
	if err := e.writeByte(TypeDouble); err != nil {
		return err
	}
	return binary.Write(e.writer, binary.BigEndian, math.Float64bits(value))
}

// encodeObject writes an object or custom value. children are the regular
// properties, external the payload handed to the class codec.
func (e *Encoder) encodeObject(self amf.Value, children, external []amf.Element, class *amf.ClassDefinition) error {
	def := amf.DefaultClassDefinition()
	if class != nil {
		def = *class
	}

	// Resolve the codec before anything is written or stored
	var codec ExternalCodec
	if def.IsExternal() {
		c, ok := e.opts.registry.Lookup(def.Name)
		if !ok {
			return fmt.Errorf("%w: %q", amf.ErrUnsupportedExternalType, def.Name)
		}
		codec = c
	}

	if err := e.writeByte(TypeObject); err != nil {
		return err
	}

	if idx, ok := e.refs.objects.Lookup(self); ok {
		e.opts.logger.Debug("amf3 object reference", "index", idx)
		return e.writeLength(u29.Reference(uint32(idx)))
	}
	e.refs.objects.Store(self)

	if err := e.writeTraits(def); err != nil {
		return err
	}

	if codec != nil {
		e.opts.logger.Debug("amf3 external encode", "class", def.Name)
		payload, err := codec.EncodeExternal(e, external, &def)
		if err != nil {
			return fmt.Errorf("external %q: %w", def.Name, err)
		}
		_, err = e.writer.Write(payload)
		return err
	}

	// Sealed properties in declaration order
	for _, name := range def.StaticProperties {
		if err := e.encodeValue(findElement(children, name)); err != nil {
			return err
		}
	}

	if !def.IsDynamic() {
		return nil
	}
	for _, el := range children {
		if def.IsStatic(el.Name) {
			continue
		}
		if el.Name == "" {
			return fmt.Errorf("%w: empty dynamic property name", amf.ErrUnsupportedValue)
		}
		if err := e.EncodeElement(el); err != nil {
			return err
		}
	}
	return e.writeByteString("")
}

// writeTraits writes a trait reference or a full trait definition
func (e *Encoder) writeTraits(def amf.ClassDefinition) error {
	if idx, ok := e.refs.traits.Lookup(def); ok {
		e.opts.logger.Debug("amf3 trait reference", "index", idx, "class", def.Name)
		// (index << 1 | 0) << 1 | 1
		return e.writeU29(uint32(idx)<<2 | 1)
	}

	count := uint32(len(def.StaticProperties))
	if count > u29.MaxUint>>4 {
		return fmt.Errorf("%w: %d sealed properties", amf.ErrMalformedLength, count)
	}
	e.refs.traits.Store(def)

	var encoding uint32
	if def.IsExternal() {
		encoding |= traitExternal
	}
	if def.IsDynamic() {
		encoding |= traitDynamic
	}
	if err := e.writeU29(((count<<2|encoding)<<1|1)<<1 | 1); err != nil {
		return err
	}

	if err := e.writeByteString(def.Name); err != nil {
		return err
	}
	for _, p := range def.StaticProperties {
		if err := e.writeByteString(p); err != nil {
			return err
		}
	}
	return nil
}

// encodeArray writes a dense+associative array. Arrays are always written
// literally; a pointer already on the table is the only exception, since a
// self-containing array has no finite literal form.
func (e *Encoder) encodeArray(self amf.Value, dense []amf.Value, assoc []amf.Element) error {
	if err := e.writeByte(TypeArray); err != nil {
		return err
	}

	if idx, ok := e.refs.arrays[self]; ok {
		return e.writeLength(u29.Reference(uint32(idx)))
	}
	e.refs.arrays[self] = e.refs.objects.Store(self)

	if err := e.writeLength(u29.Size(uint32(len(dense)))); err != nil {
		return err
	}

	for _, el := range assoc {
		if el.Name == "" {
			return fmt.Errorf("%w: empty associative key", amf.ErrUnsupportedValue)
		}
		if err := e.EncodeElement(el); err != nil {
			return err
		}
	}
	// Empty key terminates the associative part
	if err := e.writeByteString(""); err != nil {
		return err
	}

	for _, v := range dense {
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	return nil
}

// encodeDate writes a date; the literal form carries Size(0) as a sentinel
func (e *Encoder) encodeDate(value amf.Date) error {
	if err := e.writeByte(TypeDate); err != nil {
		return err
	}

	key := amf.Date{Time: value.Time}
	length := e.refs.objects.ToLength(key, 0)
	if length.IsReference() {
		return e.writeLength(length)
	}
	e.refs.objects.Store(key)

	if err := e.writeLength(length); err != nil {
		return err
	}
	return binary.Write(e.writer, binary.BigEndian, math.Float64bits(value.Time))
}

// encodeXML writes an XML document. XML is never written as a reference
// but still occupies an object table slot.
func (e *Encoder) encodeXML(value amf.XML) error {
	marker := byte(TypeXMLDocument)
	if value.IsString {
		marker = TypeXMLString
	}
	if err := e.writeByte(marker); err != nil {
		return err
	}

	e.refs.objects.Store(value)
	if err := e.writeLength(u29.Size(uint32(len(value.Content)))); err != nil {
		return err
	}
	_, err := io.WriteString(e.writer, value.Content)
	return err
}

func (e *Encoder) encodeByteArray(value amf.ByteArray) error {
	if err := e.writeByte(TypeByteArray); err != nil {
		return err
	}

	length := e.refs.objects.ToLength(value, uint32(len(value)))
	if length.IsReference() {
		return e.writeLength(length)
	}
	if err := e.writeLength(length); err != nil {
		return err
	}
	e.refs.objects.Store(value)

	_, err := e.writer.Write(value)
	return err
}

// encodeVector writes one of the fixed-width numeric vectors
func (e *Encoder) encodeVector(marker byte, value amf.Value, count int, fixed bool, items func([]byte) []byte) error {
	if err := e.writeByte(marker); err != nil {
		return err
	}

	length := e.refs.objects.ToLength(value, uint32(count))
	if length.IsReference() {
		return e.writeLength(length)
	}
	if err := e.writeLength(length); err != nil {
		return err
	}
	e.refs.objects.Store(value)

	_, err := e.writer.Write(items([]byte{boolByte(fixed)}))
	return err
}

func (e *Encoder) encodeObjectVector(value *amf.VectorObject) error {
	if err := e.writeByte(TypeVectorObject); err != nil {
		return err
	}

	length := e.refs.objects.ToLength(value, uint32(len(value.Items)))
	if length.IsReference() {
		return e.writeLength(length)
	}
	if err := e.writeLength(length); err != nil {
		return err
	}
	e.refs.objects.Store(value)

	if err := e.writeByte(boolByte(value.Fixed)); err != nil {
		return err
	}
	if err := e.writeByteString(value.TypeName); err != nil {
		return err
	}
	for _, item := range value.Items {
		if err := e.encodeValue(item); err != nil {
			return err
		}
	}
	return nil
}

// encodeDictionary writes a dictionary. The dictionary is appended to the
// object table on every occurrence, including when it is written as a
// reference; Decoder mirrors this.
func (e *Encoder) encodeDictionary(value *amf.Dictionary) error {
	length := e.refs.objects.ToLength(value, uint32(len(value.Entries)))
	e.refs.objects.Store(value)

	if err := e.writeByte(TypeDictionary); err != nil {
		return err
	}
	if err := e.writeLength(length); err != nil {
		return err
	}
	if length.IsReference() {
		return nil
	}

	if err := e.writeByte(boolByte(value.WeakKeys)); err != nil {
		return err
	}
	for _, entry := range value.Entries {
		if err := e.encodeValue(entry.Key); err != nil {
			return err
		}
		if err := e.encodeValue(entry.Value); err != nil {
			return err
		}
	}
	return nil
}

// Helper methods for encoding

// writeByteString writes a string with reference table support.
// The empty string is always the literal Size(0) and never enters the table.
func (e *Encoder) writeByteString(s string) error {
	if s == "" {
		return e.writeLength(u29.Size(0))
	}

	length := e.refs.strings.ToLength(s, uint32(len(s)))
	if length.IsReference() {
		return e.writeLength(length)
	}
	if err := e.writeLength(length); err != nil {
		return err
	}
	e.refs.strings.Store(s)

	_, err := io.WriteString(e.writer, s)
	return err
}

func (e *Encoder) writeLength(l u29.Length) error {
	n, err := l.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", amf.ErrMalformedLength, err)
	}
	return u29.Write(e.writer, n)
}

func (e *Encoder) writeU29(n uint32) error {
	return u29.Write(e.writer, int32(n))
}

// writeByte writes a single byte to the writer
func (e *Encoder) writeByte(b byte) error {
	_, err := e.writer.Write([]byte{b})
	return err
}

// findElement returns the value of the first element called name, or
// Undefined when there is none
func findElement(elements []amf.Element, name string) amf.Value {
	for _, el := range elements {
		if el.Name == name {
			return el.Value
		}
	}
	return amf.Undefined{}
}
