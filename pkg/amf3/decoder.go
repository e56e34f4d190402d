package amf3

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/jinzhu/copier"

	"github.com/DMA-Software/dma-goamf/internal/u29"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Decoder reads amf.Values in the AMF3 grammar
type Decoder struct {
	reader io.Reader
	refs   referenceContext
	nextID amf.ObjectID
	opts   options
}

// NewDecoder creates a new AMF3 decoder that reads from the provided reader.
// The decoder reads exactly the bytes of each value and never buffers ahead.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	return &Decoder{
		reader: r,
		refs:   newReferenceContext(false),
		opts:   newOptions(opts),
	}
}

// Unmarshal decodes a single value from data
func Unmarshal(data []byte, opts ...Option) (amf.Value, error) {
	return NewDecoder(bytes.NewReader(data), opts...).Decode()
}

// Decode reads a single value. It returns io.EOF, unwrapped, when the input
// ends cleanly before the value's type marker.
func (d *Decoder) Decode() (amf.Value, error) {
	marker, err := d.readByte()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, truncated(err)
	}
	return d.decodeValue(marker)
}

// DecodeElement reads a byte-string name followed by a value
func (d *Decoder) DecodeElement() (amf.Element, error) {
	name, err := d.readByteStringOrEOF()
	if err != nil {
		return amf.Element{}, err
	}
	value, err := d.decodeNext()
	if err != nil {
		return amf.Element{}, err
	}
	return amf.Element{Name: name, Value: value}, nil
}

// Reset clears the reference tables, starting a new pass. Object IDs keep
// increasing so values from different passes never share an ID.
func (d *Decoder) Reset() {
	d.refs.reset()
}

// ReadByte reads one raw byte; for external codecs
func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.readByte()
	return b, truncated(err)
}

// ReadBytes reads n raw bytes; for external codecs
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative read of %d bytes", amf.ErrMalformedLength, n)
	}
	return d.readBytes(uint64(n))
}

// ReadInt reads a variable-length 29-bit signed integer; for external codecs
func (d *Decoder) ReadInt() (int32, error) {
	n, err := d.readU29()
	return u29.ToInt32(n), err
}

// ReadString reads a bare byte-string using the string table; for external
// codecs
func (d *Decoder) ReadString() (string, error) {
	return d.readByteString()
}

// ReadValue decodes a nested value sharing this decoder's reference tables;
// for external codecs
func (d *Decoder) ReadValue() (amf.Value, error) {
	return d.decodeNext()
}

// decodeNext reads a value inside a larger structure, where end of input is
// always truncation
func (d *Decoder) decodeNext() (amf.Value, error) {
	marker, err := d.readByte()
	if err != nil {
		return nil, truncated(err)
	}
	return d.decodeValue(marker)
}

// decodeValue decodes the value introduced by marker
func (d *Decoder) decodeValue(marker byte) (amf.Value, error) {
	switch marker {
	case TypeUndefined:
		return amf.Undefined{}, nil
	case TypeNull:
		return amf.Null{}, nil
	case TypeFalse:
		return amf.Bool(false), nil
	case TypeTrue:
		return amf.Bool(true), nil
	case TypeInteger:
		n, err := d.readU29()
		if err != nil {
			return nil, err
		}
		return amf.Integer(u29.ToInt32(n)), nil
	case TypeDouble:
		f, err := d.readDouble()
		if err != nil {
			return nil, err
		}
		return amf.Number(f), nil
	case TypeString:
		s, err := d.readByteString()
		if err != nil {
			return nil, err
		}
		return amf.String(s), nil
	case TypeXMLDocument:
		return d.decodeXML(false)
	case TypeXMLString:
		return d.decodeXML(true)
	case TypeDate:
		return d.decodeDate()
	case TypeArray:
		return d.decodeArray()
	case TypeObject:
		return d.decodeObject()
	case TypeByteArray:
		return d.decodeByteArray()
	case TypeVectorInt:
		return d.decodeVector(amf.KindVectorInt, 4, func(fixed bool, raw []byte) amf.Value {
			items := make([]int32, len(raw)/4)
			for i := range items {
				items[i] = int32(binary.BigEndian.Uint32(raw[i*4:]))
			}
			return amf.VectorInt{Items: items, Fixed: fixed}
		})
	case TypeVectorUInt:
		return d.decodeVector(amf.KindVectorUInt, 4, func(fixed bool, raw []byte) amf.Value {
			items := make([]uint32, len(raw)/4)
			for i := range items {
				items[i] = binary.BigEndian.Uint32(raw[i*4:])
			}
			return amf.VectorUInt{Items: items, Fixed: fixed}
		})
	case TypeVectorDouble:
		return d.decodeVector(amf.KindVectorDouble, 8, func(fixed bool, raw []byte) amf.Value {
			items := make([]float64, len(raw)/8)
			for i := range items {
				items[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))
			}
			return amf.VectorDouble{Items: items, Fixed: fixed}
		})
	case TypeVectorObject:
		return d.decodeObjectVector()
	case TypeDictionary:
		return d.decodeDictionary()
	default:
		return nil, fmt.Errorf("%w: 0x%02x", amf.ErrUnexpectedMarker, marker)
	}
}

// decodeObject decodes an object, resolving object and trait references
func (d *Decoder) decodeObject() (amf.Value, error) {
	handle, err := d.readU29()
	if err != nil {
		return nil, err
	}

	// Check if this is a reference (LSB = 0)
	if handle&1 == 0 {
		return d.reference(handle>>1, amf.KindObject, amf.KindCustom)
	}

	def, err := d.readTraits(handle)
	if err != nil {
		return nil, err
	}
	class, err := cloneClass(def)
	if err != nil {
		return nil, err
	}

	if def.IsExternal() {
		codec, ok := d.opts.registry.Lookup(def.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", amf.ErrUnsupportedExternalType, def.Name)
		}

		custom := &amf.Custom{ID: d.newID(), Class: class}
		d.refs.objects.Store(custom)

		d.opts.logger.Debug("amf3 external decode", "class", def.Name)
		elements, err := codec.DecodeExternal(d, class)
		if err != nil {
			return nil, fmt.Errorf("external %q: %w", def.Name, err)
		}
		custom.External = elements
		return custom, nil
	}

	obj := &amf.Object{ID: d.newID()}
	if !def.IsDefault() {
		obj.Class = class
	}
	// Add to the reference table first (for self-references)
	d.refs.objects.Store(obj)

	for _, name := range def.StaticProperties {
		value, err := d.decodeNext()
		if err != nil {
			return nil, err
		}
		obj.Elements = append(obj.Elements, amf.Element{Name: name, Value: value})
	}

	if !def.IsDynamic() {
		return obj, nil
	}
	for {
		name, err := d.readByteString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			break // Empty string terminates properties
		}
		value, err := d.decodeNext()
		if err != nil {
			return nil, err
		}
		obj.Elements = append(obj.Elements, amf.Element{Name: name, Value: value})
	}
	return obj, nil
}

// readTraits reads a trait reference or an inline trait definition from
// the object header
func (d *Decoder) readTraits(handle uint32) (amf.ClassDefinition, error) {
	if handle&0b10 == 0 {
		idx := handle >> 2
		def, ok := d.refs.traits.Get(int(idx))
		if !ok {
			return amf.ClassDefinition{}, fmt.Errorf("%w: trait %d of %d", amf.ErrInvalidReferenceIndex, idx, d.refs.traits.Len())
		}
		d.opts.logger.Debug("amf3 trait reference", "index", idx, "class", def.Name)
		return def, nil
	}

	var def amf.ClassDefinition
	encoding := handle >> 2 & 0b11
	if encoding&traitExternal != 0 {
		def.Attributes |= amf.AttributeExternal
	}
	if encoding&traitDynamic != 0 {
		def.Attributes |= amf.AttributeDynamic
	}

	name, err := d.readByteString()
	if err != nil {
		return def, err
	}
	def.Name = name

	count := handle >> 4
	for i := uint32(0); i < count; i++ {
		p, err := d.readByteString()
		if err != nil {
			return def, err
		}
		def.StaticProperties = append(def.StaticProperties, p)
	}

	d.refs.traits.Store(def)
	return def, nil
}

// decodeArray decodes an array. Arrays without associative entries become
// StrictArray, the rest ECMAArray with Length set to the dense count.
func (d *Decoder) decodeArray() (amf.Value, error) {
	length, err := d.readLength()
	if err != nil {
		return nil, err
	}
	if length.IsReference() {
		return d.reference(length.Value(), amf.KindStrictArray, amf.KindECMAArray)
	}

	count := length.Value()
	array := &amf.ECMAArray{ID: d.newID(), Length: count}
	// Add to the reference table first (for self-references)
	slot := d.refs.objects.Store(array)

	// Read associative part (key-value pairs until empty string)
	for {
		key, err := d.readByteString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		value, err := d.decodeNext()
		if err != nil {
			return nil, err
		}
		array.Assoc = append(array.Assoc, amf.Element{Name: key, Value: value})
	}

	dense, err := d.decodeValues(count)
	if err != nil {
		return nil, err
	}
	array.Dense = dense

	if len(array.Assoc) > 0 {
		return array, nil
	}
	strict := &amf.StrictArray{ID: array.ID, Values: dense}
	d.refs.objects.Set(slot, strict)
	return strict, nil
}

func (d *Decoder) decodeDate() (amf.Value, error) {
	length, err := d.readLength()
	if err != nil {
		return nil, err
	}
	if length.IsReference() {
		return d.reference(length.Value(), amf.KindDate)
	}

	t, err := d.readDouble()
	if err != nil {
		return nil, err
	}
	date := amf.Date{Time: t}
	d.refs.objects.Store(date)
	return date, nil
}

func (d *Decoder) decodeXML(isString bool) (amf.Value, error) {
	length, err := d.readLength()
	if err != nil {
		return nil, err
	}
	if length.IsReference() {
		return d.reference(length.Value(), amf.KindXML)
	}

	raw, err := d.readBytes(uint64(length.Value()))
	if err != nil {
		return nil, err
	}
	xml := amf.XML{Content: string(raw), IsString: isString}
	d.refs.objects.Store(xml)
	return xml, nil
}

func (d *Decoder) decodeByteArray() (amf.Value, error) {
	length, err := d.readLength()
	if err != nil {
		return nil, err
	}
	if length.IsReference() {
		return d.reference(length.Value(), amf.KindByteArray)
	}

	raw, err := d.readBytes(uint64(length.Value()))
	if err != nil {
		return nil, err
	}
	value := amf.ByteArray(raw)
	d.refs.objects.Store(value)
	return value, nil
}

// decodeVector decodes a fixed-width numeric vector of width-byte items
func (d *Decoder) decodeVector(kind amf.Kind, width uint64, build func(bool, []byte) amf.Value) (amf.Value, error) {
	length, err := d.readLength()
	if err != nil {
		return nil, err
	}
	if length.IsReference() {
		return d.reference(length.Value(), kind)
	}

	fixed, err := d.readBool()
	if err != nil {
		return nil, err
	}
	raw, err := d.readBytes(uint64(length.Value()) * width)
	if err != nil {
		return nil, err
	}
	value := build(fixed, raw)
	d.refs.objects.Store(value)
	return value, nil
}

func (d *Decoder) decodeObjectVector() (amf.Value, error) {
	length, err := d.readLength()
	if err != nil {
		return nil, err
	}
	if length.IsReference() {
		return d.reference(length.Value(), amf.KindVectorObject)
	}

	vector := &amf.VectorObject{ID: d.newID()}
	d.refs.objects.Store(vector)

	if vector.Fixed, err = d.readBool(); err != nil {
		return nil, err
	}
	if vector.TypeName, err = d.readByteString(); err != nil {
		return nil, err
	}
	if vector.Items, err = d.decodeValues(length.Value()); err != nil {
		return nil, err
	}
	return vector, nil
}

// decodeDictionary decodes a dictionary. A dictionary reference appends the
// referenced dictionary to the object table again, as the encoder does.
func (d *Decoder) decodeDictionary() (amf.Value, error) {
	length, err := d.readLength()
	if err != nil {
		return nil, err
	}
	if length.IsReference() {
		idx := length.Value()
		ref, err := d.reference(idx, amf.KindDictionary)
		if err != nil {
			return nil, err
		}
		entry, _ := d.refs.objects.Get(int(idx))
		d.refs.objects.Store(entry)
		return ref, nil
	}

	dict := &amf.Dictionary{ID: d.newID()}
	d.refs.objects.Store(dict)

	if dict.WeakKeys, err = d.readBool(); err != nil {
		return nil, err
	}
	for i := uint32(0); i < length.Value(); i++ {
		key, err := d.decodeNext()
		if err != nil {
			return nil, err
		}
		value, err := d.decodeNext()
		if err != nil {
			return nil, err
		}
		dict.Entries = append(dict.Entries, amf.DictionaryEntry{Key: key, Value: value})
	}
	return dict, nil
}

// decodeValues decodes count consecutive values without trusting count for
// preallocation
func (d *Decoder) decodeValues(count uint32) ([]amf.Value, error) {
	values := make([]amf.Value, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		value, err := d.decodeNext()
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// reference resolves an object table index. Containers come back as an
// ObjectReference carrying their ID; leaf values are returned directly.
func (d *Decoder) reference(idx uint32, kinds ...amf.Kind) (amf.Value, error) {
	v, ok := d.refs.objects.Get(int(idx))
	if !ok {
		return nil, fmt.Errorf("%w: object %d of %d", amf.ErrInvalidReferenceIndex, idx, d.refs.objects.Len())
	}
	if !slices.Contains(kinds, v.Kind()) {
		return nil, fmt.Errorf("%w: object %d is %s, want %v", amf.ErrInvalidReferenceIndex, idx, v.Kind(), kinds)
	}
	d.opts.logger.Debug("amf3 object reference", "index", idx, "kind", v.Kind())

	if id := amf.IdentityOf(v); id != amf.NoID {
		return amf.ObjectReference{ID: id}, nil
	}
	return v, nil
}

func (d *Decoder) newID() amf.ObjectID {
	d.nextID++
	return d.nextID
}

// Basic decoding methods

// readByte reads a single byte from the reader
func (d *Decoder) readByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(d.reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (d *Decoder) readBool() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, truncated(err)
	}
	return b != 0, nil
}

// readBytes reads exactly n bytes without allocating n up front
func (d *Decoder) readBytes(n uint64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	raw, err := io.ReadAll(io.LimitReader(d.reader, int64(n)))
	if err != nil {
		return nil, truncated(err)
	}
	if uint64(len(raw)) != n {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", amf.ErrTruncatedInput, n, len(raw))
	}
	return raw, nil
}

func (d *Decoder) readU29() (uint32, error) {
	n, err := u29.Read(d.reader)
	return n, truncated(err)
}

func (d *Decoder) readLength() (u29.Length, error) {
	n, err := d.readU29()
	if err != nil {
		return u29.Length{}, err
	}
	return u29.ParseLength(n), nil
}

// readDouble reads an IEEE-754 double precision floating point number
func (d *Decoder) readDouble() (float64, error) {
	var bits uint64
	if err := binary.Read(d.reader, binary.BigEndian, &bits); err != nil {
		return 0, truncated(err)
	}
	return math.Float64frombits(bits), nil
}

// readByteString reads a string with reference table support
func (d *Decoder) readByteString() (string, error) {
	length, err := d.readLength()
	if err != nil {
		return "", err
	}
	return d.finishByteString(length)
}

// readByteStringOrEOF is readByteString for the start of an element, where
// a clean end of input is reported as io.EOF
func (d *Decoder) readByteStringOrEOF() (string, error) {
	n, err := u29.Read(d.reader)
	if err != nil {
		if err == io.EOF {
			return "", io.EOF
		}
		return "", truncated(err)
	}
	return d.finishByteString(u29.ParseLength(n))
}

func (d *Decoder) finishByteString(length u29.Length) (string, error) {
	if length.IsReference() {
		idx := length.Value()
		s, ok := d.refs.strings.Get(int(idx))
		if !ok {
			return "", fmt.Errorf("%w: string %d of %d", amf.ErrInvalidReferenceIndex, idx, d.refs.strings.Len())
		}
		return s, nil
	}

	// Empty string is never added to the reference table
	if length.Value() == 0 {
		return "", nil
	}
	raw, err := d.readBytes(uint64(length.Value()))
	if err != nil {
		return "", err
	}
	s := string(raw)
	d.refs.strings.Store(s)
	return s, nil
}

// cloneClass gives each decoded object its own copy of a cached trait
func cloneClass(def amf.ClassDefinition) (*amf.ClassDefinition, error) {
	class := new(amf.ClassDefinition)
	if err := copier.CopyWithOption(class, &def, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copy trait %q: %w", def.Name, err)
	}
	return class, nil
}

// truncated maps short reads onto ErrTruncatedInput
func truncated(err error) error {
	if err == nil || errors.Is(err, amf.ErrTruncatedInput) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", amf.ErrTruncatedInput, err)
	}
	return err
}
