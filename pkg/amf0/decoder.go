package amf0

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

// Decoder reads amf.Values in the AMF0 grammar
type Decoder struct {
	reader  io.Reader
	complex []amf.Value
	nextID  amf.ObjectID
	opts    options
}

// NewDecoder creates a new AMF0 decoder
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	return &Decoder{reader: r, opts: newOptions(opts)}
}

// Unmarshal decodes a single value from data
func Unmarshal(data []byte, opts ...Option) (amf.Value, error) {
	return NewDecoder(bytes.NewReader(data), opts...).Decode()
}

// Decode decodes a value from AMF0 format. It returns io.EOF, unwrapped,
// when the input ends cleanly before the value's type marker.
func (d *Decoder) Decode() (amf.Value, error) {
	typeByte, err := d.readByte()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, truncated(err)
	}
	return d.decodeValue(typeByte)
}

// DecodeElement reads a 2-byte-length name followed by a value
func (d *Decoder) DecodeElement() (amf.Element, error) {
	var length uint16
	if err := binary.Read(d.reader, binary.BigEndian, &length); err != nil {
		if err == io.EOF {
			return amf.Element{}, io.EOF
		}
		return amf.Element{}, truncated(err)
	}
	name, err := d.readN(uint64(length))
	if err != nil {
		return amf.Element{}, err
	}
	value, err := d.decodeNext()
	if err != nil {
		return amf.Element{}, err
	}
	return amf.Element{Name: string(name), Value: value}, nil
}

// Resolve returns the complex value a Reference token points to: the nth
// object, typed object, ECMA array or strict array decoded so far.
func (d *Decoder) Resolve(ref amf.Reference) (amf.Value, error) {
	if int(ref) >= len(d.complex) {
		return nil, fmt.Errorf("%w: reference %d of %d", amf.ErrInvalidReferenceIndex, ref, len(d.complex))
	}
	return d.complex[ref], nil
}

// Reset forgets the complex values recorded for Resolve
func (d *Decoder) Reset() {
	d.complex = d.complex[:0]
}

func (d *Decoder) decodeNext() (amf.Value, error) {
	typeByte, err := d.readByte()
	if err != nil {
		return nil, truncated(err)
	}
	return d.decodeValue(typeByte)
}

// decodeValue decodes the value introduced by typeByte
func (d *Decoder) decodeValue(typeByte byte) (amf.Value, error) {
	switch typeByte {
	case TypeNumber:
		val, err := d.decodeNumber()
		if err != nil {
			return nil, err
		}
		return amf.Number(val), nil
	case TypeBoolean:
		val, err := d.decodeBoolean()
		if err != nil {
			return nil, err
		}
		return amf.Bool(val), nil
	case TypeString:
		val, err := d.readUTF8(false)
		if err != nil {
			return nil, err
		}
		return amf.String(val), nil
	case TypeLongString:
		val, err := d.readUTF8(true)
		if err != nil {
			return nil, err
		}
		return amf.String(val), nil
	case TypeObject:
		return d.decodeObject(nil)
	case TypeTypedObject:
		className, err := d.readUTF8(false)
		if err != nil {
			return nil, err
		}
		return d.decodeObject(&amf.ClassDefinition{Name: className, Attributes: amf.AttributeDynamic})
	case TypeNull:
		return amf.Null{}, nil
	case TypeUndefined:
		return amf.Undefined{}, nil
	case TypeUnsupported:
		return amf.Unsupported{}, nil
	case TypeReference:
		var index uint16
		if err := binary.Read(d.reader, binary.BigEndian, &index); err != nil {
			return nil, truncated(err)
		}
		d.opts.logger.Debug("amf0 reference", "index", index)
		return amf.Reference(index), nil
	case TypeEcmaArray:
		return d.decodeEcmaArray()
	case TypeStrictArray:
		return d.decodeStrictArray()
	case TypeDate:
		return d.decodeDate()
	case TypeXMLDocument:
		val, err := d.readUTF8(true)
		if err != nil {
			return nil, err
		}
		return amf.XML{Content: val}, nil
	case TypeAVMPlus:
		d.opts.logger.Debug("amf0 switch to amf3")
		val, err := amf3.NewDecoder(d.reader, d.opts.amf3Options()...).Decode()
		if err != nil {
			return nil, truncated(err)
		}
		return amf.AMF3{Value: val}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X", amf.ErrUnexpectedMarker, typeByte)
	}
}

// decodeNumber decodes a number from AMF0
func (d *Decoder) decodeNumber() (float64, error) {
	var bits uint64
	if err := binary.Read(d.reader, binary.BigEndian, &bits); err != nil {
		return 0, truncated(err)
	}
	return math.Float64frombits(bits), nil
}

// decodeBoolean decodes a boolean from AMF0
func (d *Decoder) decodeBoolean() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, truncated(err)
	}
	return b != 0, nil
}

// decodeObject decodes the properties of an anonymous or typed object
func (d *Decoder) decodeObject(class *amf.ClassDefinition) (amf.Value, error) {
	obj := &amf.Object{ID: d.newID(), Class: class}
	d.complex = append(d.complex, obj)

	elements, err := d.readProperties(nil)
	if err != nil {
		return nil, err
	}
	obj.Elements = elements
	return obj, nil
}

// decodeEcmaArray decodes an ECMA array. Leading entries keyed "0", "1", ...
// form the dense part; the rest are associative.
func (d *Decoder) decodeEcmaArray() (amf.Value, error) {
	var count uint32
	if err := binary.Read(d.reader, binary.BigEndian, &count); err != nil {
		return nil, truncated(err)
	}

	array := &amf.ECMAArray{ID: d.newID(), Length: count}
	d.complex = append(d.complex, array)

	dense := true
	elements, err := d.readProperties(func(el amf.Element) bool {
		if dense && el.Name == strconv.Itoa(len(array.Dense)) {
			array.Dense = append(array.Dense, el.Value)
			return true
		}
		dense = false
		return false
	})
	if err != nil {
		return nil, err
	}
	array.Assoc = elements
	return array, nil
}

// decodeStrictArray decodes a strict array from AMF0
func (d *Decoder) decodeStrictArray() (amf.Value, error) {
	var count uint32
	if err := binary.Read(d.reader, binary.BigEndian, &count); err != nil {
		return nil, truncated(err)
	}

	array := &amf.StrictArray{ID: d.newID()}
	d.complex = append(d.complex, array)

	values := make([]amf.Value, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		value, err := d.decodeNext()
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	array.Values = values
	return array, nil
}

// decodeDate decodes a date. AMF0 always carries a timezone.
func (d *Decoder) decodeDate() (amf.Value, error) {
	millis, err := d.decodeNumber()
	if err != nil {
		return nil, err
	}

	var timezone uint16
	if err := binary.Read(d.reader, binary.BigEndian, &timezone); err != nil {
		return nil, truncated(err)
	}

	return amf.Date{Time: millis, Timezone: timezone, HasTimezone: true}, nil
}

// readProperties reads name/value pairs up to the object end marker. claim,
// when set, may take an element out of the returned list.
func (d *Decoder) readProperties(claim func(amf.Element) bool) ([]amf.Element, error) {
	var elements []amf.Element
	for {
		key, err := d.readUTF8(false)
		if err != nil {
			return nil, err
		}

		if key == "" {
			// Check for object end marker
			marker, err := d.readByte()
			if err != nil {
				return nil, truncated(err)
			}
			if marker == TypeObjectEnd {
				return elements, nil
			}
			return nil, fmt.Errorf("%w: expected object end, got 0x%02X", amf.ErrUnexpectedMarker, marker)
		}

		value, err := d.decodeNext()
		if err != nil {
			return nil, err
		}

		el := amf.Element{Name: key, Value: value}
		if claim != nil && claim(el) {
			continue
		}
		elements = append(elements, el)
	}
}

func (d *Decoder) newID() amf.ObjectID {
	d.nextID++
	return d.nextID
}

// readUTF8 reads a UTF-8 string with length prefix
func (d *Decoder) readUTF8(longString bool) (string, error) {
	var length uint64
	if longString {
		var n uint32
		if err := binary.Read(d.reader, binary.BigEndian, &n); err != nil {
			return "", truncated(err)
		}
		length = uint64(n)
	} else {
		var n uint16
		if err := binary.Read(d.reader, binary.BigEndian, &n); err != nil {
			return "", truncated(err)
		}
		length = uint64(n)
	}

	data, err := d.readN(length)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readN reads exactly n bytes without allocating n up front
func (d *Decoder) readN(n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(d.reader, int64(n)))
	if err != nil {
		return nil, truncated(err)
	}
	if uint64(len(data)) != n {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", amf.ErrTruncatedInput, n, len(data))
	}
	return data, nil
}

// readByte reads a single byte
func (d *Decoder) readByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(d.reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
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
