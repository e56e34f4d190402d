package amf0

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

// Encoder writes amf.Values in the AMF0 grammar
type Encoder struct {
	writer io.Writer
	opts   options
}

// NewEncoder creates a new AMF0 encoder
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	return &Encoder{writer: w, opts: newOptions(opts)}
}

// Marshal encodes v into a byte slice
func Marshal(v amf.Value, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf, opts...).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode encodes a value to AMF0 format
func (e *Encoder) Encode(v amf.Value) error {
	return e.encodeValue(v)
}

// EncodeElement writes a 2-byte-length name followed by the value
func (e *Encoder) EncodeElement(el amf.Element) error {
	if err := e.writeUTF8(el.Name, false); err != nil {
		return err
	}
	return e.encodeValue(el.Value)
}

// encodeValue dispatches on the value kind. Values without an AMF0 form are
// written as Unsupported.
func (e *Encoder) encodeValue(value amf.Value) error {
	switch v := value.(type) {
	case nil:
		return e.encodeNull()
	case amf.Number:
		return e.encodeNumber(float64(v))
	case amf.Bool:
		return e.encodeBoolean(bool(v))
	case amf.String:
		return e.encodeString(string(v))
	case *amf.Object:
		if v.Class != nil && v.Class.Name != "" {
			return e.encodeTypedObject(v.Class.Name, v.Elements)
		}
		return e.encodeObject(v.Elements)
	case amf.Null:
		return e.encodeNull()
	case amf.Undefined:
		return e.writeByte(TypeUndefined)
	case *amf.ECMAArray:
		return e.encodeEcmaArray(v)
	case *amf.StrictArray:
		return e.encodeStrictArray(v.Values)
	case amf.Date:
		return e.encodeDate(v)
	case amf.XML:
		return e.encodeXML(v.Content)
	case amf.AMF3:
		return e.encodeAMF3(v.Value)
	case amf.Reference:
		return e.encodeReference(uint16(v))
	default:
		e.opts.logger.Debug("amf0 unsupported value", "kind", value.Kind())
		return e.writeByte(TypeUnsupported)
	}
}

// encodeNumber encodes a number to AMF0
func (e *Encoder) encodeNumber(value float64) error {
	if err := e.writeByte(TypeNumber); err != nil {
		return err
	}
	return binary.Write(e.writer, binary.BigEndian, math.Float64bits(value))
}

// encodeBoolean encodes a boolean to AMF0
func (e *Encoder) encodeBoolean(value bool) error {
	if err := e.writeByte(TypeBoolean); err != nil {
		return err
	}
	if value {
		return e.writeByte(1)
	}
	return e.writeByte(0)
}

// encodeString encodes a string, switching to the long form past 65535 bytes
func (e *Encoder) encodeString(value string) error {
	if len(value) > maxShortString {
		return e.encodeLongString(value)
	}

	if err := e.writeByte(TypeString); err != nil {
		return err
	}
	return e.writeUTF8(value, false)
}

// encodeLongString encodes a long string to AMF0
func (e *Encoder) encodeLongString(value string) error {
	if err := e.writeByte(TypeLongString); err != nil {
		return err
	}
	return e.writeUTF8(value, true)
}

// encodeObject encodes an anonymous object to AMF0
func (e *Encoder) encodeObject(elements []amf.Element) error {
	if err := e.writeByte(TypeObject); err != nil {
		return err
	}
	return e.writeProperties(elements)
}

// encodeTypedObject encodes a typed object to AMF0
func (e *Encoder) encodeTypedObject(className string, elements []amf.Element) error {
	if err := e.writeByte(TypeTypedObject); err != nil {
		return err
	}

	// Write class name
	if err := e.writeUTF8(className, false); err != nil {
		return err
	}
	return e.writeProperties(elements)
}

// encodeEcmaArray writes the declared length, then the dense part under
// decimal keys and the associative part
func (e *Encoder) encodeEcmaArray(value *amf.ECMAArray) error {
	if err := e.writeByte(TypeEcmaArray); err != nil {
		return err
	}

	if err := binary.Write(e.writer, binary.BigEndian, value.Length); err != nil {
		return err
	}

	for i, v := range value.Dense {
		if err := e.EncodeElement(amf.Element{Name: strconv.Itoa(i), Value: v}); err != nil {
			return err
		}
	}
	return e.writeProperties(value.Assoc)
}

// encodeStrictArray encodes a strict array to AMF0
func (e *Encoder) encodeStrictArray(values []amf.Value) error {
	if err := e.writeByte(TypeStrictArray); err != nil {
		return err
	}

	// Write count
	if err := binary.Write(e.writer, binary.BigEndian, uint32(len(values))); err != nil {
		return err
	}

	for _, v := range values {
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	return nil
}

// encodeDate encodes a date; an absent timezone is written as zero
func (e *Encoder) encodeDate(value amf.Date) error {
	if err := e.writeByte(TypeDate); err != nil {
		return err
	}

	if err := binary.Write(e.writer, binary.BigEndian, math.Float64bits(value.Time)); err != nil {
		return err
	}

	var timezone uint16
	if value.HasTimezone {
		timezone = value.Timezone
	}
	return binary.Write(e.writer, binary.BigEndian, timezone)
}

// encodeXML writes an XML document with a 4-byte length
func (e *Encoder) encodeXML(content string) error {
	if err := e.writeByte(TypeXMLDocument); err != nil {
		return err
	}
	return e.writeUTF8(content, true)
}

// encodeAMF3 switches to AMF3 for one value. The AMF3 engine starts with
// empty reference tables every time.
func (e *Encoder) encodeAMF3(value amf.Value) error {
	if err := e.writeByte(TypeAVMPlus); err != nil {
		return err
	}
	e.opts.logger.Debug("amf0 switch to amf3", "kind", kindOf(value))
	return amf3.NewEncoder(e.writer, e.opts.amf3Options()...).Encode(value)
}

func (e *Encoder) encodeReference(index uint16) error {
	if err := e.writeByte(TypeReference); err != nil {
		return err
	}
	return binary.Write(e.writer, binary.BigEndian, index)
}

// encodeNull encodes null to AMF0
func (e *Encoder) encodeNull() error {
	return e.writeByte(TypeNull)
}

// writeProperties writes name/value pairs followed by the object end marker
func (e *Encoder) writeProperties(elements []amf.Element) error {
	for _, el := range elements {
		if el.Name == "" {
			return fmt.Errorf("%w: empty property name", amf.ErrUnsupportedValue)
		}
		if err := e.EncodeElement(el); err != nil {
			return err
		}
	}

	// Write object end marker
	if err := e.writeUTF8("", false); err != nil {
		return err
	}
	return e.writeByte(TypeObjectEnd)
}

// writeUTF8 writes a UTF-8 string with length prefix
func (e *Encoder) writeUTF8(s string, longString bool) error {
	if longString {
		// Long string uses 4-byte length
		if uint64(len(s)) > math.MaxUint32 {
			return fmt.Errorf("%w: long string of %d bytes", amf.ErrMalformedLength, len(s))
		}
		if err := binary.Write(e.writer, binary.BigEndian, uint32(len(s))); err != nil {
			return err
		}
	} else {
		// Regular string uses 2-byte length
		if len(s) > maxShortString {
			return fmt.Errorf("%w: string of %d bytes needs the long form", amf.ErrMalformedLength, len(s))
		}
		if err := binary.Write(e.writer, binary.BigEndian, uint16(len(s))); err != nil {
			return err
		}
	}

	_, err := io.WriteString(e.writer, s)
	return err
}

// writeByte writes a single byte
func (e *Encoder) writeByte(b byte) error {
	_, err := e.writer.Write([]byte{b})
	return err
}

func kindOf(v amf.Value) string {
	if v == nil {
		return "nil"
	}
	return v.Kind().String()
}
