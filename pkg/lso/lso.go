// Package lso reads and writes Local Shared Objects (".sol" files), the
// container Flash Player uses to persist named AMF values.
//
// A file is a fixed header followed by a body of elements. Each element is
// a name and a value in the file's AMF version, followed by one padding
// byte. The whole body is a single encoding pass, so AMF3 bodies share
// their reference tables across elements.
package lso

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf0"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

// Header constants
var (
	headerMagic = [2]byte{0x00, 0xBF}
	signature   = [10]byte{'T', 'C', 'S', 'O', 0x00, 0x04, 0x00, 0x00, 0x00, 0x00}
)

// padding follows every body element
const padding = 0x00

// Errors
var (
	ErrInvalidHeader    = errors.New("lso: invalid header")
	ErrInvalidSignature = errors.New("lso: invalid signature")
)

// Version is the AMF version of a shared object body
type Version uint32

// Body encodings
const (
	AMF0 Version = 0
	AMF3 Version = 3
)

func (v Version) String() string {
	switch v {
	case AMF0:
		return "amf0"
	case AMF3:
		return "amf3"
	}
	return fmt.Sprintf("Version(%d)", uint32(v))
}

// SharedObject is a named, ordered set of elements
type SharedObject struct {
	Name    string
	Version Version
	Body    []amf.Element
}

// Option configures reading and writing
type Option func(*options)

type options struct {
	registry *amf3.Registry
	logger   *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRegistry sets the external codecs for AMF3 content
func WithRegistry(r *amf3.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger sets the logger passed on to the engines
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Marshal encodes so as a complete file
func Marshal(so *SharedObject, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, so, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes so to w. Nothing is written if encoding fails.
func Write(w io.Writer, so *SharedObject, opts ...Option) error {
	o := newOptions(opts)

	if len(so.Name) > 0xFFFF {
		return fmt.Errorf("%w: name of %d bytes", amf.ErrMalformedLength, len(so.Name))
	}

	var payload bytes.Buffer
	payload.Write(signature[:])
	_ = binary.Write(&payload, binary.BigEndian, uint16(len(so.Name)))
	payload.WriteString(so.Name)
	_ = binary.Write(&payload, binary.BigEndian, uint32(so.Version))

	if err := writeBody(&payload, so, o); err != nil {
		return err
	}
	if uint64(payload.Len()) > 0xFFFFFFFF {
		return fmt.Errorf("%w: body of %d bytes", amf.ErrMalformedLength, payload.Len())
	}

	header := make([]byte, 0, 6)
	header = append(header, headerMagic[:]...)
	header = binary.BigEndian.AppendUint32(header, uint32(payload.Len()))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := payload.WriteTo(w)
	return err
}

// elementEncoder is the part of an engine the body writer needs
type elementEncoder interface {
	EncodeElement(amf.Element) error
}

func writeBody(w *bytes.Buffer, so *SharedObject, o options) error {
	var enc elementEncoder
	switch so.Version {
	case AMF0:
		enc = amf0.NewEncoder(w, amf0.WithRegistry(o.registry), amf0.WithLogger(o.logger))
	case AMF3:
		enc = amf3.NewEncoder(w, amf3.WithRegistry(o.registry), amf3.WithLogger(o.logger))
	default:
		return fmt.Errorf("%w: unknown version %d", ErrInvalidHeader, uint32(so.Version))
	}

	for _, el := range so.Body {
		if err := enc.EncodeElement(el); err != nil {
			return fmt.Errorf("element %q: %w", el.Name, err)
		}
		w.WriteByte(padding)
	}
	return nil
}

// Unmarshal decodes a complete file
func Unmarshal(data []byte, opts ...Option) (*SharedObject, error) {
	return Read(bytes.NewReader(data), opts...)
}

// Read decodes one file from r. The declared length must be available in
// full.
func Read(r io.Reader, opts ...Option) (*SharedObject, error) {
	o := newOptions(opts)

	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if !bytes.Equal(header[:2], headerMagic[:]) {
		return nil, fmt.Errorf("%w: magic % x", ErrInvalidHeader, header[:2])
	}

	length := binary.BigEndian.Uint32(header[2:])
	payload, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil {
		return nil, err
	}
	if uint32(len(payload)) != length {
		return nil, fmt.Errorf("%w: declared %d bytes, have %d", ErrInvalidHeader, length, len(payload))
	}
	return parse(bytes.NewReader(payload), o)
}

func parse(r *bytes.Reader, o options) (*SharedObject, error) {
	var sig [10]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if sig != signature {
		return nil, fmt.Errorf("%w: % x", ErrInvalidSignature, sig[:])
	}

	var nameLength uint16
	if err := binary.Read(r, binary.BigEndian, &nameLength); err != nil {
		return nil, fmt.Errorf("%w: name: %w", ErrInvalidHeader, err)
	}
	name := make([]byte, nameLength)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("%w: name: %w", ErrInvalidHeader, err)
	}

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: version: %w", ErrInvalidHeader, err)
	}

	so := &SharedObject{Name: string(name), Version: Version(version)}
	body, err := readBody(r, so.Version, o)
	if err != nil {
		return nil, err
	}
	so.Body = body
	return so, nil
}

// elementDecoder is the part of an engine the body reader needs
type elementDecoder interface {
	DecodeElement() (amf.Element, error)
}

func readBody(r *bytes.Reader, version Version, o options) ([]amf.Element, error) {
	var dec elementDecoder
	switch version {
	case AMF0:
		dec = amf0.NewDecoder(r, amf0.WithRegistry(o.registry), amf0.WithLogger(o.logger))
	case AMF3:
		dec = amf3.NewDecoder(r, amf3.WithRegistry(o.registry), amf3.WithLogger(o.logger))
	default:
		return nil, fmt.Errorf("%w: unknown version %d", ErrInvalidHeader, version)
	}

	var body []amf.Element
	for {
		el, err := dec.DecodeElement()
		if err == io.EOF {
			return body, nil
		}
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", len(body), err)
		}

		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("element %q: %w: missing padding", el.Name, amf.ErrTruncatedInput)
		}
		if b != padding {
			return nil, fmt.Errorf("element %q: %w: padding 0x%02x", el.Name, amf.ErrUnexpectedMarker, b)
		}
		o.logger.Debug("lso element", "name", el.Name, "kind", el.Value.Kind())
		body = append(body, el)
	}
}
