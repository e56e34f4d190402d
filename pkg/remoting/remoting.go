// Package remoting implements the AMF remoting packet envelope used for
// Flash remote object invocation over HTTP.
// This package provides packet parsing and generation, and builders for
// the onResult and onStatus responses to a request message.
package remoting

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

// ErrInvalidVersion is returned for a packet version other than 0 or 3
var ErrInvalidVersion = errors.New("remoting: invalid packet version")

// UnknownLength marks a header or message body whose length was not known
// when it was written
const UnknownLength = 0xFFFFFFFF

// Version is the packet's AMF version
type Version uint16

// Packet versions
const (
	AMF0 Version = 0
	AMF3 Version = 3
)

// Header is a packet level header
type Header struct {
	Name           string
	MustUnderstand bool
	Value          amf.Value
}

// Message is one remote invocation or response
type Message struct {
	TargetURI   string
	ResponseURI string
	Body        amf.Value
}

// Packet is a complete remoting request or response
type Packet struct {
	Version  Version
	Headers  []Header
	Messages []Message
}

// Option configures a PacketParser or PacketBuilder
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

func (o options) amf0Options() []amf0.Option {
	return []amf0.Option{amf0.WithRegistry(o.registry), amf0.WithLogger(o.logger)}
}

// WithRegistry sets the external codecs for AMF3 bodies
func WithRegistry(r *amf3.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// PacketParser parses remoting packets
type PacketParser struct {
	opts options
}

// NewPacketParser creates a new packet parser
func NewPacketParser(opts ...Option) *PacketParser {
	return &PacketParser{opts: newOptions(opts)}
}

// Parse parses a packet from data
func (p *PacketParser) Parse(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty packet data: %w", amf.ErrTruncatedInput)
	}
	return p.Read(bytes.NewReader(data))
}

// Read parses one packet from r. Declared body lengths are not used for
// framing; each body is read as exactly one AMF0 value.
func (p *PacketParser) Read(r io.Reader) (*Packet, error) {
	var version uint16
	if err := readUint(r, &version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if Version(version) != AMF0 && Version(version) != AMF3 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}
	packet := &Packet{Version: Version(version)}

	var headerCount uint16
	if err := readUint(r, &headerCount); err != nil {
		return nil, fmt.Errorf("failed to read header count: %w", err)
	}
	for i := range int(headerCount) {
		header, err := p.readHeader(r)
		if err != nil {
			return nil, fmt.Errorf("header %d: %w", i, err)
		}
		packet.Headers = append(packet.Headers, header)
	}

	var messageCount uint16
	if err := readUint(r, &messageCount); err != nil {
		return nil, fmt.Errorf("failed to read message count: %w", err)
	}
	for i := range int(messageCount) {
		message, err := p.readMessage(r)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		packet.Messages = append(packet.Messages, message)
	}
	return packet, nil
}

func (p *PacketParser) readHeader(r io.Reader) (Header, error) {
	name, err := readString(r)
	if err != nil {
		return Header{}, err
	}
	var mustUnderstand uint8
	if err := readUint(r, &mustUnderstand); err != nil {
		return Header{}, err
	}
	value, err := p.readBody(r)
	if err != nil {
		return Header{}, err
	}
	return Header{Name: name, MustUnderstand: mustUnderstand != 0, Value: value}, nil
}

func (p *PacketParser) readMessage(r io.Reader) (Message, error) {
	target, err := readString(r)
	if err != nil {
		return Message{}, err
	}
	response, err := readString(r)
	if err != nil {
		return Message{}, err
	}
	body, err := p.readBody(r)
	if err != nil {
		return Message{}, err
	}
	p.opts.logger.Debug("remoting message", "target", target, "response", response)
	return Message{TargetURI: target, ResponseURI: response, Body: body}, nil
}

// readBody skips the informational length and decodes one value with a
// fresh AMF0 engine
func (p *PacketParser) readBody(r io.Reader) (amf.Value, error) {
	var length uint32
	if err := readUint(r, &length); err != nil {
		return nil, err
	}
	value, err := amf0.NewDecoder(r, p.opts.amf0Options()...).Decode()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing body", amf.ErrTruncatedInput)
	}
	return value, err
}

// PacketBuilder builds remoting packets
type PacketBuilder struct {
	opts options
}

// NewPacketBuilder creates a new packet builder
func NewPacketBuilder(opts ...Option) *PacketBuilder {
	return &PacketBuilder{opts: newOptions(opts)}
}

// Build encodes packet
func (b *PacketBuilder) Build(packet *Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Write(&buf, packet); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes packet to w. Bodies are encoded before anything is written.
func (b *PacketBuilder) Write(w io.Writer, packet *Packet) error {
	if packet.Version != AMF0 && packet.Version != AMF3 {
		return fmt.Errorf("%w: %d", ErrInvalidVersion, packet.Version)
	}
	if len(packet.Headers) > 0xFFFF || len(packet.Messages) > 0xFFFF {
		return fmt.Errorf("%w: too many headers or messages", amf.ErrMalformedLength)
	}

	var buf bytes.Buffer
	buf.Write(binary.BigEndian.AppendUint16(nil, uint16(packet.Version)))

	buf.Write(binary.BigEndian.AppendUint16(nil, uint16(len(packet.Headers))))
	for i, header := range packet.Headers {
		if err := writeString(&buf, header.Name); err != nil {
			return fmt.Errorf("header %d: %w", i, err)
		}
		var mustUnderstand byte
		if header.MustUnderstand {
			mustUnderstand = 1
		}
		buf.WriteByte(mustUnderstand)
		if err := b.writeBody(&buf, header.Value); err != nil {
			return fmt.Errorf("header %q: %w", header.Name, err)
		}
	}

	buf.Write(binary.BigEndian.AppendUint16(nil, uint16(len(packet.Messages))))
	for i, message := range packet.Messages {
		if err := writeString(&buf, message.TargetURI); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if err := writeString(&buf, message.ResponseURI); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if err := b.writeBody(&buf, message.Body); err != nil {
			return fmt.Errorf("message %q: %w", message.TargetURI, err)
		}
	}

	_, err := buf.WriteTo(w)
	return err
}

// writeBody writes the body length followed by the AMF0 encoded value
func (b *PacketBuilder) writeBody(buf *bytes.Buffer, value amf.Value) error {
	var body bytes.Buffer
	if err := amf0.NewEncoder(&body, b.opts.amf0Options()...).Encode(value); err != nil {
		return err
	}
	length := uint32(UnknownLength)
	if uint64(body.Len()) < UnknownLength {
		length = uint32(body.Len())
	}
	buf.Write(binary.BigEndian.AppendUint32(nil, length))
	_, err := body.WriteTo(buf)
	return err
}

func readUint[T uint8 | uint16 | uint32](r io.Reader, v *T) error {
	if err := binary.Read(r, binary.BigEndian, v); err != nil {
		return fmt.Errorf("%w: %w", amf.ErrTruncatedInput, err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var length uint16
	if err := readUint(r, &length); err != nil {
		return "", err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", fmt.Errorf("%w: %w", amf.ErrTruncatedInput, err)
	}
	return string(data), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("%w: string of %d bytes", amf.ErrMalformedLength, len(s))
	}
	buf.Write(binary.BigEndian.AppendUint16(nil, uint16(len(s))))
	buf.WriteString(s)
	return nil
}
