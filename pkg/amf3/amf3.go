// Package amf3 provides encoding and decoding of Action Message Format 3 (AMF3) data.
// AMF3 is a compact binary format used by Adobe Flash for serializing ActionScript objects.
//
// An Encoder or Decoder owns three reference tables (strings, traits and
// objects) for the duration of one pass. Values written through the same
// instance share those tables; use a fresh instance, or Reset, for each
// independent stream. Instances are not safe for concurrent use.
package amf3

import (
	"log/slog"
)

// AMF3 Data Types as defined in the AMF3 specification
const (
	TypeUndefined    = 0x00
	TypeNull         = 0x01
	TypeFalse        = 0x02
	TypeTrue         = 0x03
	TypeInteger      = 0x04
	TypeDouble       = 0x05
	TypeString       = 0x06
	TypeXMLDocument  = 0x07
	TypeDate         = 0x08
	TypeArray        = 0x09
	TypeObject       = 0x0A
	TypeXMLString    = 0x0B
	TypeByteArray    = 0x0C
	TypeVectorInt    = 0x0D
	TypeVectorUInt   = 0x0E
	TypeVectorDouble = 0x0F
	TypeVectorObject = 0x10
	TypeDictionary   = 0x11
)

// Trait header encoding flags, shifted into place after the two low
// reference bits
const (
	traitExternal = 0b01
	traitDynamic  = 0b10
)

// Option configures an Encoder or Decoder
type Option func(*options)

type options struct {
	registry *Registry
	logger   *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRegistry sets the external codecs used for externalizable traits
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger sets the logger used for debug tracing of reference hits and
// external codec dispatch
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
