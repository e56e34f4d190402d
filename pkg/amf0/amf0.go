// Package amf0 implements Action Message Format 0 (AMF0) encoding and decoding.
//
// AMF0 has no implicit reference tables. The Reference type carries an
// explicit back-reference index that the application tracks itself; the
// Decoder records complex values in order of appearance so callers can
// Resolve such tokens. Values switched to AMF3 with the AVM+ marker are
// handled by a fresh amf3 engine per value.
package amf0

import (
	"log/slog"

	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

// AMF0 Data Types as defined in the AMF0 specification
const (
	TypeNumber      = 0x00
	TypeBoolean     = 0x01
	TypeString      = 0x02
	TypeObject      = 0x03
	TypeMovieClip   = 0x04 // Reserved, not supported
	TypeNull        = 0x05
	TypeUndefined   = 0x06
	TypeReference   = 0x07
	TypeEcmaArray   = 0x08
	TypeObjectEnd   = 0x09
	TypeStrictArray = 0x0A
	TypeDate        = 0x0B
	TypeLongString  = 0x0C
	TypeUnsupported = 0x0D
	TypeRecordset   = 0x0E // Reserved, not supported
	TypeXMLDocument = 0x0F
	TypeTypedObject = 0x10
	TypeAVMPlus     = 0x11 // Switch to AMF3
)

// maxShortString is the longest string written with the 2-byte length form
const maxShortString = 0xFFFF

// Option configures an Encoder or Decoder
type Option func(*options)

type options struct {
	registry *amf3.Registry
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

// amf3Options passes the external registry and logger on to embedded AMF3
// engines
func (o options) amf3Options() []amf3.Option {
	return []amf3.Option{amf3.WithRegistry(o.registry), amf3.WithLogger(o.logger)}
}

// WithRegistry sets the external codecs used by embedded AMF3 values
func WithRegistry(r *amf3.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger sets the logger used for debug tracing
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
