package amf

import "errors"

// Error kinds reported by the AMF0 and AMF3 engines. Engines wrap these with
// context; test for them with errors.Is.
var (
	// Length prefix or variable-length integer violates the format
	ErrMalformedLength = errors.New("amf: malformed length")
	// Byte does not match a type tag of the active grammar
	ErrUnexpectedMarker = errors.New("amf: unexpected type marker")
	// Input ended before a declared length was satisfied
	ErrTruncatedInput = errors.New("amf: truncated input")
	// External trait with no registered codec
	ErrUnsupportedExternalType = errors.New("amf: unsupported external type")
	// Decode-only value presented for encoding
	ErrUnsupportedValue = errors.New("amf: unsupported value")
	// Reference, trait or string index beyond the tables built so far
	ErrInvalidReferenceIndex = errors.New("amf: invalid reference index")
)
