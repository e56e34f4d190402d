// Package u29 implements the AMF3 29-bit variable-length integer and the
// reference-or-size length prefix built on top of it.
package u29

import (
	"fmt"
	"io"
)

// Range of the signed 29-bit integer
const (
	MinInt = -1 << 28
	MaxInt = 1<<28 - 1

	// MaxUint is the largest unsigned payload of a U29
	MaxUint = 1<<29 - 1

	// MaxLength is the largest index or size a Length can carry
	MaxLength = 1<<28 - 1
)

// InRange reports whether v fits the signed 29-bit range
func InRange(v int64) bool {
	return v >= MinInt && v <= MaxInt
}

// Append appends the variable-length encoding of i to dst. Negative values
// are normalized into the unsigned 29-bit range first.
//
// Encoding uses 1-4 bytes where the MSB indicates continuation; the fourth
// byte carries all 8 low bits.
func Append(dst []byte, i int32) []byte {
	n := uint32(i)
	if i < 0 {
		n = uint32(i + 1<<29)
	}
	n &= MaxUint

	switch {
	case n > 0x1FFFFF:
		// 1xxxxxxx 1xxxxxxx 1xxxxxxx xxxxxxxx
		return append(dst,
			byte(n>>22)|0x80,
			byte(n>>15)|0x80,
			byte(n>>8)|0x80,
			byte(n),
		)
	case n > 0x3FFF:
		// 1xxxxxxx 1xxxxxxx 0xxxxxxx
		return append(dst,
			byte(n>>14)|0x80,
			byte(n>>7)|0x80,
			byte(n&0x7F),
		)
	case n > 0x7F:
		// 1xxxxxxx 0xxxxxxx
		return append(dst,
			byte(n>>7)|0x80,
			byte(n&0x7F),
		)
	default:
		return append(dst, byte(n))
	}
}

// Write writes the encoding of i to w
func Write(w io.Writer, i int32) error {
	var buf [4]byte
	_, err := w.Write(Append(buf[:0], i))
	return err
}

// Read reads an unsigned 29-bit value from r
func Read(r io.Reader) (uint32, error) {
	var result uint32
	var b [1]byte

	for i := 0; i < 4; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if i > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if i == 3 {
			return result<<8 | uint32(b[0]), nil
		}
		result = result<<7 | uint32(b[0]&0x7F)
		if b[0]&0x80 == 0 {
			break
		}
	}
	return result, nil
}

// ToInt32 widens an unsigned 29-bit value back to a signed integer
func ToInt32(n uint32) int32 {
	n &= MaxUint
	if n&0x10000000 != 0 {
		return int32(n) - 1<<29
	}
	return int32(n)
}

// Length is either a reference to a table index or a literal size
type Length struct {
	value     uint32
	reference bool
}

// Reference returns a Length pointing at table index idx
func Reference(idx uint32) Length {
	return Length{value: idx, reference: true}
}

// Size returns a literal Length of n
func Size(n uint32) Length {
	return Length{value: n}
}

// IsReference reports whether l is a table reference
func (l Length) IsReference() bool { return l.reference }

// IsSize reports whether l is a literal size
func (l Length) IsSize() bool { return !l.reference }

// Value returns the index or size carried by l
func (l Length) Value() uint32 { return l.value }

func (l Length) String() string {
	if l.reference {
		return fmt.Sprintf("Reference(%d)", l.value)
	}
	return fmt.Sprintf("Size(%d)", l.value)
}

// Encode returns the U29 payload of l: low bit 0 for a reference, 1 for a size
func (l Length) Encode() (int32, error) {
	if l.value > MaxLength {
		return 0, fmt.Errorf("length %d exceeds %d", l.value, MaxLength)
	}
	if l.reference {
		return int32(l.value << 1), nil
	}
	return int32(l.value<<1 | 1), nil
}

// ParseLength splits a U29 payload into a Length
func ParseLength(n uint32) Length {
	if n&1 == 0 {
		return Reference(n >> 1)
	}
	return Size(n >> 1)
}
