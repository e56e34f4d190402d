package amf3

import (
	"encoding/binary"
	"math"

	"github.com/DMA-Software/dma-goamf/internal/reftable"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// referenceContext holds the three AMF3 reference tables of one pass
type referenceContext struct {
	strings *reftable.Table[string]
	traits  *reftable.Table[amf.ClassDefinition]
	objects *reftable.Table[amf.Value]

	// arrays maps array pointers written in this pass to their object
	// table index
	arrays map[amf.Value]int
}

// newReferenceContext creates empty tables. Encoders probe the tables and
// need them indexed; decoders only append and fetch by index.
func newReferenceContext(indexed bool) referenceContext {
	stringFingerprint := func(s string) ([]byte, bool) { return []byte(s), true }
	traits, objects := traitFingerprint, objectFingerprint
	if !indexed {
		stringFingerprint, traits, objects = nil, nil, nil
	}
	return referenceContext{
		strings: reftable.New[string](
			func(a, b string) bool { return a == b },
			stringFingerprint,
		),
		traits: reftable.New[amf.ClassDefinition](
			func(a, b amf.ClassDefinition) bool { return a.Equal(b) },
			traits,
		),
		objects: reftable.New[amf.Value](amf.Equal, objects),
		arrays:  make(map[amf.Value]int),
	}
}

func (c referenceContext) reset() {
	c.strings.Reset()
	c.traits.Reset()
	c.objects.Reset()
	clear(c.arrays)
}

// traitFingerprint serializes a class definition with length prefixes so
// that distinct definitions never share a fingerprint
func traitFingerprint(def amf.ClassDefinition) ([]byte, bool) {
	fp := []byte{byte(def.Attributes)}
	fp = appendPrefixed(fp, def.Name)
	for _, p := range def.StaticProperties {
		fp = appendPrefixed(fp, p)
	}
	return fp, true
}

func appendPrefixed(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// shapeDepth is how many container levels an object fingerprint descends.
// Deeper containers contribute only their kind.
const shapeDepth = 2

// objectFingerprint describes v so that values equal under amf.Equal always
// share a fingerprint. Containers are described to a bounded depth; since
// amf.Equal treats a revisited pair as equal, two equal graphs have equal
// unfoldings at every depth, cycles included.
func objectFingerprint(v amf.Value) ([]byte, bool) {
	return appendShape(nil, v, shapeDepth), true
}

func appendShape(fp []byte, v amf.Value, depth int) []byte {
	if v == nil {
		return append(fp, 0xFF)
	}
	fp = append(fp, byte(v.Kind()))
	nested := depth < shapeDepth

	switch v := v.(type) {
	case amf.Number:
		return binary.BigEndian.AppendUint64(fp, math.Float64bits(float64(v)))
	case amf.Bool:
		return append(fp, boolByte(bool(v)))
	case amf.String:
		return appendPrefixed(fp, string(v))
	case amf.Integer:
		return binary.BigEndian.AppendUint32(fp, uint32(v))
	case amf.Reference:
		return binary.BigEndian.AppendUint16(fp, uint16(v))
	case amf.ObjectReference:
		return binary.BigEndian.AppendUint32(fp, uint32(v.ID))
	case amf.Date:
		fp = binary.BigEndian.AppendUint64(fp, math.Float64bits(v.Time))
		if v.HasTimezone {
			fp = binary.BigEndian.AppendUint16(append(fp, 1), v.Timezone)
		}
		return fp
	case amf.XML:
		fp = append(fp, boolByte(v.IsString))
		return appendPrefixed(fp, v.Content)
	case amf.AMF3:
		return appendShape(fp, v.Value, depth)
	case amf.ByteArray:
		if nested {
			return binary.BigEndian.AppendUint32(fp, uint32(len(v)))
		}
		return append(fp, v...)
	case amf.VectorInt:
		fp = append(fp, boolByte(v.Fixed))
		if nested {
			return binary.BigEndian.AppendUint32(fp, uint32(len(v.Items)))
		}
		for _, i := range v.Items {
			fp = binary.BigEndian.AppendUint32(fp, uint32(i))
		}
		return fp
	case amf.VectorUInt:
		fp = append(fp, boolByte(v.Fixed))
		if nested {
			return binary.BigEndian.AppendUint32(fp, uint32(len(v.Items)))
		}
		for _, i := range v.Items {
			fp = binary.BigEndian.AppendUint32(fp, i)
		}
		return fp
	case amf.VectorDouble:
		fp = append(fp, boolByte(v.Fixed))
		if nested {
			return binary.BigEndian.AppendUint32(fp, uint32(len(v.Items)))
		}
		for _, f := range v.Items {
			fp = binary.BigEndian.AppendUint64(fp, math.Float64bits(f))
		}
		return fp
	}

	// Containers
	if depth == 0 {
		return fp
	}
	depth--
	switch v := v.(type) {
	case *amf.Object:
		fp = appendClass(fp, v.Class)
		return appendElements(fp, v.Elements, depth)
	case *amf.Custom:
		fp = appendClass(fp, v.Class)
		fp = appendElements(fp, v.External, depth)
		return appendElements(fp, v.Elements, depth)
	case *amf.ECMAArray:
		fp = binary.BigEndian.AppendUint32(fp, v.Length)
		fp = appendValues(fp, v.Dense, depth)
		return appendElements(fp, v.Assoc, depth)
	case *amf.StrictArray:
		return appendValues(fp, v.Values, depth)
	case *amf.VectorObject:
		fp = append(fp, boolByte(v.Fixed))
		fp = appendPrefixed(fp, v.TypeName)
		return appendValues(fp, v.Items, depth)
	case *amf.Dictionary:
		fp = append(fp, boolByte(v.WeakKeys))
		fp = binary.BigEndian.AppendUint32(fp, uint32(len(v.Entries)))
		for _, e := range v.Entries {
			fp = appendShape(fp, e.Key, depth)
			fp = appendShape(fp, e.Value, depth)
		}
		return fp
	}
	return fp
}

// appendClass describes a trait; nil is the anonymous dynamic trait, as in
// amf.Equal
func appendClass(fp []byte, class *amf.ClassDefinition) []byte {
	def := amf.DefaultClassDefinition()
	if class != nil {
		def = *class
	}
	trait, _ := traitFingerprint(def)
	fp = binary.BigEndian.AppendUint32(fp, uint32(len(def.StaticProperties)))
	return append(fp, trait...)
}

func appendElements(fp []byte, elements []amf.Element, depth int) []byte {
	fp = binary.BigEndian.AppendUint32(fp, uint32(len(elements)))
	for _, el := range elements {
		fp = appendPrefixed(fp, el.Name)
		fp = appendShape(fp, el.Value, depth)
	}
	return fp
}

func appendValues(fp []byte, values []amf.Value, depth int) []byte {
	fp = binary.BigEndian.AppendUint32(fp, uint32(len(values)))
	for _, v := range values {
		fp = appendShape(fp, v, depth)
	}
	return fp
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
