package amf3

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

func fingerprint(t *testing.T, v amf.Value) []byte {
	t.Helper()
	fp, ok := objectFingerprint(v)
	require.True(t, ok)
	return fp
}

func selfArray(extra ...amf.Value) *amf.StrictArray {
	a := &amf.StrictArray{}
	a.Values = append([]amf.Value{a}, extra...)
	return a
}

func TestFingerprintOfEqualValues(t *testing.T) {
	anonymous := amf.DefaultClassDefinition()
	point := func(x amf.Value) *amf.Object {
		return &amf.Object{
			Class:    amf.NewClassDefinition("Point", 0, "x"),
			Elements: []amf.Element{amf.NewElement("x", x)},
		}
	}
	tests := []struct {
		name string
		a, b amf.Value
	}{
		{"nil class", &amf.Object{}, &amf.Object{ID: 3, Class: &anonymous}},
		{"date timezone ignored", amf.Date{Time: 1, Timezone: 5}, amf.Date{Time: 1}},
		{"nan", point(amf.Number(math.NaN())), point(amf.Number(math.NaN()))},
		{"cycle", selfArray(), selfArray()},
		{"deep", point(point(point(amf.Integer(1)))), point(point(point(amf.Integer(1))))},
		{"custom", flexLike(amf.String("a")), flexLike(amf.String("a"))},
		{"dictionary",
			&amf.Dictionary{Entries: []amf.DictionaryEntry{{Key: amf.String("k"), Value: point(nil)}}},
			&amf.Dictionary{Entries: []amf.DictionaryEntry{{Key: amf.String("k"), Value: point(nil)}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, amf.Equal(tc.a, tc.b))
			assert.Equal(t, fingerprint(t, tc.a), fingerprint(t, tc.b))
		})
	}
}

func TestFingerprintSeparatesShapes(t *testing.T) {
	record := func(name string, v amf.Value) *amf.Object {
		return &amf.Object{Elements: []amf.Element{amf.NewElement(name, v)}}
	}
	tests := []struct {
		name string
		a, b amf.Value
	}{
		{"leaf value", record("i", amf.Integer(1)), record("i", amf.Integer(2))},
		{"name", record("a", amf.Integer(1)), record("b", amf.Integer(1))},
		{"nested leaf", record("p", record("x", amf.Integer(1))), record("p", record("x", amf.Integer(2)))},
		{"class", &amf.Object{Class: amf.NewClassDefinition("A", amf.AttributeDynamic)}, &amf.Object{}},
		{"kind", &amf.StrictArray{}, &amf.ECMAArray{}},
		{"cycle", selfArray(), selfArray(amf.Null{})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, fingerprint(t, tc.a), fingerprint(t, tc.b))
		})
	}
}

func flexLike(source amf.Value) *amf.Custom {
	return &amf.Custom{
		Class:    amf.NewClassDefinition("flex.messaging.io.ArrayCollection", amf.AttributeExternal),
		External: []amf.Element{amf.NewElement("source", source)},
	}
}

// records builds n distinct objects, each with a nested object and array
func records(n int) *amf.StrictArray {
	values := make([]amf.Value, n)
	for i := range values {
		values[i] = &amf.Object{Elements: []amf.Element{
			amf.NewElement("id", amf.Integer(i)),
			amf.NewElement("pos", &amf.Object{Elements: []amf.Element{
				amf.NewElement("x", amf.Number(float64(i))),
			}}),
			amf.NewElement("tags", &amf.StrictArray{Values: []amf.Value{amf.String("t")}}),
		}}
	}
	return &amf.StrictArray{Values: values}
}

func TestEncodeManyObjects(t *testing.T) {
	const n = 20000
	tree := records(n)

	start := time.Now()
	data, err := Marshal(tree)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "object table lookups should not scan every entry")

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, amf.Equal(tree, decoded))
}

func TestEncodeManyObjectsStillReferences(t *testing.T) {
	tree := records(1000)
	// Structurally equal to record 500, so written as a reference
	tree.Values = append(tree.Values, records(501).Values[500])

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(tree))

	// Slot 0 is the outer array; record i starts at 1 + 3*i
	assert.Equal(t, []byte{0x0A, 0x97, 0x3A}, buf.Bytes()[buf.Len()-3:])
}

func BenchmarkEncodeObjects(b *testing.B) {
	tree := records(10000)
	b.ResetTimer()
	for range b.N {
		if _, err := Marshal(tree); err != nil {
			b.Fatal(err)
		}
	}
}
