package amf

import (
	"bytes"
	"math"
	"slices"
)

// Equal reports whether a and b are structurally equal. Object identities
// are ignored except that ObjectReference tokens compare by ID. Numbers
// compare by bit pattern, so NaN equals NaN and 0 differs from -0.
// Cyclic graphs are handled: a pair of containers already under comparison
// is assumed equal.
func Equal(a, b Value) bool {
	var c comparer
	return c.equal(a, b)
}

// EqualElements compares two element lists in order
func EqualElements(a, b []Element) bool {
	var c comparer
	return c.elements(a, b)
}

// comparer tracks container pairs under comparison. The map is allocated
// on the first container pair, so comparing scalars allocates nothing.
type comparer struct {
	inProgress map[[2]Value]struct{}
}

// enter marks a container pair as being compared; it returns false when
// the pair is already on the stack.
func (c *comparer) enter(a, b Value) bool {
	key := [2]Value{a, b}
	if c.inProgress == nil {
		c.inProgress = make(map[[2]Value]struct{})
	}
	if _, ok := c.inProgress[key]; ok {
		return false
	}
	c.inProgress[key] = struct{}{}
	return true
}

func (c *comparer) equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case Number:
		return math.Float64bits(float64(x)) == math.Float64bits(float64(b.(Number)))
	case Bool, String, Null, Undefined, Unsupported, XML, Integer, Reference, ObjectReference:
		return a == b
	case Date:
		y := b.(Date)
		return math.Float64bits(x.Time) == math.Float64bits(y.Time) &&
			x.HasTimezone == y.HasTimezone &&
			(!x.HasTimezone || x.Timezone == y.Timezone)
	case AMF3:
		return c.equal(x.Value, b.(AMF3).Value)
	case ByteArray:
		return bytes.Equal(x, b.(ByteArray))
	case VectorInt:
		y := b.(VectorInt)
		return x.Fixed == y.Fixed && slices.Equal(x.Items, y.Items)
	case VectorUInt:
		y := b.(VectorUInt)
		return x.Fixed == y.Fixed && slices.Equal(x.Items, y.Items)
	case VectorDouble:
		y := b.(VectorDouble)
		return x.Fixed == y.Fixed && slices.EqualFunc(x.Items, y.Items, func(p, q float64) bool {
			return math.Float64bits(p) == math.Float64bits(q)
		})
	}

	// Containers
	if a == b {
		return true
	}
	if !c.enter(a, b) {
		return true
	}

	switch x := a.(type) {
	case *Object:
		y := b.(*Object)
		return classEqual(x.Class, y.Class) && c.elements(x.Elements, y.Elements)
	case *ECMAArray:
		y := b.(*ECMAArray)
		return x.Length == y.Length && c.values(x.Dense, y.Dense) && c.elements(x.Assoc, y.Assoc)
	case *StrictArray:
		return c.values(x.Values, b.(*StrictArray).Values)
	case *VectorObject:
		y := b.(*VectorObject)
		return x.TypeName == y.TypeName && x.Fixed == y.Fixed && c.values(x.Items, y.Items)
	case *Dictionary:
		y := b.(*Dictionary)
		if x.WeakKeys != y.WeakKeys || len(x.Entries) != len(y.Entries) {
			return false
		}
		for i := range x.Entries {
			if !c.equal(x.Entries[i].Key, y.Entries[i].Key) || !c.equal(x.Entries[i].Value, y.Entries[i].Value) {
				return false
			}
		}
		return true
	case *Custom:
		y := b.(*Custom)
		return classEqual(x.Class, y.Class) &&
			c.elements(x.External, y.External) &&
			c.elements(x.Elements, y.Elements)
	}
	return false
}

func (c *comparer) values(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !c.equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (c *comparer) elements(a, b []Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !c.equal(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

// classEqual treats a nil class as the anonymous dynamic trait
func classEqual(a, b *ClassDefinition) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil:
		return b.IsDefault()
	case b == nil:
		return a.IsDefault()
	}
	return a.Equal(*b)
}
