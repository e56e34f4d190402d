// Package amf defines the value model shared by the AMF0 and AMF3 engines.
// A Value is one of a closed set of variants, one per wire type. Container
// variants (Object, ECMAArray, StrictArray, VectorObject, Dictionary, Custom)
// are handled through pointers so the same node can be attached at several
// parents, and carry an ObjectID assigned by decoders to expose aliasing.
package amf

import "fmt"

// Kind identifies the variant of a Value.
type Kind uint8

// Value kinds
const (
	KindNumber Kind = iota
	KindBool
	KindString
	KindObject
	KindNull
	KindUndefined
	KindECMAArray
	KindStrictArray
	KindDate
	KindUnsupported
	KindXML
	KindAMF3
	KindInteger
	KindByteArray
	KindVectorInt
	KindVectorUInt
	KindVectorDouble
	KindVectorObject
	KindDictionary
	KindCustom
	KindReference
	KindObjectReference
)

var kindNames = [...]string{
	KindNumber:          "Number",
	KindBool:            "Bool",
	KindString:          "String",
	KindObject:          "Object",
	KindNull:            "Null",
	KindUndefined:       "Undefined",
	KindECMAArray:       "ECMAArray",
	KindStrictArray:     "StrictArray",
	KindDate:            "Date",
	KindUnsupported:     "Unsupported",
	KindXML:             "XML",
	KindAMF3:            "AMF3",
	KindInteger:         "Integer",
	KindByteArray:       "ByteArray",
	KindVectorInt:       "VectorInt",
	KindVectorUInt:      "VectorUInt",
	KindVectorDouble:    "VectorDouble",
	KindVectorObject:    "VectorObject",
	KindDictionary:      "Dictionary",
	KindCustom:          "Custom",
	KindReference:       "Reference",
	KindObjectReference: "ObjectReference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is any AMF value. The set of implementations is closed: only the
// types declared in this package satisfy it.
type Value interface {
	Kind() Kind
	sealed()
}

// Number represents the AMF0 number and AMF3 double types
type Number float64

// Bool represents the AMF0 boolean and the AMF3 true/false types
type Bool bool

// String represents the string types of both formats, including the AMF0
// long string
type String string

// Object represents an anonymous or typed object. Class is nil for anonymous
// objects; the AMF0 engine only uses its Name.
type Object struct {
	ID       ObjectID
	Elements []Element
	Class    *ClassDefinition
}

// Null represents the null type
type Null struct{}

// Undefined represents the undefined type
type Undefined struct{}

// ECMAArray represents the AMF0 ECMA (mixed) array and AMF3 arrays with an
// associative part. Length is the declared AMF0 length, which may differ
// from the number of elements.
type ECMAArray struct {
	ID     ObjectID
	Dense  []Value
	Assoc  []Element
	Length uint32
}

// StrictArray represents the AMF0 strict array and the dense-only AMF3 array
type StrictArray struct {
	ID     ObjectID
	Values []Value
}

// Date holds milliseconds since the Unix epoch. Timezone is only carried by
// AMF0 and is meaningful when HasTimezone is set.
type Date struct {
	Time        float64
	Timezone    uint16
	HasTimezone bool
}

// Unsupported represents the AMF0 unsupported type
type Unsupported struct{}

// XML holds an XML document. IsString selects the AMF3 XMLString marker
// rather than the legacy XML document marker.
type XML struct {
	Content  string
	IsString bool
}

// AMF3 wraps a value embedded in an AMF0 stream through the AVM+ switch
type AMF3 struct {
	Value Value
}

// Integer is the AMF3 29-bit signed integer
type Integer int32

// ByteArray is the AMF3 byte array
type ByteArray []byte

// VectorInt is the AMF3 Vector.<int>
type VectorInt struct {
	Items []int32
	Fixed bool
}

// VectorUInt is the AMF3 Vector.<uint>
type VectorUInt struct {
	Items []uint32
	Fixed bool
}

// VectorDouble is the AMF3 Vector.<Number>
type VectorDouble struct {
	Items []float64
	Fixed bool
}

// VectorObject is the AMF3 Vector.<T> for object element types
type VectorObject struct {
	ID       ObjectID
	Items    []Value
	TypeName string
	Fixed    bool
}

// DictionaryEntry is one key/value pair of a Dictionary
type DictionaryEntry struct {
	Key   Value
	Value Value
}

// Dictionary is the AMF3 flash.utils.Dictionary
type Dictionary struct {
	ID       ObjectID
	Entries  []DictionaryEntry
	WeakKeys bool
}

// Custom is an object whose class is externalizable. External holds the
// elements produced or consumed by the registered external codec, Elements
// the regular properties of a non-external class.
type Custom struct {
	ID       ObjectID
	External []Element
	Elements []Element
	Class    *ClassDefinition
}

// Reference is an AMF0 back-reference to the nth complex value of a stream
type Reference uint16

// ObjectReference points at a value decoded earlier in the same pass. It is
// produced by decoders only; consumers map the ID to their own node.
type ObjectReference struct {
	ID ObjectID
}

func (Number) Kind() Kind          { return KindNumber }
func (Bool) Kind() Kind            { return KindBool }
func (String) Kind() Kind          { return KindString }
func (*Object) Kind() Kind         { return KindObject }
func (Null) Kind() Kind            { return KindNull }
func (Undefined) Kind() Kind       { return KindUndefined }
func (*ECMAArray) Kind() Kind      { return KindECMAArray }
func (*StrictArray) Kind() Kind    { return KindStrictArray }
func (Date) Kind() Kind            { return KindDate }
func (Unsupported) Kind() Kind     { return KindUnsupported }
func (XML) Kind() Kind             { return KindXML }
func (AMF3) Kind() Kind            { return KindAMF3 }
func (Integer) Kind() Kind         { return KindInteger }
func (ByteArray) Kind() Kind       { return KindByteArray }
func (VectorInt) Kind() Kind       { return KindVectorInt }
func (VectorUInt) Kind() Kind      { return KindVectorUInt }
func (VectorDouble) Kind() Kind    { return KindVectorDouble }
func (*VectorObject) Kind() Kind   { return KindVectorObject }
func (*Dictionary) Kind() Kind     { return KindDictionary }
func (*Custom) Kind() Kind         { return KindCustom }
func (Reference) Kind() Kind       { return KindReference }
func (ObjectReference) Kind() Kind { return KindObjectReference }

func (Number) sealed()          {}
func (Bool) sealed()            {}
func (String) sealed()          {}
func (*Object) sealed()         {}
func (Null) sealed()            {}
func (Undefined) sealed()       {}
func (*ECMAArray) sealed()      {}
func (*StrictArray) sealed()    {}
func (Date) sealed()            {}
func (Unsupported) sealed()     {}
func (XML) sealed()             {}
func (AMF3) sealed()            {}
func (Integer) sealed()         {}
func (ByteArray) sealed()       {}
func (VectorInt) sealed()       {}
func (VectorUInt) sealed()      {}
func (VectorDouble) sealed()    {}
func (*VectorObject) sealed()   {}
func (*Dictionary) sealed()     {}
func (*Custom) sealed()         {}
func (Reference) sealed()       {}
func (ObjectReference) sealed() {}

// IdentityOf returns the ObjectID carried by a container value, or NoID for
// values that have no identity.
func IdentityOf(v Value) ObjectID {
	switch v := v.(type) {
	case *Object:
		return v.ID
	case *ECMAArray:
		return v.ID
	case *StrictArray:
		return v.ID
	case *VectorObject:
		return v.ID
	case *Dictionary:
		return v.ID
	case *Custom:
		return v.ID
	case ObjectReference:
		return v.ID
	}
	return NoID
}
