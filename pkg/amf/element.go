package amf

import "slices"

// ObjectID is the identity of a decoded container value. Two values with
// the same non-zero ObjectID denote the same logical object.
type ObjectID uint32

// NoID marks a value that has not been assigned an identity
const NoID ObjectID = 0

// Element is a named value. Element order is significant.
type Element struct {
	Name  string
	Value Value
}

// NewElement is shorthand for Element{Name: name, Value: v}
func NewElement(name string, v Value) Element {
	return Element{Name: name, Value: v}
}

// Attribute is the set of trait flags of a ClassDefinition
type Attribute uint8

// Trait attributes, numbered as in the AMF3 trait header
const (
	AttributeExternal Attribute = 1 << iota
	AttributeDynamic
)

// Has reports whether every flag of a is set in s
func (s Attribute) Has(a Attribute) bool {
	return s&a == a
}

// ClassDefinition describes the traits shared by AMF3 objects of one class
type ClassDefinition struct {
	Name             string
	StaticProperties []string
	Attributes       Attribute
}

// DefaultClassDefinition is the trait of an anonymous dynamic object
func DefaultClassDefinition() ClassDefinition {
	return ClassDefinition{Attributes: AttributeDynamic}
}

// NewClassDefinition creates a sealed class with the given static properties
func NewClassDefinition(name string, attrs Attribute, properties ...string) *ClassDefinition {
	return &ClassDefinition{
		Name:             name,
		StaticProperties: properties,
		Attributes:       attrs,
	}
}

// IsExternal reports whether the class is externalizable
func (c ClassDefinition) IsExternal() bool { return c.Attributes.Has(AttributeExternal) }

// IsDynamic reports whether the class accepts dynamic properties
func (c ClassDefinition) IsDynamic() bool { return c.Attributes.Has(AttributeDynamic) }

// IsStatic reports whether name is one of the sealed properties
func (c ClassDefinition) IsStatic(name string) bool {
	return slices.Contains(c.StaticProperties, name)
}

// Equal compares two class definitions by name, properties and attributes
func (c ClassDefinition) Equal(o ClassDefinition) bool {
	return c.Name == o.Name &&
		c.Attributes == o.Attributes &&
		slices.Equal(c.StaticProperties, o.StaticProperties)
}

// IsDefault reports whether c is the anonymous dynamic trait
func (c ClassDefinition) IsDefault() bool {
	return c.Equal(DefaultClassDefinition())
}
