package schema

import "fmt"

// Category is the built-in type a Type ultimately derives from.
type Category uint8

const (
	Unknown Category = iota
	String
	Boolean
	Empty
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Decimal64
	Binary
	Enumeration
	Bits
	Identityref
	InstanceIdentifier
	Leafref
	Union
)

var categoryNames = [...]string{
	Unknown:            "unknown",
	String:             "string",
	Boolean:            "boolean",
	Empty:              "empty",
	Int8:               "int8",
	Int16:              "int16",
	Int32:              "int32",
	Int64:              "int64",
	Uint8:              "uint8",
	Uint16:             "uint16",
	Uint32:             "uint32",
	Uint64:             "uint64",
	Decimal64:          "decimal64",
	Binary:             "binary",
	Enumeration:        "enumeration",
	Bits:               "bits",
	Identityref:        "identityref",
	InstanceIdentifier: "instance-identifier",
	Leafref:            "leafref",
	Union:              "union",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// CategoryByName maps a built-in YANG type name to its Category.
func CategoryByName(name string) (Category, bool) {
	for i, n := range categoryNames {
		if n == name && i != int(Unknown) {
			return Category(i), true
		}
	}
	return Unknown, false
}

func (c Category) IsInteger() bool {
	return c >= Int8 && c <= Uint64
}

// Type is a built-in type or a typedef. A typedef has Base set and inherits
// anything it leaves empty from it; Build copies inherited properties down.
type Type struct {
	Name     string
	Category Category
	Base     *Type
	// Ref names a typedef ("prefix:name" or "name") that Build resolves into Base.
	Ref    string
	Module *Module

	Default    string
	HasDefault bool

	Members        []*Type
	Bits           []Bit
	Enums          []Enum
	Path           string
	IdentityBase   string
	FractionDigits uint8
}

type Bit struct {
	Name     string
	Position uint32
}

type Enum struct {
	Name  string
	Value int32
}

func (t *Type) String() string {
	if t.Name != "" && t.Name != t.Category.String() {
		return fmt.Sprintf("%s(%s)", t.Name, t.Category)
	}
	return t.Category.String()
}

func (t *Type) EnumByName(name string) (Enum, bool) {
	for _, e := range t.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return Enum{}, false
}

func (t *Type) EnumByValue(v int32) (Enum, bool) {
	for _, e := range t.Enums {
		if e.Value == v {
			return e, true
		}
	}
	return Enum{}, false
}

func (t *Type) BitByName(name string) (Bit, bool) {
	for _, b := range t.Bits {
		if b.Name == name {
			return b, true
		}
	}
	return Bit{}, false
}

// Built-in type constructors.

func BuiltinType(c Category) *Type {
	return &Type{Name: c.String(), Category: c}
}

func StringType() *Type  { return BuiltinType(String) }
func BooleanType() *Type { return BuiltinType(Boolean) }
func EmptyType() *Type   { return BuiltinType(Empty) }
func BinaryType() *Type  { return BuiltinType(Binary) }

func Decimal64Type(fractionDigits uint8) *Type {
	return &Type{Name: "decimal64", Category: Decimal64, FractionDigits: fractionDigits}
}

func EnumType(enums ...Enum) *Type {
	return &Type{Name: "enumeration", Category: Enumeration, Enums: enums}
}

func BitsType(bits ...Bit) *Type {
	return &Type{Name: "bits", Category: Bits, Bits: bits}
}

func IdentityrefType(base string) *Type {
	return &Type{Name: "identityref", Category: Identityref, IdentityBase: base}
}

func InstanceIdentifierType() *Type { return BuiltinType(InstanceIdentifier) }

func LeafrefType(path string) *Type {
	return &Type{Name: "leafref", Category: Leafref, Path: path}
}

func UnionType(members ...*Type) *Type {
	return &Type{Name: "union", Category: Union, Members: members}
}

// Typedef declares a derived type. Use WithDefault to attach a default.
func Typedef(name string, base *Type) *Type {
	return &Type{Name: name, Base: base}
}

// TypedefRef refers to a typedef by name, resolved at Build.
func TypedefRef(ref string) *Type {
	return &Type{Ref: ref}
}

func (t *Type) WithDefault(def string) *Type {
	t.Default, t.HasDefault = def, true
	return t
}
