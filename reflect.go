package bindom

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

var (
	augmentationsType = reflect.TypeFor[Augmentations]()
	opaquePtrType     = reflect.TypeFor[*Opaque]()
	anyType           = reflect.TypeFor[any]()
)

// fieldInfo is one exported field of a binding struct, with the schema local
// names it may bind to.
type fieldInfo struct {
	Index []int
	Name  string
	Type  reflect.Type
	// YangName is the yang tag or the kebab-case form of Name.
	YangName string
	// IsName is set for bool fields named IsXxx, which also match a boolean
	// or empty leaf named xxx.
	IsName string
	Tagged bool
}

func (fi *fieldInfo) String() string { return fi.Name }

type structInfo struct {
	typ    reflect.Type
	fields []*fieldInfo
	augs   *fieldInfo
}

// structInfo returns the field table of t, building it once per Codec.
func (c *Codec) structInfo(t reflect.Type) *structInfo {
	c.mu.Lock()
	si := c.structs[t]
	c.mu.Unlock()
	if si != nil {
		return si
	}
	si = reflectStruct(t)
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev := c.structs[t]; prev != nil {
		return prev
	}
	c.structs[t] = si
	return si
}

func reflectStruct(t reflect.Type) *structInfo {
	if t.Kind() != reflect.Struct {
		panic(fmt.Errorf("%v not a struct", t))
	}
	si := &structInfo{typ: t}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag, tagged := f.Tag.Lookup("yang")
		if tag == "-" {
			continue
		}
		fi := &fieldInfo{
			Index:  f.Index,
			Name:   f.Name,
			Type:   f.Type,
			Tagged: tagged && tag != "",
		}
		if f.Type == augmentationsType {
			si.augs = fi
			continue
		}
		if fi.Tagged {
			fi.YangName = tag
		} else {
			fi.YangName = yangName(f.Name)
			if isBoolField(f.Type) {
				if rest, ok := strings.CutPrefix(f.Name, "Is"); ok && rest != "" && unicode.IsUpper(rune(rest[0])) {
					fi.IsName = yangName(rest)
				}
			}
		}
		si.fields = append(si.fields, fi)
	}
	return si
}

func isBoolField(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Bool
}

// yangName converts a Go field name to the schema naming convention:
// "IPAddress" becomes "ip-address", "Ipv4Prefix" becomes "ipv4-prefix".
func yangName(name string) string {
	runes := []rune(name)
	var buf strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					buf.WriteByte('-')
				}
			}
			buf.WriteRune(unicode.ToLower(r))
		} else if r == '_' {
			buf.WriteByte('-')
		} else {
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

// matchField finds the field bound to a schema child with the given local
// name. Tags win over derived names; IsXxx names only apply to boolean and
// empty leaves.
func (si *structInfo) matchField(local string, boolLeaf bool) *fieldInfo {
	for _, fi := range si.fields {
		if fi.Tagged && fi.YangName == local {
			return fi
		}
	}
	for _, fi := range si.fields {
		if !fi.Tagged && fi.YangName == local {
			return fi
		}
	}
	if boolLeaf {
		for _, fi := range si.fields {
			if fi.IsName == local {
				return fi
			}
		}
	}
	return nil
}
