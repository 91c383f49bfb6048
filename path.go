package bindom

import (
	"fmt"
	"reflect"
	"strings"
)

// PathArg is one segment of an InstanceIdentifier: Item or IdentifiableItem.
type PathArg interface {
	// Type is the binding class addressed by this segment.
	Type() reflect.Type
	String() string
	isPathArg()
}

var (
	_ PathArg = Item{}
	_ PathArg = IdentifiableItem{}
)

// Item addresses a container, case child, augmentation, notification or an
// unkeyed (or wildcarded) list. Case, when set, qualifies an item nested in
// a choice by the case class that holds it.
type Item struct {
	Class reflect.Type
	Case  reflect.Type
}

func (it Item) Type() reflect.Type { return it.Class }
func (Item) isPathArg()            {}

func (it Item) String() string {
	if it.Case != nil {
		return it.Case.Name() + "/" + it.Class.Name()
	}
	return it.Class.Name()
}

// IdentifiableItem addresses one entry of a keyed list. Key holds a value of
// the list's key class.
type IdentifiableItem struct {
	Class reflect.Type
	Key   any
}

func (it IdentifiableItem) Type() reflect.Type { return it.Class }
func (IdentifiableItem) isPathArg()            {}

func (it IdentifiableItem) String() string {
	return fmt.Sprintf("%s[%+v]", it.Class.Name(), it.Key)
}

// ItemOf returns the Item addressing class T.
func ItemOf[T any]() Item {
	return Item{Class: reflect.TypeFor[T]()}
}

// CaseItemOf returns the Item addressing class T inside case C.
func CaseItemOf[C, T any]() Item {
	return Item{Class: reflect.TypeFor[T](), Case: reflect.TypeFor[C]()}
}

// KeyedItemOf returns the IdentifiableItem addressing the entry of list T
// with the given key.
func KeyedItemOf[T, K any](key K) IdentifiableItem {
	return IdentifiableItem{Class: reflect.TypeFor[T](), Key: key}
}

// InstanceIdentifier is a typed path from the root.
type InstanceIdentifier []PathArg

func Path(args ...PathArg) InstanceIdentifier {
	return InstanceIdentifier(args)
}

func (ii InstanceIdentifier) Append(args ...PathArg) InstanceIdentifier {
	out := make(InstanceIdentifier, 0, len(ii)+len(args))
	out = append(out, ii...)
	return append(out, args...)
}

// Target returns the class of the last segment.
func (ii InstanceIdentifier) Target() reflect.Type {
	if len(ii) == 0 {
		return nil
	}
	return ii[len(ii)-1].Type()
}

func (ii InstanceIdentifier) Equal(o InstanceIdentifier) bool {
	if len(ii) != len(o) {
		return false
	}
	for i := range ii {
		if !equalPathArgs(ii[i], o[i]) {
			return false
		}
	}
	return true
}

func equalPathArgs(a, b PathArg) bool {
	switch a := a.(type) {
	case Item:
		b, ok := b.(Item)
		return ok && a == b
	case IdentifiableItem:
		b, ok := b.(IdentifiableItem)
		return ok && a.Class == b.Class && reflect.DeepEqual(a.Key, b.Key)
	default:
		return false
	}
}

func (ii InstanceIdentifier) String() string {
	var buf strings.Builder
	for _, arg := range ii {
		buf.WriteByte('/')
		buf.WriteString(arg.String())
	}
	if buf.Len() == 0 {
		return "/"
	}
	return buf.String()
}
