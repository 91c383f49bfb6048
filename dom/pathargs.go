package dom

import (
	"fmt"
	"slices"
	"strings"
)

// PathArgument is one segment of a Path. The set of implementations is closed:
// NodeIdentifier, NodeIdentifierWithPredicates, NodeWithValue and
// AugmentationIdentifier.
type PathArgument interface {
	// NodeType returns the name of the addressed node. AugmentationIdentifier
	// has no node type and returns the zero QName.
	NodeType() QName
	String() string
	isPathArgument()
}

var (
	_ PathArgument = NodeIdentifier{}
	_ PathArgument = NodeIdentifierWithPredicates{}
	_ PathArgument = NodeWithValue{}
	_ PathArgument = AugmentationIdentifier{}
)

type NodeIdentifier struct {
	QName QName
}

func NewNodeIdentifier(q QName) NodeIdentifier {
	return NodeIdentifier{QName: q}
}

func (id NodeIdentifier) NodeType() QName { return id.QName }
func (id NodeIdentifier) String() string  { return id.QName.String() }
func (NodeIdentifier) isPathArgument()    {}

// KeyValue is one predicate of a list entry identifier.
type KeyValue struct {
	Key   QName
	Value any
}

// NodeIdentifierWithPredicates identifies a list entry. Keys are kept in
// insertion order, which the codecs keep equal to the schema key order.
type NodeIdentifierWithPredicates struct {
	QName QName
	Keys  []KeyValue
}

func NewNodeIdentifierWithPredicates(q QName, keys ...KeyValue) NodeIdentifierWithPredicates {
	return NodeIdentifierWithPredicates{QName: q, Keys: keys}
}

func (id NodeIdentifierWithPredicates) NodeType() QName { return id.QName }
func (NodeIdentifierWithPredicates) isPathArgument()    {}

func (id NodeIdentifierWithPredicates) Len() int { return len(id.Keys) }

func (id NodeIdentifierWithPredicates) Get(key QName) (any, bool) {
	for _, kv := range id.Keys {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

func (id NodeIdentifierWithPredicates) String() string {
	var buf strings.Builder
	buf.WriteString(id.QName.String())
	buf.WriteByte('[')
	for i, kv := range id.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(kv.Key.Local)
		buf.WriteByte('=')
		buf.WriteString(FormatValue(kv.Value))
	}
	buf.WriteByte(']')
	return buf.String()
}

// NodeWithValue identifies a leaf-list entry.
type NodeWithValue struct {
	QName QName
	Value any
}

func (id NodeWithValue) NodeType() QName { return id.QName }
func (NodeWithValue) isPathArgument()    {}

func (id NodeWithValue) String() string {
	return id.QName.String() + "[" + FormatValue(id.Value) + "]"
}

// AugmentationIdentifier identifies a mixin node grouping the children
// contributed by one augmentation. QNames is always sorted and deduplicated.
type AugmentationIdentifier struct {
	QNames []QName
}

func NewAugmentationIdentifier(qnames ...QName) AugmentationIdentifier {
	s := slices.Clone(qnames)
	slices.SortFunc(s, QName.Compare)
	s = slices.Compact(s)
	return AugmentationIdentifier{QNames: s}
}

func (AugmentationIdentifier) NodeType() QName { return QName{} }
func (AugmentationIdentifier) isPathArgument() {}

func (id AugmentationIdentifier) Contains(q QName) bool {
	_, found := slices.BinarySearchFunc(id.QNames, q, QName.Compare)
	return found
}

func (id AugmentationIdentifier) String() string {
	var buf strings.Builder
	buf.WriteString("AugmentationIdentifier{")
	for i, q := range id.QNames {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(q.String())
	}
	buf.WriteByte('}')
	return buf.String()
}

// Key returns a comparable representation usable as a map key.
func (id AugmentationIdentifier) Key() string {
	var buf strings.Builder
	for _, q := range id.QNames {
		buf.WriteString(q.String())
		buf.WriteByte('\n')
	}
	return buf.String()
}

// EqualPathArguments reports structural equality of two path arguments,
// comparing predicate and leaf-list values with ValueEqual.
func EqualPathArguments(a, b PathArgument) bool {
	switch a := a.(type) {
	case NodeIdentifier:
		b, ok := b.(NodeIdentifier)
		return ok && a == b
	case NodeIdentifierWithPredicates:
		b, ok := b.(NodeIdentifierWithPredicates)
		if !ok || a.QName != b.QName || len(a.Keys) != len(b.Keys) {
			return false
		}
		for i := range a.Keys {
			if a.Keys[i].Key != b.Keys[i].Key || !ValueEqual(a.Keys[i].Value, b.Keys[i].Value) {
				return false
			}
		}
		return true
	case NodeWithValue:
		b, ok := b.(NodeWithValue)
		return ok && a.QName == b.QName && ValueEqual(a.Value, b.Value)
	case AugmentationIdentifier:
		b, ok := b.(AugmentationIdentifier)
		return ok && slices.Equal(a.QNames, b.QNames)
	case nil:
		return b == nil
	default:
		panic(fmt.Errorf("unknown path argument %T", a))
	}
}
