package dom

import (
	"fmt"
	"reflect"
)

// Node is a normalized generic tree node. The set of implementations is closed.
type Node interface {
	Identifier() PathArgument
	isNode()
}

// ParentNode is a Node that has data children.
type ParentNode interface {
	Node
	ChildNodes() []Node
}

var (
	_ ParentNode = (*ContainerNode)(nil)
	_ ParentNode = (*MapEntryNode)(nil)
	_ ParentNode = (*UnkeyedListEntryNode)(nil)
	_ ParentNode = (*ChoiceNode)(nil)
	_ ParentNode = (*AugmentationNode)(nil)
	_ Node       = (*MapNode)(nil)
	_ Node       = (*UnkeyedListNode)(nil)
	_ Node       = (*LeafNode)(nil)
	_ Node       = (*LeafSetNode)(nil)
	_ Node       = (*LeafSetEntryNode)(nil)
	_ Node       = (*AnydataNode)(nil)
)

type ContainerNode struct {
	ID       NodeIdentifier
	Children []Node
}

type MapNode struct {
	ID      NodeIdentifier
	Ordered bool
	Entries []*MapEntryNode
}

type MapEntryNode struct {
	ID       NodeIdentifierWithPredicates
	Children []Node
}

type UnkeyedListNode struct {
	ID      NodeIdentifier
	Entries []*UnkeyedListEntryNode
}

type UnkeyedListEntryNode struct {
	ID       NodeIdentifier
	Children []Node
}

type LeafNode struct {
	ID    NodeIdentifier
	Value any
}

type LeafSetNode struct {
	ID      NodeIdentifier
	Entries []*LeafSetEntryNode
}

type LeafSetEntryNode struct {
	ID NodeWithValue
}

type ChoiceNode struct {
	ID       NodeIdentifier
	Children []Node
}

type AugmentationNode struct {
	ID       AugmentationIdentifier
	Children []Node
}

// AnydataNode carries schema-opaque content. XML is set for anyxml nodes.
type AnydataNode struct {
	ID   NodeIdentifier
	Body any
	XML  bool
}

func (n *ContainerNode) Identifier() PathArgument        { return n.ID }
func (n *MapNode) Identifier() PathArgument              { return n.ID }
func (n *MapEntryNode) Identifier() PathArgument         { return n.ID }
func (n *UnkeyedListNode) Identifier() PathArgument      { return n.ID }
func (n *UnkeyedListEntryNode) Identifier() PathArgument { return n.ID }
func (n *LeafNode) Identifier() PathArgument             { return n.ID }
func (n *LeafSetNode) Identifier() PathArgument          { return n.ID }
func (n *LeafSetEntryNode) Identifier() PathArgument     { return n.ID }
func (n *ChoiceNode) Identifier() PathArgument           { return n.ID }
func (n *AugmentationNode) Identifier() PathArgument     { return n.ID }
func (n *AnydataNode) Identifier() PathArgument          { return n.ID }

func (*ContainerNode) isNode()        {}
func (*MapNode) isNode()              {}
func (*MapEntryNode) isNode()         {}
func (*UnkeyedListNode) isNode()      {}
func (*UnkeyedListEntryNode) isNode() {}
func (*LeafNode) isNode()             {}
func (*LeafSetNode) isNode()          {}
func (*LeafSetEntryNode) isNode()     {}
func (*ChoiceNode) isNode()           {}
func (*AugmentationNode) isNode()     {}
func (*AnydataNode) isNode()          {}

func (n *ContainerNode) ChildNodes() []Node        { return n.Children }
func (n *MapEntryNode) ChildNodes() []Node         { return n.Children }
func (n *UnkeyedListEntryNode) ChildNodes() []Node { return n.Children }
func (n *ChoiceNode) ChildNodes() []Node           { return n.Children }
func (n *AugmentationNode) ChildNodes() []Node     { return n.Children }

// Child finds the direct child of n addressed by arg. Map, unkeyed list and
// leaf-set nodes are searched by entry identifier.
func Child(n Node, arg PathArgument) Node {
	switch n := n.(type) {
	case ParentNode:
		for _, c := range n.ChildNodes() {
			if EqualPathArguments(c.Identifier(), arg) {
				return c
			}
		}
	case *MapNode:
		for _, e := range n.Entries {
			if EqualPathArguments(e.ID, arg) {
				return e
			}
		}
	case *LeafSetNode:
		for _, e := range n.Entries {
			if EqualPathArguments(e.ID, arg) {
				return e
			}
		}
	}
	return nil
}

// Find walks path from n, returning nil when some segment is missing.
func Find(n Node, path Path) Node {
	for _, arg := range path {
		if n = Child(n, arg); n == nil {
			return nil
		}
	}
	return n
}

// Equal reports deep equality of two trees. Child order is significant.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !EqualPathArguments(a.Identifier(), b.Identifier()) {
		return false
	}
	switch a := a.(type) {
	case *LeafNode:
		b, ok := b.(*LeafNode)
		return ok && ValueEqual(a.Value, b.Value)
	case *LeafSetEntryNode:
		_, ok := b.(*LeafSetEntryNode)
		return ok
	case *AnydataNode:
		b, ok := b.(*AnydataNode)
		return ok && a.XML == b.XML && ValueEqual(a.Body, b.Body)
	case *MapNode:
		b, ok := b.(*MapNode)
		if !ok || a.Ordered != b.Ordered || len(a.Entries) != len(b.Entries) {
			return false
		}
		for i := range a.Entries {
			if !Equal(a.Entries[i], b.Entries[i]) {
				return false
			}
		}
		return true
	case *UnkeyedListNode:
		b, ok := b.(*UnkeyedListNode)
		if !ok || len(a.Entries) != len(b.Entries) {
			return false
		}
		for i := range a.Entries {
			if !Equal(a.Entries[i], b.Entries[i]) {
				return false
			}
		}
		return true
	case *LeafSetNode:
		b, ok := b.(*LeafSetNode)
		if !ok || len(a.Entries) != len(b.Entries) {
			return false
		}
		for i := range a.Entries {
			if !Equal(a.Entries[i], b.Entries[i]) {
				return false
			}
		}
		return true
	case ParentNode:
		b, ok := b.(ParentNode)
		if !ok || reflect.TypeOf(a) != reflect.TypeOf(b) {
			return false
		}
		ac, bc := a.ChildNodes(), b.ChildNodes()
		if len(ac) != len(bc) {
			return false
		}
		for i := range ac {
			if !Equal(ac[i], bc[i]) {
				return false
			}
		}
		return true
	default:
		panic(fmt.Errorf("unknown node %T", a))
	}
}
