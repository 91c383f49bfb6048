package dom

import (
	"errors"
	"fmt"
)

// StreamWriter receives a generic tree as a sequence of events. Every Start*
// call is balanced by EndNode; Leaf, LeafSetEntry and Anydata are complete
// on their own.
type StreamWriter interface {
	StartContainer(id NodeIdentifier) error
	StartMap(id NodeIdentifier, ordered bool) error
	StartMapEntry(id NodeIdentifierWithPredicates) error
	StartUnkeyedList(id NodeIdentifier) error
	StartUnkeyedListItem(id NodeIdentifier) error
	StartLeafSet(id NodeIdentifier) error
	LeafSetEntry(id NodeWithValue) error
	StartChoice(id NodeIdentifier) error
	StartAugmentation(id AugmentationIdentifier) error
	Leaf(id NodeIdentifier, value any) error
	Anydata(id NodeIdentifier, body any, xml bool) error
	EndNode() error
}

var ErrUnbalancedStream = errors.New("unbalanced node stream")

// TreeBuilder is a StreamWriter that materializes the events into Nodes.
type TreeBuilder struct {
	stack []Node
	roots []Node
}

var _ StreamWriter = (*TreeBuilder)(nil)

func NewTreeBuilder() *TreeBuilder {
	return &TreeBuilder{}
}

// Result returns the single top-level node written so far.
func (b *TreeBuilder) Result() (Node, error) {
	if len(b.stack) != 0 {
		return nil, fmt.Errorf("%w: %d nodes still open", ErrUnbalancedStream, len(b.stack))
	}
	if len(b.roots) != 1 {
		return nil, fmt.Errorf("%w: %d top-level nodes, wanted 1", ErrUnbalancedStream, len(b.roots))
	}
	return b.roots[0], nil
}

// Results returns all top-level nodes written so far.
func (b *TreeBuilder) Results() []Node {
	return b.roots
}

func (b *TreeBuilder) Reset() {
	b.stack = b.stack[:0]
	b.roots = nil
}

func (b *TreeBuilder) attach(n Node) error {
	if len(b.stack) == 0 {
		b.roots = append(b.roots, n)
		return nil
	}
	switch p := b.stack[len(b.stack)-1].(type) {
	case *ContainerNode:
		p.Children = append(p.Children, n)
	case *MapEntryNode:
		p.Children = append(p.Children, n)
	case *UnkeyedListEntryNode:
		p.Children = append(p.Children, n)
	case *ChoiceNode:
		p.Children = append(p.Children, n)
	case *AugmentationNode:
		p.Children = append(p.Children, n)
	case *MapNode:
		e, ok := n.(*MapEntryNode)
		if !ok {
			return fmt.Errorf("map %v cannot contain %T", p.ID, n)
		}
		p.Entries = append(p.Entries, e)
	case *UnkeyedListNode:
		e, ok := n.(*UnkeyedListEntryNode)
		if !ok {
			return fmt.Errorf("unkeyed list %v cannot contain %T", p.ID, n)
		}
		p.Entries = append(p.Entries, e)
	case *LeafSetNode:
		e, ok := n.(*LeafSetEntryNode)
		if !ok {
			return fmt.Errorf("leaf-set %v cannot contain %T", p.ID, n)
		}
		p.Entries = append(p.Entries, e)
	default:
		return fmt.Errorf("%T cannot have children", p)
	}
	return nil
}

func (b *TreeBuilder) start(n Node) error {
	if err := b.attach(n); err != nil {
		return err
	}
	b.stack = append(b.stack, n)
	return nil
}

func (b *TreeBuilder) StartContainer(id NodeIdentifier) error {
	return b.start(&ContainerNode{ID: id})
}

func (b *TreeBuilder) StartMap(id NodeIdentifier, ordered bool) error {
	return b.start(&MapNode{ID: id, Ordered: ordered})
}

func (b *TreeBuilder) StartMapEntry(id NodeIdentifierWithPredicates) error {
	return b.start(&MapEntryNode{ID: id})
}

func (b *TreeBuilder) StartUnkeyedList(id NodeIdentifier) error {
	return b.start(&UnkeyedListNode{ID: id})
}

func (b *TreeBuilder) StartUnkeyedListItem(id NodeIdentifier) error {
	return b.start(&UnkeyedListEntryNode{ID: id})
}

func (b *TreeBuilder) StartLeafSet(id NodeIdentifier) error {
	return b.start(&LeafSetNode{ID: id})
}

func (b *TreeBuilder) LeafSetEntry(id NodeWithValue) error {
	return b.attach(&LeafSetEntryNode{ID: id})
}

func (b *TreeBuilder) StartChoice(id NodeIdentifier) error {
	return b.start(&ChoiceNode{ID: id})
}

func (b *TreeBuilder) StartAugmentation(id AugmentationIdentifier) error {
	return b.start(&AugmentationNode{ID: id})
}

func (b *TreeBuilder) Leaf(id NodeIdentifier, value any) error {
	return b.attach(&LeafNode{ID: id, Value: value})
}

func (b *TreeBuilder) Anydata(id NodeIdentifier, body any, xml bool) error {
	return b.attach(&AnydataNode{ID: id, Body: body, XML: xml})
}

func (b *TreeBuilder) EndNode() error {
	if len(b.stack) == 0 {
		return fmt.Errorf("%w: EndNode without a started node", ErrUnbalancedStream)
	}
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}

// Stream replays n into w.
func Stream(n Node, w StreamWriter) error {
	switch n := n.(type) {
	case *ContainerNode:
		return streamParent(w.StartContainer(n.ID), n.Children, w)
	case *MapEntryNode:
		return streamParent(w.StartMapEntry(n.ID), n.Children, w)
	case *UnkeyedListEntryNode:
		return streamParent(w.StartUnkeyedListItem(n.ID), n.Children, w)
	case *ChoiceNode:
		return streamParent(w.StartChoice(n.ID), n.Children, w)
	case *AugmentationNode:
		return streamParent(w.StartAugmentation(n.ID), n.Children, w)
	case *MapNode:
		if err := w.StartMap(n.ID, n.Ordered); err != nil {
			return err
		}
		for _, e := range n.Entries {
			if err := Stream(e, w); err != nil {
				return err
			}
		}
		return w.EndNode()
	case *UnkeyedListNode:
		if err := w.StartUnkeyedList(n.ID); err != nil {
			return err
		}
		for _, e := range n.Entries {
			if err := Stream(e, w); err != nil {
				return err
			}
		}
		return w.EndNode()
	case *LeafSetNode:
		if err := w.StartLeafSet(n.ID); err != nil {
			return err
		}
		for _, e := range n.Entries {
			if err := w.LeafSetEntry(e.ID); err != nil {
				return err
			}
		}
		return w.EndNode()
	case *LeafSetEntryNode:
		return w.LeafSetEntry(n.ID)
	case *LeafNode:
		return w.Leaf(n.ID, n.Value)
	case *AnydataNode:
		return w.Anydata(n.ID, n.Body, n.XML)
	default:
		return fmt.Errorf("cannot stream %T", n)
	}
}

func streamParent(err error, children []Node, w StreamWriter) error {
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := Stream(c, w); err != nil {
			return err
		}
	}
	return w.EndNode()
}
