// Package schema holds the read-only schema model consumed by the codec:
// modules, data nodes, types, augmentations, notifications, RPCs and
// identities.
package schema

import (
	"fmt"
	"strings"

	"github.com/andreyvit/bindom/dom"
)

type Kind uint8

const (
	KindRoot Kind = iota
	KindContainer
	KindList
	KindLeaf
	KindLeafList
	KindChoice
	KindCase
	KindAnydata
	KindAnyxml
	KindAugmentation
	KindRPCInput
	KindRPCOutput
	KindNotification
)

var kindNames = [...]string{
	KindRoot:         "root",
	KindContainer:    "container",
	KindList:         "list",
	KindLeaf:         "leaf",
	KindLeafList:     "leaf-list",
	KindChoice:       "choice",
	KindCase:         "case",
	KindAnydata:      "anydata",
	KindAnyxml:       "anyxml",
	KindAugmentation: "augmentation",
	KindRPCInput:     "input",
	KindRPCOutput:    "output",
	KindNotification: "notification",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsData reports whether nodes of this kind appear in the generic tree.
func (k Kind) IsData() bool {
	switch k {
	case KindContainer, KindList, KindLeaf, KindLeafList, KindChoice, KindAnydata, KindAnyxml:
		return true
	default:
		return false
	}
}

type Module struct {
	Name      string
	Prefix    string
	Namespace string
	Revision  string
	Imports   []Import

	Nodes         []*Node
	Augments      []*Augment
	Notifications []*Node
	RPCs          []*RPC
	Identities    []*Identity
	Typedefs      map[string]*Type
}

type Import struct {
	Module   string
	Prefix   string
	Revision string
}

func (m *Module) QName(local string) dom.QName {
	return dom.QName{Namespace: m.Namespace, Revision: m.Revision, Local: local}
}

func (m *Module) String() string {
	if m.Revision == "" {
		return m.Name
	}
	return m.Name + "@" + m.Revision
}

// Node is a schema node. Name is the local name as declared; QName and the
// back-references are filled in by Build.
type Node struct {
	Kind       Kind
	Name       string
	QName      dom.QName
	Module     *Module
	Parent     *Node
	Children   []*Node
	Type       *Type
	Default    string
	HasDefault bool
	Keys       []dom.QName
	KeyNames   []string
	Ordered    bool

	// Augment is the augmentation that contributed this node to a parent
	// defined in another module.
	Augment *Augment
	// Augments lists the augmentations targeting this node from other modules.
	Augments []*Augment

	ID int
}

func (n *Node) String() string {
	return fmt.Sprintf("%s %s", n.Kind, n.QName)
}

// Child returns the direct child named q.
func (n *Node) Child(q dom.QName) *Node {
	for _, c := range n.Children {
		if c.QName == q {
			return c
		}
	}
	return nil
}

// ChildByLocalName returns the first direct child with the given local name.
func (n *Node) ChildByLocalName(local string) *Node {
	for _, c := range n.Children {
		if c.QName.Local == local {
			return c
		}
	}
	return nil
}

// DataChildren returns the children that appear directly in the generic tree
// under n: all children except cases, and except nodes contributed by
// augmentations from other modules, which live under augmentation nodes.
func (n *Node) DataChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Augment != nil && n.Kind != KindChoice {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Cases returns the cases of a choice node, including augmented ones.
func (n *Node) Cases() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == KindCase {
			out = append(out, c)
		}
	}
	return out
}

// IsKeyed reports whether n is a list with a key.
func (n *Node) IsKeyed() bool {
	return n.Kind == KindList && len(n.Keys) > 0
}

// SchemaPath renders the path from the root, including choices and cases.
func (n *Node) SchemaPath() string {
	var parts []string
	for c := n; c != nil && c.Kind != KindRoot; c = c.Parent {
		parts = append(parts, c.QName.Local)
	}
	var buf strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		buf.WriteByte('/')
		buf.WriteString(parts[i])
	}
	return buf.String()
}

// EffectiveDefault returns the leaf's own default or, failing that, the first
// default found walking the type's base chain, along with the module whose
// prefixes apply to it.
func (n *Node) EffectiveDefault() (string, *Module, bool) {
	if n.HasDefault {
		return n.Default, n.Module, true
	}
	for t := n.Type; t != nil; t = t.Base {
		if t.HasDefault {
			m := t.Module
			if m == nil {
				m = n.Module
			}
			return t.Default, m, true
		}
	}
	return "", nil, false
}

type Augment struct {
	Module *Module
	Target string
	Nodes  []*Node

	// Resolved by Build.
	TargetNode *Node
	// Schema is a synthetic node of KindAugmentation whose children are Nodes.
	Schema *Node
}

// Identifier returns the generic tree identifier of the augmentation node.
func (a *Augment) Identifier() dom.AugmentationIdentifier {
	qnames := make([]dom.QName, 0, len(a.Nodes))
	for _, n := range a.Nodes {
		qnames = append(qnames, n.QName)
	}
	return dom.NewAugmentationIdentifier(qnames...)
}

type RPC struct {
	Name   string
	QName  dom.QName
	Module *Module
	Input  *Node
	Output *Node
}

type Identity struct {
	Name   string
	Bases  []string
	QName  dom.QName
	Module *Module
}
