package dom

import (
	"fmt"
	"strings"
)

const indentStep = "  "

// Dump renders a tree as indented text, one node per line.
func Dump(n Node) string {
	var buf strings.Builder
	dumpNode(&buf, "", n)
	return buf.String()
}

func dumpNode(w *strings.Builder, prefix string, n Node) {
	switch n := n.(type) {
	case *LeafNode:
		fmt.Fprintf(w, "%s%s = %s\n", prefix, n.ID.QName.Local, FormatValue(n.Value))
	case *LeafSetEntryNode:
		fmt.Fprintf(w, "%s- %s\n", prefix, FormatValue(n.ID.Value))
	case *AnydataNode:
		kind := "anydata"
		if n.XML {
			kind = "anyxml"
		}
		fmt.Fprintf(w, "%s%s (%s) = %v\n", prefix, n.ID.QName.Local, kind, n.Body)
	case *MapNode:
		fmt.Fprintf(w, "%s%s (map, %d entries)\n", prefix, n.ID.QName.Local, len(n.Entries))
		for _, e := range n.Entries {
			dumpNode(w, prefix+indentStep, e)
		}
	case *UnkeyedListNode:
		fmt.Fprintf(w, "%s%s (list, %d entries)\n", prefix, n.ID.QName.Local, len(n.Entries))
		for _, e := range n.Entries {
			dumpNode(w, prefix+indentStep, e)
		}
	case *LeafSetNode:
		fmt.Fprintf(w, "%s%s (leaf-list)\n", prefix, n.ID.QName.Local)
		for _, e := range n.Entries {
			dumpNode(w, prefix+indentStep, e)
		}
	case *MapEntryNode:
		fmt.Fprintf(w, "%s%s\n", prefix, n.ID.String())
		dumpChildren(w, prefix, n.Children)
	case *ChoiceNode:
		fmt.Fprintf(w, "%s%s (choice)\n", prefix, n.ID.QName.Local)
		dumpChildren(w, prefix, n.Children)
	case *AugmentationNode:
		fmt.Fprintf(w, "%s%s\n", prefix, n.ID.String())
		dumpChildren(w, prefix, n.Children)
	case ParentNode:
		fmt.Fprintf(w, "%s%s\n", prefix, n.Identifier().NodeType().Local)
		dumpChildren(w, prefix, n.ChildNodes())
	default:
		fmt.Fprintf(w, "%s%T\n", prefix, n)
	}
}

func dumpChildren(w *strings.Builder, prefix string, children []Node) {
	for _, c := range children {
		dumpNode(w, prefix+indentStep, c)
	}
}
