package main

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/andreyvit/bindom/dom"
)

// cborSink writes a CBOR sequence (RFC 8742) using Core Deterministic
// Encoding, so equal input yields identical bytes.
type cborSink struct {
	enc *cbor.Encoder
}

func newCBORSink(w io.Writer) (*cborSink, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor: %w", err)
	}
	return &cborSink{enc: em.NewEncoder(w)}, nil
}

func (s *cborSink) write(v any) error {
	return s.enc.Encode(v)
}

// cborValue maps DOM values onto the CBOR data model. Values without a
// native counterpart become tagged maps.
func cborValue(v any) any {
	switch v := v.(type) {
	case dom.Empty:
		return map[string]any{"empty": true}
	case dom.QName:
		return map[string]any{"qname": v.String()}
	case dom.Path:
		args := make([]any, len(v))
		for i, arg := range v {
			args[i] = cborPathArgument(arg)
		}
		return map[string]any{"path": args}
	case dom.Bits:
		return map[string]any{"bits": []string(v)}
	case dom.Decimal64:
		return map[string]any{"decimal": v.String()}
	default:
		return v
	}
}

func cborPathArgument(arg dom.PathArgument) any {
	switch arg := arg.(type) {
	case dom.NodeIdentifier:
		return map[string]any{"node": arg.QName.String()}
	case dom.NodeIdentifierWithPredicates:
		keys := make([]any, 0, arg.Len())
		for _, kv := range arg.Keys {
			keys = append(keys, []any{kv.Key.String(), cborValue(kv.Value)})
		}
		return map[string]any{"entry": arg.QName.String(), "keys": keys}
	case dom.NodeWithValue:
		return map[string]any{"value-of": arg.QName.String(), "value": cborValue(arg.Value)}
	case dom.AugmentationIdentifier:
		names := make([]string, len(arg.QNames))
		for i, q := range arg.QNames {
			names[i] = q.String()
		}
		return map[string]any{"augmentation": names}
	default:
		return fmt.Sprintf("%v", arg)
	}
}

func cborNode(n dom.Node) any {
	out := map[string]any{"id": cborPathArgument(n.Identifier())}
	switch n := n.(type) {
	case *dom.LeafNode:
		out["kind"] = "leaf"
		out["value"] = cborValue(n.Value)
	case *dom.LeafSetEntryNode:
		out["kind"] = "leaf-set-entry"
		out["value"] = cborValue(n.ID.Value)
	case *dom.AnydataNode:
		out["kind"] = "anydata"
		if n.XML {
			out["kind"] = "anyxml"
		}
		out["body"] = n.Body
	case *dom.MapNode:
		out["kind"] = "map"
		out["ordered"] = n.Ordered
		out["entries"] = cborNodes(n.Entries)
	case *dom.UnkeyedListNode:
		out["kind"] = "list"
		out["entries"] = cborNodes(n.Entries)
	case *dom.LeafSetNode:
		out["kind"] = "leaf-set"
		out["entries"] = cborNodes(n.Entries)
	case *dom.ContainerNode:
		out["kind"] = "container"
		out["children"] = cborNodes(n.Children)
	case *dom.MapEntryNode:
		out["kind"] = "map-entry"
		out["children"] = cborNodes(n.Children)
	case *dom.UnkeyedListEntryNode:
		out["kind"] = "list-entry"
		out["children"] = cborNodes(n.Children)
	case *dom.ChoiceNode:
		out["kind"] = "choice"
		out["children"] = cborNodes(n.Children)
	case *dom.AugmentationNode:
		out["kind"] = "augmentation"
		out["children"] = cborNodes(n.Children)
	}
	return out
}

func cborNodes[N dom.Node](nodes []N) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = cborNode(n)
	}
	return out
}
