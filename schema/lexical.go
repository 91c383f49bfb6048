package schema

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/andreyvit/bindom/dom"
)

// ParseLexical converts the lexical form s of a value of type t, declared on
// leaf, into its generic tree value. Prefixes in identityref and
// instance-identifier values are resolved in module m.
func (c *Context) ParseLexical(leaf *Node, t *Type, s string, m *Module) (any, error) {
	return c.parseLexical(leaf, t, s, m, nil)
}

func (c *Context) parseLexical(leaf *Node, t *Type, s string, m *Module, visiting []*Node) (any, error) {
	switch t.Category {
	case String:
		return s, nil
	case Boolean:
		switch s {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	case Empty:
		if s == "" {
			return dom.Empty{}, nil
		}
	case Int8, Int16, Int32, Int64:
		bits := intBits(t.Category)
		v, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			break
		}
		switch t.Category {
		case Int8:
			return int8(v), nil
		case Int16:
			return int16(v), nil
		case Int32:
			return int32(v), nil
		default:
			return v, nil
		}
	case Uint8, Uint16, Uint32, Uint64:
		bits := intBits(t.Category)
		v, err := strconv.ParseUint(s, 10, bits)
		if err != nil {
			break
		}
		switch t.Category {
		case Uint8:
			return uint8(v), nil
		case Uint16:
			return uint16(v), nil
		case Uint32:
			return uint32(v), nil
		default:
			return v, nil
		}
	case Decimal64:
		d, err := dom.ParseDecimal64(s, t.FractionDigits)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLexical, err)
		}
		return d, nil
	case Binary:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			break
		}
		return b, nil
	case Enumeration:
		if _, ok := t.EnumByName(s); ok {
			return s, nil
		}
	case Bits:
		return parseBits(t, s)
	case Identityref:
		prefix, local, ok := strings.Cut(s, ":")
		if !ok {
			prefix, local = "", s
		}
		mod, found := c.ResolvePrefix(m, prefix)
		if !found {
			return nil, fmt.Errorf("%w %q in identity %q", ErrUnknownPrefix, prefix, s)
		}
		return mod.QName(local), nil
	case InstanceIdentifier:
		return c.parseInstanceIdentifier(s, m)
	case Leafref:
		if leaf == nil {
			return nil, fmt.Errorf("%w: leafref outside of a leaf", ErrLeafrefTarget)
		}
		if slices.Contains(visiting, leaf) {
			return nil, fmt.Errorf("%w at %s", ErrLeafrefCycle, leaf.SchemaPath())
		}
		target, err := c.LeafrefTarget(leaf, t)
		if err != nil {
			return nil, err
		}
		return c.parseLexical(target, target.Type, s, m, append(visiting, leaf))
	case Union:
		for _, mt := range t.Members {
			if v, err := c.parseLexical(leaf, mt, s, m, visiting); err == nil {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q is not a valid %s", ErrInvalidLexical, s, t)
}

func intBits(c Category) int {
	switch c {
	case Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32:
		return 32
	default:
		return 64
	}
}

// parseBits returns the set bits ordered by position.
func parseBits(t *Type, s string) (dom.Bits, error) {
	names := strings.Fields(s)
	positions := make(map[string]uint32, len(names))
	for _, name := range names {
		b, ok := t.BitByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown bit %q in %s", ErrInvalidLexical, name, t)
		}
		positions[name] = b.Position
	}
	out := make(dom.Bits, 0, len(positions))
	for name := range positions {
		out = append(out, name)
	}
	slices.SortFunc(out, func(a, b string) int { return int(positions[a]) - int(positions[b]) })
	return out, nil
}

// parseInstanceIdentifier handles the "/p:a/p:b[p:k='v']" subset, inserting
// choice identifiers where the data path passes through a choice.
func (c *Context) parseInstanceIdentifier(s string, m *Module) (dom.Path, error) {
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("%w: instance-identifier %q must be absolute", ErrInvalidLexical, s)
	}
	var path dom.Path
	cur := c.root
	for _, seg := range splitSegments(s[1:]) {
		name, preds, _ := strings.Cut(seg, "[")
		q, err := c.segmentQName(m, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLexical, err)
		}
		chain := dataChildChain(cur, q)
		if chain == nil {
			return nil, fmt.Errorf("%w: no node %v in %q", ErrInvalidLexical, q, s)
		}
		for i, n := range chain {
			if n.Augment != nil && n.Parent.Kind != KindChoice {
				path = append(path, n.Augment.Identifier())
			}
			if n.Kind == KindChoice || i == len(chain)-1 {
				path = append(path, dom.NodeIdentifier{QName: n.QName})
			}
		}
		cur = chain[len(chain)-1]
		if preds == "" {
			continue
		}
		if cur.Kind != KindList {
			return nil, fmt.Errorf("%w: predicates on non-list %v", ErrInvalidLexical, q)
		}
		nip := dom.NodeIdentifierWithPredicates{QName: cur.QName}
		for _, pred := range strings.Split(strings.TrimSuffix(preds, "]"), "][") {
			kname, kval, ok := strings.Cut(pred, "=")
			if !ok {
				return nil, fmt.Errorf("%w: bad predicate %q", ErrInvalidLexical, pred)
			}
			kq, err := c.segmentQName(m, strings.TrimSpace(kname))
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidLexical, err)
			}
			key := cur.Child(kq)
			if key == nil || key.Kind != KindLeaf {
				return nil, fmt.Errorf("%w: unknown key %v", ErrInvalidLexical, kq)
			}
			v, err := c.ParseLexical(key, key.Type, strings.Trim(strings.TrimSpace(kval), `'"`), m)
			if err != nil {
				return nil, err
			}
			nip.Keys = append(nip.Keys, dom.KeyValue{Key: kq, Value: v})
		}
		path = append(path, nip)
	}
	return path, nil
}

// splitSegments splits on '/' outside of predicates.
func splitSegments(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '/':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// dataChildChain finds q under n looking through choices and cases, and
// returns the schema nodes passed on the way, ending with the match.
func dataChildChain(n *Node, q dom.QName) []*Node {
	for _, ch := range n.Children {
		if ch.Kind == KindChoice || ch.Kind == KindCase {
			if r := dataChildChain(ch, q); r != nil {
				return append([]*Node{ch}, r...)
			}
		} else if ch.QName == q {
			return []*Node{ch}
		}
	}
	return nil
}
