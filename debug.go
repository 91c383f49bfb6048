package bindom

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

type DumpFlags uint64

const (
	DumpContexts = DumpFlags(1 << iota)
	DumpFailures
	DumpPending
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump describes the prototypes the codec has seen so far, ordered by
// schema path and bound type.
func (c *Codec) Dump(f DumpFlags) string {
	c.mu.Lock()
	protos := make([]*prototype, 0, len(c.protos))
	for _, p := range c.protos {
		protos = append(protos, p)
	}
	c.mu.Unlock()
	slices.SortFunc(protos, func(a, b *prototype) int {
		return cmp.Or(
			cmp.Compare(a.node.SchemaPath(), b.node.SchemaPath()),
			cmp.Compare(a.typ.String(), b.typ.String()),
		)
	})

	var buf strings.Builder
	if f.Contains(DumpStats) {
		s := c.Stats()
		fmt.Fprintln(&buf, dumpSep1)
		fmt.Fprintf(&buf, "prototypes = %d, built = %d, failed = %d, pending = %d\n", s.Prototypes, s.ContextsBuilt, s.Failed, s.Pending())
		fmt.Fprintln(&buf, dumpSep2)
	}
	for _, p := range protos {
		r := p.built.Load()
		switch {
		case r == nil:
			if f.Contains(DumpPending) {
				fmt.Fprintf(&buf, "%s %s <- %v PENDING\n", p.node.Kind, p.node.SchemaPath(), p.typ)
			}
		case r.err != nil:
			if f.Contains(DumpFailures) {
				fmt.Fprintf(&buf, "%s %s <- %v ** ERROR: %v\n", p.node.Kind, p.node.SchemaPath(), p.typ, r.err)
			}
		default:
			if f.Contains(DumpContexts) {
				fmt.Fprintf(&buf, "%s %s <- %v%s\n", p.node.Kind, p.node.SchemaPath(), p.typ, describeContext(r.ctx))
			}
		}
	}
	return buf.String()
}

func describeContext(ctx CodecContext) string {
	switch ctx := ctx.(type) {
	case *ListContext:
		if ctx.Keyed() {
			return fmt.Sprintf(" (keyed by %v)", ctx.entry.class.key)
		}
		return " (unkeyed)"
	case *LeafContext:
		if v, ok := ctx.DefaultValue(); ok {
			return fmt.Sprintf(" (default %v)", v)
		}
	}
	return ""
}
