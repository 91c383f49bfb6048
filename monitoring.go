package bindom

import (
	"github.com/andreyvit/bindom/schema"
)

type Stats struct {
	Prototypes    int
	ContextsBuilt int64
	Failed        int

	ByKind map[schema.Kind]int
}

// Pending returns the number of prototypes that were looked up but never
// asked to build a context.
func (s *Stats) Pending() int {
	return s.Prototypes - int(s.ContextsBuilt) - s.Failed
}

func (c *Codec) Stats() Stats {
	c.mu.Lock()
	protos := make([]*prototype, 0, len(c.protos))
	for _, p := range c.protos {
		protos = append(protos, p)
	}
	c.mu.Unlock()

	result := Stats{
		Prototypes:    len(protos),
		ContextsBuilt: c.contextsBuilt.Load(),
		ByKind:        make(map[schema.Kind]int),
	}
	for _, p := range protos {
		r := p.built.Load()
		switch {
		case r == nil:
		case r.err != nil:
			result.Failed++
		default:
			result.ByKind[p.node.Kind]++
		}
	}
	return result
}
