package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/bindom/dom"
)

var (
	ErrInvalidSchema  = errors.New("invalid schema")
	ErrUnknownPrefix  = errors.New("unknown prefix")
	ErrLeafrefCycle   = errors.New("leafref cycle")
	ErrLeafrefTarget  = errors.New("leafref target not found")
	ErrInvalidLexical = errors.New("invalid lexical value")
)

// Context is an immutable, fully linked set of modules. A schema reload
// produces a new Context; an existing one is never mutated after Build.
type Context struct {
	modules       []*Module
	byName        map[string]*Module
	byNamespace   map[string]*Module
	root          *Node
	notifications map[dom.QName]*Node
	rpcs          map[dom.QName]*RPC
	identities    map[dom.QName]*Identity
	nodes         []*Node
	fingerprint   uint64
}

// Build links the given modules into a Context. The modules and their nodes
// are owned by the Context afterwards and must not be modified.
func Build(modules ...*Module) (*Context, error) {
	c := &Context{
		byName:        make(map[string]*Module),
		byNamespace:   make(map[string]*Module),
		root:          &Node{Kind: KindRoot},
		notifications: make(map[dom.QName]*Node),
		rpcs:          make(map[dom.QName]*RPC),
		identities:    make(map[dom.QName]*Identity),
	}
	for _, m := range modules {
		if m.Name == "" || m.Namespace == "" {
			return nil, fmt.Errorf("%w: module %q must have a name and a namespace", ErrInvalidSchema, m.Name)
		}
		if c.byName[m.Name] != nil {
			return nil, fmt.Errorf("%w: duplicate module %q", ErrInvalidSchema, m.Name)
		}
		if c.byNamespace[m.Namespace] != nil {
			return nil, fmt.Errorf("%w: duplicate namespace %q", ErrInvalidSchema, m.Namespace)
		}
		c.byName[m.Name] = m
		c.byNamespace[m.Namespace] = m
		c.modules = append(c.modules, m)
	}
	for _, m := range c.modules {
		for _, imp := range m.Imports {
			if c.byName[imp.Module] == nil {
				return nil, fmt.Errorf("%w: module %s imports unknown module %q", ErrInvalidSchema, m.Name, imp.Module)
			}
		}
	}

	for _, m := range c.modules {
		for _, td := range m.Typedefs {
			if td.Module == nil {
				td.Module = m
			}
		}
	}
	for _, m := range c.modules {
		for _, td := range m.Typedefs {
			if err := c.resolveType(td, m, nil); err != nil {
				return nil, err
			}
		}
	}

	for _, m := range c.modules {
		for _, n := range m.Nodes {
			if !n.Kind.IsData() {
				return nil, fmt.Errorf("%w: %s %q cannot be a top-level data node", ErrInvalidSchema, n.Kind, n.Name)
			}
			if err := c.attach(n, c.root, m, nil); err != nil {
				return nil, err
			}
			if c.root.Child(n.QName) != nil {
				return nil, fmt.Errorf("%w: duplicate top-level node %v", ErrInvalidSchema, n.QName)
			}
			c.root.Children = append(c.root.Children, n)
		}
		for _, n := range m.Notifications {
			n.Kind = KindNotification
			if err := c.attach(n, nil, m, nil); err != nil {
				return nil, err
			}
			c.notifications[n.QName] = n
		}
		for _, r := range m.RPCs {
			r.QName = m.QName(r.Name)
			r.Module = m
			for _, io := range []*Node{r.Input, r.Output} {
				if err := c.attach(io, nil, m, nil); err != nil {
					return nil, err
				}
			}
			c.rpcs[r.QName] = r
		}
		for _, id := range m.Identities {
			id.QName = m.QName(id.Name)
			id.Module = m
			c.identities[id.QName] = id
		}
	}

	if err := c.applyAugments(); err != nil {
		return nil, err
	}

	number := func(n *Node) {
		n.ID = len(c.nodes)
		c.nodes = append(c.nodes, n)
	}
	c.walk(c.root, number)
	for _, m := range c.modules {
		for _, n := range m.Notifications {
			c.walk(n, number)
		}
		for _, r := range m.RPCs {
			c.walk(r.Input, number)
			c.walk(r.Output, number)
		}
	}
	c.fingerprint = c.computeFingerprint()
	return c, nil
}

func (c *Context) attach(n, parent *Node, m *Module, aug *Augment) error {
	if n.Name == "" {
		return fmt.Errorf("%w: %s without a name under %v", ErrInvalidSchema, n.Kind, parent)
	}
	n.QName = m.QName(n.Name)
	n.Module = m
	n.Parent = parent
	if aug != nil {
		n.Augment = aug
	}
	switch n.Kind {
	case KindLeaf, KindLeafList:
		if n.Type == nil {
			return fmt.Errorf("%w: %s has no type", ErrInvalidSchema, n)
		}
		if err := c.resolveType(n.Type, m, nil); err != nil {
			return fmt.Errorf("%s: %w", n, err)
		}
	case KindList:
		if len(n.KeyNames) > 0 {
			n.Keys = make([]dom.QName, 0, len(n.KeyNames))
			for _, k := range n.KeyNames {
				n.Keys = append(n.Keys, m.QName(k))
			}
		}
	case KindChoice:
		for _, ch := range n.Children {
			if ch.Kind != KindCase {
				return fmt.Errorf("%w: choice %s may only contain cases, got %s", ErrInvalidSchema, n.QName, ch)
			}
		}
	}
	seen := make(map[dom.QName]bool, len(n.Children))
	for _, ch := range n.Children {
		if err := c.attach(ch, n, m, nil); err != nil {
			return err
		}
		if seen[ch.QName] {
			return fmt.Errorf("%w: duplicate child %v in %s", ErrInvalidSchema, ch.QName, n)
		}
		seen[ch.QName] = true
	}
	if n.Kind == KindList {
		for _, k := range n.Keys {
			key := n.Child(k)
			if key == nil || key.Kind != KindLeaf {
				return fmt.Errorf("%w: list %s has no key leaf %q", ErrInvalidSchema, n.QName, k.Local)
			}
		}
	}
	return nil
}

func (c *Context) applyAugments() error {
	var pending []*Augment
	for _, m := range c.modules {
		for _, a := range m.Augments {
			a.Module = m
			pending = append(pending, a)
		}
	}
	// Augments may target nodes added by other augments, so retry until no
	// progress is made.
	for len(pending) > 0 {
		var next []*Augment
		for _, a := range pending {
			target, err := c.resolveSchemaPath(a.Module, a.Target)
			if err != nil {
				next = append(next, a)
				continue
			}
			if err := c.applyAugment(a, target); err != nil {
				return err
			}
		}
		if len(next) == len(pending) {
			return fmt.Errorf("%w: cannot resolve augment target %q in module %s", ErrInvalidSchema, next[0].Target, next[0].Module.Name)
		}
		pending = next
	}
	return nil
}

func (c *Context) applyAugment(a *Augment, target *Node) error {
	a.TargetNode = target
	foreign := target.Module != a.Module
	for _, n := range a.Nodes {
		if target.Kind == KindChoice && n.Kind != KindCase {
			return fmt.Errorf("%w: augment of choice %s may only add cases", ErrInvalidSchema, target.QName)
		}
		var via *Augment
		if foreign {
			via = a
		}
		if err := c.attach(n, target, a.Module, via); err != nil {
			return err
		}
		if target.Child(n.QName) != nil {
			return fmt.Errorf("%w: augment adds duplicate child %v to %s", ErrInvalidSchema, n.QName, target)
		}
		target.Children = append(target.Children, n)
	}
	if foreign && target.Kind != KindChoice {
		target.Augments = append(target.Augments, a)
		a.Schema = &Node{
			Kind:     KindAugmentation,
			Name:     a.Module.Name,
			Module:   a.Module,
			Parent:   target,
			Children: a.Nodes,
			Augment:  a,
		}
	}
	return nil
}

// resolveSchemaPath resolves "/p:a/p:b" against the schema tree, including
// choice and case names, with prefixes interpreted in module m.
func (c *Context) resolveSchemaPath(m *Module, path string) (*Node, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: schema path %q must be absolute", ErrInvalidSchema, path)
	}
	cur := c.root
	for _, seg := range strings.Split(path[1:], "/") {
		q, err := c.segmentQName(m, seg)
		if err != nil {
			return nil, err
		}
		next := cur.Child(q)
		if next == nil && cur == c.root {
			if rpc := c.rpcs[q]; rpc != nil {
				next = &Node{Kind: KindRoot, Children: []*Node{rpc.Input, rpc.Output}}
			} else {
				next = c.notifications[q]
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: no node %v in %q", ErrInvalidSchema, q, path)
		}
		cur = next
	}
	return cur, nil
}

func (c *Context) segmentQName(m *Module, seg string) (dom.QName, error) {
	if i := strings.IndexByte(seg, '['); i >= 0 {
		seg = seg[:i]
	}
	prefix, local, ok := strings.Cut(seg, ":")
	if !ok {
		prefix, local = "", seg
	}
	mod, found := c.ResolvePrefix(m, prefix)
	if !found {
		return dom.QName{}, fmt.Errorf("%w %q in %q", ErrUnknownPrefix, prefix, seg)
	}
	return mod.QName(strings.TrimSpace(local)), nil
}

// ResolvePrefix maps a prefix used in module m to a module: the module's own
// prefix (or no prefix) first, then its imports in declaration order.
func (c *Context) ResolvePrefix(m *Module, prefix string) (*Module, bool) {
	if prefix == "" || prefix == m.Prefix {
		return m, true
	}
	for _, imp := range m.Imports {
		if imp.Prefix == prefix {
			mod := c.byName[imp.Module]
			return mod, mod != nil
		}
	}
	return nil, false
}

func (c *Context) resolveType(t *Type, m *Module, visiting []*Type) error {
	if slices.Contains(visiting, t) {
		return fmt.Errorf("%w: circular type %s", ErrInvalidSchema, t.Name)
	}
	visiting = append(visiting, t)
	if t.Module == nil {
		t.Module = m
	}
	if t.Ref != "" {
		prefix, name, ok := strings.Cut(t.Ref, ":")
		if !ok {
			prefix, name = "", t.Ref
		}
		if cat, ok := CategoryByName(t.Ref); ok && prefix == "" {
			t.Category, t.Name, t.Ref = cat, t.Ref, ""
		} else {
			mod, found := c.ResolvePrefix(t.Module, prefix)
			if !found {
				return fmt.Errorf("%w: %w %q in type %q", ErrInvalidSchema, ErrUnknownPrefix, prefix, t.Ref)
			}
			td := mod.Typedefs[name]
			if td == nil {
				return fmt.Errorf("%w: unknown typedef %q", ErrInvalidSchema, t.Ref)
			}
			t.Base, t.Name, t.Ref = td, td.Name, ""
		}
	}
	if t.Base != nil {
		if err := c.resolveType(t.Base, t.Module, visiting); err != nil {
			return err
		}
		b := t.Base
		if t.Category == Unknown {
			t.Category = b.Category
		}
		if len(t.Members) == 0 {
			t.Members = b.Members
		}
		if len(t.Bits) == 0 {
			t.Bits = b.Bits
		}
		if len(t.Enums) == 0 {
			t.Enums = b.Enums
		}
		if t.Path == "" {
			t.Path = b.Path
		}
		if t.IdentityBase == "" {
			t.IdentityBase = b.IdentityBase
		}
		if t.FractionDigits == 0 {
			t.FractionDigits = b.FractionDigits
		}
	}
	for _, mt := range t.Members {
		if err := c.resolveType(mt, t.Module, visiting); err != nil {
			return err
		}
	}
	if t.Category == Unknown {
		return fmt.Errorf("%w: type %q has no built-in base", ErrInvalidSchema, t.Name)
	}
	return nil
}

func (c *Context) walk(n *Node, fn func(n *Node)) {
	fn(n)
	for _, ch := range n.Children {
		if ch.Parent == n {
			c.walk(ch, fn)
		}
	}
}

func (c *Context) computeFingerprint() uint64 {
	h := xxhash.New()
	names := make([]string, 0, len(c.modules))
	for _, m := range c.modules {
		names = append(names, m.Name+"@"+m.Revision+"="+m.Namespace)
	}
	slices.Sort(names)
	for _, s := range names {
		_, _ = h.WriteString(s)
		_, _ = h.WriteString("\n")
	}
	paths := make([]string, 0, len(c.nodes))
	for _, n := range c.nodes {
		paths = append(paths, n.QName.String()+n.SchemaPath()+" "+n.Kind.String())
	}
	slices.Sort(paths)
	for _, s := range paths {
		_, _ = h.WriteString(s)
		_, _ = h.WriteString("\n")
	}
	return h.Sum64()
}

func (c *Context) Modules() []*Module { return c.modules }
func (c *Context) Root() *Node        { return c.root }

// Fingerprint is a stable digest of the module set and node layout.
func (c *Context) Fingerprint() uint64 { return c.fingerprint }

// NodeCount is the number of schema nodes, including RPC and notification bodies.
func (c *Context) NodeCount() int { return len(c.nodes) }

func (c *Context) ModuleByName(name string) *Module { return c.byName[name] }

func (c *Context) ModuleByNamespace(ns string) *Module { return c.byNamespace[ns] }

// DataChild returns the top-level data node named q.
func (c *Context) DataChild(q dom.QName) *Node { return c.root.Child(q) }

func (c *Context) Notification(q dom.QName) *Node { return c.notifications[q] }

func (c *Context) RPC(q dom.QName) *RPC { return c.rpcs[q] }

func (c *Context) Identity(q dom.QName) *Identity { return c.identities[q] }

// FindNode follows a schema path of QNames from the root, including choice and
// case names.
func (c *Context) FindNode(path ...dom.QName) *Node {
	cur := c.root
	for _, q := range path {
		if cur = cur.Child(q); cur == nil {
			return nil
		}
	}
	return cur
}

// LeafrefTarget resolves the leaf referenced by a leafref type used on leaf.
// Choices and cases are transparent in leafref paths.
func (c *Context) LeafrefTarget(leaf *Node, t *Type) (*Node, error) {
	path := strings.TrimSpace(t.Path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty leafref path on %s", ErrLeafrefTarget, leaf)
	}
	m := t.Module
	if m == nil {
		m = leaf.Module
	}
	var cur *Node
	if strings.HasPrefix(path, "/") {
		cur, path = c.root, path[1:]
	} else {
		cur = leaf
	}
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if cur == nil || cur.Kind == KindRoot {
				return nil, fmt.Errorf("%w: %q escapes the root", ErrLeafrefTarget, t.Path)
			}
			cur = dataParent(cur)
			continue
		}
		q, err := c.segmentQName(m, seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLeafrefTarget, err)
		}
		next := findDataChild(cur, q)
		if next == nil {
			return nil, fmt.Errorf("%w: no %v under %v (path %q)", ErrLeafrefTarget, q, cur, t.Path)
		}
		cur = next
	}
	if cur == nil || (cur.Kind != KindLeaf && cur.Kind != KindLeafList) {
		return nil, fmt.Errorf("%w: %q does not end at a leaf", ErrLeafrefTarget, t.Path)
	}
	return cur, nil
}

func dataParent(n *Node) *Node {
	p := n.Parent
	for p != nil && (p.Kind == KindChoice || p.Kind == KindCase) {
		p = p.Parent
	}
	return p
}

func findDataChild(n *Node, q dom.QName) *Node {
	if n == nil {
		return nil
	}
	for _, ch := range n.Children {
		if ch.Kind == KindChoice || ch.Kind == KindCase {
			if r := findDataChild(ch, q); r != nil {
				return r
			}
		} else if ch.QName == q {
			return ch
		}
	}
	return nil
}
