package schema

func NewModule(name, prefix, namespace, revision string) *Module {
	return &Module{Name: name, Prefix: prefix, Namespace: namespace, Revision: revision}
}

// Import declares an import; declaration order is significant for prefix
// resolution.
func (m *Module) Import(module, prefix string) *Module {
	m.Imports = append(m.Imports, Import{Module: module, Prefix: prefix})
	return m
}

func (m *Module) Add(nodes ...*Node) *Module {
	m.Nodes = append(m.Nodes, nodes...)
	return m
}

func (m *Module) Augment(target string, nodes ...*Node) *Module {
	m.Augments = append(m.Augments, &Augment{Module: m, Target: target, Nodes: nodes})
	return m
}

func (m *Module) Notification(name string, children ...*Node) *Module {
	m.Notifications = append(m.Notifications, &Node{Kind: KindNotification, Name: name, Children: children})
	return m
}

func (m *Module) RPC(name string, input, output []*Node) *Module {
	m.RPCs = append(m.RPCs, &RPC{
		Name:   name,
		Input:  &Node{Kind: KindRPCInput, Name: "input", Children: input},
		Output: &Node{Kind: KindRPCOutput, Name: "output", Children: output},
	})
	return m
}

func (m *Module) Identity(name string, bases ...string) *Module {
	m.Identities = append(m.Identities, &Identity{Name: name, Bases: bases})
	return m
}

func (m *Module) Typedef(t *Type) *Module {
	if m.Typedefs == nil {
		m.Typedefs = make(map[string]*Type)
	}
	m.Typedefs[t.Name] = t
	return m
}

func Container(name string, children ...*Node) *Node {
	return &Node{Kind: KindContainer, Name: name, Children: children}
}

func List(name string, keys []string, children ...*Node) *Node {
	return &Node{Kind: KindList, Name: name, KeyNames: keys, Children: children}
}

func Leaf(name string, t *Type) *Node {
	return &Node{Kind: KindLeaf, Name: name, Type: t}
}

func LeafList(name string, t *Type) *Node {
	return &Node{Kind: KindLeafList, Name: name, Type: t}
}

func Choice(name string, cases ...*Node) *Node {
	return &Node{Kind: KindChoice, Name: name, Children: cases}
}

func Case(name string, children ...*Node) *Node {
	return &Node{Kind: KindCase, Name: name, Children: children}
}

func Anydata(name string) *Node {
	return &Node{Kind: KindAnydata, Name: name}
}

func Anyxml(name string) *Node {
	return &Node{Kind: KindAnyxml, Name: name}
}

func (n *Node) WithDefault(def string) *Node {
	n.Default, n.HasDefault = def, true
	return n
}

func (n *Node) OrderedByUser() *Node {
	n.Ordered = true
	return n
}
