package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type yamlDoc struct {
	Modules []yamlModule `yaml:"modules"`
}

type yamlModule struct {
	Name          string         `yaml:"name"`
	Prefix        string         `yaml:"prefix"`
	Namespace     string         `yaml:"namespace"`
	Revision      string         `yaml:"revision"`
	Imports       []yamlImport   `yaml:"imports"`
	Typedefs      []yamlTypedef  `yaml:"typedefs"`
	Identities    []yamlIdentity `yaml:"identities"`
	Data          []yamlNode     `yaml:"data"`
	Augments      []yamlAugment  `yaml:"augments"`
	Notifications []yamlNotif    `yaml:"notifications"`
	RPCs          []yamlRPC      `yaml:"rpcs"`
}

type yamlImport struct {
	Module   string `yaml:"module"`
	Prefix   string `yaml:"prefix"`
	Revision string `yaml:"revision"`
}

type yamlTypedef struct {
	Name    string    `yaml:"name"`
	Type    *yamlType `yaml:"type"`
	Default *string   `yaml:"default"`
}

type yamlIdentity struct {
	Name  string   `yaml:"name"`
	Bases []string `yaml:"bases"`
}

type yamlAugment struct {
	Target   string     `yaml:"target"`
	Children []yamlNode `yaml:"children"`
}

type yamlNotif struct {
	Name     string     `yaml:"name"`
	Children []yamlNode `yaml:"children"`
}

type yamlRPC struct {
	Name   string     `yaml:"name"`
	Input  []yamlNode `yaml:"input"`
	Output []yamlNode `yaml:"output"`
}

type yamlNode struct {
	Container string `yaml:"container"`
	List      string `yaml:"list"`
	Leaf      string `yaml:"leaf"`
	LeafList  string `yaml:"leaf-list"`
	Choice    string `yaml:"choice"`
	Case      string `yaml:"case"`
	Anydata   string `yaml:"anydata"`
	Anyxml    string `yaml:"anyxml"`

	Type     *yamlType  `yaml:"type"`
	Default  *string    `yaml:"default"`
	Key      []string   `yaml:"key"`
	Ordered  bool       `yaml:"ordered"`
	Children []yamlNode `yaml:"children"`
	Cases    []yamlNode `yaml:"cases"`
}

// yamlType is either a scalar type name or a mapping with restrictions.
type yamlType struct {
	Base           string      `yaml:"base"`
	Enums          []yamlEnum  `yaml:"enums"`
	Bits           []yamlBit   `yaml:"bits"`
	Path           string      `yaml:"path"`
	BaseIdentity   string      `yaml:"base-identity"`
	FractionDigits uint8       `yaml:"fraction-digits"`
	Members        []*yamlType `yaml:"members"`
	Default        *string     `yaml:"default"`
}

type yamlEnum struct {
	Name  string `yaml:"name"`
	Value int32  `yaml:"value"`
}

type yamlBit struct {
	Name     string `yaml:"name"`
	Position uint32 `yaml:"position"`
}

func (t *yamlType) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Base = node.Value
		return nil
	}
	type plain yamlType
	return node.Decode((*plain)(t))
}

// LoadYAMLFile reads a YAML schema document from path and builds a Context.
func LoadYAMLFile(path string) (*Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadYAML(f)
}

// LoadYAML reads a YAML schema document and builds a Context.
func LoadYAML(r io.Reader) (*Context, error) {
	var doc yamlDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	modules, err := doc.modules()
	if err != nil {
		return nil, err
	}
	return Build(modules...)
}

func (doc *yamlDoc) modules() ([]*Module, error) {
	var out []*Module
	for _, ym := range doc.Modules {
		m := NewModule(ym.Name, ym.Prefix, ym.Namespace, ym.Revision)
		for _, imp := range ym.Imports {
			m.Imports = append(m.Imports, Import(imp))
		}
		for _, td := range ym.Typedefs {
			if td.Type == nil {
				return nil, fmt.Errorf("%w: typedef %q has no type", ErrInvalidSchema, td.Name)
			}
			t := Typedef(td.Name, td.Type.build())
			if td.Default != nil {
				t.WithDefault(*td.Default)
			}
			m.Typedef(t)
		}
		for _, id := range ym.Identities {
			m.Identity(id.Name, id.Bases...)
		}
		nodes, err := buildYAMLNodes(ym.Data)
		if err != nil {
			return nil, err
		}
		m.Add(nodes...)
		for _, a := range ym.Augments {
			nodes, err := buildYAMLNodes(a.Children)
			if err != nil {
				return nil, err
			}
			m.Augment(a.Target, nodes...)
		}
		for _, n := range ym.Notifications {
			nodes, err := buildYAMLNodes(n.Children)
			if err != nil {
				return nil, err
			}
			m.Notification(n.Name, nodes...)
		}
		for _, r := range ym.RPCs {
			in, err := buildYAMLNodes(r.Input)
			if err != nil {
				return nil, err
			}
			outNodes, err := buildYAMLNodes(r.Output)
			if err != nil {
				return nil, err
			}
			m.RPC(r.Name, in, outNodes)
		}
		out = append(out, m)
	}
	return out, nil
}

func buildYAMLNodes(yns []yamlNode) ([]*Node, error) {
	out := make([]*Node, 0, len(yns))
	for i := range yns {
		n, err := yns[i].build()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (yn *yamlNode) build() (*Node, error) {
	var n *Node
	set := 0
	pick := func(name string, mk func() *Node) {
		if name != "" {
			set++
			n = mk()
		}
	}
	pick(yn.Container, func() *Node { return Container(yn.Container) })
	pick(yn.List, func() *Node { return List(yn.List, yn.Key) })
	pick(yn.Leaf, func() *Node { return Leaf(yn.Leaf, nil) })
	pick(yn.LeafList, func() *Node { return LeafList(yn.LeafList, nil) })
	pick(yn.Choice, func() *Node { return Choice(yn.Choice) })
	pick(yn.Case, func() *Node { return Case(yn.Case) })
	pick(yn.Anydata, func() *Node { return Anydata(yn.Anydata) })
	pick(yn.Anyxml, func() *Node { return Anyxml(yn.Anyxml) })
	if set != 1 {
		return nil, fmt.Errorf("%w: schema node must declare exactly one kind, got %d", ErrInvalidSchema, set)
	}
	if n.Kind == KindLeaf || n.Kind == KindLeafList {
		if yn.Type == nil {
			return nil, fmt.Errorf("%w: %s %q has no type", ErrInvalidSchema, n.Kind, n.Name)
		}
		n.Type = yn.Type.build()
	}
	if yn.Default != nil {
		n.WithDefault(*yn.Default)
	}
	n.Ordered = yn.Ordered
	children := yn.Children
	if n.Kind == KindChoice {
		children = yn.Cases
	}
	var err error
	if n.Children, err = buildYAMLNodes(children); err != nil {
		return nil, err
	}
	return n, nil
}

func (yt *yamlType) build() *Type {
	t := &Type{
		Path:           yt.Path,
		IdentityBase:   yt.BaseIdentity,
		FractionDigits: yt.FractionDigits,
	}
	if cat, ok := CategoryByName(yt.Base); ok {
		t.Name, t.Category = yt.Base, cat
	} else {
		t.Ref = yt.Base
	}
	for _, e := range yt.Enums {
		t.Enums = append(t.Enums, Enum(e))
	}
	for _, b := range yt.Bits {
		t.Bits = append(t.Bits, Bit(b))
	}
	for _, mt := range yt.Members {
		t.Members = append(t.Members, mt.build())
	}
	if yt.Default != nil {
		t.WithDefault(*yt.Default)
	}
	return t
}
