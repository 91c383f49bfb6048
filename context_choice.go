package bindom

import (
	"reflect"
	"sync"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/schema"
)

// ChoiceContext binds a choice to its interface type. A choice has no typed
// path segment of its own; its cases supply the values.
type ChoiceContext struct {
	c     *Codec
	node  *schema.Node
	class *Class
	arg   dom.NodeIdentifier
	table func() (*choiceTable, error)
}

type choiceTable struct {
	// cases follows schema order; class is nil for cases without a loaded
	// class.
	cases        []*caseBinding
	byCaseType   map[reflect.Type]*caseBinding
	byChildQName map[dom.QName]*caseBinding
	byAugKey     map[string]*caseBinding
	// byChildType maps classes of case children to the case holding them;
	// when several cases hold one class, the first case class name wins.
	byChildType map[reflect.Type]*caseBinding
}

type caseBinding struct {
	node  *schema.Node
	class *Class
	proto *prototype
}

func (c *Codec) newChoiceContext(node *schema.Node, class *Class) *ChoiceContext {
	ctx := &ChoiceContext{
		c:     c,
		node:  node,
		class: class,
		arg:   dom.NodeIdentifier{QName: node.QName},
	}
	ctx.table = sync.OnceValues(ctx.buildTable)
	return ctx
}

func (*ChoiceContext) isCodecContext() {}

func (ctx *ChoiceContext) Kind() schema.Kind             { return schema.KindChoice }
func (ctx *ChoiceContext) Schema() *schema.Node           { return ctx.node }
func (ctx *ChoiceContext) PathArgument() dom.PathArgument { return ctx.arg }
func (ctx *ChoiceContext) Class() *Class                  { return ctx.class }

func (ctx *ChoiceContext) buildTable() (*choiceTable, error) {
	t := &choiceTable{
		byCaseType:   make(map[reflect.Type]*caseBinding),
		byChildQName: make(map[dom.QName]*caseBinding),
		byAugKey:     make(map[string]*caseBinding),
		byChildType:  make(map[reflect.Type]*caseBinding),
	}
	classes := ctx.c.loader.cases(ctx.class.Type)
	for _, cn := range ctx.node.Cases() {
		cs := &caseBinding{node: cn}
		for _, class := range classes {
			if class.matches(cn.QName) {
				cs.class = class
				break
			}
		}
		if cs.class != nil {
			cs.proto = ctx.c.prototype(cn, cs.class.Type)
			t.byCaseType[cs.class.Type] = cs
		}
		t.cases = append(t.cases, cs)
		for _, n := range cn.DataChildren() {
			t.byChildQName[n.QName] = cs
		}
		for _, a := range cn.Augments {
			t.byAugKey[a.Identifier().Key()] = cs
		}
	}

	// loader.cases is sorted by name, so the first claim on a class wins.
	for _, class := range classes {
		cs := t.byCaseType[class.Type]
		if cs == nil {
			continue
		}
		cc, err := cs.proto.get()
		if err != nil {
			return nil, err
		}
		ct, err := cc.(*DataObjectContext).table()
		if err != nil {
			return nil, err
		}
		for typ := range ct.byType {
			if t.byChildType[typ] == nil {
				t.byChildType[typ] = cs
			}
		}
		for typ := range ct.augsByType {
			if t.byChildType[typ] == nil {
				t.byChildType[typ] = cs
			}
		}
		// classes under choices nested in the case
		for _, cb := range ct.choices {
			if cb.proto == nil {
				continue
			}
			nested, err := cb.proto.get()
			if err != nil {
				return nil, err
			}
			nt, err := nested.(*ChoiceContext).table()
			if err != nil {
				return nil, err
			}
			for typ := range nt.byChildType {
				if t.byChildType[typ] == nil {
					t.byChildType[typ] = cs
				}
			}
		}
	}
	return t, nil
}

// StreamChild accepts a case class, returning the case context, or the
// class of a child of some case, returning the child context.
func (ctx *ChoiceContext) StreamChild(t reflect.Type) (CodecContext, error) {
	tab, err := ctx.table()
	if err != nil {
		return nil, err
	}
	if cs := tab.byCaseType[t]; cs != nil {
		return cs.proto.get()
	}
	if cs := tab.byChildType[t]; cs != nil {
		caseCtx, err := cs.proto.get()
		if err != nil {
			return nil, err
		}
		return caseCtx.StreamChild(t)
	}
	if class := ctx.c.loader.classes[t]; class == nil {
		return nil, codecErrf(ErrMissingClass, ctx.node.SchemaPath(), nil, "class %v is not loaded", t)
	} else if class.kind == classCase && class.choice == ctx.class.Type {
		return nil, codecErrf(ErrMissingSchema, ctx.node.SchemaPath(), nil, "no case %v in %s", class.QName, ctx.node)
	}
	return nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "%v is not a case of %s", t, ctx.class.Name)
}

// YangChild resolves a child of one of the cases.
func (ctx *ChoiceContext) YangChild(arg dom.PathArgument) (CodecContext, error) {
	_, child, err := ctx.caseChild(arg)
	return child, err
}

// caseChild resolves a child of one of the cases and returns the case.
func (ctx *ChoiceContext) caseChild(arg dom.PathArgument) (*caseBinding, CodecContext, error) {
	cs, err := ctx.caseFor(arg)
	if err != nil {
		return nil, nil, err
	}
	caseCtx, err := cs.proto.get()
	if err != nil {
		return nil, nil, err
	}
	child, err := caseCtx.YangChild(arg)
	return cs, child, err
}

func (ctx *ChoiceContext) caseFor(arg dom.PathArgument) (*caseBinding, error) {
	tab, err := ctx.table()
	if err != nil {
		return nil, err
	}
	var cs *caseBinding
	if aug, ok := arg.(dom.AugmentationIdentifier); ok {
		cs = tab.byAugKey[aug.Key()]
	} else {
		cs = tab.byChildQName[arg.NodeType()]
	}
	if cs == nil {
		if q := arg.NodeType(); !q.IsZero() {
			return nil, missingChildErr(ctx.c, ctx.node, q)
		}
		return nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "no case holds %v", arg)
	}
	if cs.class == nil {
		return nil, codecErrf(ErrMissingClass, cs.node.SchemaPath(), nil, "no class for case %v", cs.node.QName)
	}
	return cs, nil
}

func (ctx *ChoiceContext) Serialize(obj any) (dom.Node, error) {
	return buildNode(func(w dom.StreamWriter) error {
		return ctx.WriteTo(obj, w)
	})
}

// WriteTo streams obj, a pointer to a case class, as a choice node.
func (ctx *ChoiceContext) WriteTo(obj any, w dom.StreamWriter) error {
	tab, err := ctx.table()
	if err != nil {
		return err
	}
	t := reflect.TypeOf(obj)
	if t == nil || t.Kind() != reflect.Pointer {
		return codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "expected a case pointer, got %T", obj)
	}
	cs := tab.byCaseType[t.Elem()]
	if cs == nil {
		_, err := ctx.StreamChild(t.Elem())
		return err
	}
	caseCtx, err := cs.proto.get()
	if err != nil {
		return err
	}
	v, err := objValue(obj, cs.class.Type)
	if err != nil {
		return err
	}
	if err := w.StartChoice(ctx.arg); err != nil {
		return err
	}
	if err := caseCtx.(*DataObjectContext).writeChildren(v, nil, w); err != nil {
		return err
	}
	return w.EndNode()
}

// Deserialize returns a pointer to the case class selected by the children
// of n, or nil for a choice node without children.
func (ctx *ChoiceContext) Deserialize(n dom.Node) (any, error) {
	cn, ok := n.(*dom.ChoiceNode)
	if !ok || cn.ID.QName != ctx.node.QName {
		return nil, nodeTypeErr(ctx.node, n)
	}
	if len(cn.Children) == 0 {
		return nil, nil
	}
	cs, err := ctx.caseFor(cn.Children[0].Identifier())
	if err != nil {
		return nil, err
	}
	for _, ch := range cn.Children[1:] {
		other, err := ctx.caseFor(ch.Identifier())
		if err != nil {
			return nil, err
		}
		if other != cs {
			return nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "children of cases %v and %v mixed", cs.node.QName, other.node.QName)
		}
	}
	caseCtx, err := cs.proto.get()
	if err != nil {
		return nil, err
	}
	return caseCtx.Deserialize(cn)
}
