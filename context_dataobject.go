package bindom

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/schema"
)

// DataObjectContext binds a container, list entry, case, augmentation,
// notification or rpc input/output node to its class.
type DataObjectContext struct {
	c     *Codec
	node  *schema.Node
	class *Class
	info  *structInfo
	arg   dom.PathArgument
	table func() (*childTable, error)
}

type childTable struct {
	// children are the bound schema children in schema order.
	children []*childBinding
	byQName  map[dom.QName]*childBinding
	byType   map[reflect.Type]*childBinding
	choices  []*childBinding

	augs       []*augBinding
	augsByKey  map[string]*augBinding
	augsByType map[reflect.Type]*augBinding
}

type childBinding struct {
	node  *schema.Node
	field *fieldInfo
	// typ is the class or field type the child context is built for.
	typ   reflect.Type
	proto *prototype
}

type augBinding struct {
	aug   *schema.Augment
	class *Class
	proto *prototype
}

func (c *Codec) newDataObjectContext(node *schema.Node, class *Class) *DataObjectContext {
	ctx := &DataObjectContext{
		c:     c,
		node:  node,
		class: class,
		info:  c.structInfo(class.Type),
	}
	switch node.Kind {
	case schema.KindAugmentation:
		ctx.arg = node.Augment.Identifier()
	default:
		ctx.arg = dom.NodeIdentifier{QName: node.QName}
	}
	ctx.table = sync.OnceValues(ctx.buildTable)
	return ctx
}

func (*DataObjectContext) isCodecContext() {}

func (ctx *DataObjectContext) Kind() schema.Kind             { return ctx.node.Kind }
func (ctx *DataObjectContext) Schema() *schema.Node           { return ctx.node }
func (ctx *DataObjectContext) PathArgument() dom.PathArgument { return ctx.arg }
func (ctx *DataObjectContext) Class() *Class                  { return ctx.class }

func (ctx *DataObjectContext) buildTable() (*childTable, error) {
	t := &childTable{
		byQName:    make(map[dom.QName]*childBinding),
		byType:     make(map[reflect.Type]*childBinding),
		augsByKey:  make(map[string]*augBinding),
		augsByType: make(map[reflect.Type]*augBinding),
	}
	used := make(map[*fieldInfo]bool)
	for _, n := range dataChildren(ctx.node) {
		cb := &childBinding{node: n}
		t.byQName[n.QName] = cb
		t.children = append(t.children, cb)
		if n.Kind == schema.KindChoice {
			t.choices = append(t.choices, cb)
		}

		fi := ctx.info.matchField(n.QName.Local, n.Kind == schema.KindLeaf && isBoolCategory(n.Type))
		if fi == nil {
			ctx.c.logger.LogAttrs(context.Background(), slog.LevelDebug, "bindom: schema node has no field", slog.String("class", ctx.class.Name), slog.String("node", n.SchemaPath()))
			continue
		}
		typ, err := fieldContextType(n, fi)
		if err != nil {
			return nil, codecErrf(ErrUnsupported, n.SchemaPath(), err, "field %s.%s", ctx.class.Type.Name(), fi.Name)
		}
		used[fi] = true
		cb.field = fi
		cb.typ = typ
		cb.proto = ctx.c.prototype(n, typ)
		switch n.Kind {
		case schema.KindContainer, schema.KindList, schema.KindChoice:
			t.byType[typ] = cb
		}
	}
	for _, fi := range ctx.info.fields {
		if !used[fi] {
			ctx.c.logger.LogAttrs(context.Background(), slog.LevelWarn, "bindom: field matches no schema node", slog.String("class", ctx.class.Name), slog.String("field", fi.Name), slog.String("node", ctx.node.SchemaPath()))
		}
	}

	for _, a := range ctx.node.Augments {
		ab := &augBinding{aug: a, class: ctx.c.loader.augmentation(ctx.class.Type, a.Module.Name)}
		if ab.class != nil {
			ab.proto = ctx.c.prototype(a.Schema, ab.class.Type)
			t.augsByType[ab.class.Type] = ab
		}
		t.augs = append(t.augs, ab)
		t.augsByKey[a.Identifier().Key()] = ab
	}
	return t, nil
}

func isBoolCategory(t *schema.Type) bool {
	return t != nil && (t.Category == schema.Boolean || t.Category == schema.Empty)
}

// fieldContextType checks the shape of the field bound to n and returns the
// type its context is built for.
func fieldContextType(n *schema.Node, fi *fieldInfo) (reflect.Type, error) {
	ft := fi.Type
	switch n.Kind {
	case schema.KindContainer:
		if ft.Kind() == reflect.Pointer && ft.Elem().Kind() == reflect.Struct {
			return ft.Elem(), nil
		}
		return nil, codecErrf(ErrUnsupported, "", nil, "container needs a struct pointer, got %v", ft)
	case schema.KindList:
		if ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Pointer && ft.Elem().Elem().Kind() == reflect.Struct {
			return ft.Elem().Elem(), nil
		}
		return nil, codecErrf(ErrUnsupported, "", nil, "list needs a slice of struct pointers, got %v", ft)
	case schema.KindChoice:
		if ft.Kind() == reflect.Interface {
			return ft, nil
		}
		return nil, codecErrf(ErrUnsupported, "", nil, "choice needs an interface, got %v", ft)
	case schema.KindLeafList:
		if ft.Kind() == reflect.Slice {
			return ft, nil
		}
		return nil, codecErrf(ErrUnsupported, "", nil, "leaf-list needs a slice, got %v", ft)
	case schema.KindAnydata, schema.KindAnyxml:
		if ft == opaquePtrType {
			return ft, nil
		}
		return nil, codecErrf(ErrUnsupported, "", nil, "%s needs %v, got %v", n.Kind, opaquePtrType, ft)
	default:
		return ft, nil
	}
}

// StreamChild returns the context of a direct child container, list,
// choice or augmentation bound to t. Classes nested in choices are found
// too, see streamChildVia.
func (ctx *DataObjectContext) StreamChild(t reflect.Type) (CodecContext, error) {
	_, child, err := ctx.streamChildVia(t)
	return child, err
}

// streamChildVia resolves t like StreamChild and also returns the choices
// the child was found in, outermost first.
func (ctx *DataObjectContext) streamChildVia(t reflect.Type) ([]*ChoiceContext, CodecContext, error) {
	tab, err := ctx.table()
	if err != nil {
		return nil, nil, err
	}
	class := ctx.c.loader.classes[t]
	if class == nil {
		return nil, nil, codecErrf(ErrMissingClass, ctx.node.SchemaPath(), nil, "class %v is not loaded", t)
	}
	if class.parent != nil && class.parent != ctx.class.Type {
		return nil, nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "%s may only appear under %v", class.Name, class.parent)
	}
	if class.kind == classAugmentation {
		ab := tab.augsByType[t]
		if ab == nil {
			if class.target == ctx.class.Type && ctx.c.schema.ModuleByName(class.module) == nil {
				return nil, nil, codecErrf(ErrMissingSchema, ctx.node.SchemaPath(), nil, "no module %s for %s", class.module, class.Name)
			}
			return nil, nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "%s does not augment %s", class.Name, ctx.class.Name)
		}
		child, err := ab.proto.get()
		return nil, child, err
	}
	if cb := tab.byType[t]; cb != nil {
		child, err := cb.proto.get()
		return nil, child, err
	}

	// Legacy lookup through choices: when several cases hold the class,
	// the case whose class name sorts first wins.
	var bestChoice *ChoiceContext
	var bestCase *caseBinding
	for _, cb := range tab.choices {
		if cb.proto == nil {
			continue
		}
		cc, err := cb.proto.get()
		if err != nil {
			return nil, nil, err
		}
		choice := cc.(*ChoiceContext)
		ct, err := choice.table()
		if err != nil {
			return nil, nil, err
		}
		cs := ct.byChildType[t]
		if cs == nil {
			continue
		}
		if bestCase == nil || strings.Compare(cs.class.Name, bestCase.class.Name) < 0 {
			if bestCase != nil {
				ctx.c.logger.LogAttrs(context.Background(), slog.LevelDebug, "bindom: ambiguous class in choices", slog.String("class", class.Name), slog.String("picked", cs.class.Name), slog.String("over", bestCase.class.Name))
			}
			bestChoice, bestCase = choice, cs
		}
	}
	if bestCase != nil {
		caseCtx, err := bestCase.proto.get()
		if err != nil {
			return nil, nil, err
		}
		inner, child, err := caseCtx.(*DataObjectContext).streamChildVia(t)
		return append([]*ChoiceContext{bestChoice}, inner...), child, err
	}

	if class.QName.Namespace != "" && ctx.c.schema.ModuleByNamespace(class.QName.Namespace) == nil {
		return nil, nil, codecErrf(ErrMissingSchema, ctx.node.SchemaPath(), nil, "no module for %s (%v)", class.Name, class.QName)
	}
	return nil, nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "%s is not a child of %s", class.Name, ctx.class.Name)
}

// YangChild returns the context of the child identified by arg.
func (ctx *DataObjectContext) YangChild(arg dom.PathArgument) (CodecContext, error) {
	tab, err := ctx.table()
	if err != nil {
		return nil, err
	}
	switch arg := arg.(type) {
	case dom.AugmentationIdentifier:
		ab := tab.augsByKey[arg.Key()]
		if ab == nil {
			return nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "no augmentation %v", arg)
		}
		if ab.class == nil {
			return nil, codecErrf(ErrMissingClass, ctx.node.SchemaPath(), nil, "no class for augmentation %v from %s", arg, ab.aug.Module.Name)
		}
		return ab.proto.get()
	case dom.NodeIdentifier, dom.NodeIdentifierWithPredicates, dom.NodeWithValue:
		cb := tab.byQName[arg.NodeType()]
		if cb == nil {
			return nil, missingChildErr(ctx.c, ctx.node, arg.NodeType())
		}
		if cb.proto == nil {
			return nil, codecErrf(ErrMissingClass, cb.node.SchemaPath(), nil, "%s has no field for %v", ctx.class.Name, arg.NodeType())
		}
		if _, ok := arg.(dom.NodeIdentifier); !ok && cb.node.Kind != schema.KindList && cb.node.Kind != schema.KindLeafList {
			return nil, codecErrf(ErrIncorrectNesting, cb.node.SchemaPath(), nil, "%T does not address a %s", arg, cb.node.Kind)
		}
		return cb.proto.get()
	default:
		return nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "unsupported path argument %T", arg)
	}
}

// LegacyChild finds a child by local name alone, looking through choices
// when no direct child matches. Ambiguity is resolved like StreamChild.
//
// Deprecated: use YangChild with a fully qualified identifier.
func (ctx *DataObjectContext) LegacyChild(local string) (CodecContext, error) {
	tab, err := ctx.table()
	if err != nil {
		return nil, err
	}
	for _, cb := range tab.children {
		if cb.node.QName.Local == local && cb.node.Kind != schema.KindChoice {
			return ctx.YangChild(dom.NodeIdentifier{QName: cb.node.QName})
		}
	}
	var best *caseBinding
	var bestNode *schema.Node
	for _, cb := range tab.choices {
		if cb.proto == nil {
			continue
		}
		cc, err := cb.proto.get()
		if err != nil {
			return nil, err
		}
		ct, err := cc.(*ChoiceContext).table()
		if err != nil {
			return nil, err
		}
		for _, cs := range ct.cases {
			if cs.class == nil {
				continue
			}
			n := cs.node.ChildByLocalName(local)
			if n == nil || !n.Kind.IsData() {
				continue
			}
			if best == nil || strings.Compare(cs.class.Name, best.class.Name) < 0 {
				best, bestNode = cs, n
			}
		}
	}
	if best == nil {
		return nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "no child named %q", local)
	}
	caseCtx, err := best.proto.get()
	if err != nil {
		return nil, err
	}
	return caseCtx.YangChild(dom.NodeIdentifier{QName: bestNode.QName})
}

// choiceByCase finds the choice holding case class t, descending through
// choices nested in cases. It returns the choices on the way, outermost
// first, and the case context.
func (ctx *DataObjectContext) choiceByCase(t reflect.Type) ([]*ChoiceContext, *DataObjectContext, error) {
	class := ctx.c.loader.classes[t]
	if class == nil {
		return nil, nil, codecErrf(ErrMissingClass, ctx.node.SchemaPath(), nil, "case class %v is not loaded", t)
	}
	if class.kind != classCase {
		return nil, nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "%s is not a case", class.Name)
	}
	chain, caseCtx, err := ctx.findCase(class)
	if err != nil {
		return nil, nil, err
	}
	if caseCtx == nil {
		return nil, nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "no choice of %s holds %s", ctx.class.Name, class.Name)
	}
	return chain, caseCtx, nil
}

// findCase searches the choices of ctx in schema order, then the choices
// nested in their cases. A nil case context means not found.
func (ctx *DataObjectContext) findCase(class *Class) ([]*ChoiceContext, *DataObjectContext, error) {
	tab, err := ctx.table()
	if err != nil {
		return nil, nil, err
	}
	var choices []*ChoiceContext
	for _, cb := range tab.choices {
		if cb.proto == nil {
			continue
		}
		cc, err := cb.proto.get()
		if err != nil {
			return nil, nil, err
		}
		choice := cc.(*ChoiceContext)
		if cb.typ == class.choice {
			caseCtx, err := choice.StreamChild(class.Type)
			if err != nil {
				return nil, nil, err
			}
			return []*ChoiceContext{choice}, caseCtx.(*DataObjectContext), nil
		}
		choices = append(choices, choice)
	}
	for _, choice := range choices {
		ct, err := choice.table()
		if err != nil {
			return nil, nil, err
		}
		for _, cs := range ct.cases {
			if cs.class == nil {
				continue
			}
			cc, err := cs.proto.get()
			if err != nil {
				return nil, nil, err
			}
			inner, caseCtx, err := cc.(*DataObjectContext).findCase(class)
			if err != nil || caseCtx != nil {
				return append([]*ChoiceContext{choice}, inner...), caseCtx, err
			}
		}
	}
	return nil, nil, nil
}

func (ctx *DataObjectContext) Serialize(obj any) (dom.Node, error) {
	return buildNode(func(w dom.StreamWriter) error {
		return ctx.WriteTo(obj, w)
	})
}

func (ctx *DataObjectContext) WriteTo(obj any, w dom.StreamWriter) error {
	v, err := objValue(obj, ctx.class.Type)
	if err != nil {
		return err
	}
	switch ctx.node.Kind {
	case schema.KindAugmentation:
		if err := w.StartAugmentation(ctx.arg.(dom.AugmentationIdentifier)); err != nil {
			return err
		}
	case schema.KindCase:
		// cases have no node of their own; see ChoiceContext.WriteTo
		return ctx.writeChildren(v, nil, w)
	default:
		if err := w.StartContainer(ctx.arg.(dom.NodeIdentifier)); err != nil {
			return err
		}
	}
	if err := ctx.writeChildren(v, nil, w); err != nil {
		return err
	}
	return w.EndNode()
}

// present reports whether a field value produces a node. Nil pointers,
// interfaces and slices are absent; any other value, zero or not, is
// written out, so optional leaves need pointer fields.
func present(fv reflect.Value) bool {
	switch fv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return !fv.IsNil()
	default:
		return true
	}
}

// writeChildren streams the present fields of v in schema order, followed by
// the foreign augmentations. Key leaves of a list entry take their values
// from keys.
func (ctx *DataObjectContext) writeChildren(v reflect.Value, keys *dom.NodeIdentifierWithPredicates, w dom.StreamWriter) error {
	tab, err := ctx.table()
	if err != nil {
		return err
	}
	for _, cb := range tab.children {
		if cb.field == nil {
			continue
		}
		if keys != nil && cb.node.Kind == schema.KindLeaf {
			if kv, ok := keys.Get(cb.node.QName); ok {
				if err := w.Leaf(dom.NodeIdentifier{QName: cb.node.QName}, kv); err != nil {
					return err
				}
				continue
			}
		}
		fv := v.FieldByIndex(cb.field.Index)
		if !present(fv) {
			continue
		}
		child, err := cb.proto.get()
		if err != nil {
			return err
		}
		switch child := child.(type) {
		case *DataObjectContext:
			err = child.WriteTo(fv.Interface(), w)
		case *ListContext:
			err = child.writeEntries(fv, w)
		case *ChoiceContext:
			err = child.WriteTo(fv.Interface(), w)
		case *LeafContext:
			err = child.writeValue(fv, w)
		case *OpaqueContext:
			err = child.WriteTo(fv.Interface(), w)
		}
		if err != nil {
			return err
		}
	}

	if ctx.info.augs == nil {
		return nil
	}
	augs, _ := v.FieldByIndex(ctx.info.augs.Index).Interface().(Augmentations)
	if len(augs) == 0 {
		return nil
	}
	for t := range augs {
		if tab.augsByType[t] == nil {
			return codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "augmentation %v does not apply to %s", t, ctx.class.Name)
		}
	}
	for _, ab := range tab.augs {
		if ab.class == nil {
			continue
		}
		a := augs[ab.class.Type]
		if a == nil {
			continue
		}
		child, err := ab.proto.get()
		if err != nil {
			return err
		}
		if err := child.WriteTo(a, w); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *DataObjectContext) Deserialize(n dom.Node) (any, error) {
	var children []dom.Node
	switch n := n.(type) {
	case *dom.ContainerNode:
		if ctx.node.Kind == schema.KindAugmentation || ctx.node.Kind == schema.KindCase || n.ID.QName != ctx.node.QName {
			return nil, nodeTypeErr(ctx.node, n)
		}
		children = n.Children
	case *dom.AugmentationNode:
		if ctx.node.Kind != schema.KindAugmentation || n.ID.Key() != ctx.arg.(dom.AugmentationIdentifier).Key() {
			return nil, nodeTypeErr(ctx.node, n)
		}
		children = n.Children
	case *dom.ChoiceNode:
		if ctx.node.Kind != schema.KindCase {
			return nil, nodeTypeErr(ctx.node, n)
		}
		children = n.Children
	default:
		return nil, nodeTypeErr(ctx.node, n)
	}
	obj := reflect.New(ctx.class.Type)
	if err := ctx.readChildren(children, obj.Elem()); err != nil {
		return nil, err
	}
	return obj.Interface(), nil
}

// readChildren fills the fields of v from generic tree children.
func (ctx *DataObjectContext) readChildren(children []dom.Node, v reflect.Value) error {
	tab, err := ctx.table()
	if err != nil {
		return err
	}
	var augs Augmentations
	for _, ch := range children {
		switch id := ch.Identifier().(type) {
		case dom.AugmentationIdentifier:
			ab := tab.augsByKey[id.Key()]
			if ab == nil {
				return codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "no augmentation %v", id)
			}
			if ab.class == nil {
				return codecErrf(ErrMissingClass, ctx.node.SchemaPath(), nil, "no class for augmentation %v from %s", id, ab.aug.Module.Name)
			}
			if ctx.info.augs == nil {
				return codecErrf(ErrUnsupported, ctx.node.SchemaPath(), nil, "%s has no Augmentations field", ctx.class.Name)
			}
			child, err := ab.proto.get()
			if err != nil {
				return err
			}
			a, err := child.Deserialize(ch)
			if err != nil {
				return err
			}
			augs.Add(a)
		case dom.NodeIdentifier:
			cb := tab.byQName[id.QName]
			if cb == nil {
				return missingChildErr(ctx.c, ctx.node, id.QName)
			}
			if cb.proto == nil {
				return codecErrf(ErrMissingClass, cb.node.SchemaPath(), nil, "%s has no field for %v", ctx.class.Name, id.QName)
			}
			child, err := cb.proto.get()
			if err != nil {
				return err
			}
			fv := v.FieldByIndex(cb.field.Index)
			switch child := child.(type) {
			case *ListContext:
				entries, err := child.readEntries(ch)
				if err != nil {
					return err
				}
				fv.Set(entries)
			case *LeafContext:
				val, err := child.readValue(ch)
				if err != nil {
					return err
				}
				setField(fv, val)
			case *OpaqueContext:
				o, err := child.readOpaque(ch)
				if err != nil {
					return err
				}
				fv.Set(reflect.ValueOf(o))
			default:
				obj, err := child.Deserialize(ch)
				if err != nil {
					return err
				}
				if obj != nil {
					fv.Set(reflect.ValueOf(obj))
				}
			}
		default:
			return codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "unexpected %v", id)
		}
	}
	if augs != nil {
		v.FieldByIndex(ctx.info.augs.Index).Set(reflect.ValueOf(augs))
	}
	return nil
}
