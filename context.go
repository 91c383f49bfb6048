package bindom

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/schema"
)

// CodecContext converts one schema node between binding objects and generic
// tree nodes. The set of implementations is closed: *RootContext,
// *DataObjectContext, *ListContext, *ChoiceContext, *LeafContext and
// *OpaqueContext. Contexts are immutable once published and safe for
// concurrent use.
type CodecContext interface {
	Kind() schema.Kind
	Schema() *schema.Node
	// PathArgument is the generic tree identifier of the node; nil for the
	// root. For a keyed list it is the identifier of the list as a whole.
	PathArgument() dom.PathArgument
	// Class is the binding class; nil for the root, leaves and opaque nodes.
	Class() *Class
	StreamChild(t reflect.Type) (CodecContext, error)
	YangChild(arg dom.PathArgument) (CodecContext, error)
	Serialize(obj any) (dom.Node, error)
	Deserialize(n dom.Node) (any, error)
	WriteTo(obj any, w dom.StreamWriter) error

	isCodecContext()
}

var (
	_ CodecContext = (*RootContext)(nil)
	_ CodecContext = (*DataObjectContext)(nil)
	_ CodecContext = (*ListContext)(nil)
	_ CodecContext = (*ChoiceContext)(nil)
	_ CodecContext = (*LeafContext)(nil)
	_ CodecContext = (*OpaqueContext)(nil)
)

type protoKey struct {
	node *schema.Node
	typ  reflect.Type
}

// prototype is the memo cell of one context. The first caller builds the
// context under the prototype's own lock; everyone else reads the published
// result without locking.
type prototype struct {
	c    *Codec
	node *schema.Node
	typ  reflect.Type

	mu    sync.Mutex
	built atomic.Pointer[protoResult]
}

type protoResult struct {
	ctx CodecContext
	err error
}

func (c *Codec) prototype(node *schema.Node, typ reflect.Type) *prototype {
	key := protoKey{node, typ}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.protos[key]
	if p == nil {
		p = &prototype{c: c, node: node, typ: typ}
		c.protos[key] = p
	}
	return p
}

func (p *prototype) get() (CodecContext, error) {
	if r := p.built.Load(); r != nil {
		return r.ctx, r.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if r := p.built.Load(); r != nil {
		return r.ctx, r.err
	}
	ctx, err := p.c.newContext(p.node, p.typ)
	p.built.Store(&protoResult{ctx, err})
	if err == nil {
		p.c.contextsBuilt.Add(1)
		if p.c.verbose {
			p.c.logger.LogAttrs(context.Background(), slog.LevelDebug, "bindom: context built", slog.String("node", p.node.SchemaPath()), slog.String("kind", p.node.Kind.String()), slog.String("type", p.typ.String()))
		}
	}
	return ctx, err
}

func (c *Codec) newContext(node *schema.Node, typ reflect.Type) (CodecContext, error) {
	switch node.Kind {
	case schema.KindContainer, schema.KindCase, schema.KindAugmentation,
		schema.KindNotification, schema.KindRPCInput, schema.KindRPCOutput:
		class, err := c.classFor(node, typ)
		if err != nil {
			return nil, err
		}
		return c.newDataObjectContext(node, class), nil
	case schema.KindList:
		class, err := c.classFor(node, typ)
		if err != nil {
			return nil, err
		}
		return c.newListContext(node, class)
	case schema.KindChoice:
		class, err := c.classFor(node, typ)
		if err != nil {
			return nil, err
		}
		return c.newChoiceContext(node, class), nil
	case schema.KindLeaf, schema.KindLeafList:
		return c.newLeafContext(node, typ)
	case schema.KindAnydata, schema.KindAnyxml:
		if typ != opaquePtrType {
			return nil, codecErrf(ErrUnsupported, node.SchemaPath(), nil, "%s must be bound to %v, got %v", node.Kind, opaquePtrType, typ)
		}
		return &OpaqueContext{node: node, arg: dom.NodeIdentifier{QName: node.QName}}, nil
	default:
		return nil, codecErrf(ErrUnsupported, node.SchemaPath(), nil, "no context for %s", node.Kind)
	}
}

var expectedClassKinds = map[schema.Kind][]classKind{
	schema.KindContainer:    {classData},
	schema.KindList:         {classList, classData},
	schema.KindChoice:       {classChoice},
	schema.KindCase:         {classCase},
	schema.KindAugmentation: {classAugmentation},
	schema.KindNotification: {classNotification},
	schema.KindRPCInput:     {classRPCInput},
	schema.KindRPCOutput:    {classRPCOutput},
}

// classFor returns the loaded class for typ and checks that it may bind to
// node.
func (c *Codec) classFor(node *schema.Node, typ reflect.Type) (*Class, error) {
	class := c.loader.classes[typ]
	if class == nil {
		return nil, codecErrf(ErrMissingClass, node.SchemaPath(), nil, "class %v is not loaded", typ)
	}
	kindOK := false
	for _, k := range expectedClassKinds[node.Kind] {
		kindOK = kindOK || class.kind == k
	}
	if !kindOK {
		return nil, codecErrf(ErrIncorrectNesting, node.SchemaPath(), nil, "%s class %s cannot bind to a %s", class.kind, class.Name, node.Kind)
	}
	switch class.kind {
	case classAugmentation, classRPCInput, classRPCOutput:
	default:
		if !class.matches(node.QName) {
			return nil, codecErrf(ErrIncorrectNesting, node.SchemaPath(), nil, "class %s is bound to %v, not %v", class.Name, class.QName, node.QName)
		}
	}
	return class, nil
}

// dataChildren returns the schema children that appear directly under the
// generic tree node of n.
func dataChildren(n *schema.Node) []*schema.Node {
	if n.Kind == schema.KindAugmentation {
		return n.Children
	}
	return n.DataChildren()
}

func missingChildErr(c *Codec, parent *schema.Node, q dom.QName) error {
	if q.Namespace != "" && c.schema.ModuleByNamespace(q.Namespace) == nil {
		return codecErrf(ErrMissingSchema, parent.SchemaPath(), nil, "no module for namespace %q of %v", q.Namespace, q)
	}
	return codecErrf(ErrIncorrectNesting, parent.SchemaPath(), nil, "%v is not a child of %s", q, parent)
}

func setField(fv reflect.Value, v reflect.Value) {
	if fv.Kind() == reflect.Pointer && v.Type() == fv.Type().Elem() {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		fv.Set(p)
		return
	}
	fv.Set(v)
}

// objValue returns the struct behind obj, which must be a non-nil pointer to
// a struct of type t.
func objValue(obj any, t reflect.Type) (reflect.Value, error) {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Type().Elem() != t {
		return reflect.Value{}, codecErrf(ErrIncorrectNesting, "", nil, "expected *%v, got %T", t, obj)
	}
	return v.Elem(), nil
}

func buildNode(write func(w dom.StreamWriter) error) (dom.Node, error) {
	b := dom.NewTreeBuilder()
	if err := write(b); err != nil {
		return nil, err
	}
	return b.Result()
}

func nodeTypeErr(node *schema.Node, n dom.Node) error {
	return codecErrf(ErrIncorrectNesting, node.SchemaPath(), nil, "unexpected %T for %s", n, node)
}

// wrapPath fills in the schema path of a CodecError raised below node.
func wrapPath(err error, node *schema.Node) error {
	if ce, ok := err.(*CodecError); ok && ce.Path == "" {
		cp := *ce
		cp.Path = node.SchemaPath()
		return &cp
	}
	return err
}
