package bindom

import (
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/schema"
)

type Options struct {
	Logger *slog.Logger
	// Verbose logs every context as it is built.
	Verbose bool
}

// Codec is the codec context factory for one schema context and one loader.
// Contexts are built lazily, at most once each, and shared by all callers.
// A Codec never observes schema or loader changes: build a new Codec
// instead.
type Codec struct {
	schema  *schema.Context
	loader  *Loader
	logger  *slog.Logger
	verbose bool
	root    *RootContext

	mu      sync.Mutex
	protos  map[protoKey]*prototype
	structs map[reflect.Type]*structInfo
	unions  map[valueKey]*unionCodec
	bits    map[valueKey]*bitsCodec

	contextsBuilt atomic.Int64
}

func New(sc *schema.Context, loader *Loader, opts Options) *Codec {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Codec{
		schema:  sc,
		loader:  loader,
		logger:  logger,
		verbose: opts.Verbose,
		protos:  make(map[protoKey]*prototype),
		structs: make(map[reflect.Type]*structInfo),
		unions:  make(map[valueKey]*unionCodec),
		bits:    make(map[valueKey]*bitsCodec),
	}
	c.root = &RootContext{c: c}
	return c
}

func (c *Codec) SchemaContext() *schema.Context { return c.schema }
func (c *Codec) Loader() *Loader                { return c.loader }
func (c *Codec) Root() *RootContext             { return c.root }

// RootContext is the entry point for top-level data nodes. It has no
// representation of its own.
type RootContext struct {
	c *Codec
}

func (*RootContext) isCodecContext() {}

func (ctx *RootContext) Kind() schema.Kind             { return schema.KindRoot }
func (ctx *RootContext) Schema() *schema.Node           { return ctx.c.schema.Root() }
func (ctx *RootContext) PathArgument() dom.PathArgument { return nil }
func (ctx *RootContext) Class() *Class                  { return nil }

func (ctx *RootContext) StreamChild(t reflect.Type) (CodecContext, error) {
	c := ctx.c
	class := c.loader.classes[t]
	if class == nil {
		return nil, codecErrf(ErrMissingClass, "/", nil, "class %v is not loaded", t)
	}
	if (class.kind != classData && class.kind != classList) || class.QName.Namespace == "" {
		return nil, codecErrf(ErrIncorrectNesting, "/", nil, "%s cannot appear at the top level", class.Name)
	}
	if c.schema.ModuleByNamespace(class.QName.Namespace) == nil {
		return nil, codecErrf(ErrMissingSchema, "/", nil, "no module for %s (%v)", class.Name, class.QName)
	}
	node := c.schema.DataChild(class.QName)
	if node == nil {
		return nil, codecErrf(ErrIncorrectNesting, "/", nil, "%v is not a top-level node", class.QName)
	}
	return c.prototype(node, t).get()
}

func (ctx *RootContext) YangChild(arg dom.PathArgument) (CodecContext, error) {
	c := ctx.c
	q := arg.NodeType()
	node := c.schema.DataChild(q)
	if node == nil {
		return nil, missingChildErr(c, c.schema.Root(), q)
	}
	switch node.Kind {
	case schema.KindContainer, schema.KindList:
	default:
		return nil, codecErrf(ErrUnsupported, node.SchemaPath(), nil, "top-level %s has no class", node.Kind)
	}
	class := c.loader.data[q]
	if class == nil {
		return nil, codecErrf(ErrMissingClass, node.SchemaPath(), nil, "no class for %v", q)
	}
	return c.prototype(node, class.Type).get()
}

func (ctx *RootContext) Serialize(obj any) (dom.Node, error) {
	return nil, codecErrf(ErrUnsupported, "/", nil, "the root has no node of its own")
}

func (ctx *RootContext) Deserialize(n dom.Node) (any, error) {
	return nil, codecErrf(ErrUnsupported, "/", nil, "the root has no node of its own")
}

func (ctx *RootContext) WriteTo(obj any, w dom.StreamWriter) error {
	return codecErrf(ErrUnsupported, "/", nil, "the root has no node of its own")
}

// ToDOMPath converts a typed path to a generic path and returns the context
// of its target. Choices the typed path passes through appear in the
// generic path by their own identifier.
func (c *Codec) ToDOMPath(ii InstanceIdentifier) (dom.Path, CodecContext, error) {
	var cur CodecContext = c.root
	out := make(dom.Path, 0, len(ii)+2)
	for _, arg := range ii {
		next, choices, err := c.typedChild(cur, arg)
		if err != nil {
			return nil, nil, wrapTypedPath(err, ii)
		}
		for _, choice := range choices {
			out = append(out, choice.arg)
		}
		out, err = c.appendArg(out, next, arg)
		if err != nil {
			return nil, nil, wrapTypedPath(err, ii)
		}
		cur = next
	}
	return out, cur, nil
}

func (c *Codec) typedChild(cur CodecContext, arg PathArg) (CodecContext, []*ChoiceContext, error) {
	if lc, ok := cur.(*ListContext); ok {
		cur = lc.entry
	}
	switch cur := cur.(type) {
	case *RootContext:
		next, err := cur.StreamChild(arg.Type())
		return next, nil, err
	case *DataObjectContext:
		if item, ok := arg.(Item); ok && item.Case != nil {
			choices, caseCtx, err := cur.choiceByCase(item.Case)
			if err != nil {
				return nil, nil, err
			}
			tab, err := caseCtx.table()
			if err != nil {
				return nil, nil, err
			}
			cb := tab.byType[item.Class]
			if cb == nil {
				return nil, nil, codecErrf(ErrIncorrectNesting, caseCtx.node.SchemaPath(), nil, "case %s has no child %v", caseCtx.class.Name, item.Class)
			}
			next, err := cb.proto.get()
			return next, choices, err
		}
		choices, next, err := cur.streamChildVia(arg.Type())
		return next, choices, err
	default:
		_, err := cur.StreamChild(arg.Type())
		if err == nil {
			err = codecErrf(ErrIncorrectNesting, cur.Schema().SchemaPath(), nil, "%s has no typed path children", cur.Kind())
		}
		return nil, nil, err
	}
}

func (c *Codec) appendArg(out dom.Path, next CodecContext, arg PathArg) (dom.Path, error) {
	switch next := next.(type) {
	case *ListContext:
		out = append(out, next.arg)
		if ia, ok := arg.(IdentifiableItem); ok {
			nip, err := next.KeyIdentifier(ia.Key)
			if err != nil {
				return nil, err
			}
			out = append(out, nip)
		}
	case *DataObjectContext:
		if _, ok := arg.(IdentifiableItem); ok {
			return nil, codecErrf(ErrIncorrectNesting, next.node.SchemaPath(), nil, "%s is not a keyed list", next.class.Name)
		}
		out = append(out, next.arg)
	default:
		return nil, codecErrf(ErrIncorrectNesting, next.Schema().SchemaPath(), nil, "a %s cannot be addressed by a typed path", next.Kind())
	}
	return out, nil
}

func wrapTypedPath(err error, ii InstanceIdentifier) error {
	if ce, ok := err.(*CodecError); ok && ce.Path == "" {
		cp := *ce
		cp.Path = ii.String()
		return &cp
	}
	return err
}

// FromDOMPath converts a generic path to a typed path. Paths ending in a
// leaf, opaque node or choice have no typed form and fail with
// ErrIncorrectNesting.
func (c *Codec) FromDOMPath(p dom.Path) (InstanceIdentifier, error) {
	ii, ctx, err := c.ResolveDOMPath(p)
	if err != nil {
		return nil, err
	}
	switch ctx.(type) {
	case *LeafContext, *OpaqueContext:
		return nil, codecErrf(ErrIncorrectNesting, p.String(), nil, "path to a %s has no typed form", ctx.Kind())
	}
	return ii, nil
}

// ResolveDOMPath converts a generic path like FromDOMPath, but also accepts
// paths ending in a leaf or opaque node (and a leaf-list entry), returning
// the typed path of the enclosing object together with the terminal
// context.
func (c *Codec) ResolveDOMPath(p dom.Path) (InstanceIdentifier, CodecContext, error) {
	var (
		cur         CodecContext = c.root
		ii          InstanceIdentifier
		pending     *ListContext
		pendingCase reflect.Type
	)
	for i, arg := range p {
		if pending != nil {
			nip, ok := arg.(dom.NodeIdentifierWithPredicates)
			if !ok {
				return nil, nil, codecErrf(ErrIncorrectNesting, p.String(), nil, "%v must be followed by an entry identifier, got %v", pending.node.QName, arg)
			}
			key, err := pending.KeyOf(nip)
			if err != nil {
				return nil, nil, wrapDOMPath(err, p)
			}
			ii = append(ii, IdentifiableItem{Class: pending.entry.class.Type, Key: key})
			cur, pending = pending, nil
			continue
		}

		var next CodecContext
		var caseType reflect.Type
		var err error
		if choice, ok := cur.(*ChoiceContext); ok {
			var cs *caseBinding
			cs, next, err = choice.caseChild(arg)
			if cs != nil {
				caseType = cs.class.Type
			}
		} else {
			next, err = cur.YangChild(arg)
		}
		if err != nil {
			return nil, nil, wrapDOMPath(err, p)
		}

		switch next := next.(type) {
		case *ListContext:
			if next.Keyed() {
				pending, pendingCase = next, caseType
			} else {
				ii = append(ii, Item{Class: next.entry.class.Type, Case: caseType})
			}
			cur = next
		case *ChoiceContext:
			cur = next
		case *DataObjectContext:
			ii = append(ii, Item{Class: next.class.Type, Case: caseType})
			cur = next
		case *LeafContext:
			rest := p[i+1:]
			if len(rest) == 0 {
				return ii, next, nil
			}
			if nwv, ok := rest[0].(dom.NodeWithValue); ok && len(rest) == 1 && next.node.Kind == schema.KindLeafList && nwv.QName == next.node.QName {
				return ii, next, nil
			}
			_, err := next.YangChild(rest[0])
			return nil, nil, wrapDOMPath(err, p)
		case *OpaqueContext:
			if i+1 < len(p) {
				_, err := next.YangChild(p[i+1])
				return nil, nil, wrapDOMPath(err, p)
			}
			return ii, next, nil
		}
	}
	if pending != nil {
		// keyed list without an entry: wildcard
		ii = append(ii, Item{Class: pending.entry.class.Type, Case: pendingCase})
	}
	if _, ok := cur.(*ChoiceContext); ok {
		return nil, nil, codecErrf(ErrIncorrectNesting, p.String(), nil, "path ends in choice %v", cur.Schema().QName)
	}
	return ii, cur, nil
}

func wrapDOMPath(err error, p dom.Path) error {
	if ce, ok := err.(*CodecError); ok && ce.Path == "" {
		cp := *ce
		cp.Path = p.String()
		return &cp
	}
	return err
}

// ToNormalizedNode converts obj, located at ii, to its generic path and node.
func (c *Codec) ToNormalizedNode(ii InstanceIdentifier, obj any) (dom.Path, dom.Node, error) {
	p, ctx, err := c.ToDOMPath(ii)
	if err != nil {
		return nil, nil, err
	}
	n, err := ctx.Serialize(obj)
	if err != nil {
		return nil, nil, err
	}
	return p, n, nil
}

// FromNormalizedNode converts a generic node located at p to its typed path
// and object.
func (c *Codec) FromNormalizedNode(p dom.Path, n dom.Node) (InstanceIdentifier, any, error) {
	ii, ctx, err := c.ResolveDOMPath(p)
	if err != nil {
		return nil, nil, err
	}
	switch ctx.(type) {
	case *RootContext, *OpaqueContext:
		return nil, nil, codecErrf(ErrUnsupported, p.String(), nil, "cannot deserialize %s content", ctx.Kind())
	}
	obj, err := ctx.Deserialize(n)
	if err != nil {
		return nil, nil, err
	}
	return ii, obj, nil
}

// NotificationContext returns the context of notification q.
func (c *Codec) NotificationContext(q dom.QName) (*DataObjectContext, error) {
	node := c.schema.Notification(q)
	if node == nil {
		return nil, missingTopLevel(c, "notification", q)
	}
	class := c.loader.notifications[q]
	if class == nil {
		return nil, codecErrf(ErrMissingClass, node.SchemaPath(), nil, "no class for notification %v", q)
	}
	return c.objectContext(node, class.Type)
}

func (c *Codec) RPCInputContext(q dom.QName) (*DataObjectContext, error) {
	return c.rpcContext(q, c.loader.rpcInputs, func(rpc *schema.RPC) *schema.Node { return rpc.Input })
}

func (c *Codec) RPCOutputContext(q dom.QName) (*DataObjectContext, error) {
	return c.rpcContext(q, c.loader.rpcOutputs, func(rpc *schema.RPC) *schema.Node { return rpc.Output })
}

func (c *Codec) rpcContext(q dom.QName, classes map[dom.QName]*Class, part func(*schema.RPC) *schema.Node) (*DataObjectContext, error) {
	rpc := c.schema.RPC(q)
	if rpc == nil {
		return nil, missingTopLevel(c, "rpc", q)
	}
	node := part(rpc)
	if node == nil {
		return nil, codecErrf(ErrIncorrectNesting, "/"+q.Local, nil, "rpc %v has no such part", q)
	}
	class := classes[q]
	if class == nil {
		return nil, codecErrf(ErrMissingClass, node.SchemaPath(), nil, "no class for %s of rpc %v", node.Kind, q)
	}
	return c.objectContext(node, class.Type)
}

func (c *Codec) objectContext(node *schema.Node, t reflect.Type) (*DataObjectContext, error) {
	ctx, err := c.prototype(node, t).get()
	if err != nil {
		return nil, err
	}
	return ctx.(*DataObjectContext), nil
}

func missingTopLevel(c *Codec, what string, q dom.QName) error {
	if c.schema.ModuleByNamespace(q.Namespace) == nil {
		return codecErrf(ErrMissingSchema, "/", nil, "no module for %s %v", what, q)
	}
	return codecErrf(ErrIncorrectNesting, "/", nil, "no %s %v", what, q)
}

// ToNormalizedNotification converts a notification object, a pointer to a
// registered notification class.
func (c *Codec) ToNormalizedNotification(obj any) (*dom.ContainerNode, error) {
	t := reflect.TypeOf(obj)
	if t == nil || t.Kind() != reflect.Pointer {
		return nil, codecErrf(ErrIncorrectNesting, "/", nil, "expected a notification pointer, got %T", obj)
	}
	class := c.loader.classes[t.Elem()]
	if class == nil {
		return nil, codecErrf(ErrMissingClass, "/", nil, "class %v is not loaded", t.Elem())
	}
	if class.kind != classNotification {
		return nil, codecErrf(ErrIncorrectNesting, "/", nil, "%s is not a notification", class.Name)
	}
	ctx, err := c.NotificationContext(class.QName)
	if err != nil {
		return nil, err
	}
	n, err := ctx.Serialize(obj)
	if err != nil {
		return nil, err
	}
	return n.(*dom.ContainerNode), nil
}

func (c *Codec) FromNormalizedNotification(n *dom.ContainerNode) (any, error) {
	ctx, err := c.NotificationContext(n.ID.QName)
	if err != nil {
		return nil, err
	}
	return ctx.Deserialize(n)
}
