package bindom

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/schema"
)

// LeafContext binds a leaf or leaf-list to the Go type of its field.
type LeafContext struct {
	c    *Codec
	node *schema.Node
	// typ is the field type; elem is the value type the codec works on,
	// with pointers and the leaf-list slice stripped.
	typ   reflect.Type
	elem  reflect.Type
	codec valueCodec
	arg   dom.NodeIdentifier

	def    reflect.Value
	hasDef bool
}

func (c *Codec) newLeafContext(node *schema.Node, typ reflect.Type) (*LeafContext, error) {
	elem := typ
	if node.Kind == schema.KindLeafList {
		if typ.Kind() != reflect.Slice {
			return nil, codecErrf(ErrUnsupported, node.SchemaPath(), nil, "leaf-list needs a slice, got %v", typ)
		}
		elem = typ.Elem()
	} else if typ.Kind() == reflect.Pointer {
		elem = typ.Elem()
	}
	codec, err := c.valueCodec(node, node.Type, elem, nil)
	if err != nil {
		return nil, wrapPath(err, node)
	}
	ctx := &LeafContext{
		c:     c,
		node:  node,
		typ:   typ,
		elem:  elem,
		codec: codec,
		arg:   dom.NodeIdentifier{QName: node.QName},
	}
	if node.Kind == schema.KindLeaf {
		ctx.def, ctx.hasDef = ctx.computeDefault()
	}
	return ctx, nil
}

// computeDefault parses the effective default with the prefixes of the
// module that declared it. A default that cannot be represented (unknown
// prefix, unloaded identity) leaves the leaf without one.
func (ctx *LeafContext) computeDefault() (reflect.Value, bool) {
	s, m, ok := ctx.node.EffectiveDefault()
	if !ok {
		return reflect.Value{}, false
	}
	dv, err := ctx.c.schema.ParseLexical(ctx.node, ctx.node.Type, s, m)
	if err == nil {
		var v reflect.Value
		v, err = ctx.codec.deserialize(dv)
		if err == nil {
			return v, true
		}
	}
	ctx.c.logger.LogAttrs(context.Background(), slog.LevelDebug, "bindom: default not representable", slog.String("node", ctx.node.SchemaPath()), slog.String("default", s), slog.Any("err", err))
	return reflect.Value{}, false
}

func (*LeafContext) isCodecContext() {}

func (ctx *LeafContext) Kind() schema.Kind             { return ctx.node.Kind }
func (ctx *LeafContext) Schema() *schema.Node           { return ctx.node }
func (ctx *LeafContext) PathArgument() dom.PathArgument { return ctx.arg }
func (ctx *LeafContext) Class() *Class                  { return nil }

// DefaultValue returns the leaf's default as a value of the bound type.
func (ctx *LeafContext) DefaultValue() (any, bool) {
	if !ctx.hasDef {
		return nil, false
	}
	return ctx.def.Interface(), true
}

func (ctx *LeafContext) StreamChild(t reflect.Type) (CodecContext, error) {
	return nil, codecErrf(ErrUnsupported, ctx.node.SchemaPath(), nil, "leaf has no children")
}

func (ctx *LeafContext) YangChild(arg dom.PathArgument) (CodecContext, error) {
	return nil, codecErrf(ErrUnsupported, ctx.node.SchemaPath(), nil, "leaf has no children")
}

// Serialize converts a value of the field type to a leaf or leaf-set node.
func (ctx *LeafContext) Serialize(obj any) (dom.Node, error) {
	return buildNode(func(w dom.StreamWriter) error {
		return ctx.WriteTo(obj, w)
	})
}

func (ctx *LeafContext) WriteTo(obj any, w dom.StreamWriter) error {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || (v.Type() != ctx.typ && v.Type() != ctx.elem) {
		return codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "expected %v, got %T", ctx.typ, obj)
	}
	if v.Type() == ctx.elem && ctx.node.Kind == schema.KindLeaf {
		return ctx.writeElem(v, w)
	}
	return ctx.writeValue(v, w)
}

// writeValue streams a non-zero field value.
func (ctx *LeafContext) writeValue(fv reflect.Value, w dom.StreamWriter) error {
	if ctx.node.Kind == schema.KindLeafList {
		if err := w.StartLeafSet(ctx.arg); err != nil {
			return err
		}
		for i := range fv.Len() {
			dv, err := ctx.toDOM(fv.Index(i))
			if err != nil {
				return err
			}
			if err := w.LeafSetEntry(dom.NodeWithValue{QName: ctx.node.QName, Value: dv}); err != nil {
				return err
			}
		}
		return w.EndNode()
	}
	if fv.Kind() == reflect.Pointer && fv.Type() == ctx.typ {
		if fv.IsNil() {
			return nil
		}
		fv = fv.Elem()
	}
	return ctx.writeElem(fv, w)
}

func (ctx *LeafContext) writeElem(v reflect.Value, w dom.StreamWriter) error {
	if _, ok := ctx.codec.(emptyCodec); ok && !v.Bool() {
		return nil
	}
	dv, err := ctx.toDOM(v)
	if err != nil {
		return err
	}
	return w.Leaf(ctx.arg, dv)
}

func (ctx *LeafContext) toDOM(v reflect.Value) (any, error) {
	dv, err := ctx.codec.serialize(v)
	if err != nil {
		return nil, wrapPath(err, ctx.node)
	}
	return dv, nil
}

func (ctx *LeafContext) fromDOM(dv any) (reflect.Value, error) {
	v, err := ctx.codec.deserialize(dv)
	if err != nil {
		return reflect.Value{}, wrapPath(err, ctx.node)
	}
	return v, nil
}

// Deserialize returns a value of the field type.
func (ctx *LeafContext) Deserialize(n dom.Node) (any, error) {
	v, err := ctx.readValue(n)
	if err != nil {
		return nil, err
	}
	if ctx.typ.Kind() == reflect.Pointer && ctx.node.Kind == schema.KindLeaf {
		p := reflect.New(ctx.elem)
		p.Elem().Set(v)
		return p.Interface(), nil
	}
	return v.Interface(), nil
}

// readValue returns the element value of a leaf, or the slice of a
// leaf-set.
func (ctx *LeafContext) readValue(n dom.Node) (reflect.Value, error) {
	switch n := n.(type) {
	case *dom.LeafNode:
		if ctx.node.Kind != schema.KindLeaf || n.ID.QName != ctx.node.QName {
			return reflect.Value{}, nodeTypeErr(ctx.node, n)
		}
		return ctx.fromDOM(n.Value)
	case *dom.LeafSetNode:
		if ctx.node.Kind != schema.KindLeafList || n.ID.QName != ctx.node.QName {
			return reflect.Value{}, nodeTypeErr(ctx.node, n)
		}
		out := reflect.MakeSlice(ctx.typ, 0, len(n.Entries))
		for _, e := range n.Entries {
			v, err := ctx.fromDOM(e.ID.Value)
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	default:
		return reflect.Value{}, nodeTypeErr(ctx.node, n)
	}
}

// OpaqueContext binds anydata and anyxml nodes to *Opaque. Their content
// is carried without interpretation, so they cannot be deserialized into
// typed objects beyond the envelope.
type OpaqueContext struct {
	node *schema.Node
	arg  dom.NodeIdentifier
}

func (*OpaqueContext) isCodecContext() {}

func (ctx *OpaqueContext) Kind() schema.Kind             { return ctx.node.Kind }
func (ctx *OpaqueContext) Schema() *schema.Node           { return ctx.node }
func (ctx *OpaqueContext) PathArgument() dom.PathArgument { return ctx.arg }
func (ctx *OpaqueContext) Class() *Class                  { return nil }

func (ctx *OpaqueContext) StreamChild(t reflect.Type) (CodecContext, error) {
	return nil, codecErrf(ErrUnsupported, ctx.node.SchemaPath(), nil, "%s has no children", ctx.node.Kind)
}

func (ctx *OpaqueContext) YangChild(arg dom.PathArgument) (CodecContext, error) {
	return nil, codecErrf(ErrUnsupported, ctx.node.SchemaPath(), nil, "%s has no children", ctx.node.Kind)
}

func (ctx *OpaqueContext) Serialize(obj any) (dom.Node, error) {
	return buildNode(func(w dom.StreamWriter) error {
		return ctx.WriteTo(obj, w)
	})
}

func (ctx *OpaqueContext) WriteTo(obj any, w dom.StreamWriter) error {
	o, ok := obj.(*Opaque)
	if !ok || o == nil {
		return codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "expected *Opaque, got %T", obj)
	}
	return w.Anydata(ctx.arg, o.Body, ctx.node.Kind == schema.KindAnyxml)
}

func (ctx *OpaqueContext) Deserialize(n dom.Node) (any, error) {
	return nil, codecErrf(ErrUnsupported, ctx.node.SchemaPath(), nil, "%s content cannot be deserialized", ctx.node.Kind)
}

// readOpaque unwraps an anydata node found among the children of a data
// object.
func (ctx *OpaqueContext) readOpaque(n dom.Node) (*Opaque, error) {
	an, ok := n.(*dom.AnydataNode)
	if !ok || an.ID.QName != ctx.node.QName {
		return nil, nodeTypeErr(ctx.node, n)
	}
	return &Opaque{Body: an.Body, XML: an.XML}, nil
}
