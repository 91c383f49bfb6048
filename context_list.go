package bindom

import (
	"reflect"
	"sync"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/schema"
)

// ListContext binds a list. Entries are handled by the wrapped entry
// context; keyed lists also carry the key codec.
type ListContext struct {
	c     *Codec
	node  *schema.Node
	entry *DataObjectContext
	arg   dom.NodeIdentifier
	keys  func() (*keyCodec, error)
}

func (c *Codec) newListContext(node *schema.Node, class *Class) (*ListContext, error) {
	keyed := node.IsKeyed()
	switch {
	case keyed && class.key == nil:
		return nil, codecErrf(ErrIncorrectNesting, node.SchemaPath(), nil, "keyed list bound to %s, which has no key class", class.Name)
	case !keyed && class.key != nil:
		return nil, codecErrf(ErrIncorrectNesting, node.SchemaPath(), nil, "unkeyed list bound to keyed %s", class.Name)
	}
	ctx := &ListContext{
		c:     c,
		node:  node,
		entry: c.newDataObjectContext(node, class),
		arg:   dom.NodeIdentifier{QName: node.QName},
	}
	if keyed {
		ctx.keys = sync.OnceValues(ctx.buildKeyCodec)
	}
	return ctx, nil
}

func (*ListContext) isCodecContext() {}

func (ctx *ListContext) Kind() schema.Kind             { return schema.KindList }
func (ctx *ListContext) Schema() *schema.Node           { return ctx.node }
func (ctx *ListContext) PathArgument() dom.PathArgument { return ctx.arg }
func (ctx *ListContext) Class() *Class                  { return ctx.entry.class }

// Keyed reports whether entries are identified by key.
func (ctx *ListContext) Keyed() bool { return ctx.keys != nil }

// Entry returns the context of a single list entry.
func (ctx *ListContext) Entry() *DataObjectContext { return ctx.entry }

func (ctx *ListContext) StreamChild(t reflect.Type) (CodecContext, error) {
	return ctx.entry.StreamChild(t)
}

// YangChild resolves children of entries. The entry identifier of a keyed
// list resolves to the list itself.
func (ctx *ListContext) YangChild(arg dom.PathArgument) (CodecContext, error) {
	if nip, ok := arg.(dom.NodeIdentifierWithPredicates); ok && nip.QName == ctx.node.QName {
		if !ctx.Keyed() {
			return nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "unkeyed list has no entry predicates")
		}
		return ctx, nil
	}
	return ctx.entry.YangChild(arg)
}

// Serialize accepts an entry pointer, producing an entry node, or a slice
// of entry pointers, producing the list node.
func (ctx *ListContext) Serialize(obj any) (dom.Node, error) {
	return buildNode(func(w dom.StreamWriter) error {
		return ctx.WriteTo(obj, w)
	})
}

func (ctx *ListContext) WriteTo(obj any, w dom.StreamWriter) error {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Slice && v.Type().Elem() == reflect.PointerTo(ctx.entry.class.Type) {
		return ctx.writeEntries(v, w)
	}
	ev, err := objValue(obj, ctx.entry.class.Type)
	if err != nil {
		return err
	}
	return ctx.writeEntry(ev, w)
}

func (ctx *ListContext) writeEntries(v reflect.Value, w dom.StreamWriter) error {
	var err error
	if ctx.Keyed() {
		err = w.StartMap(ctx.arg, ctx.node.Ordered)
	} else {
		err = w.StartUnkeyedList(ctx.arg)
	}
	if err != nil {
		return err
	}
	for i := range v.Len() {
		ev := v.Index(i)
		if ev.IsNil() {
			return codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "nil entry %d", i)
		}
		if err := ctx.writeEntry(ev.Elem(), w); err != nil {
			return err
		}
	}
	return w.EndNode()
}

func (ctx *ListContext) writeEntry(ev reflect.Value, w dom.StreamWriter) error {
	var keys *dom.NodeIdentifierWithPredicates
	if ctx.Keyed() {
		kc, err := ctx.keys()
		if err != nil {
			return err
		}
		nip, err := kc.identifierOf(ev)
		if err != nil {
			return err
		}
		if err := w.StartMapEntry(nip); err != nil {
			return err
		}
		keys = &nip
	} else if err := w.StartUnkeyedListItem(ctx.arg); err != nil {
		return err
	}
	if err := ctx.entry.writeChildren(ev, keys, w); err != nil {
		return err
	}
	return w.EndNode()
}

// Deserialize accepts an entry node, returning an entry pointer, or the
// list node, returning a slice of entry pointers.
func (ctx *ListContext) Deserialize(n dom.Node) (any, error) {
	switch n := n.(type) {
	case *dom.MapEntryNode, *dom.UnkeyedListEntryNode:
		ev, err := ctx.readEntry(n)
		if err != nil {
			return nil, err
		}
		return ev.Interface(), nil
	default:
		entries, err := ctx.readEntries(n)
		if err != nil {
			return nil, err
		}
		return entries.Interface(), nil
	}
}

func (ctx *ListContext) readEntries(n dom.Node) (reflect.Value, error) {
	var entries []dom.Node
	switch n := n.(type) {
	case *dom.MapNode:
		if !ctx.Keyed() || n.ID.QName != ctx.node.QName {
			return reflect.Value{}, nodeTypeErr(ctx.node, n)
		}
		for _, e := range n.Entries {
			entries = append(entries, e)
		}
	case *dom.UnkeyedListNode:
		if ctx.Keyed() || n.ID.QName != ctx.node.QName {
			return reflect.Value{}, nodeTypeErr(ctx.node, n)
		}
		for _, e := range n.Entries {
			entries = append(entries, e)
		}
	default:
		return reflect.Value{}, nodeTypeErr(ctx.node, n)
	}
	out := reflect.MakeSlice(reflect.SliceOf(reflect.PointerTo(ctx.entry.class.Type)), 0, len(entries))
	for _, e := range entries {
		ev, err := ctx.readEntry(e)
		if err != nil {
			return reflect.Value{}, err
		}
		out = reflect.Append(out, ev)
	}
	return out, nil
}

func (ctx *ListContext) readEntry(n dom.Node) (reflect.Value, error) {
	var children []dom.Node
	switch n := n.(type) {
	case *dom.MapEntryNode:
		if !ctx.Keyed() || n.ID.QName != ctx.node.QName {
			return reflect.Value{}, nodeTypeErr(ctx.node, n)
		}
		children = n.Children
	case *dom.UnkeyedListEntryNode:
		if ctx.Keyed() || n.ID.QName != ctx.node.QName {
			return reflect.Value{}, nodeTypeErr(ctx.node, n)
		}
		children = n.Children
	default:
		return reflect.Value{}, nodeTypeErr(ctx.node, n)
	}
	ev := reflect.New(ctx.entry.class.Type)
	if err := ctx.entry.readChildren(children, ev.Elem()); err != nil {
		return reflect.Value{}, err
	}
	return ev, nil
}

// KeyIdentifier converts a key value to the entry identifier.
func (ctx *ListContext) KeyIdentifier(key any) (dom.NodeIdentifierWithPredicates, error) {
	if !ctx.Keyed() {
		return dom.NodeIdentifierWithPredicates{}, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "unkeyed list has no keys")
	}
	kc, err := ctx.keys()
	if err != nil {
		return dom.NodeIdentifierWithPredicates{}, err
	}
	kv := reflect.ValueOf(key)
	if !kv.IsValid() || kv.Type() != kc.typ {
		return dom.NodeIdentifierWithPredicates{}, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "expected key %v, got %T", kc.typ, key)
	}
	return kc.serialize(kv)
}

// KeyOf converts an entry identifier to a key value.
func (ctx *ListContext) KeyOf(nip dom.NodeIdentifierWithPredicates) (any, error) {
	if !ctx.Keyed() {
		return nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "unkeyed list has no keys")
	}
	kc, err := ctx.keys()
	if err != nil {
		return nil, err
	}
	if nip.QName != ctx.node.QName {
		return nil, codecErrf(ErrIncorrectNesting, ctx.node.SchemaPath(), nil, "%v does not identify an entry of %v", nip, ctx.node.QName)
	}
	kv, err := kc.deserialize(nip)
	if err != nil {
		return nil, err
	}
	return kv.Interface(), nil
}

// keyCodec converts between key class values and entry identifiers.
type keyCodec struct {
	typ    reflect.Type
	fields []keyField
}

// keyField binds one key leaf, in schema key order.
type keyField struct {
	q     dom.QName
	key   []int
	entry []int
	leaf  *LeafContext
}

func (ctx *ListContext) buildKeyCodec() (*keyCodec, error) {
	class := ctx.entry.class
	kc := &keyCodec{typ: class.key}
	ki := ctx.c.structInfo(class.key)
	for _, q := range ctx.node.Keys {
		leafNode := ctx.node.Child(q)
		fi := ki.matchField(q.Local, isBoolCategory(leafNode.Type))
		if fi == nil {
			return nil, codecErrf(ErrIncorrectNesting, leafNode.SchemaPath(), nil, "key class %v has no field for %v", class.key, q)
		}
		ef, ok := class.Type.FieldByName(fi.Name)
		if !ok {
			return nil, codecErrf(ErrIncorrectNesting, leafNode.SchemaPath(), nil, "%s has no key field %s", class.Name, fi.Name)
		}
		lc, err := ctx.c.prototype(leafNode, fi.Type).get()
		if err != nil {
			return nil, err
		}
		kc.fields = append(kc.fields, keyField{q: q, key: fi.Index, entry: ef.Index, leaf: lc.(*LeafContext)})
	}
	return kc, nil
}

func (kc *keyCodec) serialize(kv reflect.Value) (dom.NodeIdentifierWithPredicates, error) {
	nip := dom.NodeIdentifierWithPredicates{Keys: make([]dom.KeyValue, 0, len(kc.fields))}
	for _, kf := range kc.fields {
		fv := kv.FieldByIndex(kf.key)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				return nip, codecErrf(ErrIncorrectNesting, kf.leaf.node.SchemaPath(), nil, "key %v is nil", kf.q)
			}
			fv = fv.Elem()
		}
		dv, err := kf.leaf.codec.serialize(fv)
		if err != nil {
			return nip, wrapPath(err, kf.leaf.node)
		}
		nip.Keys = append(nip.Keys, dom.KeyValue{Key: kf.q, Value: dv})
	}
	nip.QName = kc.fields[0].leaf.node.Parent.QName
	return nip, nil
}

func (kc *keyCodec) deserialize(nip dom.NodeIdentifierWithPredicates) (reflect.Value, error) {
	if nip.Len() != len(kc.fields) {
		return reflect.Value{}, codecErrf(ErrIncorrectNesting, "", nil, "%v has %d keys, wanted %d", nip, nip.Len(), len(kc.fields))
	}
	kv := reflect.New(kc.typ).Elem()
	for _, kf := range kc.fields {
		dv, ok := nip.Get(kf.q)
		if !ok {
			return reflect.Value{}, codecErrf(ErrIncorrectNesting, kf.leaf.node.SchemaPath(), nil, "%v lacks key %v", nip, kf.q)
		}
		val, err := kf.leaf.codec.deserialize(dv)
		if err != nil {
			return reflect.Value{}, wrapPath(err, kf.leaf.node)
		}
		setField(kv.FieldByIndex(kf.key), val)
	}
	return kv, nil
}

// identifierOf returns the entry identifier built from the key fields of the
// entry ev.
func (kc *keyCodec) identifierOf(ev reflect.Value) (dom.NodeIdentifierWithPredicates, error) {
	kv := reflect.New(kc.typ).Elem()
	for _, kf := range kc.fields {
		kv.FieldByIndex(kf.key).Set(ev.FieldByIndex(kf.entry))
	}
	return kc.serialize(kv)
}
