package bindom

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/schema"
)

var cmpTypes = cmp.Comparer(func(a, b reflect.Type) bool { return a == b })

func nid(q dom.QName) dom.NodeIdentifier { return dom.NodeIdentifier{QName: q} }

func nip(q dom.QName, kvs ...any) dom.NodeIdentifierWithPredicates {
	id := dom.NodeIdentifierWithPredicates{QName: q}
	for i := 0; i < len(kvs); i += 2 {
		id.Keys = append(id.Keys, dom.KeyValue{Key: kvs[i].(dom.QName), Value: kvs[i+1]})
	}
	return id
}

func topExtID() dom.AugmentationIdentifier {
	return dom.NewAugmentationIdentifier(eq("extra"), eq("ext-kind"), eq("own-kind"))
}

func TestPaths(t *testing.T) {
	c := testCodec(t)
	tests := []struct {
		name string
		ii   InstanceIdentifier
		dom  dom.Path
	}{
		{"container", Path(ItemOf[Top]()), dom.NewPath(nid(bq("top")))},
		{"nested container", Path(ItemOf[Top](), ItemOf[Sub]()), dom.NewPath(nid(bq("top")), nid(bq("sub")))},
		{"keyed entry", Path(ItemOf[Top](), KeyedItemOf[ListItem](ItemKey{7})), dom.NewPath(nid(bq("top")), nid(bq("item")), nip(bq("item"), bq("id"), uint32(7)))},
		{"keyed wildcard", Path(ItemOf[Top](), ItemOf[ListItem]()), dom.NewPath(nid(bq("top")), nid(bq("item")))},
		{"unkeyed list", Path(ItemOf[Top](), ItemOf[Entry]()), dom.NewPath(nid(bq("top")), nid(bq("entry")))},
		{"augmentation", Path(ItemOf[Top](), ItemOf[TopExt]()), dom.NewPath(nid(bq("top")), topExtID())},
		{"composite key", Path(KeyedItemOf[Peer](PeerKey{"h", 830})), dom.NewPath(nid(bq("peer")), nip(bq("peer"), bq("host"), "h", bq("port"), uint16(830)))},
		{"base case", Path(ItemOf[Cont](), CaseItemOf[ContBase, GrpCont]()), dom.NewPath(nid(bq("cont")), nid(bq("ch")), nid(bq("grp-cont")))},
		{"augmented case", Path(ItemOf[Cont](), CaseItemOf[ContAug, GrpCont]()), dom.NewPath(nid(bq("cont")), nid(bq("ch")), nid(eq("grp-cont")))},
		{"nested choice", Path(ItemOf[Shelf](), CaseItemOf[Paper, Gift]()), dom.NewPath(nid(bq("shelf")), nid(bq("slot")), nid(bq("wrap")), nid(bq("gift")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, err := c.ToDOMPath(tt.ii)
			if err != nil {
				t.Fatalf("** ToDOMPath(%v) failed: %v", tt.ii, err)
			}
			if !p.Equal(tt.dom) {
				t.Errorf("** ToDOMPath(%v) = %v, wanted %v", tt.ii, p, tt.dom)
			}
			ii, err := c.FromDOMPath(tt.dom)
			if err != nil {
				t.Fatalf("** FromDOMPath(%v) failed: %v", tt.dom, err)
			}
			if !ii.Equal(tt.ii) {
				t.Errorf("** FromDOMPath(%v) = %v, wanted %v", tt.dom, ii, tt.ii)
			}
		})
	}
}

func TestPaths_legacyTieBreak(t *testing.T) {
	c := testCodec(t)
	ii := Path(ItemOf[Cont](), ItemOf[GrpCont]())
	p, ctx, err := c.ToDOMPath(ii)
	if err != nil {
		t.Fatalf("** ToDOMPath(%v) failed: %v", ii, err)
	}
	// ContAug sorts before ContBase
	want := dom.NewPath(nid(bq("cont")), nid(bq("ch")), nid(eq("grp-cont")))
	if !p.Equal(want) {
		t.Errorf("** ToDOMPath(%v) = %v, wanted %v", ii, p, want)
	}
	if ctx.Schema().QName != eq("grp-cont") {
		t.Errorf("** context schema = %v, wanted %v", ctx.Schema().QName, eq("grp-cont"))
	}

	back, err := c.FromDOMPath(p)
	if err != nil {
		t.Fatalf("** FromDOMPath(%v) failed: %v", p, err)
	}
	wantII := Path(ItemOf[Cont](), CaseItemOf[ContAug, GrpCont]())
	if !back.Equal(wantII) {
		t.Errorf("** FromDOMPath(%v) = %v, wanted %v", p, back, wantII)
	}

	cont, err := c.Root().StreamChild(reflect.TypeFor[Cont]())
	if err != nil {
		t.Fatal(err)
	}
	legacy, err := cont.(*DataObjectContext).LegacyChild("grp-cont")
	if err != nil {
		t.Fatalf("** LegacyChild failed: %v", err)
	}
	if legacy != ctx {
		t.Errorf("** LegacyChild = %v, wanted the context resolved by ToDOMPath", legacy.Schema())
	}
}

func TestPaths_nestedChoiceLegacy(t *testing.T) {
	c := testCodec(t)
	want := dom.NewPath(nid(bq("shelf")), nid(bq("slot")), nid(bq("wrap")), nid(bq("gift")))
	ii := Path(ItemOf[Shelf](), ItemOf[Gift]())
	p, ctx, err := c.ToDOMPath(ii)
	if err != nil {
		t.Fatalf("** ToDOMPath(%v) failed: %v", ii, err)
	}
	if !p.Equal(want) {
		t.Errorf("** ToDOMPath(%v) = %v, wanted %v", ii, p, want)
	}
	if ctx.Schema().QName != bq("gift") {
		t.Errorf("** context schema = %v, wanted %v", ctx.Schema().QName, bq("gift"))
	}

	back, leaf, err := c.ResolveDOMPath(append(want, nid(bq("note"))))
	if err != nil {
		t.Fatal(err)
	}
	if wantII := Path(ItemOf[Shelf](), CaseItemOf[Paper, Gift]()); !back.Equal(wantII) {
		t.Errorf("** ResolveDOMPath = %v, wanted %v", back, wantII)
	}
	if leaf.Kind() != schema.KindLeaf {
		t.Errorf("** ResolveDOMPath kind = %v, wanted leaf", leaf.Kind())
	}

	for _, bad := range []InstanceIdentifier{
		Path(ItemOf[Shelf](), CaseItemOf[Boxed, Gift]()),
		Path(ItemOf[Top](), CaseItemOf[Paper, Gift]()),
	} {
		if _, _, err := c.ToDOMPath(bad); !errors.Is(err, ErrIncorrectNesting) {
			t.Errorf("** ToDOMPath(%v) error = %v, wanted %v", bad, err, ErrIncorrectNesting)
		}
	}
}

type Unregistered struct{}

func TestPaths_errors(t *testing.T) {
	c := testCodec(t)
	typed := []struct {
		name string
		ii   InstanceIdentifier
		kind error
	}{
		{"nested class at top", Path(ItemOf[Sub]()), ErrIncorrectNesting},
		{"wrong parent", Path(ItemOf[Top](), ItemOf[Peer]()), ErrIncorrectNesting},
		{"unregistered", Path(ItemOf[Top](), ItemOf[Unregistered]()), ErrMissingClass},
		{"key on container", Path(ItemOf[Top](), KeyedItemOf[Sub](ItemKey{1})), ErrIncorrectNesting},
		{"wrong key type", Path(ItemOf[Top](), KeyedItemOf[ListItem](PeerKey{})), ErrIncorrectNesting},
		{"case of other choice", Path(ItemOf[Top](), CaseItemOf[ContBase, GrpCont]()), ErrIncorrectNesting},
	}
	for _, tt := range typed {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := c.ToDOMPath(tt.ii)
			if !errors.Is(err, tt.kind) {
				t.Errorf("** ToDOMPath(%v) error = %v, wanted %v", tt.ii, err, tt.kind)
			}
		})
	}

	generic := []struct {
		name string
		p    dom.Path
		kind error
	}{
		{"ends in choice", dom.NewPath(nid(bq("top")), nid(bq("proto"))), ErrIncorrectNesting},
		{"ends in leaf", dom.NewPath(nid(bq("top")), nid(bq("name"))), ErrIncorrectNesting},
		{"ends in anydata", dom.NewPath(nid(bq("top")), nid(bq("blob"))), ErrIncorrectNesting},
		{"below leaf", dom.NewPath(nid(bq("top")), nid(bq("name")), nid(bq("x"))), ErrUnsupported},
		{"below anydata", dom.NewPath(nid(bq("top")), nid(bq("blob")), nid(bq("x"))), ErrUnsupported},
		{"unknown child", dom.NewPath(nid(bq("top")), nid(bq("nope"))), ErrIncorrectNesting},
		{"unknown module", dom.NewPath(nid(dom.NewQName("urn:nope", "", "top"))), ErrMissingSchema},
		{"missing entry key", dom.NewPath(nid(bq("top")), nid(bq("item")), nip(bq("item"))), ErrIncorrectNesting},
		{"list not followed by entry", dom.NewPath(nid(bq("top")), nid(bq("item")), nid(bq("label"))), ErrIncorrectNesting},
		{"wrong key value type", dom.NewPath(nid(bq("top")), nid(bq("item")), nip(bq("item"), bq("id"), "7")), ErrIncorrectNesting},
	}
	for _, tt := range generic {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.FromDOMPath(tt.p)
			if !errors.Is(err, tt.kind) {
				t.Errorf("** FromDOMPath(%v) error = %v, wanted %v", tt.p, err, tt.kind)
			}
		})
	}
}

func TestResolveDOMPath_terminals(t *testing.T) {
	c := testCodec(t)
	tests := []struct {
		p    dom.Path
		kind schema.Kind
	}{
		{dom.NewPath(nid(bq("top")), nid(bq("name"))), schema.KindLeaf},
		{dom.NewPath(nid(bq("top")), nid(bq("tags"))), schema.KindLeafList},
		{dom.NewPath(nid(bq("top")), nid(bq("tags")), dom.NodeWithValue{QName: bq("tags"), Value: "a"}), schema.KindLeafList},
		{dom.NewPath(nid(bq("top")), nid(bq("blob"))), schema.KindAnydata},
		{dom.NewPath(nid(bq("top")), nid(bq("proto")), nid(bq("port"))), schema.KindLeaf},
	}
	for _, tt := range tests {
		ii, ctx, err := c.ResolveDOMPath(tt.p)
		if err != nil {
			t.Errorf("** ResolveDOMPath(%v) failed: %v", tt.p, err)
			continue
		}
		if ctx.Kind() != tt.kind {
			t.Errorf("** ResolveDOMPath(%v) kind = %v, wanted %v", tt.p, ctx.Kind(), tt.kind)
		}
		if want := Path(ItemOf[Top]()); !ii.Equal(want) {
			t.Errorf("** ResolveDOMPath(%v) = %v, wanted %v", tt.p, ii, want)
		}
	}
}

func TestMissingSchemaVersusMissingClass(t *testing.T) {
	sc := testSchema(t)
	withoutExt := New(sc, testLoader().Without(reflect.TypeFor[TopExt](), reflect.TypeFor[Sub](), reflect.TypeFor[UDP]()), Options{Logger: testLogger(t)})

	_, err := withoutExt.FromDOMPath(dom.NewPath(nid(bq("top")), topExtID()))
	if !errors.Is(err, ErrMissingClass) {
		t.Errorf("** augmentation without class: %v, wanted %v", err, ErrMissingClass)
	}
	_, err = withoutExt.FromDOMPath(dom.NewPath(nid(bq("top")), nid(bq("sub"))))
	if !errors.Is(err, ErrMissingClass) {
		t.Errorf("** container without class: %v, wanted %v", err, ErrMissingClass)
	}
	_, err = withoutExt.FromDOMPath(dom.NewPath(nid(bq("top")), nid(bq("proto")), nid(eq("dport"))))
	if !errors.Is(err, ErrMissingClass) {
		t.Errorf("** case without class: %v, wanted %v", err, ErrMissingClass)
	}

	baseOnly, err := schema.Build(testModules()[0])
	if err != nil {
		t.Fatal(err)
	}
	oldSchema := New(baseOnly, testLoader(), Options{Logger: testLogger(t)})
	tests := []InstanceIdentifier{
		Path(ItemOf[Top](), ItemOf[TopExt]()),
		Path(ItemOf[Cont](), CaseItemOf[ContAug, GrpCont]()),
	}
	for _, ii := range tests {
		_, _, err := oldSchema.ToDOMPath(ii)
		if !errors.Is(err, ErrMissingSchema) {
			t.Errorf("** ToDOMPath(%v) on old schema: %v, wanted %v", ii, err, ErrMissingSchema)
		}
		if errors.Is(err, ErrMissingClass) {
			t.Errorf("** ToDOMPath(%v) on old schema also reports a missing class", ii)
		}
	}
	_, err = oldSchema.FromDOMPath(dom.NewPath(nid(bq("top")), nid(eq("extra"))))
	if !errors.Is(err, ErrMissingSchema) {
		t.Errorf("** FromDOMPath of unknown namespace: %v, wanted %v", err, ErrMissingSchema)
	}
}

func fullTop() *Top {
	top := &Top{
		Name:       "eth0",
		MTU:        ptr[uint16](9000),
		Enabled:    ptr(false),
		IsShutdown: true,
		Kind:       ptr(IfWifi),
		Speed:      ptr(SpeedFast),
		Ratio:      ptr(0.25),
		Flags:      &Flags{Up: true, Promisc: true},
		Data:       []byte{1, 2, 3},
		Target:     Path(ItemOf[Top](), KeyedItemOf[ListItem](ItemKey{2})),
		Addr:       &Addr{Str: ptr("example.org")},
		Tags:       []string{"a", "b"},
		Blob:       &Opaque{Body: map[string]any{"k": "v"}},
		Item: []*ListItem{
			{ID: 1, Label: "one", Ref: ptr("eth0")},
			{ID: 2},
		},
		Entry: []*Entry{{V: "x"}, {V: "y"}},
		Proto: &UDP{Dport: 53},
		Sub:   &Sub{X: -1},
	}
	top.Augmentations.Add(&TopExt{Extra: "e", OwnKind: ptr(IfEthernet)})
	return top
}

func TestRoundTrip(t *testing.T) {
	c := testCodec(t)
	tests := []struct {
		name string
		ii   InstanceIdentifier
		obj  any
	}{
		{"top", Path(ItemOf[Top]()), fullTop()},
		{"empty top", Path(ItemOf[Top]()), &Top{}},
		{"tcp case", Path(ItemOf[Top]()), &Top{Proto: &TCP{Port: 80}}},
		{"entry", Path(ItemOf[Top](), KeyedItemOf[ListItem](ItemKey{5})), &ListItem{ID: 5, Label: "five"}},
		{"all entries", Path(ItemOf[Top](), ItemOf[ListItem]()), []*ListItem{{ID: 1}, {ID: 2}}},
		{"unkeyed entries", Path(ItemOf[Top](), ItemOf[Entry]()), []*Entry{{V: "a"}}},
		{"augmentation", Path(ItemOf[Top](), ItemOf[TopExt]()), &TopExt{Extra: "x"}},
		{"peer", Path(KeyedItemOf[Peer](PeerKey{"h", 22})), &Peer{Host: "h", Port: 22}},
		{"grouping case", Path(ItemOf[Cont]()), &Cont{Ch: &ContBase{GrpCont: &GrpCont{Val: "v"}}}},
		{"nested choice", Path(ItemOf[Shelf]()), &Shelf{Slot: &Boxed{Wrap: &Paper{Gift: &Gift{Note: "n"}}}}},
		{"zero values", Path(ItemOf[Top]()), &Top{Item: []*ListItem{{}}, Proto: &TCP{}, Sub: &Sub{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, n, err := c.ToNormalizedNode(tt.ii, tt.obj)
			if err != nil {
				t.Fatalf("** ToNormalizedNode failed: %v", err)
			}
			ii, obj, err := c.FromNormalizedNode(p, n)
			if err != nil {
				t.Fatalf("** FromNormalizedNode failed: %v\n%s", err, dom.Dump(n))
			}
			if !ii.Equal(tt.ii) {
				t.Errorf("** path = %v, wanted %v", ii, tt.ii)
			}
			if diff := cmp.Diff(tt.obj, obj, cmpTypes); diff != "" {
				t.Errorf("** round trip mismatch (-wanted +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTrip_generic(t *testing.T) {
	c := testCodec(t)
	leaf := func(q dom.QName, v any) *dom.LeafNode { return &dom.LeafNode{ID: nid(q), Value: v} }
	itemKey := nip(bq("item"), bq("id"), uint32(0))
	peerKey := nip(bq("peer"), bq("host"), "", bq("port"), uint16(0))
	tests := []struct {
		name string
		p    dom.Path
		n    dom.Node
	}{
		{"zero leaves", dom.NewPath(nid(bq("top"))), &dom.ContainerNode{ID: nid(bq("top")), Children: []dom.Node{
			leaf(bq("name"), ""),
			leaf(bq("enabled"), false),
			&dom.MapNode{ID: nid(bq("item")), Entries: []*dom.MapEntryNode{
				{ID: itemKey, Children: []dom.Node{leaf(bq("id"), uint32(0)), leaf(bq("label"), "")}},
			}},
			&dom.ChoiceNode{ID: nid(bq("proto")), Children: []dom.Node{leaf(bq("port"), uint16(0))}},
			&dom.ContainerNode{ID: nid(bq("sub")), Children: []dom.Node{leaf(bq("x"), int32(0))}},
		}}},
		{"zero key", dom.NewPath(nid(bq("top")), nid(bq("item")), itemKey),
			&dom.MapEntryNode{ID: itemKey, Children: []dom.Node{leaf(bq("id"), uint32(0)), leaf(bq("label"), "")}}},
		{"zero composite key", dom.NewPath(nid(bq("peer")), peerKey),
			&dom.MapEntryNode{ID: peerKey, Children: []dom.Node{leaf(bq("host"), ""), leaf(bq("port"), uint16(0))}}},
		{"nested choice", dom.NewPath(nid(bq("shelf"))), &dom.ContainerNode{ID: nid(bq("shelf")), Children: []dom.Node{
			&dom.ChoiceNode{ID: nid(bq("slot")), Children: []dom.Node{
				&dom.ChoiceNode{ID: nid(bq("wrap")), Children: []dom.Node{
					&dom.ContainerNode{ID: nid(bq("gift")), Children: []dom.Node{leaf(bq("note"), "")}},
				}},
			}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ii, obj, err := c.FromNormalizedNode(tt.p, tt.n)
			if err != nil {
				t.Fatalf("** FromNormalizedNode failed: %v", err)
			}
			p, n, err := c.ToNormalizedNode(ii, obj)
			if err != nil {
				t.Fatalf("** ToNormalizedNode(%v) failed: %v", ii, err)
			}
			if !p.Equal(tt.p) {
				t.Errorf("** path = %v, wanted %v", p, tt.p)
			}
			if !dom.Equal(n, tt.n) {
				t.Errorf("** round trip =\n%s\nwanted\n%s", dom.Dump(n), dom.Dump(tt.n))
			}
		})
	}
}

func TestSerialize_shape(t *testing.T) {
	c := testCodec(t)
	top := &Top{
		Name:  "eth0",
		Tags:  []string{"a", "b"},
		Item:  []*ListItem{{ID: 1, Label: "x"}},
		Proto: &UDP{Dport: 53},
		Sub:   &Sub{X: -1},
	}
	top.Augmentations.Add(&TopExt{Extra: "e"})

	_, n, err := c.ToNormalizedNode(Path(ItemOf[Top]()), top)
	if err != nil {
		t.Fatal(err)
	}
	want := &dom.ContainerNode{ID: nid(bq("top")), Children: []dom.Node{
		&dom.LeafNode{ID: nid(bq("name")), Value: "eth0"},
		&dom.LeafSetNode{ID: nid(bq("tags")), Entries: []*dom.LeafSetEntryNode{
			{ID: dom.NodeWithValue{QName: bq("tags"), Value: "a"}},
			{ID: dom.NodeWithValue{QName: bq("tags"), Value: "b"}},
		}},
		&dom.MapNode{ID: nid(bq("item")), Entries: []*dom.MapEntryNode{
			{ID: nip(bq("item"), bq("id"), uint32(1)), Children: []dom.Node{
				&dom.LeafNode{ID: nid(bq("id")), Value: uint32(1)},
				&dom.LeafNode{ID: nid(bq("label")), Value: "x"},
			}},
		}},
		&dom.ChoiceNode{ID: nid(bq("proto")), Children: []dom.Node{
			&dom.LeafNode{ID: nid(eq("dport")), Value: uint16(53)},
		}},
		&dom.ContainerNode{ID: nid(bq("sub")), Children: []dom.Node{
			&dom.LeafNode{ID: nid(bq("x")), Value: int32(-1)},
		}},
		&dom.AugmentationNode{ID: topExtID(), Children: []dom.Node{
			&dom.LeafNode{ID: nid(eq("extra")), Value: "e"},
		}},
	}}
	if !dom.Equal(n, want) {
		t.Errorf("** Serialize =\n%s\nwanted\n%s", dom.Dump(n), dom.Dump(want))
	}
}

func TestLeafValues(t *testing.T) {
	c := testCodec(t)
	top := fullTop()
	_, n, err := c.ToNormalizedNode(Path(ItemOf[Top]()), top)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		local string
		want  any
	}{
		{"mtu", uint16(9000)},
		{"enabled", false},
		{"shutdown", dom.Empty{}},
		{"kind", eq("wifi")},
		{"speed", "fast"},
		{"ratio", dom.Decimal64{Unscaled: 25, Scale: 2}},
		{"flags", dom.Bits{"up", "promisc"}},
		{"data", []byte{1, 2, 3}},
		{"target", dom.NewPath(nid(bq("top")), nid(bq("item")), nip(bq("item"), bq("id"), uint32(2)))},
		{"addr", "example.org"},
	}
	for _, tt := range tests {
		leaf, ok := dom.Child(n, nid(bq(tt.local))).(*dom.LeafNode)
		if !ok {
			t.Errorf("** %s: no leaf", tt.local)
			continue
		}
		if !dom.ValueEqual(leaf.Value, tt.want) {
			t.Errorf("** %s = %v (%T), wanted %v (%T)", tt.local, leaf.Value, leaf.Value, tt.want, tt.want)
		}
	}
	if blob, ok := dom.Child(n, nid(bq("blob"))).(*dom.AnydataNode); !ok || blob.XML {
		t.Errorf("** blob = %v, wanted anydata", blob)
	}
}

func TestUnionMemberOrder(t *testing.T) {
	c := testCodec(t)
	_, ctx, err := c.ResolveDOMPath(dom.NewPath(nid(bq("top")), nid(bq("addr"))))
	if err != nil {
		t.Fatal(err)
	}
	// uint32 is declared first and wins for numeric values
	obj, err := ctx.Deserialize(&dom.LeafNode{ID: nid(bq("addr")), Value: uint32(42)})
	if err != nil {
		t.Fatal(err)
	}
	if a := obj.(*Addr); a.Num == nil || *a.Num != 42 || a.Str != nil {
		t.Errorf("** union from uint32 = %+v, wanted Num=42", a)
	}
	obj, err = ctx.Deserialize(&dom.LeafNode{ID: nid(bq("addr")), Value: "42"})
	if err != nil {
		t.Fatal(err)
	}
	if a := obj.(*Addr); a.Str == nil || *a.Str != "42" || a.Num != nil {
		t.Errorf("** union from string = %+v, wanted Str=42", a)
	}
	_, err = ctx.Deserialize(&dom.LeafNode{ID: nid(bq("addr")), Value: true})
	if !errors.Is(err, ErrIncorrectNesting) {
		t.Errorf("** union from bool: %v, wanted %v", err, ErrIncorrectNesting)
	}
}

type RefUnion struct {
	Num *uint32
	Str *string
}

type RefA struct {
	Target uint32
	Ref    *RefUnion
}

type RefB struct {
	Target uint8
	Ref    *RefUnion
}

func TestUnionLeafrefPerLeaf(t *testing.T) {
	const ns = "urn:lr"
	lq := func(local string) dom.QName { return dom.NewQName(ns, "", local) }
	shared := schema.UnionType(schema.LeafrefType("../target"), schema.StringType())
	m := schema.NewModule("lr", "lr", ns, "").Add(
		schema.Container("a",
			schema.Leaf("target", schema.BuiltinType(schema.Uint32)),
			schema.Leaf("ref", shared),
		),
		schema.Container("b",
			schema.Leaf("target", schema.BuiltinType(schema.Uint8)),
			schema.Leaf("ref", shared),
		),
	)
	sc, err := schema.Build(m)
	if err != nil {
		t.Fatal(err)
	}
	l := NewLoader()
	Register[RefA](l, lq("a"))
	Register[RefB](l, lq("b"))
	c := New(sc, l, Options{Logger: testLogger(t)})

	tests := []struct {
		ii   InstanceIdentifier
		obj  any
		want any
	}{
		{Path(ItemOf[RefA]()), &RefA{Target: 1, Ref: &RefUnion{Num: ptr[uint32](5)}}, uint32(5)},
		{Path(ItemOf[RefB]()), &RefB{Target: 1, Ref: &RefUnion{Num: ptr[uint32](5)}}, uint8(5)},
	}
	for _, tt := range tests {
		_, n, err := c.ToNormalizedNode(tt.ii, tt.obj)
		if err != nil {
			t.Fatalf("** ToNormalizedNode(%v) failed: %v", tt.ii, err)
		}
		leaf, ok := dom.Child(n, nid(lq("ref"))).(*dom.LeafNode)
		if !ok || leaf.Value != tt.want {
			t.Errorf("** %v ref =\n%s\nwanted value %v (%T)", tt.ii, dom.Dump(n), tt.want, tt.want)
		}
	}
}

func TestLeafDefaults(t *testing.T) {
	c := testCodec(t)
	tests := []struct {
		p    dom.Path
		want any
		ok   bool
	}{
		{dom.NewPath(nid(bq("top")), nid(bq("mtu"))), uint16(1500), true},
		{dom.NewPath(nid(bq("top")), nid(bq("kind"))), IfEthernet, true},
		{dom.NewPath(nid(bq("top")), nid(bq("other-kind"))), nil, false},
		{dom.NewPath(nid(bq("top")), topExtID(), nid(eq("ext-kind"))), IfEthernet, true},
		{dom.NewPath(nid(bq("top")), topExtID(), nid(eq("own-kind"))), IfWifi, true},
		{dom.NewPath(nid(bq("top")), nid(bq("name"))), nil, false},
	}
	for _, tt := range tests {
		_, ctx, err := c.ResolveDOMPath(tt.p)
		if err != nil {
			t.Errorf("** ResolveDOMPath(%v) failed: %v", tt.p, err)
			continue
		}
		v, ok := ctx.(*LeafContext).DefaultValue()
		if ok != tt.ok || v != tt.want {
			t.Errorf("** default of %v = %v, %v, wanted %v, %v", tt.p.Last(), v, ok, tt.want, tt.ok)
		}
	}
}

func TestTerminalContexts(t *testing.T) {
	c := testCodec(t)
	for _, local := range []string{"name", "blob"} {
		_, ctx, err := c.ResolveDOMPath(dom.NewPath(nid(bq("top")), nid(bq(local))))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ctx.StreamChild(reflect.TypeFor[Sub]()); !errors.Is(err, ErrUnsupported) {
			t.Errorf("** %s StreamChild: %v, wanted %v", local, err, ErrUnsupported)
		}
		if _, err := ctx.YangChild(nid(bq("x"))); !errors.Is(err, ErrUnsupported) {
			t.Errorf("** %s YangChild: %v, wanted %v", local, err, ErrUnsupported)
		}
	}

	_, ctx, err := c.ResolveDOMPath(dom.NewPath(nid(bq("top")), nid(bq("blob"))))
	if err != nil {
		t.Fatal(err)
	}
	n, err := ctx.Serialize(&Opaque{Body: "raw"})
	if err != nil {
		t.Fatal(err)
	}
	obj, err := ctx.Deserialize(n)
	if obj != nil || !errors.Is(err, ErrUnsupported) {
		t.Errorf("** opaque Deserialize = %v, %v, wanted %v", obj, err, ErrUnsupported)
	}
	_, _, err = c.FromNormalizedNode(dom.NewPath(nid(bq("top")), nid(bq("blob"))), n)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("** FromNormalizedNode of anydata: %v, wanted %v", err, ErrUnsupported)
	}
}

func TestDeserialize_errors(t *testing.T) {
	c := testCodec(t)
	p := dom.NewPath(nid(bq("top")))
	tests := []struct {
		name string
		n    dom.Node
		kind error
	}{
		{"wrong node type", &dom.LeafNode{ID: nid(bq("top")), Value: "x"}, ErrIncorrectNesting},
		{"wrong value type", &dom.ContainerNode{ID: nid(bq("top")), Children: []dom.Node{
			&dom.LeafNode{ID: nid(bq("name")), Value: 42},
		}}, ErrIncorrectNesting},
		{"unknown enum", &dom.ContainerNode{ID: nid(bq("top")), Children: []dom.Node{
			&dom.LeafNode{ID: nid(bq("speed")), Value: "warp"},
		}}, ErrIncorrectNesting},
		{"unregistered identity", &dom.ContainerNode{ID: nid(bq("top")), Children: []dom.Node{
			&dom.LeafNode{ID: nid(bq("kind")), Value: bq("iftype")},
		}}, ErrMissingClass},
		{"mixed cases", &dom.ContainerNode{ID: nid(bq("top")), Children: []dom.Node{
			&dom.ChoiceNode{ID: nid(bq("proto")), Children: []dom.Node{
				&dom.LeafNode{ID: nid(bq("port")), Value: uint16(1)},
				&dom.LeafNode{ID: nid(eq("dport")), Value: uint16(2)},
			}},
		}}, ErrIncorrectNesting},
		{"unknown namespace", &dom.ContainerNode{ID: nid(bq("top")), Children: []dom.Node{
			&dom.LeafNode{ID: nid(dom.NewQName("urn:nope", "", "x")), Value: "x"},
		}}, ErrMissingSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := c.FromNormalizedNode(p, tt.n)
			if !errors.Is(err, tt.kind) {
				t.Errorf("** FromNormalizedNode error = %v, wanted %v", err, tt.kind)
			}
		})
	}
}

func TestSerialize_errors(t *testing.T) {
	c := testCodec(t)
	type Stray struct{ A string }
	top := &Top{}
	top.Augmentations = Augmentations{reflect.TypeFor[Stray](): &Stray{}}
	_, _, err := c.ToNormalizedNode(Path(ItemOf[Top]()), top)
	if !errors.Is(err, ErrIncorrectNesting) {
		t.Errorf("** stray augmentation: %v, wanted %v", err, ErrIncorrectNesting)
	}

	_, _, err = c.ToNormalizedNode(Path(ItemOf[Top]()), &Top{Speed: ptr[Speed](99)})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("** bad enum value: %v, wanted %v", err, ErrUnsupported)
	}

	_, _, err = c.ToNormalizedNode(Path(ItemOf[Top]()), &Sub{})
	if !errors.Is(err, ErrIncorrectNesting) {
		t.Errorf("** wrong object type: %v, wanted %v", err, ErrIncorrectNesting)
	}
}

func TestNotificationsAndRPCs(t *testing.T) {
	c := testCodec(t)
	n, err := c.ToNormalizedNotification(&LinkDown{Name: "eth1"})
	if err != nil {
		t.Fatal(err)
	}
	if n.ID.QName != bq("link-down") {
		t.Errorf("** notification id = %v", n.ID)
	}
	obj, err := c.FromNormalizedNotification(n)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&LinkDown{Name: "eth1"}, obj); diff != "" {
		t.Errorf("** notification round trip (-wanted +got):\n%s", diff)
	}

	in, err := c.RPCInputContext(bq("reset"))
	if err != nil {
		t.Fatal(err)
	}
	inNode, err := in.Serialize(&ResetInput{Delay: 5})
	if err != nil {
		t.Fatal(err)
	}
	want := &dom.ContainerNode{ID: nid(bq("input")), Children: []dom.Node{
		&dom.LeafNode{ID: nid(bq("delay")), Value: uint32(5)},
	}}
	if !dom.Equal(inNode, want) {
		t.Errorf("** rpc input =\n%s\nwanted\n%s", dom.Dump(inNode), dom.Dump(want))
	}
	out, err := c.RPCOutputContext(bq("reset"))
	if err != nil {
		t.Fatal(err)
	}
	outNode, err := out.Serialize(&ResetOutput{OK: true})
	if err != nil {
		t.Fatal(err)
	}
	back, err := out.Deserialize(outNode)
	if err != nil {
		t.Fatal(err)
	}
	if r := back.(*ResetOutput); !r.OK {
		t.Errorf("** rpc output round trip = %+v", r)
	}
	outNode, err = out.Serialize(&ResetOutput{})
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := dom.Child(outNode, nid(bq("ok"))).(*dom.LeafNode); ok == nil || ok.Value != false {
		t.Errorf("** rpc output with ok=false =\n%s", dom.Dump(outNode))
	}

	if _, err := c.NotificationContext(bq("nope")); !errors.Is(err, ErrIncorrectNesting) {
		t.Errorf("** unknown notification: %v", err)
	}
	if _, err := c.NotificationContext(dom.NewQName("urn:nope", "", "x")); !errors.Is(err, ErrMissingSchema) {
		t.Errorf("** notification of unknown module: %v", err)
	}
	bare := New(testSchema(t), NewLoader(), Options{})
	if _, err := bare.RPCInputContext(bq("reset")); !errors.Is(err, ErrMissingClass) {
		t.Errorf("** rpc without class: %v", err)
	}
}
