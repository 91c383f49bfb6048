package bindom

import (
	"io"
	"log/slog"
	"testing"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/schema"
)

const (
	baseNS  = "urn:base"
	baseRev = "2024-01-01"
	extNS   = "urn:ext"
)

func bq(local string) dom.QName { return dom.NewQName(baseNS, baseRev, local) }
func eq(local string) dom.QName { return dom.NewQName(extNS, "", local) }

func testModules() []*schema.Module {
	base := schema.NewModule("base", "b", baseNS, baseRev).
		Identity("iftype").
		Identity("ethernet", "iftype").
		Add(
			schema.Container("top",
				schema.Leaf("name", schema.StringType()),
				schema.Leaf("mtu", schema.BuiltinType(schema.Uint16)).WithDefault("1500"),
				schema.Leaf("enabled", schema.BooleanType()),
				schema.Leaf("shutdown", schema.EmptyType()),
				schema.Leaf("kind", schema.IdentityrefType("iftype")).WithDefault("b:ethernet"),
				schema.Leaf("other-kind", schema.IdentityrefType("iftype")).WithDefault("zz:ethernet"),
				schema.Leaf("speed", schema.EnumType(schema.Enum{Name: "slow", Value: 1}, schema.Enum{Name: "fast", Value: 2})),
				schema.Leaf("ratio", schema.Decimal64Type(2)),
				schema.Leaf("flags", schema.BitsType(schema.Bit{Name: "up", Position: 0}, schema.Bit{Name: "running", Position: 1}, schema.Bit{Name: "promisc", Position: 5})),
				schema.Leaf("data", schema.BinaryType()),
				schema.Leaf("target", schema.InstanceIdentifierType()),
				schema.Leaf("addr", schema.UnionType(schema.BuiltinType(schema.Uint32), schema.StringType())),
				schema.LeafList("tags", schema.StringType()),
				schema.Anydata("blob"),
				schema.List("item", []string{"id"},
					schema.Leaf("id", schema.BuiltinType(schema.Uint32)),
					schema.Leaf("label", schema.StringType()),
					schema.Leaf("ref", schema.LeafrefType("../../name")),
				),
				schema.List("entry", nil,
					schema.Leaf("v", schema.StringType()),
				),
				schema.Choice("proto",
					schema.Case("tcp", schema.Leaf("port", schema.BuiltinType(schema.Uint16))),
				),
				schema.Container("sub",
					schema.Leaf("x", schema.BuiltinType(schema.Int32)),
				),
			),
			schema.Container("cont",
				schema.Choice("ch",
					schema.Case("base-case",
						schema.Container("grp-cont", schema.Leaf("val", schema.StringType())),
					),
				),
			),
			schema.Container("shelf",
				schema.Choice("slot",
					schema.Case("boxed",
						schema.Choice("wrap",
							schema.Case("paper",
								schema.Container("gift", schema.Leaf("note", schema.StringType())),
							),
						),
					),
				),
			),
			schema.List("peer", []string{"host", "port"},
				schema.Leaf("host", schema.StringType()),
				schema.Leaf("port", schema.BuiltinType(schema.Uint16)),
			),
		).
		Notification("link-down", schema.Leaf("name", schema.StringType())).
		RPC("reset",
			[]*schema.Node{schema.Leaf("delay", schema.BuiltinType(schema.Uint32))},
			[]*schema.Node{schema.Leaf("ok", schema.BooleanType())},
		)
	ext := schema.NewModule("ext", "e", extNS, "").
		Import("base", "b").
		Identity("wifi", "b:iftype").
		Augment("/b:top",
			schema.Leaf("extra", schema.StringType()),
			schema.Leaf("ext-kind", schema.IdentityrefType("b:iftype")).WithDefault("b:ethernet"),
			schema.Leaf("own-kind", schema.IdentityrefType("b:iftype")).WithDefault("wifi"),
		).
		Augment("/b:top/b:proto", schema.Case("udp", schema.Leaf("dport", schema.BuiltinType(schema.Uint16)))).
		Augment("/b:cont/b:ch", schema.Case("aug-case",
			schema.Container("grp-cont", schema.Leaf("val", schema.StringType())),
		))
	return []*schema.Module{base, ext}
}

type IfType string

const (
	IfEthernet IfType = "ethernet"
	IfWifi     IfType = "wifi"
)

type Speed int32

const (
	SpeedSlow Speed = 1
	SpeedFast Speed = 2
)

type Flags struct {
	Up      bool
	Running bool
	Promisc bool
}

type Addr struct {
	Num *uint32
	Str *string
}

type Top struct {
	Name          string
	MTU           *uint16
	Enabled       *bool
	IsShutdown    bool
	Kind          *IfType
	OtherKind     *IfType
	Speed         *Speed
	Ratio         *float64
	Flags         *Flags
	Data          []byte
	Target        InstanceIdentifier
	Addr          *Addr
	Tags          []string
	Blob          *Opaque
	Item          []*ListItem
	Entry         []*Entry
	Proto         Proto
	Sub           *Sub
	Augmentations Augmentations
}

type ListItem struct {
	ID    uint32
	Label string
	Ref   *string
}

type ItemKey struct {
	ID uint32
}

type Entry struct {
	V string
}

type Sub struct {
	X int32
}

type Proto interface{ isProto() }

type TCP struct {
	Port uint16
}

type UDP struct {
	Dport uint16
}

func (*TCP) isProto() {}
func (*UDP) isProto() {}

type TopExt struct {
	Extra   string
	ExtKind *IfType
	OwnKind *IfType
}

type Cont struct {
	Ch ContChoice
}

type ContChoice interface{ isContChoice() }

type ContBase struct {
	GrpCont *GrpCont
}

type ContAug struct {
	GrpCont *GrpCont
}

func (*ContBase) isContChoice() {}
func (*ContAug) isContChoice()  {}

type GrpCont struct {
	Val string
}

type Shelf struct {
	Slot ShelfSlot
}

type ShelfSlot interface{ isShelfSlot() }

type Boxed struct {
	Wrap BoxedWrap
}

func (*Boxed) isShelfSlot() {}

type BoxedWrap interface{ isBoxedWrap() }

type Paper struct {
	Gift *Gift
}

func (*Paper) isBoxedWrap() {}

type Gift struct {
	Note string
}

type Peer struct {
	Host string
	Port uint16
}

type PeerKey struct {
	Host string
	Port uint16
}

type LinkDown struct {
	Name string
}

type ResetInput struct {
	Delay uint32
}

type ResetOutput struct {
	OK bool
}

func testLoader() *Loader {
	l := NewLoader()
	Register[Top](l, bq("top"))
	RegisterList[ListItem, ItemKey](l, bq("item"))
	Register[Entry](l, bq("entry"))
	Register[Sub](l, bq("sub"))
	RegisterChoice[Proto](l, bq("proto"))
	RegisterCase[TCP, Proto](l, bq("tcp"))
	RegisterCase[UDP, Proto](l, eq("udp"))
	RegisterAugmentation[TopExt, Top](l, "ext")
	Register[Cont](l, bq("cont"))
	RegisterChoice[ContChoice](l, bq("ch"))
	RegisterCase[ContBase, ContChoice](l, bq("base-case"))
	RegisterCase[ContAug, ContChoice](l, eq("aug-case"))
	Register[GrpCont](l, dom.QName{Local: "grp-cont"})
	Register[Shelf](l, bq("shelf"))
	RegisterChoice[ShelfSlot](l, bq("slot"))
	RegisterCase[Boxed, ShelfSlot](l, bq("boxed"))
	RegisterChoice[BoxedWrap](l, bq("wrap"))
	RegisterCase[Paper, BoxedWrap](l, bq("paper"))
	Register[Gift](l, bq("gift"))
	RegisterList[Peer, PeerKey](l, bq("peer"))
	RegisterNotification[LinkDown](l, bq("link-down"))
	RegisterRPCInput[ResetInput](l, bq("reset"))
	RegisterRPCOutput[ResetOutput](l, bq("reset"))
	RegisterIdentity(l, bq("ethernet"), IfEthernet)
	RegisterIdentity(l, eq("wifi"), IfWifi)
	return l
}

type logWriter struct {
	t testing.TB
}

func (w *logWriter) Write(buf []byte) (int, error) {
	w.t.Log(string(buf))
	return len(buf), nil
}

func testLogger(t testing.TB) *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSchema(t testing.TB) *schema.Context {
	t.Helper()
	sc, err := schema.Build(testModules()...)
	if err != nil {
		t.Fatalf("schema.Build failed: %v", err)
	}
	return sc
}

func testCodec(t testing.TB) *Codec {
	t.Helper()
	return New(testSchema(t), testLoader(), Options{Logger: testLogger(t), Verbose: true})
}

func ptr[T any](v T) *T { return &v }
