package bindom

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/andreyvit/bindom/dom"
)

func TestYangName(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"Name", "name"},
		{"MTU", "mtu"},
		{"IPAddress", "ip-address"},
		{"Ipv4Prefix", "ipv4-prefix"},
		{"GrpCont", "grp-cont"},
		{"Port2Name", "port2-name"},
		{"Snake_Case", "snake-case"},
		{"ID", "id"},
	}
	for _, tt := range tests {
		if got := yangName(tt.in); got != tt.out {
			t.Errorf("** yangName(%q) = %q, wanted %q", tt.in, got, tt.out)
		}
	}
}

type tagged struct {
	Renamed    string `yang:"other-name"`
	Skipped    string `yang:"-"`
	IsActive   bool
	IsolatedID uint32
	hidden     string
}

func TestMatchField(t *testing.T) {
	si := reflectStruct(reflect.TypeFor[tagged]())
	tests := []struct {
		local    string
		boolLeaf bool
		want     string
	}{
		{"other-name", false, "Renamed"},
		{"renamed", false, ""},
		{"skipped", false, ""},
		{"active", true, "IsActive"},
		{"active", false, ""},
		{"is-active", false, "IsActive"},
		{"isolated-id", false, "IsolatedID"},
		{"hidden", false, ""},
	}
	for _, tt := range tests {
		var got string
		if fi := si.matchField(tt.local, tt.boolLeaf); fi != nil {
			got = fi.Name
		}
		if got != tt.want {
			t.Errorf("** matchField(%q, %v) = %q, wanted %q", tt.local, tt.boolLeaf, got, tt.want)
		}
	}
	_ = tagged{}.hidden
}

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		if recover() == nil {
			t.Errorf("** %s did not panic", name)
		}
	}()
	f()
}

type notACase struct{}

func TestRegister_misuse(t *testing.T) {
	expectPanic(t, "duplicate class", func() {
		l := NewLoader()
		Register[Sub](l, bq("sub"))
		Register[Sub](l, bq("sub2"))
	})
	expectPanic(t, "duplicate name", func() {
		l := NewLoader()
		Register[Sub](l, bq("sub"), ClassName("x.Y"))
		Register[Top](l, bq("top"), ClassName("x.Y"))
	})
	expectPanic(t, "missing QName", func() {
		Register[Sub](NewLoader(), dom.QName{})
	})
	expectPanic(t, "non-struct", func() {
		Register[string](NewLoader(), bq("x"))
	})
	expectPanic(t, "key mismatch", func() {
		RegisterList[ListItem, PeerKey](NewLoader(), bq("item"))
	})
	expectPanic(t, "case without choice", func() {
		RegisterCase[TCP, Proto](NewLoader(), bq("tcp"))
	})
	expectPanic(t, "case not implementing choice", func() {
		l := NewLoader()
		RegisterChoice[Proto](l, bq("proto"))
		RegisterCase[notACase, Proto](l, bq("x"))
	})
	expectPanic(t, "choice not an interface", func() {
		RegisterChoice[Sub](NewLoader(), bq("proto"))
	})
	expectPanic(t, "identity without namespace", func() {
		RegisterIdentity(NewLoader(), dom.QName{Local: "x"}, IfWifi)
	})
	expectPanic(t, "identity value reused", func() {
		l := NewLoader()
		RegisterIdentity(l, bq("a"), IfWifi)
		RegisterIdentity(l, bq("b"), IfWifi)
	})
}

func TestLoader_classes(t *testing.T) {
	l := testLoader()
	names := make(map[string]bool)
	prev := ""
	for _, c := range l.Classes() {
		if c.Name <= prev {
			t.Errorf("** Classes not ordered: %q after %q", c.Name, prev)
		}
		prev = c.Name
		names[c.Name] = true
	}
	if !names["github.com/andreyvit/bindom.Top"] {
		t.Errorf("** Classes lacks Top: %v", names)
	}
	if l.Class(reflect.TypeFor[ListItem]()).Key() != reflect.TypeFor[ItemKey]() {
		t.Errorf("** Item key = %v", l.Class(reflect.TypeFor[ListItem]()).Key())
	}
	w := l.Without(reflect.TypeFor[Sub]())
	if w.Class(reflect.TypeFor[Sub]()) != nil || w.Class(reflect.TypeFor[Top]()) == nil {
		t.Errorf("** Without(Sub) kept Sub or dropped Top")
	}
	if l.Class(reflect.TypeFor[Sub]()) == nil {
		t.Errorf("** Without modified the original loader")
	}
}

type ParentedSub struct {
	X int32
}

func TestParentOption(t *testing.T) {
	l := NewLoader()
	Register[Top](l, bq("top"))
	Register[Cont](l, bq("cont"))
	Register[ParentedSub](l, bq("sub"), Parent[Cont]())
	c := New(testSchema(t), l, Options{Logger: testLogger(t)})
	_, _, err := c.ToDOMPath(Path(ItemOf[Top](), ItemOf[ParentedSub]()))
	if !errors.Is(err, ErrIncorrectNesting) {
		t.Errorf("** class restricted to Cont under Top: %v, wanted %v", err, ErrIncorrectNesting)
	}
}

func TestBindingShapeErrors(t *testing.T) {
	type BadTop struct {
		Sub Sub // containers must be pointers
	}
	l := NewLoader()
	Register[BadTop](l, bq("top"))
	c := New(testSchema(t), l, Options{Logger: testLogger(t)})
	_, _, err := c.ToNormalizedNode(Path(ItemOf[BadTop]()), &BadTop{})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("** non-pointer container field: %v, wanted %v", err, ErrUnsupported)
	}

	type BadLeaf struct {
		Name int
	}
	l = NewLoader()
	Register[BadLeaf](l, bq("top"))
	c = New(testSchema(t), l, Options{Logger: testLogger(t)})
	_, _, err = c.ToNormalizedNode(Path(ItemOf[BadLeaf]()), &BadLeaf{Name: 1})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("** int bound to string leaf: %v, wanted %v", err, ErrUnsupported)
	}
}

func TestConcurrentResolution(t *testing.T) {
	c := testCodec(t)
	paths := []InstanceIdentifier{
		Path(ItemOf[Top]()),
		Path(ItemOf[Top](), ItemOf[Sub]()),
		Path(ItemOf[Top](), KeyedItemOf[ListItem](ItemKey{1})),
		Path(ItemOf[Top](), ItemOf[TopExt]()),
		Path(ItemOf[Cont](), ItemOf[GrpCont]()),
		Path(KeyedItemOf[Peer](PeerKey{"h", 1})),
	}
	top := fullTop()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 20 {
				ii := paths[(g+i)%len(paths)]
				p, _, err := c.ToDOMPath(ii)
				if err != nil {
					errs <- err
					return
				}
				if _, err := c.FromDOMPath(p); err != nil {
					errs <- err
					return
				}
				if _, _, err := c.ToNormalizedNode(Path(ItemOf[Top]()), top); err != nil {
					errs <- fmt.Errorf("serialize: %w", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	built := 0
	c.mu.Lock()
	for _, p := range c.protos {
		if r := p.built.Load(); r != nil && r.err == nil {
			built++
		}
	}
	c.mu.Unlock()
	st := c.Stats()
	if st.ContextsBuilt != int64(built) {
		t.Errorf("** ContextsBuilt = %d, wanted %d (one per built prototype)", st.ContextsBuilt, built)
	}
	if st.Prototypes < built || built == 0 {
		t.Errorf("** Prototypes = %d, built = %d", st.Prototypes, built)
	}

	// same context instance for the same node and class
	a, err := c.Root().StreamChild(reflect.TypeFor[Top]())
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Root().YangChild(nid(bq("top")))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("** StreamChild and YangChild returned different contexts for top")
	}
}
