package potassium

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/andreyvit/bindom/dom"
)

var (
	qX   = dom.NewQName("u", "", "x")
	qKey = dom.NewQName("u", "", "k")
)

const qXBody = "0001 75 0000 0001 78"

func removeSpaces(r rune) rune {
	if r == ' ' {
		return -1
	} else {
		return r
	}
}

func hexOf(s string) string {
	return strings.Map(removeSpaces, s)
}

func encodeValue(t testing.TB, v any) []byte {
	t.Helper()
	w := NewWriter()
	if err := w.WriteValue(v); err != nil {
		t.Fatalf("** WriteValue(%v) failed: %v", v, err)
	}
	return w.Bytes()
}

func decodeValue(t testing.TB, data []byte) any {
	t.Helper()
	r := NewReader(data)
	v, err := r.ReadValue()
	if err != nil {
		t.Fatalf("** ReadValue(%x) failed: %v", data, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("** ReadValue(%x) left %d bytes", data, r.Remaining())
	}
	return v
}

func TestValues(t *testing.T) {
	tests := []struct {
		input    any
		expected string
	}{
		{false, "00"},
		{true, "01"},
		{dom.Empty{}, "02"},

		{int8(0), "19"},
		{int8(-1), "03 ff"},
		{int16(0), "1a"},
		{int16(0x1234), "04 1234"},
		{int32(0), "1b"},
		{int32(1), "21 0001"},
		{int32(65535), "21 ffff"},
		{int32(65536), "05 00010000"},
		{int32(-1), "05 ffffffff"},
		{int64(0), "1c"},
		{int64(1), "23 00000001"},
		{int64(0xFFFFFFFF), "23 ffffffff"},
		{int64(1 << 32), "06 0000000100000000"},
		{int64(-2), "06 fffffffffffffffe"},

		{uint8(0), "1d"},
		{uint8(200), "07 c8"},
		{uint16(0), "1e"},
		{uint16(7), "08 0007"},
		{uint32(0), "1f"},
		{uint32(1), "22 0001"},
		{uint32(65535), "22 ffff"},
		{uint32(65536), "09 00010000"},
		{uint64(0), "20"},
		{uint64(0xFFFFFFFF), "24 ffffffff"},
		{uint64(1 << 40), "0a 0000010000000000"},

		{"", "0b"},
		{"ab", "0c 0002 6162"},
		{"\x00", "0c 0002 c080"},
		{"é", "0c 0002 c3a9"},
		{"\U0001F600", "0c 0006 eda0bd edb880"},

		{qX, "10 " + qXBody},
		{dom.NewQName("u", "2024-01-01", "x"), "10 0001 75 000a 323032342d30312d3031 0001 78"},

		{[]byte{}, "80"},
		{[]byte{1, 2}, "82 0102"},

		{dom.Bits{}, "40"},
		{dom.Bits{"a", "b", "a"}, "43 0c 0001 61 0c 0001 62 11 00"},
		{dom.Bits{"", ""}, "42 0b 11 00"},

		{dom.Decimal64{Unscaled: 0, Scale: 2}, "18 02 00"},
		{dom.Decimal64{Unscaled: 5, Scale: 1}, "18 01 01 05"},
		{dom.Decimal64{Unscaled: 12345, Scale: 2}, "18 02 02 3039"},
		{dom.Decimal64{Unscaled: 0x010203, Scale: 3}, "18 03 03 0102 03"},
		{dom.Decimal64{Unscaled: 0x0102030405, Scale: 3}, "18 03 05 01020304 05"},
		{dom.Decimal64{Unscaled: 0x01020304050607, Scale: 3}, "18 03 07 01020304 0506 07"},
		{dom.Decimal64{Unscaled: -1, Scale: 1}, "18 01 08 ffffffffffffffff"},

		{dom.Path{}, "60"},
		{dom.NewPath(dom.NewNodeIdentifier(qX)), "61 00 " + qXBody},
	}
	for _, test := range tests {
		expected := hexOf(test.expected)
		a := encodeValue(t, test.input)
		if aStr := hex.EncodeToString(a); aStr != expected {
			t.Errorf("** WriteValue(%#v) = %v, wanted %v", test.input, aStr, expected)
			continue
		}
		decoded := decodeValue(t, a)
		if !dom.ValueEqual(decoded, test.input) {
			t.Errorf("** ReadValue(%x) = %#v, wanted %#v", a, decoded, test.input)
		}
	}
}

func TestStringForms(t *testing.T) {
	tests := []struct {
		chars  int
		prefix string
	}{
		{1, "0c 0001"},
		{16383, "0c 3fff"},
		{16384, "0d 4000"},
		{65535, "0d ffff"},
		{65536, "0e 00010000"},
		{1048576, "0e 00100000"},
		{1048577, "0f 00100001"},
	}
	for _, test := range tests {
		s := strings.Repeat("a", test.chars)
		a := encodeValue(t, s)
		prefix := hexOf(test.prefix)
		if aStr := hex.EncodeToString(a[:len(prefix)/2]); aStr != prefix {
			t.Errorf("** WriteValue(%d chars) starts with %v, wanted %v", test.chars, aStr, prefix)
			continue
		}
		if decoded := decodeValue(t, a); decoded != s {
			t.Errorf("** ReadValue(%d chars) returned %d chars", test.chars, len(decoded.(string)))
		}
	}
}

func TestStringForms_multibyte(t *testing.T) {
	tests := []struct {
		chars int
		tag   byte
	}{
		{16383, tagStringUTF},
		{20000, tagString2B},
		{30000, tagString4B},
	}
	for _, test := range tests {
		s := strings.Repeat("€", test.chars)
		a := encodeValue(t, s)
		if a[0] != byte(test.tag) {
			t.Errorf("** WriteValue(%d chars, %d bytes) tag = %02x, wanted %02x", test.chars, len(s), a[0], test.tag)
			continue
		}
		if decoded := decodeValue(t, a); decoded != s {
			t.Errorf("** ReadValue(%d chars) mismatch", test.chars)
		}
	}
}

func TestBinaryForms(t *testing.T) {
	tests := []struct {
		n      int
		prefix string
	}{
		{0, "80"},
		{127, "ff"},
		{128, "14 00"},
		{383, "14 ff"},
		{384, "15 0000"},
		{65919, "15 ffff"},
		{65920, "16 00010180"},
	}
	for _, test := range tests {
		v := make([]byte, test.n)
		for i := range v {
			v[i] = byte(i)
		}
		a := encodeValue(t, v)
		prefix := hexOf(test.prefix)
		if aStr := hex.EncodeToString(a[:len(prefix)/2]); aStr != prefix {
			t.Errorf("** WriteValue(%d bytes) starts with %v, wanted %v", test.n, aStr, prefix)
			continue
		}
		if len(a) != len(prefix)/2+test.n {
			t.Errorf("** WriteValue(%d bytes) wrote %d bytes", test.n, len(a))
		}
		if decoded := decodeValue(t, a); !dom.ValueEqual(decoded, v) {
			t.Errorf("** ReadValue(%d bytes) mismatch", test.n)
		}
	}
}

func distinctBits(n int) dom.Bits {
	bits := make(dom.Bits, n)
	for i := range bits {
		bits[i] = fmt.Sprintf("b%d", i)
	}
	return bits
}

func TestBitsForms(t *testing.T) {
	tests := []struct {
		n      int
		prefix string
	}{
		{28, "5c"},
		{29, "5d 00"},
		{284, "5d ff"},
		{285, "5e 0000"},
	}
	for _, test := range tests {
		v := distinctBits(test.n)
		a := encodeValue(t, v)
		prefix := hexOf(test.prefix)
		if aStr := hex.EncodeToString(a[:len(prefix)/2]); aStr != prefix {
			t.Errorf("** WriteValue(%d bits) starts with %v, wanted %v", test.n, aStr, prefix)
			continue
		}
		if decoded := decodeValue(t, a); !dom.ValueEqual(decoded, v) {
			t.Errorf("** ReadValue(%d bits) mismatch", test.n)
		}
	}
}

func TestStringReferences(t *testing.T) {
	w := NewWriter()
	first := distinctBits(300)
	if err := w.WriteValue(first); err != nil {
		t.Fatal(err)
	}
	mark := w.Len()
	second := dom.Bits{"b0", "b255", "b256", "b299"}
	if err := w.WriteValue(second); err != nil {
		t.Fatal(err)
	}
	got := hex.EncodeToString(w.Bytes()[mark:])
	expected := hexOf("44 11 00 11 ff 12 0000 12 002b")
	if got != expected {
		t.Errorf("** second bits = %v, wanted %v", got, expected)
	}

	r := NewReader(w.Bytes())
	for i, want := range []dom.Bits{first, second} {
		v, err := r.ReadValue()
		if err != nil {
			t.Fatalf("** ReadValue #%d failed: %v", i, err)
		}
		if !dom.ValueEqual(v, want) {
			t.Errorf("** ReadValue #%d = %v, wanted %v", i, v, want)
		}
	}

	w.Reset()
	if err := w.WriteValue(dom.Bits{"b0"}); err != nil {
		t.Fatal(err)
	}
	if got := hex.EncodeToString(w.Bytes()); got != hexOf("41 0c 0002 6230") {
		t.Errorf("** after Reset = %v, wanted a full string", got)
	}
}

func TestPathArguments(t *testing.T) {
	keys := func(n int) []dom.KeyValue {
		var kvs []dom.KeyValue
		for i := range n {
			kvs = append(kvs, dom.KeyValue{Key: qKey.WithLocal(fmt.Sprintf("k%02d", i)), Value: int32(i)})
		}
		return kvs
	}
	tests := []struct {
		input  dom.PathArgument
		prefix string
	}{
		{dom.NewNodeIdentifier(qX), "00 " + qXBody},
		{dom.NodeWithValue{QName: qX, Value: "v"}, "02 " + qXBody + " 0c 0001 76"},
		{dom.NewNodeIdentifierWithPredicates(qX, dom.KeyValue{Key: qKey, Value: true}), "11 " + qXBody + " 0001 75 0000 0001 6b 01"},
		{dom.NewNodeIdentifierWithPredicates(qX, keys(12)...), "c1 " + qXBody + " 0001 75 0000 0003 6b3030 1b"},
		{dom.NewNodeIdentifierWithPredicates(qX, keys(13)...), "d1 " + qXBody + " 0d"},
		{dom.NewAugmentationIdentifier(qX, qKey), "23 0001 75 0000 0001 6b"},
	}
	for _, test := range tests {
		w := NewWriter()
		if err := w.WritePathArgument(test.input); err != nil {
			t.Fatalf("** WritePathArgument(%v) failed: %v", test.input, err)
		}
		a := w.Bytes()
		prefix := hexOf(test.prefix)
		if aStr := hex.EncodeToString(a); !strings.HasPrefix(aStr, prefix) {
			t.Errorf("** WritePathArgument(%v) = %v, wanted prefix %v", test.input, aStr, prefix)
			continue
		}
		r := NewReader(a)
		decoded, err := r.ReadPathArgument()
		if err != nil {
			t.Errorf("** ReadPathArgument(%x) failed: %v", a, err)
		} else if !dom.EqualPathArguments(decoded, test.input) {
			t.Errorf("** ReadPathArgument(%x) = %v, wanted %v", a, decoded, test.input)
		} else if r.Remaining() != 0 {
			t.Errorf("** ReadPathArgument(%x) left %d bytes", a, r.Remaining())
		}
	}
}

func TestLongPath(t *testing.T) {
	var p dom.Path
	for range 40 {
		p = append(p, dom.NewNodeIdentifier(qX))
	}
	a := encodeValue(t, p)
	if got := hex.EncodeToString(a[:5]); got != "1700000028" {
		t.Errorf("** header = %v, wanted explicit length", got)
	}
	if decoded := decodeValue(t, a); !dom.ValueEqual(decoded, p) {
		t.Errorf("** round trip mismatch")
	}
}

func TestCorruption(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad tag", "25"},
		{"unused tag", "30"},
		{"negative string length", "0e ffffffff"},
		{"negative binary length", "16 80000000"},
		{"short string", "0c 0002 61"},
		{"truncated modified UTF-8", "0c 0001 c0"},
		{"invalid UTF-8 bytes", "0d 0001 ff"},
		{"unknown reference", "41 11 05"},
		{"reference before definition", "42 11 00 0c 0001 61"},
		{"size bits on node identifier", "61 10 " + qXBody},
		{"reserved header bits", "61 04 " + qXBody},
		{"decimal header", "18 02 10"},
		{"decimal too long", "18 02 09 0000000000000000 00"},
		{"bits count past data", "5f 7fffffff"},
		{"path length past data", "17 00010000"},
	}
	for _, test := range tests {
		data, err := hex.DecodeString(hexOf(test.input))
		if err != nil {
			t.Fatalf("%s: bad test data: %v", test.name, err)
		}
		_, err = NewReader(data).ReadValue()
		if err == nil {
			t.Errorf("** %s: ReadValue(%x) succeeded, wanted error", test.name, data)
		} else if !errors.Is(err, ErrCorrupted) {
			t.Errorf("** %s: ReadValue(%x) failed with %v, wanted ErrCorrupted", test.name, data, err)
		}
	}
}

func TestUnsupportedValue(t *testing.T) {
	w := NewWriter()
	err := w.WriteValue(3.14)
	if !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("** WriteValue(float64) = %v, wanted ErrUnsupportedValue", err)
	}
}

func TestFragmentRoundTrip(t *testing.T) {
	q := func(local string) dom.QName { return dom.NewQName("urn:test", "2024-01-01", local) }
	entry := func(id int32) *dom.MapEntryNode {
		return &dom.MapEntryNode{
			ID: dom.NewNodeIdentifierWithPredicates(q("item"), dom.KeyValue{Key: q("id"), Value: id}),
			Children: []dom.Node{
				&dom.LeafNode{ID: dom.NewNodeIdentifier(q("id")), Value: id},
				&dom.LeafNode{ID: dom.NewNodeIdentifier(q("flags")), Value: dom.Bits{"a", "b"}},
			},
		}
	}
	root := &dom.ContainerNode{
		ID: dom.NewNodeIdentifier(q("top")),
		Children: []dom.Node{
			&dom.LeafNode{ID: dom.NewNodeIdentifier(q("name")), Value: "hello"},
			&dom.MapNode{ID: dom.NewNodeIdentifier(q("item")), Ordered: true, Entries: []*dom.MapEntryNode{entry(1), entry(2)}},
			&dom.LeafSetNode{ID: dom.NewNodeIdentifier(q("tags")), Entries: []*dom.LeafSetEntryNode{
				{ID: dom.NodeWithValue{QName: q("tags"), Value: "x"}},
			}},
			&dom.ChoiceNode{ID: dom.NewNodeIdentifier(q("shape")), Children: []dom.Node{
				&dom.LeafNode{ID: dom.NewNodeIdentifier(q("radius")), Value: dom.Decimal64{Unscaled: 15, Scale: 1}},
			}},
			&dom.AugmentationNode{ID: dom.NewAugmentationIdentifier(q("extra")), Children: []dom.Node{
				&dom.LeafNode{ID: dom.NewNodeIdentifier(q("extra")), Value: dom.Empty{}},
			}},
			&dom.AnydataNode{ID: dom.NewNodeIdentifier(q("blob")), Body: "opaque"},
			&dom.UnkeyedListNode{ID: dom.NewNodeIdentifier(q("log")), Entries: []*dom.UnkeyedListEntryNode{
				{ID: dom.NewNodeIdentifier(q("log")), Children: []dom.Node{
					&dom.LeafNode{ID: dom.NewNodeIdentifier(q("msg")), Value: "m"},
				}},
			}},
		},
	}
	data, err := EncodeNode(root)
	if err != nil {
		t.Fatalf("** EncodeNode failed: %v", err)
	}
	decoded, err := DecodeNode(data)
	if err != nil {
		t.Fatalf("** DecodeNode failed: %v", err)
	}
	if !dom.Equal(decoded, root) {
		t.Errorf("** DecodeNode = %s\nwanted %s", dom.Dump(decoded), dom.Dump(root))
	}

	if _, err := DecodeNode(data[:len(data)-1]); !errors.Is(err, ErrCorrupted) {
		t.Errorf("** DecodeNode(truncated) = %v, wanted ErrCorrupted", err)
	}
	if _, err := DecodeNode(append(append([]byte(nil), data...), 0)); !errors.Is(err, ErrCorrupted) {
		t.Errorf("** DecodeNode(trailing) = %v, wanted ErrCorrupted", err)
	}
}

func TestNodeWriter_unbalanced(t *testing.T) {
	nw := NewNodeWriter(nil)
	if err := nw.EndNode(); !errors.Is(err, dom.ErrUnbalancedStream) {
		t.Errorf("** EndNode() = %v, wanted ErrUnbalancedStream", err)
	}
}
