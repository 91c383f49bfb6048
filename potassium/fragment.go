package potassium

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/bindom/dom"
)

// Node event tags of the fragment framing.
const (
	nodeEnd            = 0x00
	nodeContainer      = 0x01
	nodeMap            = 0x02
	nodeOrderedMap     = 0x03
	nodeMapEntry       = 0x04
	nodeUnkeyedList    = 0x05
	nodeUnkeyedItem    = 0x06
	nodeLeafSet        = 0x07
	nodeLeafSetEntry   = 0x08
	nodeChoice         = 0x09
	nodeAugmentation   = 0x0A
	nodeLeaf           = 0x0B
	nodeAnydata        = 0x0C
	nodeAnyxml         = 0x0D
	maxFragmentNesting = 1024
)

// NodeWriter encodes generic tree events as a fragment. Values and path
// arguments share the string table of the underlying Writer.
type NodeWriter struct {
	*Writer
	depth int
}

var _ dom.StreamWriter = (*NodeWriter)(nil)

func NewNodeWriter(w *Writer) *NodeWriter {
	if w == nil {
		w = NewWriter()
	}
	return &NodeWriter{Writer: w}
}

// Depth returns the number of currently open nodes.
func (nw *NodeWriter) Depth() int { return nw.depth }

func (nw *NodeWriter) start(tag byte, arg dom.PathArgument) error {
	nw.bb.AppendByte(tag)
	if err := nw.WritePathArgument(arg); err != nil {
		return err
	}
	nw.depth++
	return nil
}

func (nw *NodeWriter) StartContainer(id dom.NodeIdentifier) error {
	return nw.start(nodeContainer, id)
}

func (nw *NodeWriter) StartMap(id dom.NodeIdentifier, ordered bool) error {
	if ordered {
		return nw.start(nodeOrderedMap, id)
	}
	return nw.start(nodeMap, id)
}

func (nw *NodeWriter) StartMapEntry(id dom.NodeIdentifierWithPredicates) error {
	return nw.start(nodeMapEntry, id)
}

func (nw *NodeWriter) StartUnkeyedList(id dom.NodeIdentifier) error {
	return nw.start(nodeUnkeyedList, id)
}

func (nw *NodeWriter) StartUnkeyedListItem(id dom.NodeIdentifier) error {
	return nw.start(nodeUnkeyedItem, id)
}

func (nw *NodeWriter) StartLeafSet(id dom.NodeIdentifier) error {
	return nw.start(nodeLeafSet, id)
}

func (nw *NodeWriter) StartChoice(id dom.NodeIdentifier) error {
	return nw.start(nodeChoice, id)
}

func (nw *NodeWriter) StartAugmentation(id dom.AugmentationIdentifier) error {
	return nw.start(nodeAugmentation, id)
}

func (nw *NodeWriter) LeafSetEntry(id dom.NodeWithValue) error {
	nw.bb.AppendByte(nodeLeafSetEntry)
	return nw.WritePathArgument(id)
}

func (nw *NodeWriter) Leaf(id dom.NodeIdentifier, value any) error {
	nw.bb.AppendByte(nodeLeaf)
	if err := nw.WritePathArgument(id); err != nil {
		return err
	}
	return nw.WriteValue(value)
}

func (nw *NodeWriter) Anydata(id dom.NodeIdentifier, body any, xml bool) error {
	if xml {
		nw.bb.AppendByte(nodeAnyxml)
	} else {
		nw.bb.AppendByte(nodeAnydata)
	}
	if err := nw.WritePathArgument(id); err != nil {
		return err
	}
	raw, err := encodeBody(body)
	if err != nil {
		return err
	}
	nw.writeBinary(raw)
	return nil
}

func (nw *NodeWriter) EndNode() error {
	if nw.depth == 0 {
		return fmt.Errorf("%w: EndNode without a started node", dom.ErrUnbalancedStream)
	}
	nw.depth--
	nw.bb.AppendByte(nodeEnd)
	return nil
}

func encodeBody(body any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(body)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: anydata body %T: %v", ErrUnsupportedValue, body, err)
	}
	return buf.Bytes(), nil
}

func decodeBody(raw []byte) (any, error) {
	var r bytes.Reader
	r.Reset(raw)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	v, err := dec.DecodeInterface()
	msgpack.PutDecoder(dec)
	return v, err
}

// ReadNode decodes one complete node from r and replays it into w.
func ReadNode(r *Reader, w dom.StreamWriter) error {
	return r.readNode(w, 0)
}

func (r *Reader) readNode(w dom.StreamWriter, depth int) error {
	d := &r.d
	off := d.Off()
	if depth > maxFragmentNesting {
		return corruptf(d.Orig, off, nil, "fragment nested too deeply")
	}
	tag, err := d.Byte()
	if err != nil {
		return err
	}
	if tag == nodeEnd || tag > nodeAnyxml {
		return corruptf(d.Orig, off, nil, "invalid node tag 0x%02x", tag)
	}
	arg, err := r.ReadPathArgument()
	if err != nil {
		return err
	}

	switch tag {
	case nodeLeaf:
		id, err := nodeIdentifier(r, off, arg)
		if err != nil {
			return err
		}
		v, err := r.ReadValue()
		if err != nil {
			return err
		}
		return w.Leaf(id, v)
	case nodeLeafSetEntry:
		id, ok := arg.(dom.NodeWithValue)
		if !ok {
			return corruptf(d.Orig, off, nil, "leaf-set entry identified by %T", arg)
		}
		return w.LeafSetEntry(id)
	case nodeAnydata, nodeAnyxml:
		id, err := nodeIdentifier(r, off, arg)
		if err != nil {
			return err
		}
		v, err := r.ReadValue()
		if err != nil {
			return err
		}
		raw, ok := v.([]byte)
		if !ok {
			return corruptf(d.Orig, off, nil, "anydata body is %T, not binary", v)
		}
		body, err := decodeBody(raw)
		if err != nil {
			return corruptf(d.Orig, off, err, "invalid anydata body")
		}
		return w.Anydata(id, body, tag == nodeAnyxml)
	}

	switch tag {
	case nodeMapEntry:
		id, ok := arg.(dom.NodeIdentifierWithPredicates)
		if !ok {
			return corruptf(d.Orig, off, nil, "map entry identified by %T", arg)
		}
		err = w.StartMapEntry(id)
	case nodeAugmentation:
		id, ok := arg.(dom.AugmentationIdentifier)
		if !ok {
			return corruptf(d.Orig, off, nil, "augmentation identified by %T", arg)
		}
		err = w.StartAugmentation(id)
	default:
		id, err := nodeIdentifier(r, off, arg)
		if err != nil {
			return err
		}
		switch tag {
		case nodeContainer:
			err = w.StartContainer(id)
		case nodeMap, nodeOrderedMap:
			err = w.StartMap(id, tag == nodeOrderedMap)
		case nodeUnkeyedList:
			err = w.StartUnkeyedList(id)
		case nodeUnkeyedItem:
			err = w.StartUnkeyedListItem(id)
		case nodeLeafSet:
			err = w.StartLeafSet(id)
		case nodeChoice:
			err = w.StartChoice(id)
		}
		if err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}

	for {
		if len(d.Buf) == 0 {
			return corruptf(d.Orig, d.Off(), nil, "unterminated node")
		}
		if d.Buf[0] == nodeEnd {
			d.Buf = d.Buf[1:]
			return w.EndNode()
		}
		if err := r.readNode(w, depth+1); err != nil {
			return err
		}
	}
}

func nodeIdentifier(r *Reader, off int, arg dom.PathArgument) (dom.NodeIdentifier, error) {
	id, ok := arg.(dom.NodeIdentifier)
	if !ok {
		return dom.NodeIdentifier{}, corruptf(r.d.Orig, off, nil, "node identified by %T", arg)
	}
	return id, nil
}

// EncodeNode encodes n as a standalone fragment.
func EncodeNode(n dom.Node) ([]byte, error) {
	nw := NewNodeWriter(nil)
	if err := dom.Stream(n, nw); err != nil {
		return nil, err
	}
	return nw.Bytes(), nil
}

// DecodeNode decodes a standalone fragment produced by EncodeNode.
func DecodeNode(data []byte) (dom.Node, error) {
	r := NewReader(data)
	b := dom.NewTreeBuilder()
	if err := ReadNode(r, b); err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, corruptf(data, len(data)-r.Remaining(), nil, "trailing data after node")
	}
	return b.Result()
}
