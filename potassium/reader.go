package potassium

import (
	"unicode/utf8"

	"github.com/andreyvit/bindom/dom"
)

// Reader decodes a stream produced by Writer. Like Writer, it carries the
// stream's string table and is not safe for concurrent use.
type Reader struct {
	d       byteDecoder
	strings []string
}

func NewReader(data []byte) *Reader {
	return &Reader{d: makeByteDecoder(data)}
}

// Remaining reports the number of undecoded bytes.
func (r *Reader) Remaining() int { return len(r.d.Buf) }

// ReadValue decodes one generic tree value.
func (r *Reader) ReadValue() (any, error) {
	d := &r.d
	off := d.Off()
	tag, err := d.Byte()
	if err != nil {
		return nil, err
	}
	switch {
	case tag >= tagBinary0:
		return r.readBinary(int(tag - tagBinary0))
	case tag >= tagYIID0:
		return r.readPath(int(tag - tagYIID0))
	case tag >= tagBits0 && tag < tagBits1B:
		return r.readBits(int(tag - tagBits0))
	}

	switch tag {
	case tagBooleanFalse:
		return false, nil
	case tagBooleanTrue:
		return true, nil
	case tagEmpty:
		return dom.Empty{}, nil

	case tagInt8:
		b, err := d.Byte()
		return int8(b), err
	case tagInt16:
		v, err := d.Uint16()
		return int16(v), err
	case tagInt32:
		v, err := d.Uint32()
		return int32(v), err
	case tagInt64:
		v, err := d.Uint64()
		return int64(v), err
	case tagUint8:
		return d.Byte()
	case tagUint16:
		return d.Uint16()
	case tagUint32:
		return d.Uint32()
	case tagUint64:
		return d.Uint64()

	case tagInt8Zero:
		return int8(0), nil
	case tagInt16Zero:
		return int16(0), nil
	case tagInt32Zero:
		return int32(0), nil
	case tagInt64Zero:
		return int64(0), nil
	case tagUint8Zero:
		return uint8(0), nil
	case tagUint16Zero:
		return uint16(0), nil
	case tagUint32Zero:
		return uint32(0), nil
	case tagUint64Zero:
		return uint64(0), nil

	case tagInt32_2B:
		v, err := d.Uint16()
		return int32(v), err
	case tagUint32_2B:
		v, err := d.Uint16()
		return uint32(v), err
	case tagInt64_4B:
		v, err := d.Uint32()
		return int64(v), err
	case tagUint64_4B:
		v, err := d.Uint32()
		return uint64(v), err

	case tagStringEmpty, tagStringUTF, tagString2B, tagString4B, tagStringChars:
		return r.readString(tag, off)
	case tagQName:
		return r.readQNameBody()

	case tagBinary1B:
		b, err := d.Byte()
		if err != nil {
			return nil, err
		}
		return r.readBinary(int(b) + binaryInlineMax)
	case tagBinary2B:
		v, err := d.Uint16()
		if err != nil {
			return nil, err
		}
		return r.readBinary(int(v) + binary1BMax)
	case tagBinary4B:
		n, err := d.Int32Len("binary")
		if err != nil {
			return nil, err
		}
		return r.readBinary(n)

	case tagBits1B:
		b, err := d.Byte()
		if err != nil {
			return nil, err
		}
		return r.readBits(int(b) + bitsInlineMax)
	case tagBits2B:
		v, err := d.Uint16()
		if err != nil {
			return nil, err
		}
		return r.readBits(int(v) + bits1BMax)
	case tagBits4B:
		n, err := d.Int32Len("bits")
		if err != nil {
			return nil, err
		}
		return r.readBits(n)

	case tagYIID:
		n, err := d.Int32Len("instance identifier")
		if err != nil {
			return nil, err
		}
		return r.readPath(n)

	case tagDecimal64:
		scale, err := d.Byte()
		if err != nil {
			return nil, err
		}
		v, err := r.readLong()
		if err != nil {
			return nil, err
		}
		return dom.Decimal64{Unscaled: v, Scale: scale}, nil
	}
	return nil, corruptf(d.Orig, off, nil, "invalid value tag 0x%02x", tag)
}

func (r *Reader) readString(tag byte, off int) (string, error) {
	d := &r.d
	switch tag {
	case tagStringEmpty:
		return "", nil
	case tagStringUTF:
		return d.ModifiedUTF8()
	case tagString2B:
		n, err := d.Uint16()
		if err != nil {
			return "", err
		}
		return r.readUTF8(int(n))
	case tagString4B:
		n, err := d.Int32Len("string")
		if err != nil {
			return "", err
		}
		return r.readUTF8(n)
	case tagStringChars:
		n, err := d.Int32Len("string")
		if err != nil {
			return "", err
		}
		return d.UTF16Chars(n)
	}
	return "", corruptf(d.Orig, off, nil, "invalid string tag 0x%02x", tag)
}

func (r *Reader) readUTF8(n int) (string, error) {
	off := r.d.Off()
	raw, err := r.d.Raw(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", corruptf(r.d.Orig, off, nil, "malformed UTF-8 string")
	}
	return string(raw), nil
}

func (r *Reader) readBinary(n int) ([]byte, error) {
	raw, err := r.d.Raw(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), raw...), nil
}

func (r *Reader) readBits(n int) (dom.Bits, error) {
	// each member takes at least one byte
	if n > len(r.d.Buf) {
		return nil, corruptf(r.d.Orig, r.d.Off(), nil, "bits cardinality %d exceeds remaining data", n)
	}
	bits := make(dom.Bits, 0, n)
	for range n {
		s, err := r.decodeString()
		if err != nil {
			return nil, err
		}
		bits = append(bits, s)
	}
	return bits, nil
}

// decodeString is the counterpart of Writer.encodeString: a back-reference
// or a fresh string which is appended to the table.
func (r *Reader) decodeString() (string, error) {
	d := &r.d
	off := d.Off()
	tag, err := d.Byte()
	if err != nil {
		return "", err
	}
	var code int
	switch tag {
	case tagStringRef1B:
		b, err := d.Byte()
		if err != nil {
			return "", err
		}
		code = int(b)
	case tagStringRef2B:
		v, err := d.Uint16()
		if err != nil {
			return "", err
		}
		code = int(v) + stringRef1BMax
	case tagStringRef4B:
		code, err = d.Int32Len("string reference")
		if err != nil {
			return "", err
		}
	default:
		s, err := r.readString(tag, off)
		if err != nil {
			return "", err
		}
		r.strings = append(r.strings, s)
		return s, nil
	}
	if code >= len(r.strings) {
		return "", corruptf(d.Orig, off, nil, "string reference %d out of range (%d known)", code, len(r.strings))
	}
	return r.strings[code], nil
}

// ReadQName reads a tagged QName value.
func (r *Reader) ReadQName() (dom.QName, error) {
	off := r.d.Off()
	tag, err := r.d.Byte()
	if err != nil {
		return dom.QName{}, err
	}
	if tag != tagQName {
		return dom.QName{}, corruptf(r.d.Orig, off, nil, "expected QName, got tag 0x%02x", tag)
	}
	return r.readQNameBody()
}

func (r *Reader) readQNameBody() (dom.QName, error) {
	d := &r.d
	off := d.Off()
	ns, err := d.ModifiedUTF8()
	if err != nil {
		return dom.QName{}, err
	}
	rev, err := d.ModifiedUTF8()
	if err != nil {
		return dom.QName{}, err
	}
	local, err := d.ModifiedUTF8()
	if err != nil {
		return dom.QName{}, err
	}
	if local == "" {
		return dom.QName{}, corruptf(d.Orig, off, nil, "QName with empty local name")
	}
	return dom.QName{Namespace: ns, Revision: rev, Local: local}, nil
}

// ReadPath reads an instance identifier value.
func (r *Reader) ReadPath() (dom.Path, error) {
	off := r.d.Off()
	v, err := r.ReadValue()
	if err != nil {
		return nil, err
	}
	p, ok := v.(dom.Path)
	if !ok {
		return nil, corruptf(r.d.Orig, off, nil, "expected instance identifier, got %T", v)
	}
	return p, nil
}

func (r *Reader) readPath(n int) (dom.Path, error) {
	// each argument takes at least one byte
	if n > len(r.d.Buf) {
		return nil, corruptf(r.d.Orig, r.d.Off(), nil, "instance identifier length %d exceeds remaining data", n)
	}
	p := make(dom.Path, 0, n)
	for range n {
		arg, err := r.ReadPathArgument()
		if err != nil {
			return nil, err
		}
		p = append(p, arg)
	}
	return p, nil
}

// ReadPathArgument reads one path argument including its header byte.
func (r *Reader) ReadPathArgument() (dom.PathArgument, error) {
	d := &r.d
	off := d.Off()
	header, err := d.Byte()
	if err != nil {
		return nil, err
	}
	if header&^(argTypeMask|argSizeMask) != 0 {
		return nil, corruptf(d.Orig, off, nil, "invalid path argument header 0x%02x", header)
	}
	kind := header & argTypeMask
	sizeBits := header & argSizeMask
	switch kind {
	case argNodeIdentifier, argNodeWithValue:
		if sizeBits != 0 {
			return nil, corruptf(d.Orig, off, nil, "unexpected size bits in path argument header 0x%02x", header)
		}
		q, err := r.readQNameBody()
		if err != nil {
			return nil, err
		}
		if kind == argNodeIdentifier {
			return dom.NodeIdentifier{QName: q}, nil
		}
		v, err := r.ReadValue()
		if err != nil {
			return nil, err
		}
		return dom.NodeWithValue{QName: q, Value: v}, nil

	case argNodeIdentifierWithPredicates:
		q, err := r.readQNameBody()
		if err != nil {
			return nil, err
		}
		n, err := r.readSize(sizeBits)
		if err != nil {
			return nil, err
		}
		if n > len(d.Buf) {
			return nil, corruptf(d.Orig, off, nil, "predicate count %d exceeds remaining data", n)
		}
		keys := make([]dom.KeyValue, 0, n)
		for range n {
			k, err := r.readQNameBody()
			if err != nil {
				return nil, err
			}
			v, err := r.ReadValue()
			if err != nil {
				return nil, err
			}
			keys = append(keys, dom.KeyValue{Key: k, Value: v})
		}
		return dom.NodeIdentifierWithPredicates{QName: q, Keys: keys}, nil

	default: // argAugmentationIdentifier
		n, err := r.readSize(sizeBits)
		if err != nil {
			return nil, err
		}
		if n == 0 || n > len(d.Buf) {
			return nil, corruptf(d.Orig, off, nil, "invalid augmentation child count %d", n)
		}
		qnames := make([]dom.QName, 0, n)
		for range n {
			q, err := r.readQNameBody()
			if err != nil {
				return nil, err
			}
			qnames = append(qnames, q)
		}
		return dom.NewAugmentationIdentifier(qnames...), nil
	}
}

func (r *Reader) readSize(sizeBits byte) (int, error) {
	d := &r.d
	switch sizeBits {
	case argSize1B:
		b, err := d.Byte()
		return int(b), err
	case argSize2B:
		v, err := d.Uint16()
		return int(v), err
	case argSize4B:
		return d.Int32Len("predicate count")
	default:
		return int(sizeBits >> argSizeShift), nil
	}
}

func (r *Reader) readLong() (int64, error) {
	d := &r.d
	off := d.Off()
	header, err := d.Byte()
	if err != nil {
		return 0, err
	}
	if header&0xF0 != 0 || header > 8 {
		return 0, corruptf(d.Orig, off, nil, "invalid long header 0x%02x", header)
	}
	raw, err := d.Raw(int(header))
	if err != nil {
		return 0, err
	}
	var u uint64
	for _, b := range raw {
		u = u<<8 | uint64(b)
	}
	return int64(u), nil
}
