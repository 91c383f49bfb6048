package potassium

import (
	"fmt"
	"io"

	"github.com/andreyvit/bindom/dom"
)

// Writer encodes values and path arguments into an in-memory stream. A Writer
// owns the string back-reference table of its stream and must not be shared
// between goroutines. After any write error the stream must be discarded.
type Writer struct {
	bb      bytesBuilder
	strings map[string]int
}

func NewWriter() *Writer {
	return &Writer{strings: make(map[string]int)}
}

// Bytes returns the encoded stream. The slice aliases the Writer's buffer.
func (w *Writer) Bytes() []byte { return w.bb.Buf }

func (w *Writer) Len() int { return len(w.bb.Buf) }

// Reset clears the buffer and the string table, starting a new stream.
func (w *Writer) Reset() {
	w.bb.Buf = w.bb.Buf[:0]
	clear(w.strings)
}

func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	n, err := out.Write(w.bb.Buf)
	return int64(n), err
}

// WriteValue encodes one generic tree value.
func (w *Writer) WriteValue(v any) error {
	bb := &w.bb
	switch v := v.(type) {
	case string:
		return w.writeString(v)
	case bool:
		if v {
			bb.AppendByte(tagBooleanTrue)
		} else {
			bb.AppendByte(tagBooleanFalse)
		}
	case int8:
		if v != 0 {
			bb.AppendByte(tagInt8)
			bb.AppendByte(byte(v))
		} else {
			bb.AppendByte(tagInt8Zero)
		}
	case int16:
		if v != 0 {
			bb.AppendByte(tagInt16)
			bb.AppendUint16(uint16(v))
		} else {
			bb.AppendByte(tagInt16Zero)
		}
	case int32:
		w.writeUint32(uint32(v), tagInt32, tagInt32_2B, tagInt32Zero)
	case int64:
		w.writeUint64(uint64(v), tagInt64, tagInt64_4B, tagInt64Zero)
	case uint8:
		if v != 0 {
			bb.AppendByte(tagUint8)
			bb.AppendByte(v)
		} else {
			bb.AppendByte(tagUint8Zero)
		}
	case uint16:
		if v != 0 {
			bb.AppendByte(tagUint16)
			bb.AppendUint16(v)
		} else {
			bb.AppendByte(tagUint16Zero)
		}
	case uint32:
		w.writeUint32(v, tagUint32, tagUint32_2B, tagUint32Zero)
	case uint64:
		w.writeUint64(v, tagUint64, tagUint64_4B, tagUint64Zero)
	case dom.QName:
		bb.AppendByte(tagQName)
		return w.writeQNameBody(v)
	case dom.Path:
		return w.WritePath(v)
	case []byte:
		w.writeBinary(v)
	case dom.Empty:
		bb.AppendByte(tagEmpty)
	case dom.Bits:
		return w.writeBits(v)
	case dom.Decimal64:
		bb.AppendByte(tagDecimal64)
		bb.AppendByte(v.Scale)
		writeLong(bb, v.Unscaled)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	return nil
}

func (w *Writer) writeUint32(v uint32, full, short, zero byte) {
	bb := &w.bb
	if v&0xFFFF0000 != 0 {
		bb.AppendByte(full)
		bb.AppendUint32(v)
	} else if v != 0 {
		bb.AppendByte(short)
		bb.AppendUint16(uint16(v))
	} else {
		bb.AppendByte(zero)
	}
}

func (w *Writer) writeUint64(v uint64, full, short, zero byte) {
	bb := &w.bb
	if v&0xFFFFFFFF00000000 != 0 {
		bb.AppendByte(full)
		bb.AppendUint64(v)
	} else if v != 0 {
		bb.AppendByte(short)
		bb.AppendUint32(uint32(v))
	} else {
		bb.AppendByte(zero)
	}
}

func (w *Writer) writeString(s string) error {
	bb := &w.bb
	if s == "" {
		bb.AppendByte(tagStringEmpty)
		return nil
	}
	n := utf16Len(s)
	switch {
	case n <= stringUTFMaxChars:
		bb.AppendByte(tagStringUTF)
		return appendModifiedUTF8(bb, s)
	case n <= stringBytesMaxChars:
		if len(s) < 65536 {
			bb.AppendByte(tagString2B)
			bb.AppendUint16(uint16(len(s)))
		} else {
			bb.AppendByte(tagString4B)
			bb.AppendUint32(uint32(len(s)))
		}
		_, _ = bb.Write([]byte(s))
	default:
		bb.AppendByte(tagStringChars)
		bb.AppendUint32(uint32(n))
		appendUTF16Chars(bb, s)
	}
	return nil
}

func (w *Writer) writeBinary(v []byte) {
	bb := &w.bb
	n := len(v)
	switch {
	case n < binaryInlineMax:
		bb.AppendByte(byte(tagBinary0 + n))
	case n < binary1BMax:
		bb.AppendByte(tagBinary1B)
		bb.AppendByte(byte(n - binaryInlineMax))
	case n < binary2BMax:
		bb.AppendByte(tagBinary2B)
		bb.AppendUint16(uint16(n - binary1BMax))
	default:
		bb.AppendByte(tagBinary4B)
		bb.AppendUint32(uint32(n))
	}
	_, _ = bb.Write(v)
}

func (w *Writer) writeBits(v dom.Bits) error {
	bb := &w.bb
	n := len(v)
	switch {
	case n < bitsInlineMax:
		bb.AppendByte(byte(tagBits0 + n))
	case n < bits1BMax:
		bb.AppendByte(tagBits1B)
		bb.AppendByte(byte(n - bitsInlineMax))
	case n < bits2BMax:
		bb.AppendByte(tagBits2B)
		bb.AppendUint16(uint16(n - bits1BMax))
	default:
		bb.AppendByte(tagBits4B)
		bb.AppendUint32(uint32(n))
	}
	for _, name := range v {
		if err := w.encodeString(name); err != nil {
			return err
		}
	}
	return nil
}

// encodeString writes a back-reference if s was seen earlier in this stream,
// otherwise records it and writes it in full.
func (w *Writer) encodeString(s string) error {
	if code, ok := w.strings[s]; ok {
		w.writeRef(code)
		return nil
	}
	w.strings[s] = len(w.strings)
	return w.writeString(s)
}

func (w *Writer) writeRef(code int) {
	bb := &w.bb
	switch {
	case code < stringRef1BMax:
		bb.AppendByte(tagStringRef1B)
		bb.AppendByte(byte(code))
	case code < stringRef2BMax:
		bb.AppendByte(tagStringRef2B)
		bb.AppendUint16(uint16(code - stringRef1BMax))
	default:
		bb.AppendByte(tagStringRef4B)
		bb.AppendUint32(uint32(code))
	}
}

// WriteQName writes a tagged QName value.
func (w *Writer) WriteQName(q dom.QName) error {
	return w.WriteValue(q)
}

func (w *Writer) writeQNameBody(q dom.QName) error {
	if err := appendModifiedUTF8(&w.bb, q.Namespace); err != nil {
		return err
	}
	if err := appendModifiedUTF8(&w.bb, q.Revision); err != nil {
		return err
	}
	return appendModifiedUTF8(&w.bb, q.Local)
}

// WritePath writes an instance identifier value.
func (w *Writer) WritePath(p dom.Path) error {
	bb := &w.bb
	if n := len(p); n <= yiidInlineMax {
		bb.AppendByte(byte(tagYIID0 + n))
	} else {
		bb.AppendByte(tagYIID)
		bb.AppendUint32(uint32(n))
	}
	for _, arg := range p {
		if err := w.WritePathArgument(arg); err != nil {
			return err
		}
	}
	return nil
}

// WritePathArgument writes one path argument with its header byte.
func (w *Writer) WritePathArgument(arg dom.PathArgument) error {
	switch arg := arg.(type) {
	case dom.NodeIdentifier:
		w.bb.AppendByte(argNodeIdentifier)
		return w.writeQNameBody(arg.QName)
	case dom.NodeIdentifierWithPredicates:
		w.writeSizedHeader(argNodeIdentifierWithPredicates, len(arg.Keys))
		if err := w.writeQNameBody(arg.QName); err != nil {
			return err
		}
		w.writeSize(len(arg.Keys))
		for _, kv := range arg.Keys {
			if err := w.writeQNameBody(kv.Key); err != nil {
				return err
			}
			if err := w.WriteValue(kv.Value); err != nil {
				return err
			}
		}
		return nil
	case dom.NodeWithValue:
		w.bb.AppendByte(argNodeWithValue)
		if err := w.writeQNameBody(arg.QName); err != nil {
			return err
		}
		return w.WriteValue(arg.Value)
	case dom.AugmentationIdentifier:
		w.writeSizedHeader(argAugmentationIdentifier, len(arg.QNames))
		w.writeSize(len(arg.QNames))
		for _, q := range arg.QNames {
			if err := w.writeQNameBody(q); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: path argument %T", ErrUnsupportedValue, arg)
	}
}

func (w *Writer) writeSizedHeader(kind byte, size int) {
	switch {
	case size < argSizeInline:
		w.bb.AppendByte(kind | byte(size<<argSizeShift))
	case size < 256:
		w.bb.AppendByte(kind | argSize1B)
	case size < 65536:
		w.bb.AppendByte(kind | argSize2B)
	default:
		w.bb.AppendByte(kind | argSize4B)
	}
}

// writeSize writes the explicit count following the QName when the header
// did not carry it inline.
func (w *Writer) writeSize(size int) {
	switch {
	case size < argSizeInline:
	case size < 256:
		w.bb.AppendByte(byte(size))
	case size < 65536:
		w.bb.AppendUint16(uint16(size))
	default:
		w.bb.AppendUint32(uint32(size))
	}
}

// writeLong writes a header byte whose low nibble is the number of
// significant bytes, followed by those bytes in big-endian order.
func writeLong(bb *bytesBuilder, v int64) {
	u := uint64(v)
	n := valueBytes(u)
	bb.AppendByte(byte(n))
	if n == 8 {
		bb.AppendUint64(u)
		return
	}
	left := n
	if left >= 4 {
		left -= 4
		bb.AppendUint32(uint32(u >> (left * 8)))
	}
	if left >= 2 {
		left -= 2
		bb.AppendUint16(uint16(u >> (left * 8)))
	}
	if left != 0 {
		bb.AppendByte(byte(u))
	}
}

func valueBytes(u uint64) int {
	switch {
	case u&0xFFFFFFFF00000000 != 0:
		if u&0xFFFF000000000000 != 0 {
			if u&0xFF00000000000000 != 0 {
				return 8
			}
			return 7
		}
		if u&0x0000FF0000000000 != 0 {
			return 6
		}
		return 5
	case u&0x00000000FFFF0000 != 0:
		if u&0x00000000FF000000 != 0 {
			return 4
		}
		return 3
	case u&0x000000000000FF00 != 0:
		return 2
	case u != 0:
		return 1
	default:
		return 0
	}
}
