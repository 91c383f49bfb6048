package potassium

import (
	"fmt"
	"unicode/utf16"
)

// utf16Len returns the length of s in UTF-16 code units, which is what the
// string thresholds are expressed in.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// appendModifiedUTF8 writes s as a 16-bit length followed by the modified
// UTF-8 encoding of its UTF-16 units (NUL as two bytes, surrogates encoded
// individually).
func appendModifiedUTF8(bb *bytesBuilder, s string) error {
	units := utf16.Encode([]rune(s))
	size := 0
	for _, c := range units {
		switch {
		case c != 0 && c < 0x80:
			size++
		case c < 0x800:
			size += 2
		default:
			size += 3
		}
	}
	if size > 0xFFFF {
		return fmt.Errorf("%w: encoded string too long: %d bytes", ErrUnsupportedValue, size)
	}
	bb.AppendUint16(uint16(size))
	off := bb.Grow(size)
	buf := bb.Buf[off:]
	i := 0
	for _, c := range units {
		switch {
		case c != 0 && c < 0x80:
			buf[i] = byte(c)
			i++
		case c < 0x800:
			buf[i] = byte(0xC0 | (c>>6)&0x1F)
			buf[i+1] = byte(0x80 | c&0x3F)
			i += 2
		default:
			buf[i] = byte(0xE0 | (c>>12)&0x0F)
			buf[i+1] = byte(0x80 | (c>>6)&0x3F)
			buf[i+2] = byte(0x80 | c&0x3F)
			i += 3
		}
	}
	return nil
}

func (d *byteDecoder) ModifiedUTF8() (string, error) {
	start := d.Off()
	size, err := d.Uint16()
	if err != nil {
		return "", err
	}
	raw, err := d.Raw(int(size))
	if err != nil {
		return "", err
	}
	ascii := true
	for _, b := range raw {
		if b == 0 || b >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(raw), nil
	}
	units := make([]uint16, 0, len(raw))
	for i := 0; i < len(raw); {
		b := raw[i]
		switch {
		case b < 0x80:
			units = append(units, uint16(b))
			i++
		case b&0xE0 == 0xC0:
			if i+1 >= len(raw) || raw[i+1]&0xC0 != 0x80 {
				return "", corruptf(d.Orig, start+2+i, nil, "malformed modified UTF-8")
			}
			units = append(units, uint16(b&0x1F)<<6|uint16(raw[i+1]&0x3F))
			i += 2
		case b&0xF0 == 0xE0:
			if i+2 >= len(raw) || raw[i+1]&0xC0 != 0x80 || raw[i+2]&0xC0 != 0x80 {
				return "", corruptf(d.Orig, start+2+i, nil, "malformed modified UTF-8")
			}
			units = append(units, uint16(b&0x0F)<<12|uint16(raw[i+1]&0x3F)<<6|uint16(raw[i+2]&0x3F))
			i += 3
		default:
			return "", corruptf(d.Orig, start+2+i, nil, "malformed modified UTF-8")
		}
	}
	return string(utf16.Decode(units)), nil
}

func appendUTF16Chars(bb *bytesBuilder, s string) {
	for _, c := range utf16.Encode([]rune(s)) {
		bb.AppendUint16(c)
	}
}

func (d *byteDecoder) UTF16Chars(n int) (string, error) {
	raw, err := d.Raw(n * 2)
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return string(utf16.Decode(units)), nil
}
