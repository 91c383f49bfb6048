package dom

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Empty is the value of a leaf of type empty.
type Empty struct{}

func (Empty) String() string { return "empty" }

// Decimal64 is a fixed-point decimal: Unscaled × 10^-Scale.
type Decimal64 struct {
	Unscaled int64
	Scale    uint8
}

const maxDecimalScale = 18

func (d Decimal64) String() string {
	if d.Scale == 0 {
		return strconv.FormatInt(d.Unscaled, 10)
	}
	neg := d.Unscaled < 0
	var u uint64
	if neg {
		u = uint64(-(d.Unscaled + 1)) + 1
	} else {
		u = uint64(d.Unscaled)
	}
	digits := strconv.FormatUint(u, 10)
	scale := int(d.Scale)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	s := digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	if neg {
		s = "-" + s
	}
	return s
}

func (d Decimal64) Float64() float64 {
	return float64(d.Unscaled) / math.Pow10(int(d.Scale))
}

// ParseDecimal64 parses a decimal literal at the given scale. More fraction
// digits than the scale allows is an error.
func ParseDecimal64(s string, scale uint8) (Decimal64, error) {
	if scale > maxDecimalScale {
		return Decimal64{}, fmt.Errorf("invalid decimal64 scale %d", scale)
	}
	orig := s
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	ip, fp, _ := strings.Cut(s, ".")
	if ip == "" || len(fp) > int(scale) {
		return Decimal64{}, fmt.Errorf("invalid decimal64 %q at scale %d", orig, scale)
	}
	fp += strings.Repeat("0", int(scale)-len(fp))
	u, err := strconv.ParseUint(ip+fp, 10, 64)
	if err != nil || u > math.MaxInt64 {
		return Decimal64{}, fmt.Errorf("invalid decimal64 %q: out of range", orig)
	}
	v := int64(u)
	if neg {
		v = -v
	}
	return Decimal64{Unscaled: v, Scale: scale}, nil
}

// Bits is the value of a leaf of type bits: the set of bit names that are set.
type Bits []string

func (b Bits) Contains(name string) bool {
	return slices.Contains(b, name)
}

// ValueEqual compares two leaf values, treating byte slices, bits and paths
// structurally.
func ValueEqual(a, b any) bool {
	switch a := a.(type) {
	case []byte:
		b, ok := b.([]byte)
		return ok && bytes.Equal(a, b)
	case Bits:
		b, ok := b.(Bits)
		return ok && slices.Equal(a, b)
	case Path:
		b, ok := b.(Path)
		return ok && a.Equal(b)
	case nil:
		return b == nil
	default:
		if !reflect.TypeOf(a).Comparable() {
			return reflect.DeepEqual(a, b)
		}
		return a == b
	}
}

// FormatValue renders a leaf value for diagnostics.
func FormatValue(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case []byte:
		return "0x" + hex.EncodeToString(v)
	case Bits:
		return "{" + strings.Join(v, " ") + "}"
	case nil:
		return "<nil>"
	default:
		return fmt.Sprint(v)
	}
}
