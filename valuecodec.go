package bindom

import (
	"bytes"
	"math"
	"reflect"
	"slices"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/schema"
)

var (
	decimalType = reflect.TypeFor[dom.Decimal64]()
	iiType      = reflect.TypeFor[InstanceIdentifier]()
)

// valueCodec converts one leaf value between its binding type and the
// generic tree value of its schema type. serialize takes a non-pointer value
// of the binding type; deserialize returns one.
type valueCodec interface {
	serialize(v reflect.Value) (any, error)
	deserialize(dv any) (reflect.Value, error)
}

type valueKey struct {
	typ    reflect.Type
	schema *schema.Type
	// leaf is set for types whose codec depends on the leaf, see
	// hasLeafref.
	leaf *schema.Node
}

// hasLeafref reports whether st or any of its union members is a leafref.
// A leafref resolves relative to its leaf, so one shared type can bind
// differently under different leaves.
func hasLeafref(st *schema.Type) bool {
	switch st.Category {
	case schema.Leafref:
		return true
	case schema.Union:
		return slices.ContainsFunc(st.Members, hasLeafref)
	}
	return false
}

func mismatchErr(want string, dv any) error {
	return codecErrf(ErrIncorrectNesting, "", nil, "expected %s value, got %T", want, dv)
}

// valueCodec builds the codec for leaf (whose type, or union member type,
// is st) bound to Go type gt. visiting holds the leaves passed through by
// leafref resolution.
func (c *Codec) valueCodec(leaf *schema.Node, st *schema.Type, gt reflect.Type, visiting []*schema.Node) (valueCodec, error) {
	if gt == anyType {
		return passthroughCodec{}, nil
	}
	bad := func() error {
		return codecErrf(ErrUnsupported, leaf.SchemaPath(), nil, "cannot bind %s leaf to %v", st, gt)
	}
	switch st.Category {
	case schema.Boolean:
		if gt.Kind() != reflect.Bool {
			return nil, bad()
		}
		return boolCodec{gt}, nil
	case schema.Empty:
		if gt.Kind() != reflect.Bool {
			return nil, bad()
		}
		return emptyCodec{gt}, nil
	case schema.String:
		if gt.Kind() != reflect.String {
			return nil, bad()
		}
		return stringCodec{gt}, nil
	case schema.Int8, schema.Int16, schema.Int32, schema.Int64,
		schema.Uint8, schema.Uint16, schema.Uint32, schema.Uint64:
		if !isIntKind(gt.Kind()) && !isUintKind(gt.Kind()) {
			return nil, bad()
		}
		return intCodec{gt, st.Category}, nil
	case schema.Decimal64:
		if gt != decimalType && gt.Kind() != reflect.Float64 && gt.Kind() != reflect.Float32 {
			return nil, bad()
		}
		return decimalCodec{gt, st.FractionDigits}, nil
	case schema.Binary:
		if gt.Kind() != reflect.Slice || gt.Elem().Kind() != reflect.Uint8 {
			return nil, bad()
		}
		return binaryCodec{gt}, nil
	case schema.Enumeration:
		if !isIntKind(gt.Kind()) && !isUintKind(gt.Kind()) && gt.Kind() != reflect.String {
			return nil, bad()
		}
		return enumCodec{gt, st}, nil
	case schema.Bits:
		if gt.Kind() != reflect.Struct {
			return nil, bad()
		}
		return c.bitsCodec(leaf, st, gt)
	case schema.Identityref:
		set := c.loader.identities[gt]
		if set == nil {
			return nil, codecErrf(ErrMissingClass, leaf.SchemaPath(), nil, "no identities registered for %v", gt)
		}
		return identityCodec{gt, set}, nil
	case schema.InstanceIdentifier:
		if gt != iiType {
			return nil, bad()
		}
		return iiCodec{c}, nil
	case schema.Leafref:
		target, err := c.schema.LeafrefTarget(leaf, st)
		if err != nil {
			return nil, codecErrf(ErrIncorrectNesting, leaf.SchemaPath(), err, "cannot resolve leafref")
		}
		if target == leaf || slices.Contains(visiting, target) {
			return nil, codecErrf(ErrIncorrectNesting, leaf.SchemaPath(), schema.ErrLeafrefCycle, "leafref %q", st.Path)
		}
		return c.valueCodec(target, target.Type, gt, append(visiting, leaf))
	case schema.Union:
		if gt.Kind() != reflect.Struct {
			return nil, bad()
		}
		return c.unionCodec(leaf, st, gt, visiting)
	default:
		return nil, bad()
	}
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

type passthroughCodec struct{}

func (passthroughCodec) serialize(v reflect.Value) (any, error) {
	return v.Interface(), nil
}

func (passthroughCodec) deserialize(dv any) (reflect.Value, error) {
	return reflect.ValueOf(&dv).Elem(), nil
}

type boolCodec struct{ t reflect.Type }

func (bc boolCodec) serialize(v reflect.Value) (any, error) {
	return v.Bool(), nil
}

func (bc boolCodec) deserialize(dv any) (reflect.Value, error) {
	b, ok := dv.(bool)
	if !ok {
		return reflect.Value{}, mismatchErr("boolean", dv)
	}
	return reflect.ValueOf(b).Convert(bc.t), nil
}

// emptyCodec binds an empty leaf to a bool: true when present.
type emptyCodec struct{ t reflect.Type }

func (emptyCodec) serialize(v reflect.Value) (any, error) {
	return dom.Empty{}, nil
}

func (ec emptyCodec) deserialize(dv any) (reflect.Value, error) {
	if _, ok := dv.(dom.Empty); !ok {
		return reflect.Value{}, mismatchErr("empty", dv)
	}
	return reflect.ValueOf(true).Convert(ec.t), nil
}

type stringCodec struct{ t reflect.Type }

func (stringCodec) serialize(v reflect.Value) (any, error) {
	return v.String(), nil
}

func (sc stringCodec) deserialize(dv any) (reflect.Value, error) {
	s, ok := dv.(string)
	if !ok {
		return reflect.Value{}, mismatchErr("string", dv)
	}
	return reflect.ValueOf(s).Convert(sc.t), nil
}

// intCodec converts between any Go integer type and the exact native type of
// the schema category, rejecting values out of range.
type intCodec struct {
	t   reflect.Type
	cat schema.Category
}

var intRanges = map[schema.Category]struct {
	min int64
	max uint64
}{
	schema.Int8:   {math.MinInt8, math.MaxInt8},
	schema.Int16:  {math.MinInt16, math.MaxInt16},
	schema.Int32:  {math.MinInt32, math.MaxInt32},
	schema.Int64:  {math.MinInt64, math.MaxInt64},
	schema.Uint8:  {0, math.MaxUint8},
	schema.Uint16: {0, math.MaxUint16},
	schema.Uint32: {0, math.MaxUint32},
	schema.Uint64: {0, math.MaxUint64},
}

func (ic intCodec) serialize(v reflect.Value) (any, error) {
	var s int64
	var u uint64
	neg := false
	if isIntKind(v.Kind()) {
		s = v.Int()
		neg = s < 0
		u = uint64(s)
	} else {
		u = v.Uint()
		s = int64(u)
	}
	r := intRanges[ic.cat]
	if (neg && s < r.min) || (!neg && u > r.max) {
		return nil, codecErrf(ErrUnsupported, "", nil, "%v out of %s range", v.Interface(), ic.cat)
	}
	switch ic.cat {
	case schema.Int8:
		return int8(s), nil
	case schema.Int16:
		return int16(s), nil
	case schema.Int32:
		return int32(s), nil
	case schema.Int64:
		return s, nil
	case schema.Uint8:
		return uint8(u), nil
	case schema.Uint16:
		return uint16(u), nil
	case schema.Uint32:
		return uint32(u), nil
	default:
		return u, nil
	}
}

func (ic intCodec) deserialize(dv any) (reflect.Value, error) {
	var s int64
	var u uint64
	var cat schema.Category
	switch x := dv.(type) {
	case int8:
		s, cat = int64(x), schema.Int8
	case int16:
		s, cat = int64(x), schema.Int16
	case int32:
		s, cat = int64(x), schema.Int32
	case int64:
		s, cat = x, schema.Int64
	case uint8:
		u, cat = uint64(x), schema.Uint8
	case uint16:
		u, cat = uint64(x), schema.Uint16
	case uint32:
		u, cat = uint64(x), schema.Uint32
	case uint64:
		u, cat = x, schema.Uint64
	}
	if cat != ic.cat {
		return reflect.Value{}, mismatchErr(ic.cat.String(), dv)
	}
	if cat < schema.Uint8 {
		if s >= 0 {
			u = uint64(s)
		}
	} else {
		s = int64(u)
	}
	rv := reflect.New(ic.t).Elem()
	if isIntKind(ic.t.Kind()) {
		if (cat >= schema.Uint8 && u > math.MaxInt64) || rv.OverflowInt(s) {
			return reflect.Value{}, codecErrf(ErrUnsupported, "", nil, "%v overflows %v", dv, ic.t)
		}
		rv.SetInt(s)
	} else {
		if (cat < schema.Uint8 && s < 0) || rv.OverflowUint(u) {
			return reflect.Value{}, codecErrf(ErrUnsupported, "", nil, "%v overflows %v", dv, ic.t)
		}
		rv.SetUint(u)
	}
	return rv, nil
}

type decimalCodec struct {
	t     reflect.Type
	scale uint8
}

func (dc decimalCodec) serialize(v reflect.Value) (any, error) {
	if dc.t == decimalType {
		d := v.Interface().(dom.Decimal64)
		if d.Scale == dc.scale {
			return d, nil
		}
		return rescale(d, dc.scale)
	}
	f := v.Float() * math.Pow10(int(dc.scale))
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, codecErrf(ErrUnsupported, "", nil, "%v cannot be represented as decimal64 with %d digits", v.Float(), dc.scale)
	}
	return dom.Decimal64{Unscaled: int64(math.Round(f)), Scale: dc.scale}, nil
}

func (dc decimalCodec) deserialize(dv any) (reflect.Value, error) {
	d, ok := dv.(dom.Decimal64)
	if !ok || d.Scale != dc.scale {
		return reflect.Value{}, mismatchErr("decimal64", dv)
	}
	if dc.t == decimalType {
		return reflect.ValueOf(d), nil
	}
	return reflect.ValueOf(d.Float64()).Convert(dc.t), nil
}

func rescale(d dom.Decimal64, scale uint8) (dom.Decimal64, error) {
	v := d.Unscaled
	for s := d.Scale; s < scale; s++ {
		if v > math.MaxInt64/10 || v < math.MinInt64/10 {
			return dom.Decimal64{}, codecErrf(ErrUnsupported, "", nil, "%v overflows decimal64 with %d digits", d, scale)
		}
		v *= 10
	}
	for s := d.Scale; s > scale; s-- {
		if v%10 != 0 {
			return dom.Decimal64{}, codecErrf(ErrUnsupported, "", nil, "%v has more than %d fraction digits", d, scale)
		}
		v /= 10
	}
	return dom.Decimal64{Unscaled: v, Scale: scale}, nil
}

type binaryCodec struct{ t reflect.Type }

func (binaryCodec) serialize(v reflect.Value) (any, error) {
	return bytes.Clone(v.Bytes()), nil
}

func (bc binaryCodec) deserialize(dv any) (reflect.Value, error) {
	b, ok := dv.([]byte)
	if !ok {
		return reflect.Value{}, mismatchErr("binary", dv)
	}
	return reflect.ValueOf(bytes.Clone(b)).Convert(bc.t), nil
}

// enumCodec binds an enumeration to an integer type carrying the assigned
// values, or to a string type carrying the names.
type enumCodec struct {
	t  reflect.Type
	st *schema.Type
}

func (ec enumCodec) serialize(v reflect.Value) (any, error) {
	if v.Kind() == reflect.String {
		if _, ok := ec.st.EnumByName(v.String()); !ok {
			return nil, codecErrf(ErrUnsupported, "", nil, "%q is not a member of %s", v.String(), ec.st)
		}
		return v.String(), nil
	}
	var n int64
	if isIntKind(v.Kind()) {
		n = v.Int()
	} else {
		n = int64(v.Uint())
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, codecErrf(ErrUnsupported, "", nil, "enum value %d out of range", n)
	}
	e, ok := ec.st.EnumByValue(int32(n))
	if !ok {
		return nil, codecErrf(ErrUnsupported, "", nil, "%d is not a value of %s", n, ec.st)
	}
	return e.Name, nil
}

func (ec enumCodec) deserialize(dv any) (reflect.Value, error) {
	s, ok := dv.(string)
	if !ok {
		return reflect.Value{}, mismatchErr("enumeration", dv)
	}
	e, ok := ec.st.EnumByName(s)
	if !ok {
		return reflect.Value{}, codecErrf(ErrIncorrectNesting, "", nil, "%q is not a member of %s", s, ec.st)
	}
	rv := reflect.New(ec.t).Elem()
	switch {
	case ec.t.Kind() == reflect.String:
		rv.SetString(s)
	case isIntKind(ec.t.Kind()):
		if rv.OverflowInt(int64(e.Value)) {
			return reflect.Value{}, codecErrf(ErrUnsupported, "", nil, "enum value %d overflows %v", e.Value, ec.t)
		}
		rv.SetInt(int64(e.Value))
	default:
		if e.Value < 0 || rv.OverflowUint(uint64(e.Value)) {
			return reflect.Value{}, codecErrf(ErrUnsupported, "", nil, "enum value %d overflows %v", e.Value, ec.t)
		}
		rv.SetUint(uint64(e.Value))
	}
	return rv, nil
}

type identityCodec struct {
	t   reflect.Type
	set *identitySet
}

func (ic identityCodec) serialize(v reflect.Value) (any, error) {
	q, ok := ic.set.byValue[v.Interface()]
	if !ok {
		return nil, codecErrf(ErrMissingClass, "", nil, "identity value %v of %v is not registered", v.Interface(), ic.t)
	}
	return q, nil
}

func (ic identityCodec) deserialize(dv any) (reflect.Value, error) {
	q, ok := dv.(dom.QName)
	if !ok {
		return reflect.Value{}, mismatchErr("identityref", dv)
	}
	v, ok := ic.set.byQName[q]
	if !ok {
		return reflect.Value{}, codecErrf(ErrMissingClass, "", nil, "identity %v has no %v value", q, ic.t)
	}
	return v, nil
}

// iiCodec converts nested instance identifiers through the owning Codec.
type iiCodec struct{ c *Codec }

func (ic iiCodec) serialize(v reflect.Value) (any, error) {
	p, _, err := ic.c.ToDOMPath(v.Interface().(InstanceIdentifier))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (ic iiCodec) deserialize(dv any) (reflect.Value, error) {
	p, ok := dv.(dom.Path)
	if !ok {
		return reflect.Value{}, mismatchErr("instance-identifier", dv)
	}
	ii, err := ic.c.FromDOMPath(p)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(ii), nil
}

// bitsCodec binds a bits type to a struct of bool fields, one per bit.
type bitsCodec struct {
	t    reflect.Type
	bits []bitField
}

type bitField struct {
	name     string
	position uint32
	index    []int
}

func (c *Codec) bitsCodec(leaf *schema.Node, st *schema.Type, gt reflect.Type) (valueCodec, error) {
	key := valueKey{typ: gt, schema: st}
	c.mu.Lock()
	bc := c.bits[key]
	c.mu.Unlock()
	if bc != nil {
		return bc, nil
	}

	bc = &bitsCodec{t: gt}
	for _, fi := range c.structInfo(gt).fields {
		if fi.Type.Kind() != reflect.Bool {
			return nil, codecErrf(ErrUnsupported, leaf.SchemaPath(), nil, "bits field %v.%s must be a bool", gt, fi.Name)
		}
		b, ok := st.BitByName(fi.YangName)
		if !ok {
			return nil, codecErrf(ErrIncorrectNesting, leaf.SchemaPath(), nil, "%v.%s matches no bit of %s", gt, fi.Name, st)
		}
		bc.bits = append(bc.bits, bitField{b.Name, b.Position, fi.Index})
	}
	slices.SortFunc(bc.bits, func(a, b bitField) int { return int(a.position) - int(b.position) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev := c.bits[key]; prev != nil {
		return prev, nil
	}
	c.bits[key] = bc
	return bc, nil
}

func (bc *bitsCodec) serialize(v reflect.Value) (any, error) {
	out := dom.Bits{}
	for _, b := range bc.bits {
		if v.FieldByIndex(b.index).Bool() {
			out = append(out, b.name)
		}
	}
	return out, nil
}

func (bc *bitsCodec) deserialize(dv any) (reflect.Value, error) {
	bits, ok := dv.(dom.Bits)
	if !ok {
		return reflect.Value{}, mismatchErr("bits", dv)
	}
	rv := reflect.New(bc.t).Elem()
	for _, name := range bits {
		i := slices.IndexFunc(bc.bits, func(b bitField) bool { return b.name == name })
		if i < 0 {
			return reflect.Value{}, codecErrf(ErrIncorrectNesting, "", nil, "unknown bit %q for %v", name, bc.t)
		}
		rv.FieldByIndex(bc.bits[i].index).SetBool(true)
	}
	return rv, nil
}

// unionCodec binds a union to a struct with one nilable field per member
// type, in declaration order. Deserialization tries members in that order
// and the first to accept the value wins.
type unionCodec struct {
	t       reflect.Type
	members []unionMember
}

type unionMember struct {
	index []int
	ptr   bool
	elem  reflect.Type
	codec valueCodec
}

func (c *Codec) unionCodec(leaf *schema.Node, st *schema.Type, gt reflect.Type, visiting []*schema.Node) (valueCodec, error) {
	key := valueKey{typ: gt, schema: st}
	if hasLeafref(st) {
		key.leaf = leaf
	}
	c.mu.Lock()
	uc := c.unions[key]
	c.mu.Unlock()
	if uc != nil {
		return uc, nil
	}

	fields := c.structInfo(gt).fields
	if len(fields) != len(st.Members) {
		return nil, codecErrf(ErrUnsupported, leaf.SchemaPath(), nil, "union %v has %d fields, %s has %d members", gt, len(fields), st, len(st.Members))
	}
	uc = &unionCodec{t: gt}
	for i, mt := range st.Members {
		fi := fields[i]
		m := unionMember{index: fi.Index, elem: fi.Type}
		switch fi.Type.Kind() {
		case reflect.Pointer:
			m.ptr, m.elem = true, fi.Type.Elem()
		case reflect.Slice, reflect.Interface:
		default:
			return nil, codecErrf(ErrUnsupported, leaf.SchemaPath(), nil, "union field %v.%s must be nilable", gt, fi.Name)
		}
		mc, err := c.valueCodec(leaf, mt, m.elem, visiting)
		if err != nil {
			return nil, err
		}
		m.codec = mc
		uc.members = append(uc.members, m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev := c.unions[key]; prev != nil {
		return prev, nil
	}
	c.unions[key] = uc
	return uc, nil
}

func (uc *unionCodec) serialize(v reflect.Value) (any, error) {
	for _, m := range uc.members {
		f := v.FieldByIndex(m.index)
		if f.IsNil() {
			continue
		}
		if m.ptr {
			f = f.Elem()
		}
		return m.codec.serialize(f)
	}
	return nil, codecErrf(ErrUnsupported, "", nil, "union %v has no member set", uc.t)
}

func (uc *unionCodec) deserialize(dv any) (reflect.Value, error) {
	for _, m := range uc.members {
		mv, err := m.codec.deserialize(dv)
		if err != nil {
			continue
		}
		rv := reflect.New(uc.t).Elem()
		f := rv.FieldByIndex(m.index)
		if m.ptr {
			p := reflect.New(m.elem)
			p.Elem().Set(mv)
			f.Set(p)
		} else {
			f.Set(mv)
		}
		return rv, nil
	}
	return reflect.Value{}, mismatchErr(uc.t.String(), dv)
}
