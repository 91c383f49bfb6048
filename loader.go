package bindom

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/andreyvit/bindom/dom"
)

type classKind uint8

const (
	classData classKind = iota
	classList
	classChoice
	classCase
	classAugmentation
	classNotification
	classRPCInput
	classRPCOutput
)

var classKindNames = [...]string{
	classData:         "data",
	classList:         "list",
	classChoice:       "choice",
	classCase:         "case",
	classAugmentation: "augmentation",
	classNotification: "notification",
	classRPCInput:     "rpc input",
	classRPCOutput:    "rpc output",
}

func (k classKind) String() string { return classKindNames[k] }

// Class describes a registered binding type.
type Class struct {
	Type reflect.Type
	// Name is the fully qualified class name, PkgPath.TypeName by default.
	// It decides ambiguous legacy lookups, so it must be unique.
	Name string
	// QName is the schema node the class binds to. An empty Namespace marks
	// a class generated from a grouping: it binds to any node with the right
	// local name, taking the namespace from where it is used.
	QName dom.QName

	kind   classKind
	key    reflect.Type
	choice reflect.Type
	target reflect.Type
	module string
	parent reflect.Type
}

func (c *Class) String() string { return c.Name }

// Key returns the key type of a keyed list entry class.
func (c *Class) Key() reflect.Type { return c.key }

func (c *Class) matches(q dom.QName) bool {
	if c.QName.Namespace == "" {
		return c.QName.Local == q.Local
	}
	return c.QName == q
}

// Loader is the class loading strategy: the set of binding types a Codec
// may instantiate. Register everything before passing the loader to New;
// a Loader is read-only afterwards.
type Loader struct {
	classes       map[reflect.Type]*Class
	byName        map[string]*Class
	data          map[dom.QName]*Class
	notifications map[dom.QName]*Class
	rpcInputs     map[dom.QName]*Class
	rpcOutputs    map[dom.QName]*Class
	identities    map[reflect.Type]*identitySet
}

type identitySet struct {
	byQName map[dom.QName]reflect.Value
	byValue map[any]dom.QName
}

func NewLoader() *Loader {
	return &Loader{
		classes:       make(map[reflect.Type]*Class),
		byName:        make(map[string]*Class),
		data:          make(map[dom.QName]*Class),
		notifications: make(map[dom.QName]*Class),
		rpcInputs:     make(map[dom.QName]*Class),
		rpcOutputs:    make(map[dom.QName]*Class),
		identities:    make(map[reflect.Type]*identitySet),
	}
}

type RegisterOption func(c *Class)

// ClassName overrides the fully qualified class name.
func ClassName(fqn string) RegisterOption {
	return func(c *Class) {
		c.Name = fqn
	}
}

// Parent restricts the class to be instantiated only under P.
func Parent[P any]() RegisterOption {
	return func(c *Class) {
		c.parent = reflect.TypeFor[P]()
	}
}

// Register adds a container (or unkeyed list entry) class.
func Register[T any](l *Loader, q dom.QName, opts ...RegisterOption) *Class {
	return l.add(structType[T](), q, classData, opts)
}

// RegisterList adds a keyed list entry class T with key class K. The fields
// of K must match key leaf fields of T by name.
func RegisterList[T, K any](l *Loader, q dom.QName, opts ...RegisterOption) *Class {
	c := l.add(structType[T](), q, classList, opts)
	c.key = structType[K]()
	for i := range c.key.NumField() {
		kf := c.key.Field(i)
		if !kf.IsExported() {
			continue
		}
		ef, ok := c.Type.FieldByName(kf.Name)
		if !ok || ef.Type != kf.Type {
			panic(fmt.Errorf("key %v field %s has no matching field in %v", c.key, kf.Name, c.Type))
		}
	}
	return c
}

// RegisterChoice adds a choice. C must be an interface implemented by the
// pointer types of its cases.
func RegisterChoice[C any](l *Loader, q dom.QName, opts ...RegisterOption) *Class {
	t := reflect.TypeFor[C]()
	if t.Kind() != reflect.Interface {
		panic(fmt.Errorf("choice %v must be an interface", t))
	}
	return l.add(t, q, classChoice, opts)
}

// RegisterCase adds case T of choice C.
func RegisterCase[T, C any](l *Loader, q dom.QName, opts ...RegisterOption) *Class {
	t := structType[T]()
	ct := reflect.TypeFor[C]()
	if l.classes[ct] == nil || l.classes[ct].kind != classChoice {
		panic(fmt.Errorf("case %v: choice %v is not registered", t, ct))
	}
	if !reflect.PointerTo(t).Implements(ct) {
		panic(fmt.Errorf("case %v: *%v does not implement %v", t, t, ct))
	}
	c := l.add(t, q, classCase, opts)
	c.choice = ct
	return c
}

// RegisterAugmentation adds class A holding the nodes that module adds to
// the data object bound to Target.
func RegisterAugmentation[A, Target any](l *Loader, module string, opts ...RegisterOption) *Class {
	if module == "" {
		panic(fmt.Errorf("augmentation %v: module name required", reflect.TypeFor[A]()))
	}
	c := l.add(structType[A](), dom.QName{}, classAugmentation, opts)
	c.target = structType[Target]()
	c.module = module
	return c
}

func RegisterNotification[T any](l *Loader, q dom.QName, opts ...RegisterOption) *Class {
	return l.add(structType[T](), q, classNotification, opts)
}

func RegisterRPCInput[T any](l *Loader, rpc dom.QName, opts ...RegisterOption) *Class {
	return l.add(structType[T](), rpc, classRPCInput, opts)
}

func RegisterRPCOutput[T any](l *Loader, rpc dom.QName, opts ...RegisterOption) *Class {
	return l.add(structType[T](), rpc, classRPCOutput, opts)
}

// RegisterIdentity binds identity q to v. Identityref leaves of type T then
// carry values registered here.
func RegisterIdentity[T comparable](l *Loader, q dom.QName, v T) {
	if q.Namespace == "" {
		panic(fmt.Errorf("identity %v must be namespace-qualified", q))
	}
	t := reflect.TypeFor[T]()
	set := l.identities[t]
	if set == nil {
		set = &identitySet{
			byQName: make(map[dom.QName]reflect.Value),
			byValue: make(map[any]dom.QName),
		}
		l.identities[t] = set
	}
	if _, dup := set.byQName[q]; dup {
		panic(fmt.Errorf("identity %v registered twice for %v", q, t))
	}
	if prev, dup := set.byValue[v]; dup {
		panic(fmt.Errorf("identity value %v already bound to %v", v, prev))
	}
	set.byQName[q] = reflect.ValueOf(v)
	set.byValue[v] = q
}

func structType[T any]() reflect.Type {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		panic(fmt.Errorf("binding class %v must be a struct", t))
	}
	return t
}

func (l *Loader) add(t reflect.Type, q dom.QName, kind classKind, opts []RegisterOption) *Class {
	if kind != classAugmentation && q.Local == "" {
		panic(fmt.Errorf("%s class %v: QName required", kind, t))
	}
	if l.classes[t] != nil {
		panic(fmt.Errorf("class %v registered twice", t))
	}
	c := &Class{
		Type:  t,
		Name:  t.PkgPath() + "." + t.Name(),
		QName: q,
		kind:  kind,
	}
	for _, opt := range opts {
		opt(c)
	}
	if prev := l.byName[c.Name]; prev != nil {
		panic(fmt.Errorf("class name %s used by both %v and %v", c.Name, prev.Type, t))
	}

	var index map[dom.QName]*Class
	switch kind {
	case classData, classList:
		if q.Namespace != "" {
			index = l.data
		}
	case classNotification:
		index = l.notifications
	case classRPCInput:
		index = l.rpcInputs
	case classRPCOutput:
		index = l.rpcOutputs
	}
	if index != nil {
		if prev := index[q]; prev != nil {
			panic(fmt.Errorf("%s %v bound to both %v and %v", kind, q, prev.Type, t))
		}
		index[q] = c
	}
	l.classes[t] = c
	l.byName[c.Name] = c
	return c
}

// Class returns the class registered for t, or nil.
func (l *Loader) Class(t reflect.Type) *Class {
	return l.classes[t]
}

// Classes returns all registered classes ordered by name.
func (l *Loader) Classes() []*Class {
	out := slices.Collect(maps.Values(l.classes))
	slices.SortFunc(out, func(a, b *Class) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Without returns a copy of the loader lacking the given types, modelling
// an outdated class loading strategy.
func (l *Loader) Without(types ...reflect.Type) *Loader {
	r := NewLoader()
	for _, c := range l.Classes() {
		if slices.Contains(types, c.Type) {
			continue
		}
		r.classes[c.Type] = c
		r.byName[c.Name] = c
		switch c.kind {
		case classData, classList:
			if c.QName.Namespace != "" {
				r.data[c.QName] = c
			}
		case classNotification:
			r.notifications[c.QName] = c
		case classRPCInput:
			r.rpcInputs[c.QName] = c
		case classRPCOutput:
			r.rpcOutputs[c.QName] = c
		}
	}
	for t, set := range l.identities {
		if !slices.Contains(types, t) {
			r.identities[t] = set
		}
	}
	return r
}

// cases returns the registered cases of choice ct ordered by class name.
func (l *Loader) cases(ct reflect.Type) []*Class {
	var out []*Class
	for _, c := range l.classes {
		if c.kind == classCase && c.choice == ct {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *Class) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (l *Loader) augmentation(target reflect.Type, module string) *Class {
	for _, c := range l.classes {
		if c.kind == classAugmentation && c.target == target && c.module == module {
			return c
		}
	}
	return nil
}
