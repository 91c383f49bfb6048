package bindom

import (
	"fmt"
	"reflect"
)

// Augmentations holds the augmentation objects attached to a data object,
// keyed by augmentation class. Values are pointers to the classes.
type Augmentations map[reflect.Type]any

// Add stores aug, a pointer to a registered augmentation class, replacing
// any previous value of the same class.
func (augs *Augmentations) Add(aug any) {
	t := reflect.TypeOf(aug)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		panic(fmt.Errorf("augmentation must be a pointer to a struct, got %T", aug))
	}
	if *augs == nil {
		*augs = make(Augmentations)
	}
	(*augs)[t.Elem()] = aug
}

// Augmentation returns the augmentation of class A, or nil.
func Augmentation[A any](augs Augmentations) *A {
	v, _ := augs[reflect.TypeFor[A]()].(*A)
	return v
}

// Opaque is the content of an anydata or anyxml node. Body is carried as is.
type Opaque struct {
	Body any
	XML  bool
}
