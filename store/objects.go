package store

import (
	"fmt"

	"github.com/andreyvit/bindom"
)

// PutObject serializes obj through the codec and stores the resulting
// fragment at the DOM path of ii.
func (s *Store) PutObject(c *bindom.Codec, ii bindom.InstanceIdentifier, obj any) error {
	p, n, err := c.ToNormalizedNode(ii, obj)
	if err != nil {
		return fmt.Errorf("store: serialize %v: %w", ii, err)
	}
	return s.Put(p, n)
}

// GetObject loads the fragment stored for ii and deserializes it.
func (s *Store) GetObject(c *bindom.Codec, ii bindom.InstanceIdentifier) (any, error) {
	p, _, err := c.ToDOMPath(ii)
	if err != nil {
		return nil, fmt.Errorf("store: path for %v: %w", ii, err)
	}
	n, err := s.Get(p)
	if err != nil {
		return nil, err
	}
	_, obj, err := c.FromNormalizedNode(p, n)
	if err != nil {
		return nil, fmt.Errorf("store: deserialize %v: %w", p, err)
	}
	return obj, nil
}

// GetObjectAs is GetObject for callers that know the bound type.
func GetObjectAs[T any](s *Store, c *bindom.Codec, ii bindom.InstanceIdentifier) (*T, error) {
	obj, err := s.GetObject(c, ii)
	if err != nil {
		return nil, err
	}
	v, ok := obj.(*T)
	if !ok {
		return nil, fmt.Errorf("store: %v holds %T, not *%T", ii, obj, *new(T))
	}
	return v, nil
}
