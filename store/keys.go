package store

import (
	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/potassium"
)

// keyMarker leads every fragment key, so that the root path has a non-empty
// key.
const keyMarker = 0x01

// encodeKey writes the path arguments one after another without a count, so
// the key of a path is a byte prefix of the keys of its descendants.
func encodeKey(p dom.Path) ([]byte, error) {
	w := potassium.NewWriter()
	for _, arg := range p {
		if err := w.WritePathArgument(arg); err != nil {
			return nil, err
		}
	}
	key := make([]byte, 0, 1+w.Len())
	key = append(key, keyMarker)
	return append(key, w.Bytes()...), nil
}

func decodeKey(key []byte) (dom.Path, error) {
	if len(key) == 0 || key[0] != keyMarker {
		return nil, dataErrf(key, 0, nil, "invalid key marker")
	}
	r := potassium.NewReader(key[1:])
	var p dom.Path
	for r.Remaining() > 0 {
		arg, err := r.ReadPathArgument()
		if err != nil {
			return nil, dataErrf(key, len(key)-r.Remaining(), err, "invalid key")
		}
		p = append(p, arg)
	}
	return p, nil
}
