package dom

import (
	"strings"
)

// Path is a generic tree path. The empty path addresses the root.
type Path []PathArgument

func NewPath(args ...PathArgument) Path {
	return Path(args)
}

func (p Path) IsEmpty() bool {
	return len(p) == 0
}

// Append returns a new path; p itself is never modified.
func (p Path) Append(args ...PathArgument) Path {
	r := make(Path, 0, len(p)+len(args))
	r = append(r, p...)
	return append(r, args...)
}

func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1 : len(p)-1]
}

func (p Path) Last() PathArgument {
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if !EqualPathArguments(p[i], o[i]) {
			return false
		}
	}
	return true
}

func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && p[:len(prefix)].Equal(prefix)
}

func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var buf strings.Builder
	for _, arg := range p {
		buf.WriteByte('/')
		buf.WriteString(arg.String())
	}
	return buf.String()
}
