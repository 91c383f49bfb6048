package dom

import (
	"fmt"
	"strings"
)

// QName is a namespace-qualified name of a schema node, identity or key.
type QName struct {
	Namespace string
	Revision  string
	Local     string
}

func NewQName(namespace, revision, local string) QName {
	return QName{Namespace: namespace, Revision: revision, Local: local}
}

// WithLocal returns a QName in the same module with a different local name.
func (q QName) WithLocal(local string) QName {
	q.Local = local
	return q
}

// SameModule reports whether both names come from the same namespace and revision.
func (q QName) SameModule(o QName) bool {
	return q.Namespace == o.Namespace && q.Revision == o.Revision
}

func (q QName) IsZero() bool {
	return q == QName{}
}

func (q QName) Compare(o QName) int {
	if c := strings.Compare(q.Namespace, o.Namespace); c != 0 {
		return c
	}
	if c := strings.Compare(q.Revision, o.Revision); c != 0 {
		return c
	}
	return strings.Compare(q.Local, o.Local)
}

func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	if q.Revision == "" {
		return "(" + q.Namespace + ")" + q.Local
	}
	return "(" + q.Namespace + "?revision=" + q.Revision + ")" + q.Local
}

// ParseQName parses the format produced by QName.String.
func ParseQName(s string) (QName, error) {
	if !strings.HasPrefix(s, "(") {
		if s == "" {
			return QName{}, fmt.Errorf("empty qname")
		}
		return QName{Local: s}, nil
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return QName{}, fmt.Errorf("invalid qname %q: missing ')'", s)
	}
	mod, local := s[1:end], s[end+1:]
	if local == "" {
		return QName{}, fmt.Errorf("invalid qname %q: empty local name", s)
	}
	ns, rev, _ := strings.Cut(mod, "?revision=")
	return QName{Namespace: ns, Revision: rev, Local: local}, nil
}
