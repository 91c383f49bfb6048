package bindom

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncorrectNesting means a path does not match the schema at some
	// segment, or cannot be represented as a typed path.
	ErrIncorrectNesting = errors.New("incorrect nesting")
	// ErrMissingSchema means the schema context has no module for a
	// referenced namespace. Fix by rebuilding the codec with a newer schema.
	ErrMissingSchema = errors.New("missing schema")
	// ErrMissingClass means the schema knows the node but the loader has no
	// class for it. Fix by rebuilding the codec with a complete loader.
	ErrMissingClass = errors.New("missing class")
	// ErrUnsupported means the request is structurally valid but meaningless,
	// like addressing a child of a leaf.
	ErrUnsupported = errors.New("unsupported operation")
)

// CodecError carries one of the error kinds above. Path describes where in
// the schema or the typed tree the failure happened.
type CodecError struct {
	Kind error
	Path string
	Msg  string
	Err  error
}

func codecErrf(kind error, path string, err error, format string, args ...any) error {
	return &CodecError{kind, path, fmt.Sprintf(format, args...), err}
}

func (e *CodecError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func (e *CodecError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Kind.Error())
	if e.Path != "" {
		buf.WriteString(" at ")
		buf.WriteString(e.Path)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
