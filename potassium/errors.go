package potassium

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupted is matched by every decoding failure.
	ErrCorrupted = errors.New("corrupted potassium stream")
	// ErrUnsupportedValue is returned when writing a value of a type the
	// format cannot represent. The stream is unusable afterwards.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// CorruptionError describes where decoding failed.
type CorruptionError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func corruptf(data []byte, off int, err error, format string, args ...any) error {
	return &CorruptionError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorrupted
}

func (e *CorruptionError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var data string
	if n <= prefixLen+suffixLen {
		data = fmt.Sprintf("(%d) %x", n, e.Data)
	} else {
		data = fmt.Sprintf("(%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	if e.Err != nil {
		return fmt.Sprintf("%s at offset %d: %v: %s", e.Msg, e.Off, e.Err, data)
	}
	return fmt.Sprintf("%s at offset %d: %s", e.Msg, e.Off, data)
}
