package incidentbridge

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/incident-bridge/errors"
)

// Memory represents guest linear memory
type Memory interface {
	// Read returns a view of guest memory; it is invalidated by the next guest call.
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	Size() uint32
}

// Allocator allocates memory in guest linear memory
type Allocator interface {
	Alloc(ctx context.Context, size uint32) (uint32, error)
	// Reset frees every allocation made since instantiation or the last Reset.
	Reset(ctx context.Context) error
}

// ReadCString copies the NUL-terminated UTF-8 string at ptr. Strings longer
// than limit bytes, unterminated strings and invalid UTF-8 are rejected.
func ReadCString(m Memory, ptr, limit uint32, path ...string) (string, error) {
	if ptr == 0 {
		return "", errors.Marshal(errors.PhaseDecode, path, "null string pointer")
	}
	size := m.Size()
	if ptr >= size {
		return "", errors.OutOfBounds(errors.PhaseDecode, path, ptr, size)
	}

	window := size - ptr
	truncated := false
	if limit > 0 && uint64(window) > uint64(limit)+1 {
		window = limit + 1
		truncated = true
	}

	view, err := m.Read(ptr, window)
	if err != nil {
		return "", err
	}
	n := bytes.IndexByte(view, 0)
	if n < 0 {
		if truncated {
			return "", errors.Marshal(errors.PhaseDecode, path, "string exceeds limit")
		}
		return "", errors.Marshal(errors.PhaseDecode, path, "unterminated string")
	}
	if !utf8.Valid(view[:n]) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, path, view[:n])
	}
	return string(view[:n]), nil
}

// WriteCString allocates len(s)+1 bytes and writes s with its terminator.
// s must not contain NUL and must be valid UTF-8.
func WriteCString(ctx context.Context, m Memory, a Allocator, s string, path ...string) (uint32, error) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return 0, errors.EmbeddedNUL(path, i)
	}
	if !utf8.ValidString(s) {
		return 0, errors.InvalidUTF8(errors.PhaseEncode, path, []byte(s))
	}

	ptr, err := a.Alloc(ctx, uint32(len(s))+1)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if err := m.Write(ptr, buf); err != nil {
		return 0, err
	}
	return ptr, nil
}
