package incidentbridge_test

import (
	"context"
	"math"
	"testing"

	incidentbridge "github.com/wippyai/incident-bridge"
	"github.com/wippyai/incident-bridge/errors"
)

// flatMemory is a fixed-size memory with a bump allocator.
type flatMemory struct {
	data []byte
	next uint32
}

func newFlatMemory(size int) *flatMemory {
	return &flatMemory{data: make([]byte, size), next: 8}
}

func (m *flatMemory) Read(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, nil, offset, m.Size())
	}
	return m.data[offset : offset+length], nil
}

func (m *flatMemory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, offset, m.Size())
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *flatMemory) Size() uint32 { return uint32(len(m.data)) }

func (m *flatMemory) Alloc(_ context.Context, size uint32) (uint32, error) {
	p := m.next
	m.next += size
	return p, nil
}

func (m *flatMemory) Reset(context.Context) error {
	m.next = 8
	return nil
}

func TestReadCString(t *testing.T) {
	ctx := context.Background()
	mem := newFlatMemory(64)
	ptr, err := incidentbridge.WriteCString(ctx, mem, mem, "hello")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		ptr   uint32
		limit uint32
		want  string
		fails bool
	}{
		{"no limit", ptr, 0, "hello", false},
		{"exact limit", ptr, 5, "hello", false},
		{"largest limit", ptr, math.MaxUint32, "hello", false},
		{"over limit", ptr, 4, "", true},
		{"null pointer", 0, 0, "", true},
		{"past end", 64, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := incidentbridge.ReadCString(mem, tt.ptr, tt.limit)
			if tt.fails {
				if !errors.Is(err, errors.ErrMarshal) {
					t.Fatalf("ReadCString = %q, %v; want marshal error", got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ReadCString = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestReadCString_Unterminated(t *testing.T) {
	mem := newFlatMemory(16)
	for i := range mem.data {
		mem.data[i] = 'x'
	}
	if _, err := incidentbridge.ReadCString(mem, 4, 0); !errors.Is(err, errors.ErrMarshal) {
		t.Fatalf("err = %v, want marshal error", err)
	}
}

func TestWriteCString_Rejects(t *testing.T) {
	ctx := context.Background()
	for _, s := range []string{"a\x00b", "\xff"} {
		mem := newFlatMemory(32)
		if _, err := incidentbridge.WriteCString(ctx, mem, mem, s); !errors.Is(err, errors.ErrMarshal) {
			t.Fatalf("WriteCString(%q) = %v, want marshal error", s, err)
		}
		if mem.next != 8 {
			t.Fatalf("WriteCString(%q) allocated before rejecting", s)
		}
	}
}
