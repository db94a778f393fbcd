package resource

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("resource arena closed")

// Handle is an opaque reference to an arena entry.
// The zero Handle is always invalid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool {
	return h.index == 0
}

type entry struct {
	rep   uint32
	gen   uint32
	frame int
	valid bool
}

// Arena is an in-memory handle table with frame scoping.
type Arena struct {
	entries  []entry
	freeList []uint32
	live     int
	mu       sync.RWMutex
	closed   bool
}

func NewArena() *Arena {
	return &Arena{
		entries:  make([]entry, 0, 16),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert stores rep for the given frame and returns its handle.
func (a *Arena) Insert(rep uint32, frame int) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return Handle{}, ErrClosed
	}

	a.live++
	if len(a.freeList) > 0 {
		idx := a.freeList[len(a.freeList)-1]
		a.freeList = a.freeList[:len(a.freeList)-1]
		e := &a.entries[idx-1]
		e.rep = rep
		e.frame = frame
		e.valid = true
		return Handle{index: idx, gen: e.gen}, nil
	}

	a.entries = append(a.entries, entry{rep: rep, gen: 1, frame: frame, valid: true})
	return Handle{index: uint32(len(a.entries)), gen: 1}, nil
}

// Get returns the representation for a live handle.
func (a *Arena) Get(h Handle) (uint32, bool) {
	if h.index == 0 {
		return 0, false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed || int(h.index) > len(a.entries) {
		return 0, false
	}
	e := a.entries[h.index-1]
	if !e.valid || e.gen != h.gen {
		return 0, false
	}
	return e.rep, true
}

// PopFrame invalidates all entries created at frame or deeper and returns
// how many were dropped.
func (a *Arena) PopFrame(frame int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	dropped := 0
	for i := range a.entries {
		e := &a.entries[i]
		if !e.valid || e.frame < frame {
			continue
		}
		a.drop(uint32(i + 1))
		dropped++
	}
	return dropped
}

// Len returns the number of live entries.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

// Close invalidates every entry and stops accepting inserts.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	for i := range a.entries {
		if a.entries[i].valid {
			a.drop(uint32(i + 1))
		}
	}
	a.freeList = nil
	return nil
}

func (a *Arena) drop(idx uint32) {
	e := &a.entries[idx-1]
	e.valid = false
	e.rep = 0
	e.gen++
	a.live--
	if !a.closed {
		a.freeList = append(a.freeList, idx)
	}
}
