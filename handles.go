package quickbridge

import (
	"errors"
	"sync"
)

var (
	// ErrStaleHandle is returned when a handle refers to a slot that was
	// already closed, or was never issued by this process.
	ErrStaleHandle = errors.New("stale or unknown handle")

	// ErrHandleBorrowed is returned when a handle's value is currently
	// checked out by another boundary crossing.
	ErrHandleBorrowed = errors.New("handle is checked out")
)

const (
	slotFree = iota
	slotFull
	slotBorrowed
)

// maxHandleSlots bounds the slot index so it always fits the high half of a
// handle.
const maxHandleSlots = 1 << 31

// slot holds one boxed value. The generation increments every time the slot
// is retired, so handles minted for earlier occupants stop resolving instead
// of aliasing the new occupant.
type slot struct {
	value any
	gen   uint32
	state int
}

// handleTable is a generation-tagged arena mapping int64 handles to live
// bridge values. A handle packs the slot index in the high 32 bits and the
// slot generation in the low 32 bits, so a handle is only valid for the
// occupant it was issued for.
type handleTable struct {
	mu    sync.Mutex
	slots []slot
	free  []int32
}

// handles is the shared table for every runtime, context and wrapper handle
// issued by this package.
var handles = &handleTable{}

func packHandle(idx int32, gen uint32) int64 {
	return int64(idx)<<32 | int64(gen)
}

func splitHandle(h int64) (int32, uint32) {
	return int32(h >> 32), uint32(h)
}

// lookup resolves a handle to its slot. The caller must hold t.mu.
func (t *handleTable) lookup(h int64) (*slot, error) {
	idx, gen := splitHandle(h)
	if idx < 0 || int(idx) >= len(t.slots) {
		return nil, ErrStaleHandle
	}
	s := &t.slots[idx]
	if s.gen != gen || s.state == slotFree {
		return nil, ErrStaleHandle
	}
	return s, nil
}

// box stores v in the table and returns a fresh handle for it.
func (t *handleTable) box(v any) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx int32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if len(t.slots) >= maxHandleSlots {
			panic("quickbridge: handle table exhausted")
		}
		t.slots = append(t.slots, slot{gen: 1})
		idx = int32(len(t.slots) - 1)
	}

	s := &t.slots[idx]
	s.value = v
	s.state = slotFull
	return packHandle(idx, s.gen)
}

// unbox transfers the value out of the table to the caller. The slot stays
// reserved at the same generation until rebox, discard or a failed close, so
// the handle cannot be reissued while the value is on loan.
func (t *handleTable) unbox(h int64) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	if s.state == slotBorrowed {
		return nil, ErrHandleBorrowed
	}
	v := s.value
	s.value = nil
	s.state = slotBorrowed
	return v, nil
}

// rebox returns a borrowed value to its slot, making the handle usable again.
func (t *handleTable) rebox(h int64, v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(h)
	if err != nil {
		return err
	}
	if s.state != slotBorrowed {
		return ErrHandleBorrowed
	}
	s.value = v
	s.state = slotFull
	return nil
}

// close retires a handle. The slot's generation advances and the slot is
// recycled, so any further use of the handle reports ErrStaleHandle.
func (t *handleTable) close(h int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(h)
	if err != nil {
		return err
	}
	if s.state == slotBorrowed {
		return ErrHandleBorrowed
	}
	t.retire(h, s)
	return nil
}

// discard retires a handle whose value the caller has already unboxed. It is
// the close path used by owners that consume their value during shutdown.
func (t *handleTable) discard(h int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(h)
	if err != nil {
		return err
	}
	if s.state != slotBorrowed {
		return ErrHandleBorrowed
	}
	t.retire(h, s)
	return nil
}

// retire clears a slot and pushes it on the free list. The caller must hold
// t.mu and have verified the slot against the handle.
func (t *handleTable) retire(h int64, s *slot) {
	idx, _ := splitHandle(h)
	s.value = nil
	s.state = slotFree
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	t.free = append(t.free, idx)
}

// count reports how many slots currently hold or lend a value.
func (t *handleTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for i := range t.slots {
		if t.slots[i].state != slotFree {
			n++
		}
	}
	return n
}

// clear drops every slot. Outstanding handles all become stale. Intended for
// test harnesses that need a clean table between cases.
func (t *handleTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = nil
	t.free = nil
}

// HandleCount reports the number of live runtime, context and wrapper
// handles. Useful in tests that verify every issued handle is closed.
func HandleCount() int {
	return handles.count()
}
