package quickbridge

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID extracts the current goroutine number from the runtime stack
// header, which always starts with "goroutine N [".
func goroutineID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}

// scopeEntry tracks one checked-out context on a goroutine's scope stack.
// depth counts how many boundary crossings on this goroutine currently use
// the entry; reentrant crossings share the entry instead of unboxing the
// context a second time.
type scopeEntry struct {
	handle int64
	core   *contextCore
	depth  int
}

// scopeStack keeps a per-goroutine stack of active contexts. A context can
// only be checked out of the handle table once, so a host callback that
// calls back into its own context must reuse the entry that is already on
// the stack. Entries are popped, and their contexts reboxed, strictly in
// reverse order of entry.
type scopeStack struct {
	mu     sync.Mutex
	active map[uint64][]*scopeEntry
}

var scopes = &scopeStack{active: make(map[uint64][]*scopeEntry)}

// enter resolves a context handle for one boundary crossing. The returned
// release must be called on every exit path. first reports whether this is
// the outermost crossing on the current goroutine, which is when per-entry
// state such as the execution deadline is armed.
func (s *scopeStack) enter(h int64) (core *contextCore, first bool, release func(), err error) {
	gid := goroutineID()

	s.mu.Lock()
	stack := s.active[gid]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].handle == h {
			e := stack[i]
			e.depth++
			s.mu.Unlock()
			return e.core, false, func() { s.release(gid, e) }, nil
		}
	}
	s.mu.Unlock()

	v, err := handles.unbox(h)
	if err != nil {
		return nil, false, nil, err
	}
	cc, ok := v.(*contextCore)
	if !ok {
		if rbErr := handles.rebox(h, v); rbErr != nil {
			slog.Error("Failed to return non-context value to handle table", "error", rbErr)
		}
		return nil, false, nil, fmt.Errorf("%w: not a context handle", ErrStaleHandle)
	}

	e := &scopeEntry{handle: h, core: cc, depth: 1}
	s.mu.Lock()
	first = len(s.active[gid]) == 0
	s.active[gid] = append(s.active[gid], e)
	s.mu.Unlock()

	return cc, first, func() { s.release(gid, e) }, nil
}

// release unwinds one crossing. When the top entries of the goroutine's
// stack have fully unwound they are popped and their contexts reboxed.
func (s *scopeStack) release(gid uint64, e *scopeEntry) {
	var popped []*scopeEntry

	s.mu.Lock()
	e.depth--
	stack := s.active[gid]
	for len(stack) > 0 && stack[len(stack)-1].depth == 0 {
		popped = append(popped, stack[len(stack)-1])
		stack = stack[:len(stack)-1]
	}
	if len(stack) == 0 {
		delete(s.active, gid)
	} else {
		s.active[gid] = stack
	}
	s.mu.Unlock()

	for _, p := range popped {
		if err := handles.rebox(p.handle, p.core); err != nil {
			slog.Error("Failed to return context handle after crossing", "error", err)
		}
	}
}
