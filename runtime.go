package quickbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Gaurav-Gosain/quickjs"
)

// Option configures a Runtime at construction time.
type Option func(*runtimeCore)

// WithMemoryLimit caps engine heap usage in bytes. Allocation beyond the
// limit fails script execution with an out of memory error.
func WithMemoryLimit(bytes uint32) Option {
	return func(rc *runtimeCore) { rc.memoryLimit = bytes }
}

// WithMaxStackSize caps the engine's script stack in bytes.
func WithMaxStackSize(bytes uint32) Option {
	return func(rc *runtimeCore) { rc.maxStackSize = bytes }
}

// WithRuntimeLimit arms a deadline for each outermost boundary crossing.
// The limit is enforced at the bridge's cooperative checkpoints, so a
// script only observes it when control reaches the host, for example on a
// host function call.
func WithRuntimeLimit(d time.Duration) Option {
	return func(rc *runtimeCore) { rc.limit = d }
}

// WithInterruptHandler installs a predicate polled at every boundary
// crossing and host function entry. Returning true stops execution with
// ErrInterrupted.
func WithInterruptHandler(fn func() bool) Option {
	return func(rc *runtimeCore) { rc.interrupt = fn }
}

// WithContext attaches a context used for the engine's internal operation
// and for log records emitted on behalf of script code.
func WithContext(ctx context.Context) Option {
	return func(rc *runtimeCore) { rc.goCtx = ctx }
}

// runtimeCore is the boxed state behind a Runtime handle.
type runtimeCore struct {
	engine *quickjs.Runtime
	goCtx  context.Context

	mu           sync.Mutex
	interrupt    func() bool
	limit        time.Duration
	deadline     time.Time
	killed       bool
	memoryLimit  uint32
	maxStackSize uint32
	contexts     []*Context
}

// Runtime owns one script engine instance. All methods resolve the
// underlying state through the handle table, so use after Close reports
// ErrStaleHandle.
type Runtime struct {
	handle int64
}

// NewRuntime creates a script engine runtime and boxes it behind a handle.
func NewRuntime(opts ...Option) (*Runtime, error) {
	rc := &runtimeCore{}
	for _, opt := range opts {
		opt(rc)
	}

	var (
		eng *quickjs.Runtime
		err error
	)
	if rc.goCtx != nil {
		eng, err = quickjs.NewRuntimeWithContext(rc.goCtx)
	} else {
		rc.goCtx = context.Background()
		eng, err = quickjs.NewRuntime()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create engine runtime: %w", err)
	}

	if rc.memoryLimit > 0 {
		if err := eng.SetMemoryLimit(rc.memoryLimit); err != nil {
			_ = eng.Close()
			return nil, fmt.Errorf("failed to set memory limit: %w", err)
		}
	}
	if rc.maxStackSize > 0 {
		if err := eng.SetMaxStackSize(rc.maxStackSize); err != nil {
			_ = eng.Close()
			return nil, fmt.Errorf("failed to set stack size: %w", err)
		}
	}

	eng.SetLogFunc(func(msg string) {
		slog.Info("Script console output",
			"message", strings.TrimRight(msg, "\n"),
			"source", "script",
		)
	})

	rc.engine = eng
	r := &Runtime{handle: handles.box(rc)}
	slog.Debug("Runtime created", "handle", r.handle)
	return r, nil
}

// core resolves the runtime state. The borrow is returned immediately; the
// handle only proves the runtime is still open.
func (r *Runtime) core() (*runtimeCore, error) {
	v, err := handles.unbox(r.handle)
	if err != nil {
		return nil, err
	}
	rc, ok := v.(*runtimeCore)
	if !ok {
		if rbErr := handles.rebox(r.handle, v); rbErr != nil {
			slog.Error("Failed to return non-runtime value to handle table", "error", rbErr)
		}
		return nil, fmt.Errorf("%w: not a runtime handle", ErrStaleHandle)
	}
	if err := handles.rebox(r.handle, rc); err != nil {
		return nil, err
	}
	return rc, nil
}

// NewContext creates an execution context with the bridge harness installed.
// The context is closed automatically when the runtime closes.
func (r *Runtime) NewContext() (*Context, error) {
	rc, err := r.core()
	if err != nil {
		return nil, err
	}

	ectx, err := rc.engine.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create engine context: %w", err)
	}

	cc := &contextCore{rt: rc, ctx: ectx}
	if err := cc.install(); err != nil {
		_ = ectx.Close()
		return nil, err
	}

	c := &Context{handle: handles.box(cc)}
	cc.selfHandle = c.handle

	rc.mu.Lock()
	rc.contexts = append(rc.contexts, c)
	rc.mu.Unlock()

	slog.Debug("Context created", "handle", c.handle)
	return c, nil
}

// SetMemoryLimit caps engine heap usage in bytes.
func (r *Runtime) SetMemoryLimit(bytes uint32) error {
	rc, err := r.core()
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.memoryLimit = bytes
	rc.mu.Unlock()
	return rc.engine.SetMemoryLimit(bytes)
}

// SetMaxStackSize caps the engine's script stack in bytes.
func (r *Runtime) SetMaxStackSize(bytes uint32) error {
	rc, err := r.core()
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.maxStackSize = bytes
	rc.mu.Unlock()
	return rc.engine.SetMaxStackSize(bytes)
}

// SetInterruptHandler installs or replaces the interrupt predicate. A nil
// handler removes it.
func (r *Runtime) SetInterruptHandler(fn func() bool) error {
	rc, err := r.core()
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.interrupt = fn
	rc.mu.Unlock()
	return nil
}

// SetRuntimeLimit changes the per-crossing execution deadline. Zero removes
// the limit.
func (r *Runtime) SetRuntimeLimit(d time.Duration) error {
	rc, err := r.core()
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.limit = d
	rc.mu.Unlock()
	return nil
}

// Interrupt marks the runtime as interrupted. Every boundary crossing and
// host function entry fails with ErrInterrupted from then on. The mark is
// permanent; interrupted runtimes are meant to be closed and replaced.
func (r *Runtime) Interrupt() {
	rc, err := r.core()
	if err != nil {
		return
	}
	rc.mu.Lock()
	rc.killed = true
	rc.mu.Unlock()
	slog.Warn("Runtime interrupted", "handle", r.handle)
}

// GC asks the engine to run a garbage collection pass.
func (r *Runtime) GC() error {
	rc, err := r.core()
	if err != nil {
		return err
	}
	return rc.engine.RunGC()
}

// Close closes every context created from this runtime, shuts the engine
// down and retires the runtime handle. Closing twice reports ErrStaleHandle.
func (r *Runtime) Close() error {
	v, err := handles.unbox(r.handle)
	if err != nil {
		return err
	}
	rc, ok := v.(*runtimeCore)
	if !ok {
		if rbErr := handles.rebox(r.handle, v); rbErr != nil {
			slog.Error("Failed to return non-runtime value to handle table", "error", rbErr)
		}
		return fmt.Errorf("%w: not a runtime handle", ErrStaleHandle)
	}

	rc.mu.Lock()
	ctxs := rc.contexts
	rc.contexts = nil
	rc.mu.Unlock()

	var firstErr error
	for i := len(ctxs) - 1; i >= 0; i-- {
		if err := ctxs[i].Close(); err != nil && !errors.Is(err, ErrStaleHandle) && firstErr == nil {
			firstErr = err
		}
	}

	if err := rc.engine.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := handles.discard(r.handle); err != nil && firstErr == nil {
		firstErr = err
	}

	slog.Debug("Runtime closed", "handle", r.handle)
	return firstErr
}

// engineCtx returns the context the runtime was built with.
func (rc *runtimeCore) engineCtx() context.Context {
	return rc.goCtx
}

// armDeadline starts the runtime-limit clock for one outermost crossing.
func (rc *runtimeCore) armDeadline() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.limit > 0 {
		rc.deadline = time.Now().Add(rc.limit)
	} else {
		rc.deadline = time.Time{}
	}
}

// checkInterrupt is the cooperative checkpoint consulted at boundary
// crossings and host function entries.
func (rc *runtimeCore) checkInterrupt() error {
	rc.mu.Lock()
	killed := rc.killed
	pred := rc.interrupt
	deadline := rc.deadline
	rc.mu.Unlock()

	if killed {
		return ErrInterrupted
	}
	if pred != nil && pred() {
		return ErrInterrupted
	}
	if !deadline.IsZero() && time.Now().After(deadline) {
		return ErrInterrupted
	}
	return nil
}

// removeContext drops a closed context from the runtime's close cascade.
func (rc *runtimeCore) removeContext(c *Context) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i, have := range rc.contexts {
		if have == c {
			rc.contexts = append(rc.contexts[:i], rc.contexts[i+1:]...)
			return
		}
	}
}
