package quickbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Gaurav-Gosain/quickjs"
)

// defaultScriptName is the file name attributed to sources evaluated
// without one.
const defaultScriptName = "<script>"

// contextCore is the boxed state behind a Context handle.
type contextCore struct {
	rt         *runtimeCore
	ctx        *quickjs.Context
	qb         quickjs.Value
	selfHandle int64

	mu         sync.Mutex
	dependents []closer
	fnSeq      int
}

type closer interface {
	Close() error
}

// Context is one script execution context. Globals, declarations and
// harness state persist across evaluations until Close.
//
// A context may be used from multiple goroutines, but only one boundary
// crossing can be active at a time; a second goroutine entering a busy
// context reports an error rather than corrupting engine state. Reentrant
// crossings from host callbacks on the same goroutine are always allowed.
type Context struct {
	handle int64
}

// enter checks the context out for one boundary crossing, arms the runtime
// limit on the outermost crossing and applies the interrupt checkpoint.
func (c *Context) enter() (*contextCore, func(), error) {
	core, first, release, err := scopes.enter(c.handle)
	if err != nil {
		if errors.Is(err, ErrHandleBorrowed) {
			return nil, nil, fmt.Errorf("context is busy on another goroutine: %w", err)
		}
		return nil, nil, err
	}
	if first {
		core.rt.armDeadline()
	}
	if err := core.rt.checkInterrupt(); err != nil {
		release()
		return nil, nil, &ScriptException{Message: "interrupted", Cause: err}
	}
	return core, release, nil
}

// Eval evaluates source and returns the completion value converted to a
// host value. Top-level declarations persist for later evaluations.
func (c *Context) Eval(source string) (any, error) {
	return c.EvalFile(source, defaultScriptName)
}

// EvalBytes evaluates a raw source buffer.
func (c *Context) EvalBytes(source []byte) (any, error) {
	return c.EvalFile(string(source), defaultScriptName)
}

// EvalFile evaluates source under the given file name, which shows up in
// error locations and stack text.
func (c *Context) EvalFile(source, name string) (any, error) {
	core, release, err := c.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	return core.eval(source, name)
}

func (cc *contextCore) eval(source, name string) (any, error) {
	cc.resetThrowState()

	slog.Debug("Evaluating script", "name", name, "bytes", len(source))
	val, err := cc.ctx.EvalFile(source, name)
	if err != nil {
		return nil, cc.recoverEvalError(err, name)
	}
	return cc.fromScript(val)
}

// GetGlobal reads a global by name and converts it to a host value. A
// missing global converts to nil.
func (c *Context) GetGlobal(name string) (any, error) {
	core, release, err := c.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	v, err := core.ctx.GetGlobal(name)
	if err != nil {
		return nil, err
	}
	return core.fromScript(v)
}

// SetGlobal converts a host value and installs it as a global.
func (c *Context) SetGlobal(name string, value any) error {
	core, release, err := c.enter()
	if err != nil {
		return err
	}
	defer release()

	v, err := core.toScript(value)
	if err != nil {
		return err
	}
	return core.ctx.SetGlobal(name, v)
}

// Await drives the engine's job queue until the given value, when it is a
// promise, settles. The settled value is converted like any other result; a
// rejection is reported as a ScriptException. Non-promise values are
// returned unchanged.
func (c *Context) Await(v any) (any, error) {
	so, ok := v.(*ScriptObject)
	if !ok {
		return v, nil
	}
	if so.ctxHandle != c.handle {
		return nil, fmt.Errorf("promise belongs to a different context")
	}

	core, release, err := c.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	pv, err := borrowValue(so.handle)
	if err != nil {
		return nil, err
	}
	if !pv.IsPromise() {
		return v, nil
	}

	state, err := core.qb.CallMethod("settle", pv)
	if err != nil {
		return nil, fmt.Errorf("failed to observe promise: %w", err)
	}

	for {
		stV, err := state.Get("state")
		if err != nil {
			return nil, err
		}
		switch stV.String() {
		case "fulfilled":
			out, err := state.Get("value")
			if err != nil {
				return nil, err
			}
			return core.fromScript(out)
		case "rejected":
			out, err := state.Get("value")
			if err != nil {
				return nil, err
			}
			return nil, core.classifyThrown(out, defaultScriptName)
		}

		if err := core.rt.checkInterrupt(); err != nil {
			return nil, &ScriptException{Message: "interrupted", Cause: err}
		}
		n, err := core.rt.engine.ExecutePendingJobs()
		if err != nil {
			return nil, fmt.Errorf("failed to run pending jobs: %w", err)
		}
		if n == 0 {
			return nil, &ScriptException{
				Message:  "promise is not settled and no jobs are pending",
				FileName: defaultScriptName,
			}
		}
	}
}

// Close releases every wrapper minted from this context, closes the engine
// context and retires the handle. Closing twice reports ErrStaleHandle;
// closing while a crossing is active reports ErrHandleBorrowed.
func (c *Context) Close() error {
	v, err := handles.unbox(c.handle)
	if err != nil {
		return err
	}
	cc, ok := v.(*contextCore)
	if !ok {
		if rbErr := handles.rebox(c.handle, v); rbErr != nil {
			slog.Error("Failed to return non-context value to handle table", "error", rbErr)
		}
		return fmt.Errorf("%w: not a context handle", ErrStaleHandle)
	}

	cc.mu.Lock()
	deps := cc.dependents
	cc.dependents = nil
	cc.mu.Unlock()

	var firstErr error
	for i := len(deps) - 1; i >= 0; i-- {
		if err := deps[i].Close(); err != nil && !errors.Is(err, ErrStaleHandle) && firstErr == nil {
			firstErr = err
		}
	}

	if err := cc.ctx.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := handles.discard(c.handle); err != nil && firstErr == nil {
		firstErr = err
	}

	cc.rt.removeContext(c)
	slog.Debug("Context closed", "handle", c.handle)
	return firstErr
}

// addDependent registers a wrapper to be closed when the context closes.
func (cc *contextCore) addDependent(w closer) {
	cc.mu.Lock()
	cc.dependents = append(cc.dependents, w)
	cc.mu.Unlock()
}

// nextFuncName issues a unique name for an anonymous host function.
func (cc *contextCore) nextFuncName() string {
	cc.mu.Lock()
	cc.fnSeq++
	n := cc.fnSeq
	cc.mu.Unlock()
	return fmt.Sprintf("hostfn%d", n)
}

// callThrough invokes a script function through the attempt harness so a
// thrown value survives as an inspectable object instead of being flattened
// into error text. The returned exception is non-nil when the call threw.
func (cc *contextCore) callThrough(fn, this quickjs.Value, args []quickjs.Value) (quickjs.Value, *ScriptException, error) {
	argv := cc.ctx.Array()
	for i, a := range args {
		if err := argv.SetIdx(i, a); err != nil {
			return quickjs.Value{}, nil, fmt.Errorf("failed to stage argument %d: %w", i, err)
		}
	}

	outcome, err := cc.qb.CallMethod("attempt", fn, this, argv)
	if err != nil {
		return quickjs.Value{}, nil, fmt.Errorf("call harness failed: %w", err)
	}

	okV, err := outcome.GetIdx(0)
	if err != nil {
		return quickjs.Value{}, nil, err
	}
	payload, err := outcome.GetIdx(1)
	if err != nil {
		return quickjs.Value{}, nil, err
	}

	if !okV.Bool() {
		return quickjs.Value{}, cc.classifyThrown(payload, defaultScriptName), nil
	}
	return payload, nil, nil
}

// enterScope is the crossing entry shared by wrapper methods, which hold a
// context handle rather than a Context.
func enterScope(ctxHandle int64) (*contextCore, func(), error) {
	c := &Context{handle: ctxHandle}
	return c.enter()
}

// borrowValue fetches the engine value behind a wrapper handle. The borrow
// is returned immediately; the handle check is what detects stale wrappers.
func borrowValue(h int64) (quickjs.Value, error) {
	v, err := handles.unbox(h)
	if err != nil {
		return quickjs.Value{}, err
	}
	qv, ok := v.(quickjs.Value)
	if !ok {
		if rbErr := handles.rebox(h, v); rbErr != nil {
			slog.Error("Failed to return non-value occupant to handle table", "error", rbErr)
		}
		return quickjs.Value{}, fmt.Errorf("%w: not a value handle", ErrStaleHandle)
	}
	if err := handles.rebox(h, qv); err != nil {
		return quickjs.Value{}, err
	}
	return qv, nil
}
