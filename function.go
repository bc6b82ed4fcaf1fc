package quickbridge

import (
	"github.com/Gaurav-Gosain/quickjs"
)

// ScriptFunction is a live handle to a script function. It stays callable
// until Close, or until the owning context closes.
type ScriptFunction struct {
	handle    int64
	ctxHandle int64
	name      string
}

// Name reports the function's script-side name. Anonymous functions report
// an empty name.
func (f *ScriptFunction) Name() string {
	return f.name
}

// Call invokes the function with this bound to undefined. Arguments and
// result convert like any other boundary crossing; a throw inside the
// function surfaces as a ScriptException. Call is reentrant: a host
// callable invoked by script may call back into script through it.
func (f *ScriptFunction) Call(args ...any) (any, error) {
	core, release, err := enterScope(f.ctxHandle)
	if err != nil {
		return nil, err
	}
	defer release()

	fv, err := borrowValue(f.handle)
	if err != nil {
		return nil, err
	}

	var qargs []quickjs.Value
	if len(args) > 0 {
		qargs = make([]quickjs.Value, len(args))
		for i, a := range args {
			qa, err := core.toScript(a)
			if err != nil {
				return nil, err
			}
			qargs[i] = qa
		}
	}

	result, exc, err := core.callThrough(fv, core.ctx.Undefined(), qargs)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, exc
	}
	return core.fromScript(result)
}

// Close releases the function handle. Further calls report ErrStaleHandle.
func (f *ScriptFunction) Close() error {
	return handles.close(f.handle)
}
