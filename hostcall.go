package quickbridge

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"

	"github.com/Gaurav-Gosain/quickjs"
	"github.com/spf13/cast"
)

// hostFunc is a Go callable prepared for script. invoke receives the
// already converted arguments; file and line locate the callable's source
// for the host-origin markers on errors it reports.
type hostFunc struct {
	invoke func(args []any) (any, error)
	name   string
	file   string
	line   int
}

// newHostFunction installs a host callable into the context. The raw engine
// function stages its outcome through the harness slot and reports success
// as a boolean; the returned value is the harness wrapper that either
// returns the staged result or throws the staged error script-side.
func (cc *contextCore) newHostFunction(hf *hostFunc) (quickjs.Value, error) {
	if hf.name == "" {
		hf.name = cc.nextFuncName()
	}

	raw := cc.ctx.Function(hf.name, func(qc *quickjs.Context, this quickjs.Value, args []quickjs.Value) quickjs.Value {
		out, ok := cc.runHost(hf, args)
		if err := cc.qb.Set("slot", out); err != nil {
			slog.Error("Failed to stage host function result", "function", hf.name, "error", err)
			return qc.Bool(false)
		}
		return qc.Bool(ok)
	})

	wrapped, err := cc.qb.CallMethod("wrapHost", raw, cc.ctx.String(hf.name))
	if err != nil {
		return quickjs.Value{}, fmt.Errorf("failed to wrap host function %s: %w", hf.name, err)
	}
	return wrapped, nil
}

// runHost executes one host callable invocation from script. The second
// return reports success; on failure the first return is the script error
// to throw.
func (cc *contextCore) runHost(hf *hostFunc, args []quickjs.Value) (quickjs.Value, bool) {
	if err := cc.rt.checkInterrupt(); err != nil {
		return cc.failHost(hf, err)
	}

	hargs := make([]any, len(args))
	for i, a := range args {
		conv, err := cc.fromScript(a)
		if err != nil {
			return cc.failHost(hf, fmt.Errorf("failed to convert argument %d: %w", i, err))
		}
		hargs[i] = conv
	}

	result, err := func() (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("host function panic: %v", r)
			}
		}()
		return hf.invoke(hargs)
	}()
	if err != nil {
		return cc.failHost(hf, err)
	}

	rv, err := cc.toScript(result)
	if err != nil {
		return cc.failHost(hf, fmt.Errorf("failed to convert result: %w", err))
	}
	return rv, true
}

// failHost builds the marked script error for a host-side failure. When
// even that fails the bare message is thrown as a string.
func (cc *contextCore) failHost(hf *hostFunc, err error) (quickjs.Value, bool) {
	ev, buildErr := cc.hostErrorValue(err, hf.file, hf.line)
	if buildErr != nil {
		slog.Error("Failed to build script error for host failure",
			"function", hf.name,
			"error", buildErr,
		)
		return cc.ctx.String(err.Error()), false
	}
	return ev, false
}

// argAt pads missing arguments with nil, matching script call semantics
// where absent parameters are undefined.
func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// adaptCallable turns an arbitrary Go func into a hostFunc. Common shapes
// are dispatched directly; everything else goes through reflection with
// per-argument coercion.
func adaptCallable(fn any) *hostFunc {
	hf := &hostFunc{}
	if pc := reflect.ValueOf(fn).Pointer(); pc != 0 {
		if f := runtime.FuncForPC(pc); f != nil {
			hf.file, hf.line = f.FileLine(pc)
		}
	}

	switch f := fn.(type) {
	case func() any:
		hf.invoke = func([]any) (any, error) { return f(), nil }
	case func() (any, error):
		hf.invoke = func([]any) (any, error) { return f() }
	case func():
		hf.invoke = func([]any) (any, error) { f(); return nil, nil }
	case func() error:
		hf.invoke = func([]any) (any, error) { return nil, f() }
	case func(any) any:
		hf.invoke = func(args []any) (any, error) { return f(argAt(args, 0)), nil }
	case func(any) (any, error):
		hf.invoke = func(args []any) (any, error) { return f(argAt(args, 0)) }
	case func(any):
		hf.invoke = func(args []any) (any, error) { f(argAt(args, 0)); return nil, nil }
	case func(any) error:
		hf.invoke = func(args []any) (any, error) { return nil, f(argAt(args, 0)) }
	case func(any, any) any:
		hf.invoke = func(args []any) (any, error) { return f(argAt(args, 0), argAt(args, 1)), nil }
	case func(any, any) (any, error):
		hf.invoke = func(args []any) (any, error) { return f(argAt(args, 0), argAt(args, 1)) }
	case func(any, any):
		hf.invoke = func(args []any) (any, error) { f(argAt(args, 0), argAt(args, 1)); return nil, nil }
	case func(any, any) error:
		hf.invoke = func(args []any) (any, error) { return nil, f(argAt(args, 0), argAt(args, 1)) }
	case func(...any) any:
		hf.invoke = func(args []any) (any, error) { return f(args...), nil }
	case func(...any) (any, error):
		hf.invoke = func(args []any) (any, error) { return f(args...) }
	default:
		rv := reflect.ValueOf(fn)
		hf.invoke = func(args []any) (any, error) { return callReflect(rv, args) }
	}
	return hf
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// callReflect invokes an arbitrary func value, coercing each script
// argument to the declared parameter type. A trailing error result is
// split off; multiple remaining results come back as a slice.
func callReflect(rv reflect.Value, args []any) (any, error) {
	t := rv.Type()
	fixed := t.NumIn()
	if t.IsVariadic() {
		fixed--
	}

	in := make([]reflect.Value, 0, len(args))
	for i := 0; i < fixed; i++ {
		av, err := coerceTo(argAt(args, i), t.In(i))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, av)
	}
	if t.IsVariadic() {
		elem := t.In(t.NumIn() - 1).Elem()
		for i := fixed; i < len(args); i++ {
			av, err := coerceTo(args[i], elem)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			in = append(in, av)
		}
	}

	out := rv.Call(in)

	var callErr error
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		if e := out[n-1]; !e.IsNil() {
			callErr = e.Interface().(error)
		}
		out = out[:n-1]
	}

	switch len(out) {
	case 0:
		return nil, callErr
	case 1:
		return out[0].Interface(), callErr
	default:
		results := make([]any, len(out))
		for i, o := range out {
			results[i] = o.Interface()
		}
		return results, callErr
	}
}

// coerceTo converts a bridged value to the parameter type a reflected
// callable declares. Live wrappers snapshot to host data when a concrete
// collection type is wanted.
func coerceTo(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch w := v.(type) {
	case *ScriptArray:
		if t.Kind() == reflect.Slice {
			items, err := w.Slice()
			if err != nil {
				return reflect.Value{}, err
			}
			return coerceSlice(items, t)
		}
	case []any:
		if t.Kind() == reflect.Slice {
			return coerceSlice(w, t)
		}
	case *ScriptObject:
		if t.Kind() == reflect.Map && t.Key().Kind() == reflect.String {
			entries, err := w.Map()
			if err != nil {
				return reflect.Value{}, err
			}
			return coerceMap(entries, t)
		}
	case map[string]any:
		if t.Kind() == reflect.Map && t.Key().Kind() == reflect.String {
			return coerceMap(w, t)
		}
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n).Convert(t), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := cast.ToUint64E(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(u).Convert(t), nil
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(t), nil
	case reflect.String:
		s, err := cast.ToStringE(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s).Convert(t), nil
	case reflect.Bool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b).Convert(t), nil
	}

	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

func coerceSlice(items []any, t reflect.Type) (reflect.Value, error) {
	out := reflect.MakeSlice(t, len(items), len(items))
	for i, el := range items {
		ev, err := coerceTo(el, t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(ev)
	}
	return out, nil
}

func coerceMap(entries map[string]any, t reflect.Type) (reflect.Value, error) {
	out := reflect.MakeMap(t)
	for k, el := range entries {
		ev, err := coerceTo(el, t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("key %q: %w", k, err)
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
	}
	return out, nil
}
