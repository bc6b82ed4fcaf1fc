package quickbridge

import (
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"time"

	"github.com/Gaurav-Gosain/quickjs"
	"github.com/shopspring/decimal"
)

// toScript converts a host value into a script value. The conversion is
// total: a shape with no mapping degrades to its string form rather than
// failing. Errors are only reported for engine failures while building
// composite values.
func (cc *contextCore) toScript(v any) (quickjs.Value, error) {
	switch x := v.(type) {
	case nil:
		return cc.ctx.Null(), nil
	case bool:
		return cc.ctx.Bool(x), nil
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return cc.ctx.Int32(int32(x)), nil
		}
		return cc.ctx.BigInt(int64(x)), nil
	case int8:
		return cc.ctx.Int32(int32(x)), nil
	case int16:
		return cc.ctx.Int32(int32(x)), nil
	case int32:
		return cc.ctx.Int32(x), nil
	case uint8:
		return cc.ctx.Int32(int32(x)), nil
	case uint16:
		return cc.ctx.Int32(int32(x)), nil
	case int64:
		// Long values always become BigInt so magnitude survives even when
		// the value would fit a float64 only approximately.
		return cc.ctx.BigInt(x), nil
	case uint32:
		return cc.ctx.BigInt(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return cc.bigIntString(strconv.FormatUint(uint64(x), 10))
		}
		return cc.ctx.BigInt(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return cc.bigIntString(strconv.FormatUint(x, 10))
		}
		return cc.ctx.BigInt(int64(x)), nil
	case float32:
		return cc.ctx.Float64(float64(x)), nil
	case float64:
		return cc.ctx.Float64(x), nil
	case string:
		return cc.ctx.String(x), nil
	case *ScriptObject:
		return cc.unwrapOrCopy(x.ctxHandle, x.handle, func() (any, error) { return x.Map() })
	case *ScriptArray:
		return cc.unwrapOrCopy(x.ctxHandle, x.handle, func() (any, error) { return x.Slice() })
	case *ScriptFunction:
		if x.ctxHandle == cc.selfHandle {
			return borrowValue(x.handle)
		}
		// A function from another context cannot be handed over directly;
		// bridge it through a host trampoline instead.
		fn := x
		return cc.newHostFunction(&hostFunc{
			name:   fn.name,
			invoke: func(args []any) (any, error) { return fn.Call(args...) },
		})
	case *ScriptException:
		if x.Cause != nil {
			return cc.scriptError(x.Cause.Error(), ErrorKind(x.Cause), x.HostFile, x.HostLine)
		}
		return cc.scriptError(x.Message, ErrorKind(x), x.HostFile, x.HostLine)
	case time.Time:
		return cc.ctx.Date(float64(x.UnixMilli())), nil
	case []byte:
		return cc.ctx.ArrayBuffer(x), nil
	case []any:
		return cc.sliceToScript(x)
	case map[string]any:
		return cc.mapToScript(x)
	case *big.Int:
		if x.IsInt64() {
			return cc.ctx.BigInt(x.Int64()), nil
		}
		return cc.bigIntString(x.String())
	case decimal.Decimal:
		return cc.ctx.String(x.String()), nil
	case error:
		return cc.hostErrorValue(x, "", 0)
	}
	return cc.toScriptReflect(v)
}

func (cc *contextCore) sliceToScript(items []any) (quickjs.Value, error) {
	arr := cc.ctx.Array()
	for i, el := range items {
		ev, err := cc.toScript(el)
		if err != nil {
			return quickjs.Value{}, err
		}
		if err := arr.SetIdx(i, ev); err != nil {
			return quickjs.Value{}, fmt.Errorf("failed to set array element %d: %w", i, err)
		}
	}
	return arr, nil
}

func (cc *contextCore) mapToScript(entries map[string]any) (quickjs.Value, error) {
	obj := cc.ctx.Object()
	for k, el := range entries {
		ev, err := cc.toScript(el)
		if err != nil {
			return quickjs.Value{}, err
		}
		if err := obj.Set(k, ev); err != nil {
			return quickjs.Value{}, fmt.Errorf("failed to set object property %q: %w", k, err)
		}
	}
	return obj, nil
}

// toScriptReflect covers named types and arbitrary shapes the concrete
// cases above miss, including any func signature.
func (cc *contextCore) toScriptReflect(v any) (quickjs.Value, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return cc.ctx.Null(), nil
		}
		return cc.toScript(rv.Elem().Interface())
	case reflect.Bool:
		return cc.ctx.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		n := rv.Int()
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return cc.ctx.Int32(int32(n)), nil
		}
		return cc.ctx.BigInt(n), nil
	case reflect.Int64:
		return cc.ctx.BigInt(rv.Int()), nil
	case reflect.Uint8, reflect.Uint16:
		return cc.ctx.Int32(int32(rv.Uint())), nil
	case reflect.Uint, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return cc.bigIntString(strconv.FormatUint(u, 10))
		}
		return cc.ctx.BigInt(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return cc.ctx.Float64(rv.Float()), nil
	case reflect.String:
		return cc.ctx.String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return cc.ctx.ArrayBuffer(rv.Bytes()), nil
		}
		arr := cc.ctx.Array()
		for i := 0; i < rv.Len(); i++ {
			ev, err := cc.toScript(rv.Index(i).Interface())
			if err != nil {
				return quickjs.Value{}, err
			}
			if err := arr.SetIdx(i, ev); err != nil {
				return quickjs.Value{}, fmt.Errorf("failed to set array element %d: %w", i, err)
			}
		}
		return arr, nil
	case reflect.Map:
		obj := cc.ctx.Object()
		iter := rv.MapRange()
		for iter.Next() {
			ev, err := cc.toScript(iter.Value().Interface())
			if err != nil {
				return quickjs.Value{}, err
			}
			key := fmt.Sprint(iter.Key().Interface())
			if err := obj.Set(key, ev); err != nil {
				return quickjs.Value{}, fmt.Errorf("failed to set object property %q: %w", key, err)
			}
		}
		return obj, nil
	case reflect.Func:
		return cc.newHostFunction(adaptCallable(v))
	}

	slog.Debug("No conversion for host value, using string form", "type", fmt.Sprintf("%T", v))
	return cc.ctx.String(fmt.Sprintf("%v", v)), nil
}

// unwrapOrCopy resolves a wrapper back to its live script value when it
// belongs to this context, and deep copies it through the host
// representation when it belongs to another one.
func (cc *contextCore) unwrapOrCopy(ctxHandle, h int64, snapshot func() (any, error)) (quickjs.Value, error) {
	if ctxHandle == cc.selfHandle {
		return borrowValue(h)
	}
	copied, err := snapshot()
	if err != nil {
		return quickjs.Value{}, err
	}
	return cc.toScript(copied)
}

// scriptError builds a script Error carrying the host-origin markers.
func (cc *contextCore) scriptError(message, kind, file string, line int) (quickjs.Value, error) {
	v, err := cc.qb.CallMethod("hostError",
		cc.ctx.String(message),
		cc.ctx.String(kind),
		cc.ctx.String(file),
		cc.ctx.Int32(int32(line)),
	)
	if err != nil {
		return quickjs.Value{}, fmt.Errorf("failed to build script error: %w", err)
	}
	return v, nil
}

// hostErrorValue materializes a host error as a marked script Error.
func (cc *contextCore) hostErrorValue(err error, file string, line int) (quickjs.Value, error) {
	return cc.scriptError(err.Error(), ErrorKind(err), file, line)
}

// bigIntString builds a BigInt from decimal digits for magnitudes outside
// int64.
func (cc *contextCore) bigIntString(digits string) (quickjs.Value, error) {
	v, err := cc.qb.CallMethod("bigIntFromString", cc.ctx.String(digits))
	if err != nil {
		return quickjs.Value{}, fmt.Errorf("failed to build BigInt from %q: %w", digits, err)
	}
	return v, nil
}
