package quickbridge

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/Gaurav-Gosain/quickjs"
)

// fromScript converts a script value into a host value. Primitives are
// copied; functions, arrays and plain objects come back as live wrappers
// bound to this context.
func (cc *contextCore) fromScript(v quickjs.Value) (any, error) {
	switch {
	case v.IsUndefined(), v.IsNull():
		return nil, nil
	case v.IsBool():
		return v.Bool(), nil
	case v.IsBigInt():
		// The engine's int64 read wraps on overflow, so go through the
		// decimal string form to keep full magnitude.
		b, ok := new(big.Int).SetString(v.String(), 10)
		if !ok {
			return nil, fmt.Errorf("failed to read BigInt value %q", v.String())
		}
		if b.IsInt64() {
			return b.Int64(), nil
		}
		return b, nil
	case v.IsNumber():
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("failed to read number: %w", err)
		}
		if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
			return int32(f), nil
		}
		return f, nil
	case v.IsString():
		return v.String(), nil
	case v.IsFunction():
		return cc.newFunctionWrapper(v), nil
	case v.IsError():
		return cc.classifyThrown(v, ""), nil
	case v.IsDate():
		ms, err := v.CallMethod("getTime")
		if err != nil {
			return nil, fmt.Errorf("failed to read date: %w", err)
		}
		epoch, err := ms.Float64()
		if err != nil {
			return nil, fmt.Errorf("failed to read date epoch: %w", err)
		}
		return time.UnixMilli(int64(epoch)), nil
	case v.IsArray():
		return cc.newArrayWrapper(v), nil
	case v.IsObject():
		if cc.isArrayBuffer(v) {
			buf, err := v.Bytes()
			if err != nil {
				return nil, fmt.Errorf("failed to read ArrayBuffer: %w", err)
			}
			out := make([]byte, len(buf))
			copy(out, buf)
			return out, nil
		}
		return cc.newObjectWrapper(v), nil
	}
	return v.String(), nil
}

// isArrayBuffer reports whether v is an ArrayBuffer instance. The engine
// exposes no direct predicate, so the global constructor is consulted.
func (cc *contextCore) isArrayBuffer(v quickjs.Value) bool {
	ctor, err := cc.ctx.GetGlobal("ArrayBuffer")
	if err != nil || !ctor.IsFunction() {
		return false
	}
	return v.Instanceof(ctor)
}

// newFunctionWrapper mints a ScriptFunction for a live script function and
// ties its lifetime to the context.
func (cc *contextCore) newFunctionWrapper(v quickjs.Value) *ScriptFunction {
	name := ""
	if nv, err := v.Get("name"); err == nil && nv.IsString() {
		name = nv.String()
	}
	w := &ScriptFunction{
		handle:    handles.box(v),
		ctxHandle: cc.selfHandle,
		name:      name,
	}
	cc.addDependent(w)
	return w
}

// newArrayWrapper mints a live ScriptArray bound to this context.
func (cc *contextCore) newArrayWrapper(v quickjs.Value) *ScriptArray {
	w := &ScriptArray{handle: handles.box(v), ctxHandle: cc.selfHandle}
	cc.addDependent(w)
	return w
}

// newObjectWrapper mints a live ScriptObject bound to this context.
func (cc *contextCore) newObjectWrapper(v quickjs.Value) *ScriptObject {
	w := &ScriptObject{handle: handles.box(v), ctxHandle: cc.selfHandle}
	cc.addDependent(w)
	return w
}
