package quickbridge

import (
	"fmt"

	"github.com/Gaurav-Gosain/quickjs"
)

// ScriptObject is a live handle to a script object. Property access
// operates on the engine object itself; Map takes an eager copy.
type ScriptObject struct {
	handle    int64
	ctxHandle int64
}

// Size reports the number of own enumerable properties.
func (o *ScriptObject) Size() (int, error) {
	core, release, err := enterScope(o.ctxHandle)
	if err != nil {
		return 0, err
	}
	defer release()

	ov, err := borrowValue(o.handle)
	if err != nil {
		return 0, err
	}
	keys, err := core.objectKeys(ov)
	if err != nil {
		return 0, err
	}
	return keys.Len(), nil
}

// Get reads a property.
func (o *ScriptObject) Get(key string) (any, error) {
	core, release, err := enterScope(o.ctxHandle)
	if err != nil {
		return nil, err
	}
	defer release()

	ov, err := borrowValue(o.handle)
	if err != nil {
		return nil, err
	}
	pv, err := ov.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read property %q: %w", key, err)
	}
	return core.fromScript(pv)
}

// Set writes a property.
func (o *ScriptObject) Set(key string, v any) error {
	core, release, err := enterScope(o.ctxHandle)
	if err != nil {
		return err
	}
	defer release()

	ov, err := borrowValue(o.handle)
	if err != nil {
		return err
	}
	qv, err := core.toScript(v)
	if err != nil {
		return err
	}
	return ov.Set(key, qv)
}

// Has reports whether the object has the property.
func (o *ScriptObject) Has(key string) (bool, error) {
	_, release, err := enterScope(o.ctxHandle)
	if err != nil {
		return false, err
	}
	defer release()

	ov, err := borrowValue(o.handle)
	if err != nil {
		return false, err
	}
	return ov.Has(key), nil
}

// Delete removes a property. Deleting a missing property is a no-op.
func (o *ScriptObject) Delete(key string) error {
	_, release, err := enterScope(o.ctxHandle)
	if err != nil {
		return err
	}
	defer release()

	ov, err := borrowValue(o.handle)
	if err != nil {
		return err
	}
	return ov.Delete(key)
}

// Keys lists the own enumerable property names.
func (o *ScriptObject) Keys() ([]string, error) {
	core, release, err := enterScope(o.ctxHandle)
	if err != nil {
		return nil, err
	}
	defer release()

	ov, err := borrowValue(o.handle)
	if err != nil {
		return nil, err
	}
	keys, err := core.objectKeys(ov)
	if err != nil {
		return nil, err
	}

	n := keys.Len()
	out := make([]string, n)
	for i := 0; i < n; i++ {
		kv, err := keys.GetIdx(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read key %d: %w", i, err)
		}
		out[i] = kv.String()
	}
	return out, nil
}

// Map copies the object's own enumerable properties into a host map,
// converting each value. The copy does not track later script-side
// mutation.
func (o *ScriptObject) Map() (map[string]any, error) {
	core, release, err := enterScope(o.ctxHandle)
	if err != nil {
		return nil, err
	}
	defer release()

	ov, err := borrowValue(o.handle)
	if err != nil {
		return nil, err
	}
	keys, err := core.objectKeys(ov)
	if err != nil {
		return nil, err
	}

	n := keys.Len()
	out := make(map[string]any, n)
	for i := 0; i < n; i++ {
		kv, err := keys.GetIdx(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read key %d: %w", i, err)
		}
		key := kv.String()
		pv, err := ov.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to read property %q: %w", key, err)
		}
		conv, err := core.fromScript(pv)
		if err != nil {
			return nil, err
		}
		out[key] = conv
	}
	return out, nil
}

// Close releases the object handle. Further use reports ErrStaleHandle.
func (o *ScriptObject) Close() error {
	return handles.close(o.handle)
}

// objectKeys lists an object's own enumerable keys through the global
// Object constructor.
func (cc *contextCore) objectKeys(v quickjs.Value) (quickjs.Value, error) {
	objectCtor, err := cc.ctx.GetGlobal("Object")
	if err != nil {
		return quickjs.Value{}, err
	}
	keys, err := objectCtor.CallMethod("keys", v)
	if err != nil {
		return quickjs.Value{}, fmt.Errorf("failed to list object keys: %w", err)
	}
	return keys, nil
}
