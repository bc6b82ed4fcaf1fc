package quickbridge

import (
	"fmt"
)

// ScriptArray is a live handle to a script array. Reads and writes operate
// on the engine object itself, so mutation made by script is visible
// through the wrapper and mutation through the wrapper is visible to
// script. Slice takes an eager copy instead.
type ScriptArray struct {
	handle    int64
	ctxHandle int64
}

// Len reports the current array length.
func (a *ScriptArray) Len() (int, error) {
	_, release, err := enterScope(a.ctxHandle)
	if err != nil {
		return 0, err
	}
	defer release()

	av, err := borrowValue(a.handle)
	if err != nil {
		return 0, err
	}
	return av.Len(), nil
}

// Get reads the element at index i.
func (a *ScriptArray) Get(i int) (any, error) {
	core, release, err := enterScope(a.ctxHandle)
	if err != nil {
		return nil, err
	}
	defer release()

	av, err := borrowValue(a.handle)
	if err != nil {
		return nil, err
	}
	el, err := av.GetIdx(i)
	if err != nil {
		return nil, fmt.Errorf("failed to read element %d: %w", i, err)
	}
	return core.fromScript(el)
}

// Set writes the element at index i. Writing past the end grows the array
// with holes, matching script assignment semantics.
func (a *ScriptArray) Set(i int, v any) error {
	core, release, err := enterScope(a.ctxHandle)
	if err != nil {
		return err
	}
	defer release()

	av, err := borrowValue(a.handle)
	if err != nil {
		return err
	}
	qv, err := core.toScript(v)
	if err != nil {
		return err
	}
	return av.SetIdx(i, qv)
}

// Append pushes a value onto the end of the array.
func (a *ScriptArray) Append(v any) error {
	core, release, err := enterScope(a.ctxHandle)
	if err != nil {
		return err
	}
	defer release()

	av, err := borrowValue(a.handle)
	if err != nil {
		return err
	}
	qv, err := core.toScript(v)
	if err != nil {
		return err
	}
	if _, err := av.CallMethod("push", qv); err != nil {
		return fmt.Errorf("failed to append: %w", err)
	}
	return nil
}

// Insert places a value at index i, shifting later elements right. Index
// handling follows the array's own splice: negative indices count from the
// end and out-of-range indices clamp.
func (a *ScriptArray) Insert(i int, v any) error {
	core, release, err := enterScope(a.ctxHandle)
	if err != nil {
		return err
	}
	defer release()

	av, err := borrowValue(a.handle)
	if err != nil {
		return err
	}
	qv, err := core.toScript(v)
	if err != nil {
		return err
	}
	if _, err := av.CallMethod("splice", core.ctx.Int32(int32(i)), core.ctx.Int32(0), qv); err != nil {
		return fmt.Errorf("failed to insert at %d: %w", i, err)
	}
	return nil
}

// Remove deletes the element at index i, shifting later elements left, and
// returns the removed element. Removing out of range is a no-op that
// returns nil, per splice.
func (a *ScriptArray) Remove(i int) (any, error) {
	core, release, err := enterScope(a.ctxHandle)
	if err != nil {
		return nil, err
	}
	defer release()

	av, err := borrowValue(a.handle)
	if err != nil {
		return nil, err
	}
	removed, err := av.CallMethod("splice", core.ctx.Int32(int32(i)), core.ctx.Int32(1))
	if err != nil {
		return nil, fmt.Errorf("failed to remove at %d: %w", i, err)
	}
	el, err := removed.GetIdx(0)
	if err != nil {
		return nil, err
	}
	return core.fromScript(el)
}

// Slice copies the array into a host slice, converting each element. The
// copy does not track later script-side mutation.
func (a *ScriptArray) Slice() ([]any, error) {
	core, release, err := enterScope(a.ctxHandle)
	if err != nil {
		return nil, err
	}
	defer release()

	av, err := borrowValue(a.handle)
	if err != nil {
		return nil, err
	}

	n := av.Len()
	out := make([]any, n)
	for i := 0; i < n; i++ {
		el, err := av.GetIdx(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read element %d: %w", i, err)
		}
		conv, err := core.fromScript(el)
		if err != nil {
			return nil, err
		}
		out[i] = conv
	}
	return out, nil
}

// Close releases the array handle. Further use reports ErrStaleHandle.
func (a *ScriptArray) Close() error {
	return handles.close(a.handle)
}
