package quickbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptFunction_Call(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("(x => x * x)")
	require.NoError(t, err)
	fn, ok := out.(*ScriptFunction)
	require.True(t, ok, "expected a *ScriptFunction, got %T", out)

	res, err := fn.Call(9)
	require.NoError(t, err)
	assert.Equal(t, int32(81), res)
}

func TestScriptFunction_Name(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("function greet() { return 'hi'; } greet")
	require.NoError(t, err)
	fn := out.(*ScriptFunction)
	assert.Equal(t, "greet", fn.Name())
}

func TestScriptFunction_ClosureStatePersists(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("let total = 0; (n) => { total += n; return total; }")
	require.NoError(t, err)
	acc := out.(*ScriptFunction)

	res, err := acc.Call(5)
	require.NoError(t, err)
	assert.Equal(t, int32(5), res)

	res, err = acc.Call(37)
	require.NoError(t, err)
	assert.Equal(t, int32(42), res)
}

func TestScriptFunction_NestedSuppliers(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("() => () => 'inner'")
	require.NoError(t, err)
	outer := out.(*ScriptFunction)

	mid, err := outer.Call()
	require.NoError(t, err)
	inner, ok := mid.(*ScriptFunction)
	require.True(t, ok, "expected the call to return a function, got %T", mid)

	res, err := inner.Call()
	require.NoError(t, err)
	assert.Equal(t, "inner", res)
}

func TestScriptFunction_ObjectArgument(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("(o) => o.a + o.b")
	require.NoError(t, err)
	fn := out.(*ScriptFunction)

	res, err := fn.Call(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, int32(3), res)
}

func TestScriptFunction_ThrowSurfacesAsException(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("() => { throw new TypeError('no dice'); }")
	require.NoError(t, err)
	fn := out.(*ScriptFunction)

	_, err = fn.Call()
	var exc *ScriptException
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "no dice", exc.Message)
	assert.Equal(t, "TypeError", exc.Kind)
}

func TestScriptFunction_CloseThenCall(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("(x => x)")
	require.NoError(t, err)
	fn := out.(*ScriptFunction)

	require.NoError(t, fn.Close())

	_, err = fn.Call(1)
	assert.ErrorIs(t, err, ErrStaleHandle)

	err = fn.Close()
	assert.ErrorIs(t, err, ErrStaleHandle)
}
