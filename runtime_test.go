package quickbridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRuntime_WithOptions(t *testing.T) {
	rt, err := NewRuntime(
		WithMemoryLimit(32<<20),
		WithMaxStackSize(1<<20),
		WithContext(context.Background()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx, err := rt.NewContext()
	require.NoError(t, err)

	out, err := ctx.Eval("6 * 7")
	require.NoError(t, err)
	assert.Equal(t, int32(42), out)
}

func TestRuntime_Interrupt_Sticky(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ctx, err := rt.NewContext()
	require.NoError(t, err)

	out, err := ctx.Eval("1 + 1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), out)

	rt.Interrupt()

	_, err = ctx.Eval("2 + 2")
	assert.ErrorIs(t, err, ErrInterrupted)

	// The mark does not clear between crossings.
	_, err = ctx.Eval("3 + 3")
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestRuntime_InterruptHandler_StopsHostCalls(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ctx, err := rt.NewContext()
	require.NoError(t, err)

	require.NoError(t, ctx.SetGlobal("tick", func() {}))

	calls := 0
	require.NoError(t, rt.SetInterruptHandler(func() bool {
		calls++
		return calls > 3
	}))

	_, err = ctx.Eval("for (let i = 0; i < 100; i++) tick();")
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestRuntime_RuntimeLimit(t *testing.T) {
	rt, err := NewRuntime(WithRuntimeLimit(50 * time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ctx, err := rt.NewContext()
	require.NoError(t, err)

	require.NoError(t, ctx.SetGlobal("tick", func() {}))

	start := time.Now()
	_, err = ctx.Eval("while (true) tick();")
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRuntime_SetRuntimeLimit_Zero(t *testing.T) {
	rt, err := NewRuntime(WithRuntimeLimit(time.Nanosecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ctx, err := rt.NewContext()
	require.NoError(t, err)

	// Lift the limit before the first crossing arms a deadline.
	require.NoError(t, rt.SetRuntimeLimit(0))
	require.NoError(t, ctx.SetGlobal("tick", func() {}))

	out, err := ctx.Eval("let n = 0; for (let i = 0; i < 50; i++) { tick(); n++; } n")
	require.NoError(t, err)
	assert.Equal(t, int32(50), out)
}

func TestRuntime_MemoryLimit(t *testing.T) {
	rt, err := NewRuntime(WithMemoryLimit(8 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ctx, err := rt.NewContext()
	require.NoError(t, err)

	_, err = ctx.Eval("const blocks = []; while (true) { blocks.push(new Array(65536).fill(0)); }")
	require.Error(t, err)
}

func TestRuntime_MultipleContextsIndependentGlobals(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx1, err := rt.NewContext()
	require.NoError(t, err)
	ctx2, err := rt.NewContext()
	require.NoError(t, err)

	_, err = ctx1.Eval("globalThis.tag = 'one'")
	require.NoError(t, err)
	_, err = ctx2.Eval("globalThis.tag = 'two'")
	require.NoError(t, err)

	out, err := ctx1.Eval("tag")
	require.NoError(t, err)
	assert.Equal(t, "one", out)
	out, err = ctx2.Eval("tag")
	require.NoError(t, err)
	assert.Equal(t, "two", out)
}

func TestRuntime_GC(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ctx, err := rt.NewContext()
	require.NoError(t, err)

	_, err = ctx.Eval("let garbage = new Array(10000).fill({}); garbage = null;")
	require.NoError(t, err)
	require.NoError(t, rt.GC())
}

func TestRuntime_CrossContextCopy(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx1, err := rt.NewContext()
	require.NoError(t, err)
	ctx2, err := rt.NewContext()
	require.NoError(t, err)

	out, err := ctx1.Eval("({n: 41})")
	require.NoError(t, err)
	obj := out.(*ScriptObject)

	// Crossing contexts copies the value instead of sharing it.
	require.NoError(t, ctx2.SetGlobal("imported", obj))
	res, err := ctx2.Eval("imported.n + 1")
	require.NoError(t, err)
	assert.Equal(t, int32(42), res)

	_, err = ctx2.Eval("imported.n = 100")
	require.NoError(t, err)
	v, err := obj.Get("n")
	require.NoError(t, err)
	assert.Equal(t, int32(41), v)
}

func TestRuntime_CrossContextFunctionTrampoline(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx1, err := rt.NewContext()
	require.NoError(t, err)
	ctx2, err := rt.NewContext()
	require.NoError(t, err)

	out, err := ctx1.Eval("let base = 40; (n) => base + n")
	require.NoError(t, err)
	fn := out.(*ScriptFunction)

	// A function from another context is bridged through a host call, so
	// it still closes over its home context's state.
	require.NoError(t, ctx2.SetGlobal("imported", fn))
	res, err := ctx2.Eval("imported(2)")
	require.NoError(t, err)
	assert.Equal(t, int32(42), res)
}
