package quickbridge

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversion_IntegersBecomeNumbers(t *testing.T) {
	ctx := newTestContext(t)

	testCases := []struct {
		name  string
		value any
		check string
		want  any
	}{
		{"int", 7, "typeof v === 'number'", true},
		{"int8", int8(-3), "v", int32(-3)},
		{"int16", int16(300), "v", int32(300)},
		{"int32", int32(70000), "v", int32(70000)},
		{"uint8", uint8(255), "v", int32(255)},
		{"uint16", uint16(65535), "v", int32(65535)},
		{"float32", float32(1.5), "v", float64(1.5)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, ctx.SetGlobal("v", tc.value))
			out, err := ctx.Eval(tc.check)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestConversion_Int64BecomesBigInt(t *testing.T) {
	ctx := newTestContext(t)

	require.NoError(t, ctx.SetGlobal("small", int64(7)))
	out, err := ctx.Eval("typeof small")
	require.NoError(t, err)
	assert.Equal(t, "bigint", out)

	// 2^53 is where float64 stops being exact; it must survive untouched.
	require.NoError(t, ctx.SetGlobal("edge", int64(1)<<53))
	out, err = ctx.GetGlobal("edge")
	require.NoError(t, err)
	assert.Equal(t, int64(1)<<53, out)

	require.NoError(t, ctx.SetGlobal("max", int64(math.MaxInt64)))
	out, err = ctx.GetGlobal("max")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), out)
}

func TestConversion_WideIntsUseBigInt(t *testing.T) {
	ctx := newTestContext(t)

	require.NoError(t, ctx.SetGlobal("wide", uint32(math.MaxUint32)))
	out, err := ctx.Eval("wide === 4294967295n")
	require.NoError(t, err)
	assert.Equal(t, true, out)

	require.NoError(t, ctx.SetGlobal("huge", uint64(math.MaxUint64)))
	out, err = ctx.Eval("huge === 18446744073709551615n")
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestConversion_BigIntBeyondInt64(t *testing.T) {
	ctx := newTestContext(t)

	in := new(big.Int).Lsh(big.NewInt(1), 70)
	require.NoError(t, ctx.SetGlobal("big", in))

	out, err := ctx.Eval("big >> 70n")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out)

	back, err := ctx.GetGlobal("big")
	require.NoError(t, err)
	got, ok := back.(*big.Int)
	require.True(t, ok, "expected a *big.Int, got %T", back)
	assert.Zero(t, in.Cmp(got))
}

func TestConversion_DecimalBecomesString(t *testing.T) {
	ctx := newTestContext(t)

	price := decimal.RequireFromString("19.99")
	require.NoError(t, ctx.SetGlobal("price", price))

	out, err := ctx.Eval("price")
	require.NoError(t, err)
	assert.Equal(t, "19.99", out)
}

func TestConversion_NestedComposite(t *testing.T) {
	ctx := newTestContext(t)

	require.NoError(t, ctx.SetGlobal("order", map[string]any{
		"id":    17,
		"items": []any{"a", "b"},
		"meta":  map[string]any{"priority": true},
	}))

	out, err := ctx.Eval("order.items[1] + order.id + order.meta.priority")
	require.NoError(t, err)
	assert.Equal(t, "b17true", out)
}

func TestConversion_TypedSliceAndMap(t *testing.T) {
	ctx := newTestContext(t)

	require.NoError(t, ctx.SetGlobal("scores", []int{3, 4, 5}))
	out, err := ctx.Eval("scores[0] * scores[2]")
	require.NoError(t, err)
	assert.Equal(t, int32(15), out)

	require.NoError(t, ctx.SetGlobal("ages", map[string]int{"ada": 36}))
	out, err = ctx.Eval("ages.ada")
	require.NoError(t, err)
	assert.Equal(t, int32(36), out)
}

func TestConversion_WrapperIdentityRoundTrip(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("globalThis.shared = [1, 2, 3]; shared")
	require.NoError(t, err)
	arr, ok := out.(*ScriptArray)
	require.True(t, ok, "expected a *ScriptArray, got %T", out)

	// Passing the wrapper back in must restore the identical object.
	require.NoError(t, ctx.SetGlobal("again", arr))
	same, err := ctx.Eval("again === shared")
	require.NoError(t, err)
	assert.Equal(t, true, same)
}

func TestConversion_ObjectIdentityRoundTrip(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("globalThis.state = {hits: 0}; state")
	require.NoError(t, err)
	obj, ok := out.(*ScriptObject)
	require.True(t, ok, "expected a *ScriptObject, got %T", out)

	require.NoError(t, ctx.SetGlobal("again", obj))
	same, err := ctx.Eval("again === state")
	require.NoError(t, err)
	assert.Equal(t, true, same)
}

func TestConversion_HostErrorBecomesScriptError(t *testing.T) {
	ctx := newTestContext(t)

	require.NoError(t, ctx.SetGlobal("failure", errors.New("disk offline")))

	out, err := ctx.Eval("failure instanceof Error")
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = ctx.Eval("failure.message")
	require.NoError(t, err)
	assert.Equal(t, "disk offline", out)
}

func TestConversion_ErrorValueComesBackAsException(t *testing.T) {
	ctx := newTestContext(t)

	out, err := ctx.Eval("new TypeError('caught, not thrown')")
	require.NoError(t, err)

	exc, ok := out.(*ScriptException)
	require.True(t, ok, "expected a *ScriptException, got %T", out)
	assert.Equal(t, "caught, not thrown", exc.Message)
	assert.Equal(t, "TypeError", exc.Kind)
}

func TestConversion_UnknownShapeDegradesToString(t *testing.T) {
	ctx := newTestContext(t)

	type point struct{ X, Y int }
	require.NoError(t, ctx.SetGlobal("p", point{X: 1, Y: 2}))

	out, err := ctx.Eval("typeof p")
	require.NoError(t, err)
	assert.Equal(t, "string", out)
}
