package quickbridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calculator struct {
	memory int
}

func (c *calculator) Add(a, b int) int { return a + b }

func (c *calculator) Store(v int) { c.memory = v }

func (c *calculator) Recall() int { return c.memory }

func (c *calculator) Div(a, b int) (int, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func TestMethodMap_ExposesMethods(t *testing.T) {
	ctx := newTestContext(t)

	calc := &calculator{}
	require.NoError(t, ctx.SetGlobal("calc", MethodMap(calc)))

	out, err := ctx.Eval("calc.add(19, 23)")
	require.NoError(t, err)
	assert.Equal(t, int32(42), out)

	_, err = ctx.Eval("calc.store(7)")
	require.NoError(t, err)
	out, err = ctx.Eval("calc.recall()")
	require.NoError(t, err)
	assert.Equal(t, int32(7), out)
	assert.Equal(t, 7, calc.memory)
}

func TestMethodMap_ErrorResult(t *testing.T) {
	ctx := newTestContext(t)

	require.NoError(t, ctx.SetGlobal("calc", MethodMap(&calculator{})))

	out, err := ctx.Eval("try { calc.div(1, 0); } catch (e) { e.message }")
	require.NoError(t, err)
	assert.Equal(t, "division by zero", out)
}

func TestMethodMap_KeysAreLowerFirst(t *testing.T) {
	m := MethodMap(&calculator{})

	assert.Contains(t, m, "add")
	assert.Contains(t, m, "recall")
	assert.NotContains(t, m, "Add")
}
