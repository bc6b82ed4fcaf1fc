package quickbridge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTable_BoxUnboxRebox(t *testing.T) {
	table := &handleTable{}

	h := table.box("payload")
	assert.Equal(t, 1, table.count())

	v, err := table.unbox(h)
	require.NoError(t, err)
	assert.Equal(t, "payload", v)

	// The slot stays reserved while the value is on loan
	assert.Equal(t, 1, table.count())

	require.NoError(t, table.rebox(h, v))

	v2, err := table.unbox(h)
	require.NoError(t, err)
	assert.Equal(t, "payload", v2)
	require.NoError(t, table.rebox(h, v2))
}

func TestHandleTable_UnboxTwiceReportsBorrowed(t *testing.T) {
	table := &handleTable{}

	h := table.box(42)
	_, err := table.unbox(h)
	require.NoError(t, err)

	_, err = table.unbox(h)
	assert.ErrorIs(t, err, ErrHandleBorrowed)
}

func TestHandleTable_CloseThenUseReportsStale(t *testing.T) {
	table := &handleTable{}

	h := table.box("x")
	require.NoError(t, table.close(h))

	_, err := table.unbox(h)
	assert.ErrorIs(t, err, ErrStaleHandle)

	err = table.close(h)
	assert.ErrorIs(t, err, ErrStaleHandle, "double close should be detected")

	err = table.rebox(h, "x")
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestHandleTable_RecycledSlotGetsNewGeneration(t *testing.T) {
	table := &handleTable{}

	h1 := table.box("first")
	require.NoError(t, table.close(h1))

	// Same slot index, different generation
	h2 := table.box("second")
	idx1, gen1 := splitHandle(h1)
	idx2, gen2 := splitHandle(h2)
	assert.Equal(t, idx1, idx2)
	assert.NotEqual(t, gen1, gen2)

	// The old handle must not resolve to the new occupant
	_, err := table.unbox(h1)
	assert.ErrorIs(t, err, ErrStaleHandle)

	v, err := table.unbox(h2)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
	require.NoError(t, table.rebox(h2, v))
}

func TestHandleTable_CloseWhileBorrowedFails(t *testing.T) {
	table := &handleTable{}

	h := table.box("busy")
	_, err := table.unbox(h)
	require.NoError(t, err)

	err = table.close(h)
	assert.ErrorIs(t, err, ErrHandleBorrowed)

	// discard is the close path for the borrower itself
	require.NoError(t, table.discard(h))
	_, err = table.unbox(h)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestHandleTable_ZeroHandleIsInvalid(t *testing.T) {
	table := &handleTable{}
	table.box("occupant")

	_, err := table.unbox(0)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestHandleTable_ConcurrentBoxClose(t *testing.T) {
	table := &handleTable{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				h := table.box(n)
				v, err := table.unbox(h)
				if assert.NoError(t, err) {
					assert.Equal(t, n, v)
					assert.NoError(t, table.rebox(h, v))
				}
				assert.NoError(t, table.close(h))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, table.count())
}

func TestHandleTable_Clear(t *testing.T) {
	table := &handleTable{}

	h1 := table.box(1)
	h2 := table.box(2)
	assert.Equal(t, 2, table.count())

	table.clear()
	assert.Equal(t, 0, table.count())

	_, err := table.unbox(h1)
	assert.ErrorIs(t, err, ErrStaleHandle)
	_, err = table.unbox(h2)
	assert.ErrorIs(t, err, ErrStaleHandle)
}
