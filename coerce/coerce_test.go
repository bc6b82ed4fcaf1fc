package coerce

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToString(t *testing.T) {
	testCases := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "nil becomes empty", input: nil, expected: ""},
		{name: "string passes through", input: "hello", expected: "hello"},
		{name: "int32 renders", input: int32(42), expected: "42"},
		{name: "float renders", input: 0.5, expected: "0.5"},
		{name: "bool renders", input: true, expected: "true"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ToString(tc.input))
		})
	}
}

func TestToInt64(t *testing.T) {
	testCases := []struct {
		name      string
		input     any
		expected  int64
		expectErr bool
	}{
		{name: "nil is zero", input: nil, expected: 0},
		{name: "int32 number", input: int32(7), expected: 7},
		{name: "int64 passes through", input: int64(1) << 53, expected: int64(1) << 53},
		{name: "big int in range", input: big.NewInt(99), expected: 99},
		{name: "numeric string", input: "123", expected: 123},
		{name: "big int out of range", input: new(big.Int).Lsh(big.NewInt(1), 70), expectErr: true},
		{name: "word", input: "banana", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToInt64(tc.input)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestToInt32(t *testing.T) {
	got, err := ToInt32(int64(41))
	require.NoError(t, err)
	assert.Equal(t, int32(41), got)

	_, err = ToInt32(int64(1) << 40)
	require.Error(t, err)

	_, err = ToInt32(big.NewInt(1 << 40))
	require.Error(t, err)
}

func TestToBigInt(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 70)

	got, err := ToBigInt(huge)
	require.NoError(t, err)
	assert.Zero(t, got.Cmp(huge))

	got, err = ToBigInt("18446744073709551616")
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551616", got.String())

	got, err = ToBigInt(int32(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Int64())

	_, err = ToBigInt("not a number")
	require.Error(t, err)
}

func TestToFloat64(t *testing.T) {
	got, err := ToFloat64(int32(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	got, err = ToFloat64(big.NewInt(1 << 20))
	require.NoError(t, err)
	assert.Equal(t, float64(1<<20), got)

	_, err = ToFloat64("garbled")
	require.Error(t, err)
}

func TestToDecimal(t *testing.T) {
	got, err := ToDecimal("19.99")
	require.NoError(t, err)
	assert.Equal(t, "19.99", got.String())

	got, err = ToDecimal(big.NewInt(1234))
	require.NoError(t, err)
	assert.Equal(t, "1234", got.String())

	_, err = ToDecimal("not money")
	require.Error(t, err)
}

func TestToBool(t *testing.T) {
	testCases := []struct {
		name     string
		input    any
		expected bool
	}{
		{name: "nil is false", input: nil, expected: false},
		{name: "bool passes through", input: true, expected: true},
		{name: "one is true", input: 1, expected: true},
		{name: "on is true", input: "on", expected: true},
		{name: "zero is false", input: 0, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToBool(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestToTime(t *testing.T) {
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := ToTime(when)
	require.NoError(t, err)
	assert.True(t, got.Equal(when))

	_, err = ToTime("not a date")
	require.Error(t, err)
}

func TestToBytes(t *testing.T) {
	got, err := ToBytes([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	got, err = ToBytes("abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	_, err = ToBytes(42)
	require.Error(t, err)
}

func TestToMapAndSlice(t *testing.T) {
	m, err := ToMap(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, m["a"])

	s, err := ToSlice([]any{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, s, 2)

	names, err := ToStringSlice([]any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	_, err = ToMap("not a map")
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, int64(9), ToInt64Def("nope", 9))
	assert.Equal(t, int64(4), ToInt64Def(int32(4), 9))
	assert.Equal(t, 1.5, ToFloat64Def("nope", 1.5))
}
