// Package coerce converts loosely typed script results into concrete Go
// types. Script evaluation returns any; these helpers absorb the shapes the
// bridge produces (int32 numbers, int64 and *big.Int values, millisecond
// dates, byte buffers) and return a clear error instead of panicking when a
// value does not fit.
package coerce

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ToString renders the input as a string. Nil becomes the empty string and
// unconvertible values fall back to their fmt form, so this never fails.
func ToString(input any) string {
	if input == nil {
		return ""
	}
	s, err := cast.ToStringE(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return s
}

// ToInt converts the input to an int. Nil counts as zero.
func ToInt(input any) (int, error) {
	if input == nil {
		return 0, nil
	}
	if b, ok := input.(*big.Int); ok {
		if !b.IsInt64() {
			return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int: out of range", input, input)
		}
		return int(b.Int64()), nil
	}
	i, err := cast.ToIntE(input)
	if err != nil {
		return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int", input, input)
	}
	return i, nil
}

// ToInt32 converts the input to an int32, the type ordinary script numbers
// come back as.
func ToInt32(input any) (int32, error) {
	if input == nil {
		return 0, nil
	}
	if b, ok := input.(*big.Int); ok {
		if !b.IsInt64() || b.Int64() != int64(int32(b.Int64())) {
			return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int32: out of range", input, input)
		}
		return int32(b.Int64()), nil
	}
	i, err := cast.ToInt32E(input)
	if err != nil {
		return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int32", input, input)
	}
	return i, nil
}

// ToInt64 converts the input to an int64. BigInt results that fit are
// unwrapped; larger ones report an error rather than truncating.
func ToInt64(input any) (int64, error) {
	if input == nil {
		return 0, nil
	}
	if b, ok := input.(*big.Int); ok {
		if !b.IsInt64() {
			return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int64: out of range", input, input)
		}
		return b.Int64(), nil
	}
	i, err := cast.ToInt64E(input)
	if err != nil {
		return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int64", input, input)
	}
	return i, nil
}

// ToBigInt converts the input to a big integer regardless of magnitude.
func ToBigInt(input any) (*big.Int, error) {
	switch v := input.(type) {
	case nil:
		return big.NewInt(0), nil
	case *big.Int:
		return v, nil
	case string:
		b, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("failed to coerce value '%v' (type %T) to big integer", input, input)
		}
		return b, nil
	}
	i, err := cast.ToInt64E(input)
	if err != nil {
		return nil, fmt.Errorf("failed to coerce value '%v' (type %T) to big integer", input, input)
	}
	return big.NewInt(i), nil
}

// ToFloat64 converts the input to a float64.
func ToFloat64(input any) (float64, error) {
	if input == nil {
		return 0.0, nil
	}
	if b, ok := input.(*big.Int); ok {
		f, _ := new(big.Float).SetInt(b).Float64()
		return f, nil
	}
	f, err := cast.ToFloat64E(input)
	if err != nil {
		return 0.0, fmt.Errorf("failed to coerce value '%v' (type %T) to float64", input, input)
	}
	return f, nil
}

// ToDecimal converts the input to an arbitrary-precision decimal. Script
// code exchanges decimals as strings, so string results parse directly.
func ToDecimal(input any) (decimal.Decimal, error) {
	switch v := input.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to coerce value '%v' (type %T) to decimal", input, input)
		}
		return d, nil
	case *big.Int:
		return decimal.NewFromBigInt(v, 0), nil
	}
	f, err := cast.ToFloat64E(input)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to coerce value '%v' (type %T) to decimal", input, input)
	}
	return decimal.NewFromFloat(f), nil
}

// ToBool converts the input to a bool. Accepts the usual spellings: 1/0,
// "true"/"false", "on"/"off".
func ToBool(input any) (bool, error) {
	if input == nil {
		return false, nil
	}
	b, err := cast.ToBoolE(input)
	if err != nil {
		return false, fmt.Errorf("failed to coerce value '%v' (type %T) to bool", input, input)
	}
	return b, nil
}

// ToTime converts the input to a time.Time. Date results already arrive as
// time.Time; strings and epoch numbers are parsed.
func ToTime(input any) (time.Time, error) {
	if input == nil {
		return time.Time{}, nil
	}
	t, err := cast.ToTimeE(input)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to coerce value '%v' (type %T) to time", input, input)
	}
	return t, nil
}

// ToBytes converts the input to a byte slice. Buffer results pass through;
// strings are copied as UTF-8.
func ToBytes(input any) ([]byte, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("failed to coerce value (type %T) to bytes", input)
}

// ToMap converts the input to a map[string]any.
func ToMap(input any) (map[string]any, error) {
	if input == nil {
		return nil, nil
	}
	m, err := cast.ToStringMapE(input)
	if err != nil {
		return nil, fmt.Errorf("failed to coerce value (type %T) to map", input)
	}
	return m, nil
}

// ToSlice converts the input to a slice of any.
func ToSlice(input any) ([]any, error) {
	if input == nil {
		return nil, nil
	}
	s, err := cast.ToSliceE(input)
	if err != nil {
		return nil, fmt.Errorf("failed to coerce value (type %T) to slice", input)
	}
	return s, nil
}

// ToStringSlice converts the input to a slice of strings.
func ToStringSlice(input any) ([]string, error) {
	if input == nil {
		return nil, nil
	}
	s, err := cast.ToStringSliceE(input)
	if err != nil {
		return nil, fmt.Errorf("failed to coerce value (type %T) to string slice", input)
	}
	return s, nil
}

// ToInt64Def converts with a default for inputs that do not fit.
func ToInt64Def(input any, defaultVal int64) int64 {
	val, err := ToInt64(input)
	if err != nil {
		return defaultVal
	}
	return val
}

// ToFloat64Def converts with a default for inputs that do not fit.
func ToFloat64Def(input any, defaultVal float64) float64 {
	val, err := ToFloat64(input)
	if err != nil {
		return defaultVal
	}
	return val
}
