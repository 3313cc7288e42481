package usage

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCount(t *testing.T) {
	tests := []struct {
		name string
		v    int64
		ok   bool
	}{
		{"one", 1, true},
		{"large", math.MaxInt64, true},
		{"zero", 0, false},
		{"negative", -5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validateCount(tt.v)
			assert.Equal(t, tt.ok, res.OK())
			if !tt.ok {
				assert.Equal(t, ErrorTypeInvalidValue, res.ErrorType)
				assert.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestSaturatingAdd(t *testing.T) {
	const limit = int64(100)
	tests := []struct {
		name           string
		current, delta int64
		want           int64
	}{
		{"plain", 10, 5, 15},
		{"exactly max", 90, 10, 100},
		{"overflow clamps", 90, 11, 100},
		{"already max", 100, 1, 100},
		{"huge delta", 1, math.MaxInt64, 100},
		{"non-positive delta keeps current", 40, -3, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := saturatingAdd(tt.current, tt.delta, limit)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, tt.current)
			assert.LessOrEqual(t, got, limit)
		})
	}
}

func TestNewCounterValueReturnsTypedError(t *testing.T) {
	_, err := NewCounterValue(0)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrorTypeInvalidValue, verr.Result.ErrorType)
	assert.Contains(t, err.Error(), "invalid_value")

	v, err := NewCounterValue(3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Payload())
}

func TestCounterValueMerge(t *testing.T) {
	a, err := NewCounterValue(MaxCounterValue - 1)
	require.NoError(t, err)
	b, err := NewCounterValue(5)
	require.NoError(t, err)

	a.Merge(b)
	assert.Equal(t, MaxCounterValue, a.Payload())
}

func TestCounterDecodeRejectsForeignData(t *testing.T) {
	for _, raw := range []string{"", "abc", "1.5", `{"v":1}`, "0", "-4", "99999999999"} {
		_, res := decodeMetricValue[int64](counterKind{}, []byte(raw))
		assert.False(t, res.OK(), "raw %q", raw)
	}

	v, res := decodeMetricValue[int64](counterKind{}, []byte("42"))
	require.True(t, res.OK())
	assert.Equal(t, int64(42), v.Payload())
}
