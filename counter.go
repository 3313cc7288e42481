package usage

import (
	"context"
	"math"
	"strconv"
)

// MaxCounterValue is the value a counter saturates at.
const MaxCounterValue int64 = math.MaxInt32

type counterKind struct{}

func (counterKind) validate(v int64) ValidationResult { return validateCount(v) }

func (counterKind) merge(current, incoming int64) int64 {
	return saturatingAdd(current, incoming, MaxCounterValue)
}

func (counterKind) encode(v int64) []byte { return strconv.AppendInt(nil, v, 10) }

func (counterKind) decode(raw []byte) (int64, ValidationResult) {
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, validationFailure("", "stored value %q is not an integer", raw)
	}
	if v > MaxCounterValue {
		return 0, validationFailure("", "stored value %d exceeds counter maximum", v)
	}
	return v, ValidationResult{}
}

// NewCounterValue validates amount as a counter increment.
// It returns a *ValidationError when amount is not strictly positive.
func NewCounterValue(amount int64) (*MetricValue[int64], error) {
	v, res := newMetricValue[int64](counterKind{}, amount)
	if !res.OK() {
		return nil, &ValidationError{Result: res}
	}
	return v, nil
}

// CounterMetric counts occurrences. Increments are strictly positive and the
// stored total saturates at MaxCounterValue.
type CounterMetric struct {
	metric[int64]
}

// NewCounterMetric creates a counter bound to c.
func NewCounterMetric(c *Context, data CommonMetricData) *CounterMetric {
	return &CounterMetric{metric: newMetric[int64](c, data, counterKind{})}
}

// Inc increments the counter by 1.
func (m *CounterMetric) Inc() { m.record(1) }

// Add increments the counter by amount. It never blocks; zero or negative
// amounts are recorded as an invalid_value error instead.
func (m *CounterMetric) Add(amount int64) { m.record(amount) }

// AddUndispatched applies amount immediately, bypassing the dispatcher.
// The caller must already own the dispatcher's worker or be a test helper.
func (m *CounterMetric) AddUndispatched(ctx context.Context, amount int64) error {
	return m.recordUndispatched(ctx, amount)
}

// TestGetValue returns the stored total in bucket once every earlier
// recording has been applied. An empty bucket selects the first destination.
// It waits on the dispatcher and must not be called from a dispatched task.
func (m *CounterMetric) TestGetValue(ctx context.Context, bucket string) (int64, bool, error) {
	return m.testGetValue(ctx, bucket)
}

// TestGetNumRecordedErrors returns how many errors of errType were recorded
// against the counter in bucket. It waits on the dispatcher and must not be
// called from a dispatched task.
func (m *CounterMetric) TestGetNumRecordedErrors(ctx context.Context, errType ErrorType, bucket string) (int64, error) {
	return m.testGetNumRecordedErrors(ctx, errType, bucket)
}
