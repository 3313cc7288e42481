package usage

import (
	"context"
	"fmt"

	"github.com/nikiz24/usage/storage"
	"go.uber.org/zap"
)

// errorCategory is the category of every error metric.
const errorCategory = "usage.error"

// ErrorRecorder counts recording failures against the metric that caused them.
type ErrorRecorder interface {
	// Record adds numErrors occurrences of errType against metric in every
	// bucket of metric.
	Record(ctx context.Context, metric CommonMetricData, errType ErrorType, message string, numErrors int64) error
	// Count returns the number of errType occurrences recorded against metric in bucket.
	Count(ctx context.Context, metric CommonMetricData, errType ErrorType, bucket string) (int64, error)
}

// errorManager stores errors as counters named after the error type and
// labeled with the failing metric's identifier.
type errorManager struct {
	store  storage.Store
	logger *zap.Logger
}

// NewErrorRecorder returns an ErrorRecorder writing error counters to store.
func NewErrorRecorder(store storage.Store, logger *zap.Logger) ErrorRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &errorManager{store: store, logger: logger}
}

// errorMetricRef locates the counter of errType for metric. Errors always use
// the ping lifetime and follow the failing metric's buckets.
func errorMetricRef(metric CommonMetricData, errType ErrorType) metricRef {
	return metricRef{
		id:       fmt.Sprintf("%s.%s/%s", errorCategory, errType, metric.Identifier()),
		lifetime: storage.LifetimePing,
		buckets:  metric.SendInPings,
	}
}

// Record implements ErrorRecorder.
func (e *errorManager) Record(ctx context.Context, metric CommonMetricData, errType ErrorType, message string, numErrors int64) error {
	e.logger.Warn("metric recording failed",
		zap.String("metric", metric.Identifier()),
		zap.String("error_type", string(errType)),
		zap.String("message", message))

	incoming, res := newMetricValue[int64](counterKind{}, numErrors)
	if !res.OK() {
		e.logger.Debug("ignoring error report with non-positive count",
			zap.String("metric", metric.Identifier()),
			zap.Int64("num_errors", numErrors))
		return nil
	}
	return transformValue[int64](ctx, e.store, e.logger, counterKind{}, errorMetricRef(metric, errType), incoming)
}

// Count implements ErrorRecorder.
func (e *errorManager) Count(ctx context.Context, metric CommonMetricData, errType ErrorType, bucket string) (int64, error) {
	raw, ok, err := e.store.Get(ctx, bucket, errorMetricRef(metric, errType))
	if err != nil {
		return 0, fmt.Errorf("count %s errors for %s: %w", errType, metric.Identifier(), err)
	}
	if !ok {
		return 0, nil
	}
	n, res := counterKind{}.decode(raw)
	if !res.OK() {
		return 0, nil
	}
	return n, nil
}
