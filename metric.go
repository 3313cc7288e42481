package usage

import (
	"context"
	"fmt"

	"github.com/nikiz24/usage/storage"
	"go.uber.org/zap"
)

// CommonMetricData describes a metric declared by application code.
type CommonMetricData struct {
	Category string
	Name     string
	// SendInPings lists the buckets the metric is recorded into, in order.
	SendInPings []string
	Lifetime    storage.Lifetime
	// Disabled metrics never record.
	Disabled bool
}

// Identifier returns "category.name", or just the name without a category.
func (d CommonMetricData) Identifier() string {
	if d.Category == "" {
		return d.Name
	}
	return d.Category + "." + d.Name
}

func (d CommonMetricData) ref() metricRef {
	lifetime := d.Lifetime
	if lifetime == "" {
		lifetime = storage.LifetimePing
	}
	return metricRef{id: d.Identifier(), lifetime: lifetime, buckets: d.SendInPings}
}

// metricRef is the storage view of a metric.
type metricRef struct {
	id       string
	lifetime storage.Lifetime
	buckets  []string
}

func (r metricRef) Identifier() string         { return r.id }
func (r metricRef) Lifetime() storage.Lifetime { return r.lifetime }
func (r metricRef) Buckets() []string          { return r.buckets }

// metric is the recording machinery shared by every metric kind.
type metric[P any] struct {
	ctx  *Context
	data CommonMetricData
	kind valueKind[P]
}

func newMetric[P any](c *Context, data CommonMetricData, kind valueKind[P]) metric[P] {
	return metric[P]{ctx: c, data: data, kind: kind}
}

// record enqueues v and returns immediately. Recordings made before the
// context is initialized are queued and applied once it is. The enablement
// flag is checked again when the task runs.
func (m *metric[P]) record(v P) {
	if m.data.Disabled {
		return
	}
	if enabled, set := m.ctx.uploadFlag(); set && !enabled {
		return
	}
	m.ctx.Dispatcher().Launch(func(ctx context.Context) error {
		if !m.ctx.UploadEnabled() {
			return nil
		}
		return m.recordUndispatched(ctx, v)
	})
}

// recordUndispatched validates v and merges it into the stored value.
// Validation failures become error metrics and are not returned.
func (m *metric[P]) recordUndispatched(ctx context.Context, v P) error {
	incoming, res := newMetricValue(m.kind, v)
	if !res.OK() {
		return m.ctx.recordValidationFailure(ctx, m.data, res)
	}

	store := m.ctx.Store()
	if store == nil {
		return fmt.Errorf("record %s: %w", m.data.Identifier(), ErrNotInitialized)
	}
	return transformValue(ctx, store, m.ctx.Logger(), m.kind, m.data.ref(), incoming)
}

func (m *metric[P]) bucketOrDefault(bucket string) string {
	if bucket == "" && len(m.data.SendInPings) > 0 {
		return m.data.SendInPings[0]
	}
	return bucket
}

func (m *metric[P]) testGetValue(ctx context.Context, bucket string) (P, bool, error) {
	var (
		value P
		found bool
	)
	bucket = m.bucketOrDefault(bucket)

	err := m.ctx.Dispatcher().await(ctx, func(ctx context.Context) error {
		store := m.ctx.Store()
		if store == nil {
			return ErrNotInitialized
		}
		raw, ok, err := store.Get(ctx, bucket, m.data.ref())
		if err != nil || !ok {
			return err
		}
		decoded, res := decodeMetricValue(m.kind, raw)
		if !res.OK() {
			m.ctx.Logger().Warn("stored value cannot be decoded",
				zap.String("metric", m.data.Identifier()),
				zap.String("bucket", bucket),
				zap.String("reason", res.Message))
			return nil
		}
		value, found = decoded.Payload(), true
		return nil
	})
	return value, found, err
}

func (m *metric[P]) testGetNumRecordedErrors(ctx context.Context, errType ErrorType, bucket string) (int64, error) {
	var count int64
	bucket = m.bucketOrDefault(bucket)

	err := m.ctx.Dispatcher().await(ctx, func(ctx context.Context) error {
		recorder := m.ctx.ErrorRecorder()
		if recorder == nil {
			return ErrNotInitialized
		}
		n, err := recorder.Count(ctx, m.data, errType, bucket)
		count = n
		return err
	})
	return count, err
}

// transformValue merges incoming into whatever is stored for ref. A stored
// value that cannot be decoded is discarded and overwritten.
func transformValue[P any](
	ctx context.Context,
	store storage.Store,
	logger *zap.Logger,
	kind valueKind[P],
	ref metricRef,
	incoming *MetricValue[P],
) error {
	// The store may evaluate the transform more than once on a write
	// conflict or once per bucket, so a discard is reported once after it returns.
	var discarded string
	err := store.Transform(ctx, ref, func(existing []byte, ok bool) []byte {
		next := *incoming
		if !ok {
			return next.encode()
		}
		current, res := decodeMetricValue(kind, existing)
		if !res.OK() {
			discarded = res.Message
			return next.encode()
		}
		next.Merge(current)
		return next.encode()
	})
	if discarded != "" {
		logger.Warn("discarding unexpected stored value",
			zap.String("metric", ref.id),
			zap.String("reason", discarded))
	}
	return err
}
