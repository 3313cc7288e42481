package usage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eryajf/promwrite"
	"github.com/nikiz24/usage/storage"
	"go.uber.org/zap"
)

// assembledLifetimes are read by Assemble. User lifetime values are never sent.
var assembledLifetimes = []storage.Lifetime{storage.LifetimePing, storage.LifetimeApplication}

// PingAssembler collects the current values of a bucket into Prometheus
// remote-write time series. Sending the request is left to the caller.
type PingAssembler struct {
	config Config
	ctx    *Context
}

// NewPingAssembler creates an assembler reading from c.
func NewPingAssembler(config Config, c *Context) *PingAssembler {
	return &PingAssembler{config: config, ctx: c}
}

// Assemble runs on the dispatcher, so every recording launched before the call
// is included. Ping lifetime values of the bucket are cleared afterwards.
// It returns nil when the bucket holds no values. It must not be called from
// a dispatched task.
func (p *PingAssembler) Assemble(ctx context.Context, bucket string) (*promwrite.WriteRequest, error) {
	var req *promwrite.WriteRequest

	err := p.ctx.Dispatcher().await(ctx, func(ctx context.Context) error {
		store := p.ctx.Store()
		if store == nil {
			return ErrNotInitialized
		}

		now := time.Now()
		var series []promwrite.TimeSeries
		for _, lifetime := range assembledLifetimes {
			values, err := store.Snapshot(ctx, lifetime, bucket)
			if err != nil {
				return fmt.Errorf("assemble %s: %w", bucket, err)
			}
			series = append(series, p.convertToTimeSeries(bucket, values, now)...)
		}

		if err := store.Clear(ctx, storage.LifetimePing, bucket); err != nil {
			return fmt.Errorf("clear %s after assembly: %w", bucket, err)
		}

		if len(series) == 0 {
			return nil
		}
		sort.Slice(series, func(i, j int) bool {
			return seriesKey(series[i]) < seriesKey(series[j])
		})
		req = &promwrite.WriteRequest{TimeSeries: series}
		return nil
	})
	return req, err
}

// convertToTimeSeries decodes raw counter values into time series, skipping
// values that do not decode.
func (p *PingAssembler) convertToTimeSeries(bucket string, values map[string][]byte, now time.Time) []promwrite.TimeSeries {
	result := make([]promwrite.TimeSeries, 0, len(values))

	for id, raw := range values {
		v, res := counterKind{}.decode(raw)
		if !res.OK() {
			p.ctx.Logger().Warn("skipping undecodable value during assembly",
				zap.String("metric", id),
				zap.String("bucket", bucket),
				zap.String("reason", res.Message))
			continue
		}

		name, label, _ := strings.Cut(id, "/")
		labels := make([]promwrite.Label, 0, 4+len(p.config.CustomLabels))
		labels = append(labels,
			promwrite.Label{Name: "__name__", Value: p.metricName(name)},
			promwrite.Label{Name: "bucket", Value: bucket},
			promwrite.Label{Name: "service", Value: p.config.ServiceName},
		)
		if label != "" {
			labels = append(labels, promwrite.Label{Name: "metric", Value: label})
		}
		if p.config.Version != "" {
			labels = append(labels, promwrite.Label{Name: "version", Value: p.config.Version})
		}
		for k, v := range p.config.CustomLabels {
			labels = append(labels, promwrite.Label{Name: k, Value: v})
		}

		result = append(result, promwrite.TimeSeries{
			Labels: labels,
			Sample: promwrite.Sample{
				Time:  now,
				Value: float64(v),
			},
		})
	}
	return result
}

// metricName prefixes the identifier with the namespace and maps it onto the
// Prometheus name alphabet.
func (p *PingAssembler) metricName(id string) string {
	name := id
	if p.config.Namespace != "" {
		name = p.config.Namespace + "_" + id
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func seriesKey(ts promwrite.TimeSeries) string {
	var b strings.Builder
	for _, l := range ts.Labels {
		if l.Name == "__name__" || l.Name == "metric" {
			b.WriteString(l.Value)
			b.WriteByte('|')
		}
	}
	return b.String()
}
