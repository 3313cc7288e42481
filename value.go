package usage

// valueKind holds the kind-specific rules of a metric type.
type valueKind[P any] interface {
	validate(P) ValidationResult
	merge(current, incoming P) P
	encode(P) []byte
	decode(raw []byte) (P, ValidationResult)
}

// MetricValue is a validated in-memory value of one metric. Only its payload
// is ever persisted.
type MetricValue[P any] struct {
	kind    valueKind[P]
	payload P
}

func newMetricValue[P any](kind valueKind[P], v P) (*MetricValue[P], ValidationResult) {
	if res := kind.validate(v); !res.OK() {
		return nil, res
	}
	return &MetricValue[P]{kind: kind, payload: v}, ValidationResult{}
}

func decodeMetricValue[P any](kind valueKind[P], raw []byte) (*MetricValue[P], ValidationResult) {
	v, res := kind.decode(raw)
	if !res.OK() {
		return nil, res
	}
	return newMetricValue(kind, v)
}

// Payload returns the value in the shape the store persists.
func (m *MetricValue[P]) Payload() P { return m.payload }

// Merge folds other into m using the kind's merge rule.
func (m *MetricValue[P]) Merge(other *MetricValue[P]) {
	m.payload = m.kind.merge(m.payload, other.payload)
}

func (m *MetricValue[P]) encode() []byte { return m.kind.encode(m.payload) }
