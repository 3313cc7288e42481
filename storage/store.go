// Package storage provides the persistence collaborators behind the usage
// recording pipeline: an in-memory store and a Redis-backed store.
//
// Values are opaque byte slices. Each metric kind decides how its payload is
// encoded; the store only guarantees that a transform is applied atomically
// per (lifetime, bucket, identifier) key.
package storage

import (
	"context"
	"errors"
)

// Lifetime selects the namespace a metric value lives in.
type Lifetime string

const (
	// LifetimePing values are cleared every time their bucket is assembled.
	LifetimePing Lifetime = "ping"
	// LifetimeApplication values survive assembly and live until the process ends.
	LifetimeApplication Lifetime = "application"
	// LifetimeUser values are never assembled nor cleared by the pipeline.
	LifetimeUser Lifetime = "user"
)

// ErrTransformConflict is returned when an optimistic transform kept losing to
// concurrent writers.
var ErrTransformConflict = errors.New("storage: transform conflict")

// Metric identifies where a metric value is stored.
type Metric interface {
	Identifier() string
	Lifetime() Lifetime
	Buckets() []string
}

// TransformFunc computes the next raw value from the existing one.
// ok is false when nothing is stored yet. Returning nil deletes the value.
type TransformFunc func(existing []byte, ok bool) []byte

// Store is the persistence collaborator used by the recording pipeline.
type Store interface {
	// Transform applies fn to the value of m in every bucket of m.
	Transform(ctx context.Context, m Metric, fn TransformFunc) error
	// Get reads the raw value of m in bucket.
	Get(ctx context.Context, bucket string, m Metric) ([]byte, bool, error)
	// Snapshot returns every raw value of bucket keyed by identifier.
	Snapshot(ctx context.Context, lifetime Lifetime, bucket string) (map[string][]byte, error)
	// Clear removes every value of bucket.
	Clear(ctx context.Context, lifetime Lifetime, bucket string) error
}
