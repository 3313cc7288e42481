package storage

import (
	"context"
	"sync"
)

// Memory is a mutex-guarded in-memory Store.
type Memory struct {
	mu   sync.RWMutex
	data map[Lifetime]map[string]map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[Lifetime]map[string]map[string][]byte),
	}
}

// Transform implements Store.
func (s *Memory) Transform(ctx context.Context, m Metric, fn TransformFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := m.Identifier()
	for _, bucket := range m.Buckets() {
		values := s.bucketLocked(m.Lifetime(), bucket, true)
		existing, ok := values[id]
		next := fn(cloneBytes(existing), ok)
		if next == nil {
			delete(values, id)
			continue
		}
		values[id] = cloneBytes(next)
	}
	return nil
}

// Get implements Store.
func (s *Memory) Get(ctx context.Context, bucket string, m Metric) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	values := s.bucketLocked(m.Lifetime(), bucket, false)
	raw, ok := values[m.Identifier()]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(raw), true, nil
}

// Snapshot implements Store.
func (s *Memory) Snapshot(ctx context.Context, lifetime Lifetime, bucket string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	values := s.bucketLocked(lifetime, bucket, false)
	out := make(map[string][]byte, len(values))
	for id, raw := range values {
		out[id] = cloneBytes(raw)
	}
	return out, nil
}

// Clear implements Store.
func (s *Memory) Clear(ctx context.Context, lifetime Lifetime, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if buckets, ok := s.data[lifetime]; ok {
		delete(buckets, bucket)
	}
	s.mu.Unlock()
	return nil
}

// Set overwrites the raw value of identifier in bucket, bypassing any codec.
// It exists to seed fixtures, including values a metric kind cannot decode.
func (s *Memory) Set(lifetime Lifetime, bucket, identifier string, raw []byte) {
	s.mu.Lock()
	s.bucketLocked(lifetime, bucket, true)[identifier] = cloneBytes(raw)
	s.mu.Unlock()
}

func (s *Memory) bucketLocked(lifetime Lifetime, bucket string, create bool) map[string][]byte {
	buckets, ok := s.data[lifetime]
	if !ok {
		if !create {
			return nil
		}
		buckets = make(map[string]map[string][]byte)
		s.data[lifetime] = buckets
	}
	values, ok := buckets[bucket]
	if !ok && create {
		values = make(map[string][]byte)
		buckets[bucket] = values
	}
	return values
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
