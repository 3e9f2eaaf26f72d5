// Package matchpool provides a generic pooled-slice helper for the
// monitor's per-Notify match list, so a busy watchpoint walk doesn't
// allocate a fresh slice on every memory access.
//
// Bucketed by capacity (16, 64, 256 entries) the way a byte-buffer pool
// buckets by size: small watchpoint sets are the common case, and a
// handful of fixed buckets keeps sync.Pool effective without forcing
// every caller through one oversized bucket.
package matchpool

import "sync"

const (
	bucketSmall  = 16
	bucketMedium = 64
	bucketLarge  = 256
)

// Pool holds size-bucketed slices of T.
type Pool[T any] struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

// New creates a Pool for element type T.
func New[T any]() *Pool[T] {
	return &Pool[T]{
		small:  sync.Pool{New: func() any { s := make([]T, 0, bucketSmall); return &s }},
		medium: sync.Pool{New: func() any { s := make([]T, 0, bucketMedium); return &s }},
		large:  sync.Pool{New: func() any { s := make([]T, 0, bucketLarge); return &s }},
	}
}

// Get returns an empty slice with at least the requested capacity.
// Callers append to it and must call Put when done.
func (p *Pool[T]) Get(hint int) []T {
	switch {
	case hint <= bucketSmall:
		return (*p.small.Get().(*[]T))[:0]
	case hint <= bucketMedium:
		return (*p.medium.Get().(*[]T))[:0]
	case hint <= bucketLarge:
		return (*p.large.Get().(*[]T))[:0]
	default:
		return make([]T, 0, hint)
	}
}

// Put returns a slice to its capacity-matched bucket. Slices whose
// capacity is not exactly one of the bucket sizes (for example, ones
// grown by append) are simply dropped instead of pooled.
func (p *Pool[T]) Put(s []T) {
	s = s[:0]
	switch cap(s) {
	case bucketSmall:
		p.small.Put(&s)
	case bucketMedium:
		p.medium.Put(&s)
	case bucketLarge:
		p.large.Put(&s)
	}
}
