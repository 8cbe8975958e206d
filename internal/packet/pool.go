// Package packet defines the typed data units that flow through a StreamKit
// pipeline: the Packet sum type, the copy-on-write AudioFrame, and the
// pooled sample arena that backs it.
package packet

import (
	"sync"
	"weak"
)

// BucketStats describes the occupancy of a single pool bucket.
type BucketStats struct {
	BucketSize   int
	Available    int
	MaxPerBucket int
}

// PoolStats is a snapshot of a FramePool's hit/miss counters and bucket state.
type PoolStats struct {
	Hits    uint64
	Misses  uint64
	Buckets []BucketStats
}

type poolInner[T any] struct {
	mu           sync.Mutex
	bucketSizes  []int
	maxPerBucket int
	buckets      [][][]T
	hits         uint64
	misses       uint64
}

func (p *poolInner[T]) bucketIndexForMinLen(minLen int) (int, bool) {
	for i, size := range p.bucketSizes {
		if size >= minLen {
			return i, true
		}
	}
	return 0, false
}

func (p *poolInner[T]) bucketIndexForStorageLen(storageLen int) (int, bool) {
	for i, size := range p.bucketSizes {
		if size == storageLen {
			return i, true
		}
	}
	return 0, false
}

// PoolHandle is a weak reference to a pool, used by pooled buffers so that a
// buffer outliving its pool degrades to a no-op release instead of a panic.
type PoolHandle[T any] struct {
	ptr weak.Pointer[poolInner[T]]
}

func (h PoolHandle[T]) upgrade() *poolInner[T] {
	return h.ptr.Value()
}

// FramePool is a thread-safe pool of fixed-size []T buffers, bucketed by
// element count. Get returns the smallest bucket that fits the request, or a
// one-off allocation if nothing matches.
type FramePool[T any] struct {
	inner *poolInner[T]
}

// WithBuckets creates a pool with the given bucket sizes (sorted/deduped
// defensively) and a cap on buffers retained per bucket.
func WithBuckets[T any](bucketSizes []int, maxPerBucket int) FramePool[T] {
	sizes := append([]int(nil), bucketSizes...)
	sortUnique(&sizes)
	buckets := make([][][]T, len(sizes))
	return FramePool[T]{inner: &poolInner[T]{
		bucketSizes:  sizes,
		maxPerBucket: maxPerBucket,
		buckets:      buckets,
	}}
}

func sortUnique(sizes *[]int) {
	s := *sizes
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	*sizes = out
}

// Preallocated creates a pool and eagerly fills every bucket to
// buffersPerBucket, so steady-state traffic never allocates.
func Preallocated[T any](bucketSizes []int, buffersPerBucket int) FramePool[T] {
	pool := WithBuckets[T](bucketSizes, buffersPerBucket)
	pool.inner.mu.Lock()
	defer pool.inner.mu.Unlock()
	for idx, size := range pool.inner.bucketSizes {
		for i := 0; i < buffersPerBucket; i++ {
			pool.inner.buckets[idx] = append(pool.inner.buckets[idx], make([]T, size))
		}
	}
	return pool
}

// Handle returns a weak reference usable by pooled buffers to return
// themselves to this pool on release.
func (p FramePool[T]) Handle() PoolHandle[T] {
	return PoolHandle[T]{ptr: weak.Make(p.inner)}
}

// Stats reports current hit/miss counts and per-bucket occupancy.
func (p FramePool[T]) Stats() PoolStats {
	p.inner.mu.Lock()
	defer p.inner.mu.Unlock()
	buckets := make([]BucketStats, len(p.inner.bucketSizes))
	for i, size := range p.inner.bucketSizes {
		buckets[i] = BucketStats{
			BucketSize:   size,
			Available:    len(p.inner.buckets[i]),
			MaxPerBucket: p.inner.maxPerBucket,
		}
	}
	return PoolStats{Hits: p.inner.hits, Misses: p.inner.misses, Buckets: buckets}
}

// Get returns pooled storage for at least minLen elements. If minLen doesn't
// fit any bucket, a non-pooled buffer of the exact size is returned instead.
func (p FramePool[T]) Get(minLen int) *PooledFrameData[T] {
	p.inner.mu.Lock()
	idx, ok := p.inner.bucketIndexForMinLen(minLen)
	if !ok {
		p.inner.misses++
		p.inner.mu.Unlock()
		return FromVec(make([]T, minLen))
	}
	bucketSize := p.inner.bucketSizes[idx]
	var buf []T
	if n := len(p.inner.buckets[idx]); n > 0 {
		buf = p.inner.buckets[idx][n-1]
		p.inner.buckets[idx] = p.inner.buckets[idx][:n-1]
		p.inner.hits++
	} else {
		p.inner.misses++
	}
	handle := p.Handle()
	p.inner.mu.Unlock()

	if buf == nil {
		buf = make([]T, bucketSize)
	}
	return fromPool(buf, minLen, handle, idx)
}

// PooledFrameData is a pooled buffer with a logical length distinct from its
// (bucket-sized) storage length. Zero value is not meaningful; use FromVec or
// FramePool.Get.
type PooledFrameData[T any] struct {
	data      []T
	length    int
	pool      *PoolHandle[T]
	bucketIdx int
}

// FromVec wraps an already-allocated slice as a non-pooled buffer.
func FromVec[T any](data []T) *PooledFrameData[T] {
	return &PooledFrameData[T]{data: data, length: len(data)}
}

func fromPool[T any](data []T, length int, pool PoolHandle[T], bucketIdx int) *PooledFrameData[T] {
	if length > len(data) {
		length = len(data)
	}
	return &PooledFrameData[T]{data: data, length: length, pool: &pool, bucketIdx: bucketIdx}
}

// Len returns the logical length (not the bucket storage length).
func (b *PooledFrameData[T]) Len() int { return b.length }

// IsEmpty reports whether the logical length is zero.
func (b *PooledFrameData[T]) IsEmpty() bool { return b.length == 0 }

// StorageLen returns the full backing storage length (the bucket size, for
// pooled buffers).
func (b *PooledFrameData[T]) StorageLen() int { return len(b.data) }

// AsSlice returns a read-only view of the logical contents.
func (b *PooledFrameData[T]) AsSlice() []T { return b.data[:b.length] }

// AsMutSlice returns a mutable view of the logical contents.
func (b *PooledFrameData[T]) AsMutSlice() []T { return b.data[:b.length] }

// Truncate sets the logical length, clamped to the storage length.
func (b *PooledFrameData[T]) Truncate(newLen int) {
	if newLen > len(b.data) {
		newLen = len(b.data)
	}
	b.length = newLen
}

// IntoVec detaches the logical contents into an exactly-sized slice and
// disarms pool return (the caller now owns a plain slice).
func (b *PooledFrameData[T]) IntoVec() []T {
	b.pool = nil
	out := make([]T, b.length)
	copy(out, b.data[:b.length])
	return out
}

// Clone copies the buffer, preferring to draw the copy's storage from the
// same pool bucket (to avoid a heap allocation) when the pool is still alive.
func (b *PooledFrameData[T]) Clone() *PooledFrameData[T] {
	if b.pool != nil {
		if inner := b.pool.upgrade(); inner != nil {
			inner.mu.Lock()
			if idx, ok := inner.bucketIndexForMinLen(b.length); ok {
				var data []T
				if n := len(inner.buckets[idx]); n > 0 {
					data = inner.buckets[idx][n-1]
					inner.buckets[idx] = inner.buckets[idx][:n-1]
				} else {
					data = make([]T, inner.bucketSizes[idx])
				}
				inner.hits++
				inner.mu.Unlock()
				copy(data[:b.length], b.AsSlice())
				return fromPool(data, b.length, *b.pool, idx)
			}
			inner.mu.Unlock()
		}
	}
	out := make([]T, b.length)
	copy(out, b.AsSlice())
	return FromVec(out)
}

// Release returns the buffer to its originating pool bucket if the bucket
// still has room and the pool is still alive; otherwise it is a no-op and
// the buffer is left for the garbage collector. Go has no destructors, so
// callers that want bucket reuse must call Release explicitly when they are
// done with a buffer; nothing reclaims it automatically.
func (b *PooledFrameData[T]) Release() {
	if b.pool == nil {
		return
	}
	pool := b.pool
	bucketIdx := b.bucketIdx
	b.pool = nil

	inner := pool.upgrade()
	if inner == nil {
		return
	}
	inner.mu.Lock()
	defer inner.mu.Unlock()

	expectedIdx, ok := inner.bucketIndexForStorageLen(len(b.data))
	if !ok || expectedIdx != bucketIdx {
		return
	}
	if len(inner.buckets[bucketIdx]) >= inner.maxPerBucket {
		return
	}
	b.length = len(b.data)
	inner.buckets[bucketIdx] = append(inner.buckets[bucketIdx], b.data)
	b.data = nil
}

// PooledSamples is pooled storage for interleaved float32 audio samples.
type PooledSamples = PooledFrameData[float32]

// AudioFramePool is the per-pipeline arena used by AudioFrame.
type AudioFramePool = FramePool[float32]

// DefaultAudioBucketSizes are the default bucket sizes in elements: 20ms,
// 40ms, 80ms, and 160ms of mono 48kHz audio.
var DefaultAudioBucketSizes = []int{960, 1920, 3840, 7680}

// DefaultAudioBuffersPerBucket is the default number of preallocated buffers
// held per bucket.
const DefaultAudioBuffersPerBucket = 32

// NewAudioPool creates a preallocated audio pool with the package defaults.
func NewAudioPool() AudioFramePool {
	return Preallocated[float32](DefaultAudioBucketSizes, DefaultAudioBuffersPerBucket)
}
