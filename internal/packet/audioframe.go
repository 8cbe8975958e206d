package packet

import (
	"fmt"
	"sync/atomic"
)

// PacketMetadata carries optional timing/sequencing information attached to
// a packet — used for pacing, synchronization, and A/V alignment.
type PacketMetadata struct {
	TimestampUs *uint64
	DurationUs  *uint64
	Sequence    *uint64
}

// sharedSamples is the Arc<PooledSamples>-equivalent: a refcounted handle
// around a PooledSamples buffer. Clone increments Refcount (O(1), no
// allocation); the buffer returns to its pool once the count reaches zero
// and Release is called.
type sharedSamples struct {
	inner    *PooledSamples
	refcount int32
}

func newSharedSamples(inner *PooledSamples) *sharedSamples {
	return &sharedSamples{inner: inner, refcount: 1}
}

func (s *sharedSamples) clone() *sharedSamples {
	atomic.AddInt32(&s.refcount, 1)
	return s
}

func (s *sharedSamples) strongCount() int32 {
	return atomic.LoadInt32(&s.refcount)
}

// release decrements the refcount and returns the backing buffer to its pool
// once no references remain.
func (s *sharedSamples) release() {
	if atomic.AddInt32(&s.refcount, -1) == 0 {
		s.inner.Release()
	}
}

// AudioFrame is a single frame of interleaved raw audio, using f32 as the
// internal standard. Samples are refcounted for cheap fan-out cloning;
// mutation forces a private copy only when the buffer is shared
// (copy-on-write via MakeSamplesMut).
type AudioFrame struct {
	SampleRate uint32
	Channels   uint16
	Metadata   *PacketMetadata
	samples    *sharedSamples
}

// NewAudioFrame wraps a freshly-allocated, non-pooled sample slice.
func NewAudioFrame(sampleRate uint32, channels uint16, samples []float32) AudioFrame {
	return AudioFrame{
		SampleRate: sampleRate,
		Channels:   channels,
		samples:    newSharedSamples(FromVec(samples)),
	}
}

// NewAudioFrameWithMetadata is NewAudioFrame plus attached timing metadata.
func NewAudioFrameWithMetadata(sampleRate uint32, channels uint16, samples []float32, metadata *PacketMetadata) AudioFrame {
	f := NewAudioFrame(sampleRate, channels, samples)
	f.Metadata = metadata
	return f
}

// FromPooled wraps pooled storage directly (the preferred hot-path
// constructor for decoders, resamplers, and mixers).
func FromPooled(sampleRate uint32, channels uint16, samples *PooledSamples, metadata *PacketMetadata) AudioFrame {
	return AudioFrame{
		SampleRate: sampleRate,
		Channels:   channels,
		Metadata:   metadata,
		samples:    newSharedSamples(samples),
	}
}

// Clone returns a new AudioFrame sharing the same sample storage: an
// atomic refcount increment only, never an allocation.
func (f AudioFrame) Clone() AudioFrame {
	f.samples = f.samples.clone()
	return f
}

// Release drops this frame's reference to its sample storage, returning the
// buffer to its pool once the last reference is released. Call this when a
// node is done forwarding or consuming a frame and holds no further clones.
func (f AudioFrame) Release() {
	f.samples.release()
}

// Samples returns a read-only view of the interleaved samples (zero cost).
func (f AudioFrame) Samples() []float32 {
	return f.samples.inner.AsSlice()
}

// MakeSamplesMut returns a mutable view of the samples, copying the
// underlying storage first if it is shared with any other clone. This is
// the only legal way to mutate samples in place.
func (f *AudioFrame) MakeSamplesMut() []float32 {
	if f.samples.strongCount() == 1 {
		return f.samples.inner.AsMutSlice()
	}
	cloned := f.samples.inner.Clone()
	old := f.samples
	f.samples = newSharedSamples(cloned)
	old.release()
	return f.samples.inner.AsMutSlice()
}

// HasUniqueSamples reports whether this is the only reference to the
// backing storage, meaning MakeSamplesMut will not need to copy.
func (f AudioFrame) HasUniqueSamples() bool {
	return f.samples.strongCount() == 1
}

// Len returns the total number of samples across all channels.
func (f AudioFrame) Len() int {
	return f.samples.inner.Len()
}

// IsEmpty reports whether the frame carries no samples.
func (f AudioFrame) IsEmpty() bool {
	return f.Len() == 0
}

// NumFrames returns the number of sample frames (samples / channels).
func (f AudioFrame) NumFrames() int {
	if f.Channels == 0 {
		return 0
	}
	return f.Len() / int(f.Channels)
}

// DurationUs returns the duration of this audio frame in microseconds, or an
// error if the sample rate is zero (a Runtime failure on a degenerate
// rate).
func (f AudioFrame) DurationUs() (uint64, error) {
	if f.SampleRate == 0 {
		return 0, fmt.Errorf("audio frame: duration undefined for sample_rate=0")
	}
	frames := uint64(f.NumFrames())
	return (frames * 1_000_000) / uint64(f.SampleRate), nil
}
