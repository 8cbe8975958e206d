package dsp

import "time"

const (
	jitterRingSize = 16 // must be a power of 2
	jitterRingMask = jitterRingSize - 1

	// jitterStaleTimeout is how long a sender must be silent before their
	// stream is pruned from the buffer.
	jitterStaleTimeout = 500 * time.Millisecond
)

// JitterFrame is a single voice frame output from the jitter buffer.
type JitterFrame struct {
	SenderID uint16
	OpusData []byte // nil signals a missing packet (caller should run PLC)
}

type jitterSlot struct {
	opus []byte
	seq  uint16
	set  bool
}

// jitterStream tracks per-sender jitter buffer state.
type jitterStream struct {
	ring     [jitterRingSize]jitterSlot
	nextPlay uint16
	primed   bool
	count    int
	lastRecv time.Time
}

// JitterBuffer reorders out-of-order Opus datagrams per sender using
// sequence numbers, buffers a configurable number of frames before starting
// playback, and signals missing frames so the caller can run packet loss
// concealment. Not safe for concurrent use: the caller (a single playback
// loop) is the sole reader and writer.
type JitterBuffer struct {
	streams map[uint16]*jitterStream
	depth   int
}

// NewJitterBuffer creates a jitter buffer with the given depth (in 20 ms
// frames). A depth of 3 adds ~60 ms of latency and tolerates reordering
// within that window.
func NewJitterBuffer(depth int) *JitterBuffer {
	if depth < 1 {
		depth = 1
	}
	if depth > jitterRingSize/2 {
		depth = jitterRingSize / 2
	}
	return &JitterBuffer{streams: make(map[uint16]*jitterStream), depth: depth}
}

// Push inserts a received packet into the sender's ring buffer.
func (b *JitterBuffer) Push(senderID, seq uint16, opus []byte) {
	s, ok := b.streams[senderID]
	if !ok {
		s = &jitterStream{nextPlay: seq}
		b.streams[senderID] = s
	}
	s.lastRecv = time.Now()

	idx := int(seq) & jitterRingMask

	if !s.primed {
		s.ring[idx] = jitterSlot{opus: opus, seq: seq, set: true}
		s.count++
		if s.count >= b.depth {
			s.primed = true
		}
		return
	}

	dist := int16(seq - s.nextPlay)

	if dist < 0 {
		return // late arrival, already played past this seq
	}
	if int(dist) >= jitterRingSize {
		// Way ahead of expectation: likely a sender restart or long gap.
		*s = jitterStream{nextPlay: seq, lastRecv: time.Now(), count: 1}
		s.ring[idx] = jitterSlot{opus: opus, seq: seq, set: true}
		if s.count >= b.depth {
			s.primed = true
		}
		return
	}

	s.ring[idx] = jitterSlot{opus: opus, seq: seq, set: true}
}

// Pop returns one frame per active sender for the current 20 ms playback
// tick, pruning senders that have gone silent for more than
// jitterStaleTimeout.
func (b *JitterBuffer) Pop() []JitterFrame {
	now := time.Now()
	var frames []JitterFrame
	var stale []uint16

	for id, s := range b.streams {
		if now.Sub(s.lastRecv) > jitterStaleTimeout {
			stale = append(stale, id)
			continue
		}
		if !s.primed {
			continue
		}

		idx := int(s.nextPlay) & jitterRingMask
		if s.ring[idx].set && s.ring[idx].seq == s.nextPlay {
			frames = append(frames, JitterFrame{SenderID: id, OpusData: s.ring[idx].opus})
			s.ring[idx] = jitterSlot{}
		} else {
			s.ring[idx] = jitterSlot{}
			frames = append(frames, JitterFrame{SenderID: id, OpusData: nil})
		}
		s.nextPlay++
	}

	for _, id := range stale {
		delete(b.streams, id)
	}

	return frames
}

// Reset clears all buffered state (e.g. on disconnect).
func (b *JitterBuffer) Reset() { b.streams = make(map[uint16]*jitterStream) }

// ActiveSenders returns the number of senders with primed streams.
func (b *JitterBuffer) ActiveSenders() int {
	n := 0
	for _, s := range b.streams {
		if s.primed {
			n++
		}
	}
	return n
}
