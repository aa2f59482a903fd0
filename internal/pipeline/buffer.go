package pipeline

import "sync"

// DefaultBufferSize bounds the capture-to-inference frame queue.
const DefaultBufferSize = 3

// frameBuffer is a bounded FIFO between the capture and inference loops.
// When full, pushing evicts the oldest frame so inference always works on
// recent video instead of a growing backlog.
type frameBuffer struct {
	mu       sync.Mutex
	capacity int
	frames   []*Frame
}

func newFrameBuffer(capacity int) *frameBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &frameBuffer{capacity: capacity}
}

// push appends a frame, reporting whether an older frame was dropped to
// make room.
func (b *frameBuffer) push(f *Frame) (dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) >= b.capacity {
		copy(b.frames, b.frames[1:])
		b.frames = b.frames[:len(b.frames)-1]
		dropped = true
	}
	b.frames = append(b.frames, f)
	return dropped
}

// pop removes the oldest buffered frame, or nil when empty.
func (b *frameBuffer) pop() *Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return nil
	}
	f := b.frames[0]
	copy(b.frames, b.frames[1:])
	b.frames = b.frames[:len(b.frames)-1]
	return f
}

func (b *frameBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}
