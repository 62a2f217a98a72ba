package warp

import "sync"

type slotState int

const (
	slotFree slotState = iota
	slotRendering
	slotPending
	slotPresenting
	slotDisplayed
)

// EyePool tracks the ownership of a fixed set of stereo eye buffers shared
// between the producer and the warp goroutine. With three buffers the
// producer can always acquire one: at most one is displayed, one is waiting
// to be presented and one is being rendered.
//
// A buffer handed to Submit is not recycled while the warp goroutine may
// still read it: it becomes free again only when a newer frame is displayed,
// or when a newer frame supersedes it before it was ever presented.
type EyePool struct {
	mu        sync.Mutex
	buffers   [][2]TextureHandle
	state     []slotState
	frameID   []uint64
	bySlot    map[TextureHandle]int
	latestID  uint64
	displayed int
}

// NewEyePool creates a pool over the given buffer pairs.
func NewEyePool(buffers [][2]TextureHandle) *EyePool {
	p := &EyePool{
		buffers:   buffers,
		state:     make([]slotState, len(buffers)),
		frameID:   make([]uint64, len(buffers)),
		bySlot:    make(map[TextureHandle]int, len(buffers)),
		displayed: -1,
	}
	for i, b := range buffers {
		p.bySlot[b[0]] = i
	}
	return p
}

// Acquire hands out a free buffer pair for rendering. ok is false when every
// buffer is in use; it never waits.
func (p *EyePool) Acquire() (eyes [2]TextureHandle, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.state {
		if s == slotFree {
			p.state[i] = slotRendering
			return p.buffers[i], true
		}
	}
	return eyes, false
}

// Release returns a buffer the producer acquired but will not submit.
func (p *EyePool) Release(left TextureHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.bySlot[left]; ok && p.state[i] == slotRendering {
		p.state[i] = slotFree
	}
}

// Free is the number of buffers available to Acquire.
func (p *EyePool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.state {
		if s == slotFree {
			n++
		}
	}
	return n
}

func (p *EyePool) owns(left TextureHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.bySlot[left]
	return ok
}

// submitted marks the buffer holding frame id as the newest frame. A
// previous frame that was never presented is released.
func (p *EyePool) submitted(left TextureHandle, id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.bySlot[left]
	if !ok {
		return
	}
	for j, s := range p.state {
		if j != i && s == slotPending {
			p.state[j] = slotFree
		}
	}
	p.state[i] = slotPending
	p.frameID[i] = id
	p.latestID = id
}

// claim reserves the buffer of frame id for drawing. It fails if the buffer
// has been recycled since the frame was loaded.
func (p *EyePool) claim(left TextureHandle, id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.bySlot[left]
	if !ok {
		return true
	}
	if p.frameID[i] != id {
		return false
	}
	switch p.state[i] {
	case slotPending:
		p.state[i] = slotPresenting
		return true
	case slotPresenting, slotDisplayed:
		return true
	}
	return false
}

// presented records that the buffer is now on screen and frees the one it
// replaced.
func (p *EyePool) presented(left TextureHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.bySlot[left]
	if !ok {
		return
	}
	if p.displayed >= 0 && p.displayed != i {
		p.state[p.displayed] = slotFree
	}
	p.state[i] = slotDisplayed
	p.displayed = i
}

// abandon undoes claim after a failed draw.
func (p *EyePool) abandon(left TextureHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.bySlot[left]
	if !ok || p.state[i] != slotPresenting {
		return
	}
	if p.frameID[i] == p.latestID {
		p.state[i] = slotPending
	} else {
		p.state[i] = slotFree
	}
}
