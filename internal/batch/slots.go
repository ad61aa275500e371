package batch

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"gamebatch/internal/models"
)

// SlotFunc runs inside an upload slot. ctx is cancelled when the batch is
// cancelled or when the slot itself is cancelled.
type SlotFunc func(ctx context.Context) error

// SlotPool runs at most size SlotFuncs at once. Submissions wait in FIFO
// order and take the lowest free slot as soon as one is released.
type SlotPool struct {
	mu     sync.Mutex
	slots  []slotState
	queue  []*ticket
	active atomic.Int32
}

type slotState struct {
	inUse    bool
	occupant string
	cancel   context.CancelFunc
	skipped  bool
}

type ticket struct {
	ctx  context.Context
	item string
	fn   SlotFunc
	done chan error
	stop func() bool
}

func NewSlotPool(size int) *SlotPool {
	if size < 1 {
		size = 1
	}
	return &SlotPool{slots: make([]slotState, size)}
}

// Submit queues fn and returns a channel that receives exactly one value:
// fn's error, ErrSkippedByUser if its slot was cancelled, or ErrCancelled if
// ctx ended before a slot became free.
func (p *SlotPool) Submit(ctx context.Context, item string, fn SlotFunc) <-chan error {
	t := &ticket{ctx: ctx, item: item, fn: fn, done: make(chan error, 1)}
	stop := context.AfterFunc(ctx, func() { p.abandon(t) })

	p.mu.Lock()
	t.stop = stop
	p.queue = append(p.queue, t)
	p.dispatchLocked()
	p.mu.Unlock()
	return t.done
}

// CancelSlot cancels whatever is running in slot index. It reports false
// when the index is out of range or the slot is idle.
func (p *SlotPool) CancelSlot(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.slots) || !p.slots[index].inUse {
		return false
	}
	p.slots[index].skipped = true
	p.slots[index].cancel()
	return true
}

func (p *SlotPool) AvailableSlots() int {
	return len(p.slots) - int(p.active.Load())
}

func (p *SlotPool) Size() int {
	return len(p.slots)
}

// Slots returns the current occupant of every slot.
func (p *SlotPool) Slots() []models.UploadSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.UploadSlot, len(p.slots))
	for i, s := range p.slots {
		out[i] = models.UploadSlot{Index: i, InUse: s.inUse, Occupant: s.occupant}
	}
	return out
}

func (p *SlotPool) dispatchLocked() {
	for len(p.queue) > 0 {
		idx := p.freeSlotLocked()
		if idx < 0 {
			return
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		if t.stop != nil {
			t.stop()
		}
		if t.ctx.Err() != nil {
			t.done <- ErrCancelled
			continue
		}
		p.startLocked(idx, t)
	}
}

func (p *SlotPool) freeSlotLocked() int {
	for i, s := range p.slots {
		if !s.inUse {
			return i
		}
	}
	return -1
}

func (p *SlotPool) startLocked(idx int, t *ticket) {
	ctx, cancel := context.WithCancel(t.ctx)
	p.slots[idx] = slotState{inUse: true, occupant: t.item, cancel: cancel}
	p.active.Add(1)

	go func() {
		err := t.fn(ctx)
		cancel()

		p.mu.Lock()
		if p.slots[idx].skipped && err != nil {
			err = ErrSkippedByUser
		}
		p.slots[idx] = slotState{}
		p.active.Add(-1)
		p.dispatchLocked()
		p.mu.Unlock()

		t.done <- err
	}()
}

// abandon resolves a still-queued ticket whose context ended.
func (p *SlotPool) abandon(t *ticket) {
	p.mu.Lock()
	i := slices.Index(p.queue, t)
	if i < 0 {
		p.mu.Unlock()
		return
	}
	p.queue = slices.Delete(p.queue, i, i+1)
	p.mu.Unlock()
	t.done <- ErrCancelled
}
