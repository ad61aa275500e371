package batch

import (
	"log/slog"
	"sync"

	"gamebatch/internal/models"
)

// emitter hands snapshots to the sink through a one-slot buffer. When the
// sink lags, the buffered snapshot is replaced by the newer one.
type emitter struct {
	mu     sync.Mutex
	last   float64
	closed bool
	ch     chan models.ProgressSnapshot
	done   chan struct{}
}

func newEmitter(sink ProgressSink, logger *slog.Logger) *emitter {
	e := &emitter{
		ch:   make(chan models.ProgressSnapshot, 1),
		done: make(chan struct{}),
	}
	go func() {
		defer close(e.done)
		for snap := range e.ch {
			if sink == nil {
				continue
			}
			deliver(sink, snap, logger)
		}
	}()
	return e
}

func deliver(sink ProgressSink, snap models.ProgressSnapshot, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("progress sink panicked", "panic", r)
		}
	}()
	sink(snap)
}

// publish builds a snapshot and queues it. build runs under the emitter
// lock so snapshots leave in the order their state was read.
func (e *emitter) publish(build func() models.ProgressSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	snap := build()
	if snap.OverallPercent < e.last {
		snap.OverallPercent = e.last
	}
	e.last = snap.OverallPercent

	select {
	case e.ch <- snap:
	default:
		select {
		case <-e.ch:
		default:
		}
		e.ch <- snap
	}
}

// close flushes the last queued snapshot and waits for the sink to return.
func (e *emitter) close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
	e.mu.Unlock()
	<-e.done
}
