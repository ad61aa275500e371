package batch

import (
	"sync"
	"time"

	"gamebatch/internal/models"
)

// tracker owns item states and outcomes for one run. The state machine
// guarantees one writer per item; the lock covers concurrent readers.
type tracker struct {
	mu       sync.RWMutex
	items    []models.WorkItem
	states   []ItemState
	outcomes []*models.ItemOutcome
}

func newTracker(items []models.WorkItem) *tracker {
	t := &tracker{
		items:    items,
		states:   make([]ItemState, len(items)),
		outcomes: make([]*models.ItemOutcome, len(items)),
	}
	for i := range t.states {
		t.states[i] = StatePending
	}
	return t
}

func (t *tracker) state(i int) ItemState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[i]
}

func (t *tracker) transition(i int, to ItemState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	from := t.states[i]
	if !CanTransition(from, to) {
		return transitionError(t.items[i].Name, from, to)
	}
	t.states[i] = to
	if o := t.outcomes[i]; o != nil {
		o.State = string(to)
		o.Cancelled = to == StateCancelled
	}
	return nil
}

// update mutates the item's outcome, creating it on first use.
func (t *tracker) update(i int, fn func(o *models.ItemOutcome)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.outcomes[i]
	if o == nil {
		o = &models.ItemOutcome{
			Name:      t.items[i].Name,
			Index:     i,
			State:     string(t.states[i]),
			Timestamp: time.Now(),
		}
		t.outcomes[i] = o
	}
	fn(o)
}

func (t *tracker) progress() []ItemProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ItemProgress, len(t.items))
	for i, it := range t.items {
		p := ItemProgress{
			Name:       it.Name,
			State:      t.states[i],
			DoCrack:    it.DoCrack,
			DoCompress: it.DoCompress,
			DoUpload:   it.DoUpload,
		}
		if o := t.outcomes[i]; o != nil {
			p.CrackOK = o.CrackAttempted && o.Success
			p.CompressOK = o.Compress.Success
			p.UploadOK = o.Upload.Success
		}
		out[i] = p
	}
	return out
}

// snapshot copies every outcome in submission order. Items that never
// entered a stage get a bare outcome carrying their state.
func (t *tracker) snapshot() []models.ItemOutcome {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.ItemOutcome, len(t.items))
	for i, it := range t.items {
		if o := t.outcomes[i]; o != nil {
			out[i] = o.Clone()
			continue
		}
		out[i] = models.ItemOutcome{
			Name:      it.Name,
			Index:     i,
			State:     string(t.states[i]),
			Cancelled: t.states[i] == StateCancelled,
		}
	}
	return out
}
