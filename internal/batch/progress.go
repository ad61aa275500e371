package batch

import (
	"math"
	"time"

	"gamebatch/internal/models"
)

// ItemProgress is the per-item input to Aggregate.
type ItemProgress struct {
	Name       string
	State      ItemState
	DoCrack    bool
	DoCompress bool
	DoUpload   bool
	CrackOK    bool
	CompressOK bool
	UploadOK   bool
}

var stateRank = map[ItemState]int{
	StatePending:     0,
	StateCracking:    1,
	StateCracked:     2,
	StateCompressing: 3,
	StateCompressed:  4,
	StateUploading:   5,
	StateUploaded:    6,
	StateConverting:  7,
	StateDone:        8,
}

var phaseOrder = []models.Phase{
	models.PhaseCracking,
	models.PhaseCompressing,
	models.PhaseUploading,
	models.PhaseConverting,
}

// fraction is how much of the item's share is complete. A terminal item is
// always complete; otherwise the share is split evenly over enabled stages.
func (p ItemProgress) fraction() float64 {
	if p.State.Terminal() {
		return 1
	}
	enabled := 0
	done := 0
	rank := stateRank[p.State]
	for _, st := range []struct {
		on       bool
		doneRank int
	}{
		{p.DoCrack, stateRank[StateCracked]},
		{p.DoCompress, stateRank[StateCompressed]},
		{p.DoUpload, stateRank[StateUploaded]},
	} {
		if !st.on {
			continue
		}
		enabled++
		if rank >= st.doneRank {
			done++
		}
	}
	if enabled == 0 {
		return 0
	}
	return float64(done) / float64(enabled)
}

func (p ItemProgress) phase() (models.Phase, bool) {
	switch p.State {
	case StateCracking:
		return models.PhaseCracking, true
	case StateCracked, StateCompressing:
		return models.PhaseCompressing, true
	case StateCompressed, StateUploading:
		return models.PhaseUploading, true
	case StateUploaded, StateConverting:
		return models.PhaseConverting, true
	}
	return "", false
}

// Aggregate folds per-item state into one snapshot. current is the
// zero-based index of the item that last changed, or -1.
func Aggregate(items []ItemProgress, current int, elapsed time.Duration) models.ProgressSnapshot {
	snap := models.ProgressSnapshot{TotalItems: len(items)}
	if current >= 0 && current < len(items) {
		snap.CurrentItemName = items[current].Name
		snap.CurrentItemIndex = current + 1
	}
	if len(items) == 0 {
		snap.Phase = models.PhaseComplete
		snap.OverallPercent = 100
		snap.PhasePercent = 100
		return snap
	}

	var completed float64
	allTerminal := true
	inPhase := make(map[models.Phase]int)
	for _, it := range items {
		completed += it.fraction()
		if !it.State.Terminal() {
			allTerminal = false
		}
		if ph, ok := it.phase(); ok {
			inPhase[ph]++
		}
		if it.CrackOK {
			snap.Cracked++
		}
		if it.CompressOK {
			snap.Compressed++
		}
		if it.UploadOK {
			snap.Uploaded++
		}
	}
	completed /= float64(len(items))

	if allTerminal {
		snap.Phase = models.PhaseComplete
		snap.OverallPercent = 100
		snap.PhasePercent = 100
		return snap
	}

	snap.OverallPercent = math.Min(completed*100, 99.99)
	snap.Phase = dominantPhase(inPhase)
	snap.PhasePercent = phasePercent(items, snap.Phase)
	if completed > 0 {
		remaining := elapsed.Seconds() / completed * (1 - completed)
		snap.EstimatedSecondsRemaining = math.Max(remaining, 0)
	}
	return snap
}

// dominantPhase picks the phase holding the most active items; ties go to
// the earlier phase. With nothing active yet the batch is cracking.
func dominantPhase(inPhase map[models.Phase]int) models.Phase {
	best := models.PhaseCracking
	bestN := 0
	for _, ph := range phaseOrder {
		if inPhase[ph] > bestN {
			best = ph
			bestN = inPhase[ph]
		}
	}
	return best
}

func phasePercent(items []ItemProgress, phase models.Phase) float64 {
	total := 0
	done := 0
	for _, it := range items {
		rank := stateRank[it.State]
		var in, finished bool
		switch phase {
		case models.PhaseCracking:
			in = it.DoCrack
			finished = it.State.Terminal() || rank >= stateRank[StateCracked]
		case models.PhaseCompressing:
			in = it.DoCompress
			finished = it.State.Terminal() || rank >= stateRank[StateCompressed]
		case models.PhaseUploading:
			in = it.DoUpload
			finished = it.State.Terminal() || rank >= stateRank[StateUploaded]
		case models.PhaseConverting:
			in = it.UploadOK
			finished = it.State == StateDone
		}
		if !in {
			continue
		}
		total++
		if finished {
			done++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
