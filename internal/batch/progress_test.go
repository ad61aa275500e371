package batch

import (
	"math"
	"testing"
	"time"

	"gamebatch/internal/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestAggregate_SplitsShareAcrossEnabledStages(t *testing.T) {
	tests := []struct {
		name  string
		items []ItemProgress
		want  float64
	}{
		{
			name: "Crack and upload, crack done",
			items: []ItemProgress{
				{Name: "a", State: StateCompressed, DoCrack: true, DoUpload: true},
			},
			want: 50,
		},
		{
			name: "All three stages, two done",
			items: []ItemProgress{
				{Name: "a", State: StateUploading, DoCrack: true, DoCompress: true, DoUpload: true},
			},
			want: 200.0 / 3,
		},
		{
			name: "Upload only carries the whole share",
			items: []ItemProgress{
				{Name: "a", State: StateUploading, DoUpload: true},
				{Name: "b", State: StateCrackFailed, DoCrack: true, DoUpload: true},
			},
			want: 50,
		},
		{
			name: "Nothing started",
			items: []ItemProgress{
				{Name: "a", State: StatePending, DoCrack: true},
				{Name: "b", State: StatePending, DoUpload: true},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Aggregate(tt.items, -1, time.Second)
			if !approx(snap.OverallPercent, tt.want) {
				t.Errorf("OverallPercent = %.4f, want %.4f", snap.OverallPercent, tt.want)
			}
		})
	}
}

func TestAggregate_CompleteOnlyWhenAllTerminal(t *testing.T) {
	notYet := []ItemProgress{
		{Name: "a", State: StateDone, DoUpload: true, UploadOK: true},
		{Name: "b", State: StateConverting, DoUpload: true, UploadOK: true},
	}
	snap := Aggregate(notYet, 1, time.Second)
	if snap.OverallPercent >= 100 || snap.Phase == models.PhaseComplete {
		t.Errorf("snapshot = %.2f%% %s, want below 100 while converting", snap.OverallPercent, snap.Phase)
	}

	done := []ItemProgress{
		{Name: "a", State: StateDone, DoUpload: true, UploadOK: true},
		{Name: "b", State: StateUploadFailed, DoUpload: true},
	}
	snap = Aggregate(done, 1, time.Second)
	if snap.OverallPercent != 100 || snap.Phase != models.PhaseComplete {
		t.Errorf("snapshot = %.2f%% %s, want 100%% Complete", snap.OverallPercent, snap.Phase)
	}
	if snap.EstimatedSecondsRemaining != 0 {
		t.Errorf("EstimatedSecondsRemaining = %f, want 0", snap.EstimatedSecondsRemaining)
	}
	if snap.Uploaded != 1 {
		t.Errorf("Uploaded = %d, want 1", snap.Uploaded)
	}
}

func TestAggregate_EstimatesRemainingTime(t *testing.T) {
	items := []ItemProgress{
		{Name: "a", State: StateDone, DoCrack: true, CrackOK: true},
		{Name: "b", State: StatePending, DoCrack: true},
	}
	snap := Aggregate(items, 0, 10*time.Second)
	if !approx(snap.EstimatedSecondsRemaining, 10) {
		t.Errorf("EstimatedSecondsRemaining = %f, want 10", snap.EstimatedSecondsRemaining)
	}

	none := []ItemProgress{{Name: "a", State: StateCracking, DoCrack: true}}
	snap = Aggregate(none, 0, time.Minute)
	if snap.EstimatedSecondsRemaining != 0 {
		t.Errorf("EstimatedSecondsRemaining with no completed work = %f, want 0", snap.EstimatedSecondsRemaining)
	}
}

func TestAggregate_DominantPhaseAndPhasePercent(t *testing.T) {
	items := []ItemProgress{
		{Name: "a", State: StateUploaded, DoUpload: true, UploadOK: true},
		{Name: "b", State: StateUploading, DoUpload: true},
		{Name: "c", State: StateCompressed, DoUpload: true},
		{Name: "d", State: StateCracking, DoCrack: true, DoUpload: true},
	}
	snap := Aggregate(items, 2, time.Second)
	if snap.Phase != models.PhaseUploading {
		t.Fatalf("Phase = %s, want Uploading", snap.Phase)
	}
	if !approx(snap.PhasePercent, 25) {
		t.Errorf("PhasePercent = %.2f, want 25", snap.PhasePercent)
	}
	if snap.CurrentItemName != "c" || snap.CurrentItemIndex != 3 {
		t.Errorf("current = %s #%d, want c #3", snap.CurrentItemName, snap.CurrentItemIndex)
	}
	if snap.TotalItems != 4 {
		t.Errorf("TotalItems = %d, want 4", snap.TotalItems)
	}
}

func TestAggregate_TiesGoToEarlierPhase(t *testing.T) {
	items := []ItemProgress{
		{Name: "a", State: StateCracking, DoCrack: true},
		{Name: "b", State: StateUploading, DoUpload: true},
	}
	if snap := Aggregate(items, -1, 0); snap.Phase != models.PhaseCracking {
		t.Errorf("Phase = %s, want Cracking", snap.Phase)
	}
}

func TestEmitter_NeverDecreasesOverallPercent(t *testing.T) {
	rec := &snapshotRecorder{}
	e := newEmitter(rec.Sink, quietLogger())
	for _, pct := range []float64{10, 40, 30, 50, 45, 100} {
		p := pct
		e.publish(func() models.ProgressSnapshot {
			return models.ProgressSnapshot{OverallPercent: p}
		})
	}
	e.close()

	snaps := rec.All()
	assertMonotonic(t, snaps)
	if last := snaps[len(snaps)-1]; last.OverallPercent != 100 {
		t.Errorf("last snapshot = %.2f, want 100", last.OverallPercent)
	}
}

func TestEmitter_SlowSinkDoesNotBlockPublisher(t *testing.T) {
	release := make(chan struct{})
	var delivered []float64
	e := newEmitter(func(s models.ProgressSnapshot) {
		<-release
		delivered = append(delivered, s.OverallPercent)
	}, quietLogger())

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 50; i++ {
			p := float64(i * 2)
			e.publish(func() models.ProgressSnapshot {
				return models.ProgressSnapshot{OverallPercent: p}
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow sink")
	}
	close(release)
	e.close()

	if len(delivered) == 0 || delivered[len(delivered)-1] != 100 {
		t.Errorf("delivered = %v, want the final 100 frame last", delivered)
	}
	if len(delivered) > 3 {
		t.Errorf("delivered %d frames, want intermediate frames dropped", len(delivered))
	}
}
