package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"gamebatch/internal/models"
)

type fakeCracker struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	panic map[string]bool
}

func (f *fakeCracker) Crack(ctx context.Context, item models.WorkItem) (CrackReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.Name)
	f.mu.Unlock()
	if f.panic[item.Name] {
		panic("unpacker exploded")
	}
	if err := f.fail[item.Name]; err != nil {
		return CrackReport{Errors: []string{"steam_api.dll not found"}}, err
	}
	return CrackReport{
		FilesBackedUp: []string{item.SourcePath + "/steam_api.dll.bak"},
		FilesReplaced: []string{item.SourcePath + "/steam_api.dll"},
	}, nil
}

func (f *fakeCracker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeCompressor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeCompressor) Compress(ctx context.Context, item models.WorkItem, settings models.BatchSettings) (CompressReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.Name)
	f.mu.Unlock()
	if err := f.fail[item.Name]; err != nil {
		return CompressReport{}, err
	}
	return CompressReport{OutputPath: "/tmp/" + item.Name + "." + settings.CompressionFormat, OutputSizeBytes: 1024}, nil
}

func (f *fakeCompressor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeUploader fails the first failures[name] calls for an item and then
// succeeds. hook, when set, runs before the result is decided.
type fakeUploader struct {
	mu       sync.Mutex
	calls    []string
	paths    map[string]string
	attempts map[string]int
	failures map[string]int
	hook     func(ctx context.Context, item models.WorkItem) error
}

func (f *fakeUploader) Upload(ctx context.Context, item models.WorkItem, path string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.Name)
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	if f.paths == nil {
		f.paths = make(map[string]string)
	}
	f.attempts[item.Name]++
	f.paths[item.Name] = path
	n := f.attempts[item.Name]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, item); err != nil {
			return "", err
		}
	}
	if n <= f.failures[item.Name] {
		return "", fmt.Errorf("connection reset (attempt %d)", n)
	}
	return "https://bucket.example.com/games/" + item.Name + ".zip", nil
}

func (f *fakeUploader) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeConverter struct {
	fail bool
}

func (f *fakeConverter) ConvertLink(ctx context.Context, url string) (string, error) {
	if f.fail {
		return "", errors.New("converter unavailable")
	}
	return url + "?signed=1", nil
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []models.ProgressSnapshot
}

func (r *snapshotRecorder) Sink(s models.ProgressSnapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *snapshotRecorder) All() []models.ProgressSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ProgressSnapshot(nil), r.snaps...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultSettings() models.BatchSettings {
	return models.BatchSettings{
		CompressionFormat:    models.FormatZip,
		CompressionLevel:     6,
		MaxConcurrentUploads: 1,
		MaxRetries:           0,
	}
}

func fullItems(names ...string) []models.WorkItem {
	items := make([]models.WorkItem, len(names))
	for i, n := range names {
		items[i] = models.WorkItem{
			Name:       n,
			SourcePath: "/games/" + n,
			DoCrack:    true,
			DoCompress: true,
			DoUpload:   true,
		}
	}
	return items
}

func assertMonotonic(t *testing.T, snaps []models.ProgressSnapshot) {
	t.Helper()
	for i := 1; i < len(snaps); i++ {
		if snaps[i].OverallPercent < snaps[i-1].OverallPercent {
			t.Fatalf("overall percent decreased at snapshot %d: %.2f -> %.2f", i, snaps[i-1].OverallPercent, snaps[i].OverallPercent)
		}
	}
}

func assertFinishedAt100(t *testing.T, snaps []models.ProgressSnapshot) {
	t.Helper()
	if len(snaps) == 0 {
		t.Fatalf("no snapshots delivered")
	}
	last := snaps[len(snaps)-1]
	if last.OverallPercent != 100 || last.Phase != models.PhaseComplete {
		t.Fatalf("last snapshot = %.2f%% %s, want 100%% Complete", last.OverallPercent, last.Phase)
	}
	for _, s := range snaps[:len(snaps)-1] {
		if s.OverallPercent >= 100 && s.Phase != models.PhaseComplete {
			t.Fatalf("reached 100%% before completion: %+v", s)
		}
	}
}
