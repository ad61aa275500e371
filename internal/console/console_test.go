package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"gamebatch/internal/models"
)

func TestTerminalSink_LineMode(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTerminalSink(&buf, 20, false)

	snaps := []models.ProgressSnapshot{
		{Phase: models.PhaseCracking, OverallPercent: 5, CurrentItemName: "Portal", CurrentItemIndex: 1, TotalItems: 2, EstimatedSecondsRemaining: 90},
		{Phase: models.PhaseCracking, OverallPercent: 10, CurrentItemName: "Portal", CurrentItemIndex: 1, TotalItems: 2},
		{Phase: models.PhaseCompressing, OverallPercent: 20, CurrentItemName: "Portal", CurrentItemIndex: 1, TotalItems: 2},
		{Phase: models.PhaseComplete, OverallPercent: 100, TotalItems: 2},
	}
	for _, s := range snaps {
		sink.Sink(s)
	}
	sink.Close()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3 (repeated phase suppressed):\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "[1/2] Portal") || !strings.Contains(lines[0], "ETA 1:30") {
		t.Errorf("first line = %q, want item and ETA", lines[0])
	}
	if !strings.Contains(lines[2], "100.00%") || strings.Contains(lines[2], "ETA") {
		t.Errorf("last line = %q, want 100%% without ETA", lines[2])
	}
}

func TestTerminalSink_InlineMode(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTerminalSink(&buf, 20, true)

	sink.Sink(models.ProgressSnapshot{Phase: models.PhaseUploading, OverallPercent: 50, TotalItems: 1})
	sink.Close()

	out := buf.String()
	if !strings.HasPrefix(out, "\r") || !strings.HasSuffix(out, "\n") {
		t.Errorf("inline output = %q, want redraw prefix and closing newline", out)
	}

	buf.Reset()
	sink = NewTerminalSink(&buf, 20, true)
	sink.Sink(models.ProgressSnapshot{Phase: models.PhaseComplete, OverallPercent: 100, TotalItems: 1})
	sink.Close()
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("completed inline output has %d newlines, want 1", n)
	}
}

func TestRenderSlots(t *testing.T) {
	out := RenderSlots([]models.UploadSlot{
		{Index: 0, InUse: true, Occupant: "Portal"},
		{Index: 1},
	})
	if !strings.Contains(out, "slot 0  Portal") || !strings.Contains(out, "slot 1  idle") {
		t.Errorf("RenderSlots() = %q", out)
	}
}

func TestRenderSummary(t *testing.T) {
	res := &models.BatchResult{
		BatchID:    "b-1",
		TotalItems: 3,
		Cracked:    2,
		Uploaded:   1,
		Duration:   90 * time.Second,
		UploadResults: []models.UploadResult{
			{GameName: "Portal", FinalURL: "https://cdn.example.com/Portal.zip"},
		},
		Failures: []models.ItemFailure{
			{ItemName: "Doom", Stage: "crack", Reason: "no steam_api dll found"},
			{ItemName: "Quake", Stage: "upload", Reason: "cancelled", Cancelled: true},
			{ItemName: "Hexen", Stage: "upload", Reason: "upload Hexen: cancelled by proxy"},
		},
		CancelledItems: 1,
		Cancelled:      true,
	}

	out := RenderSummary(res)
	for _, want := range []string{"Batch b-1", "uploaded 1", "1m30s", "cancelled, 1 items", "Doom failed at crack", "Hexen failed at upload", "https://cdn.example.com/Portal.zip"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderSummary() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Quake failed") {
		t.Errorf("cancelled item listed as failure:\n%s", out)
	}
}
