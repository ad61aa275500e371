// Package console renders batch progress and results for a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"gamebatch/internal/models"
	"gamebatch/pkg/utils"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	phaseStyle = lipgloss.NewStyle().Bold(true).Width(12)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// TerminalSink draws one status line per snapshot. With Inline set the
// line is redrawn in place, otherwise a new line is written only when the
// phase or the current item changes.
type TerminalSink struct {
	w      io.Writer
	bar    progress.Model
	inline bool

	mu       sync.Mutex
	lastKey  string
	drawn    bool
	finished bool
}

func NewTerminalSink(w io.Writer, width int, inline bool) *TerminalSink {
	if width < 10 {
		width = 10
	}
	return &TerminalSink{
		w:      w,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(width), progress.WithoutPercentage()),
		inline: inline,
	}
}

// Sink is the batch.ProgressSink for this terminal.
func (s *TerminalSink) Sink(snap models.ProgressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := s.render(snap)
	if s.inline {
		fmt.Fprint(s.w, "\r\033[2K"+line)
		s.drawn = true
		if snap.Phase == models.PhaseComplete && !s.finished {
			fmt.Fprintln(s.w)
			s.finished = true
			s.drawn = false
		}
		return
	}

	key := fmt.Sprintf("%s|%d", snap.Phase, snap.CurrentItemIndex)
	if key == s.lastKey {
		return
	}
	s.lastKey = key
	fmt.Fprintln(s.w, line)
}

// Close ends an inline line that never reached completion.
func (s *TerminalSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drawn {
		fmt.Fprintln(s.w)
		s.drawn = false
	}
}

func (s *TerminalSink) render(snap models.ProgressSnapshot) string {
	var b strings.Builder
	b.WriteString(phaseStyle.Render(string(snap.Phase)))
	b.WriteString(" ")
	b.WriteString(s.bar.ViewAs(snap.OverallPercent / 100))
	fmt.Fprintf(&b, " %6.2f%%", snap.OverallPercent)

	if snap.CurrentItemName != "" {
		fmt.Fprintf(&b, "  [%d/%d] %s", snap.CurrentItemIndex, snap.TotalItems, snap.CurrentItemName)
	}
	if snap.Phase != models.PhaseComplete && snap.EstimatedSecondsRemaining > 0 {
		eta := time.Duration(snap.EstimatedSecondsRemaining * float64(time.Second))
		b.WriteString(mutedStyle.Render("  ETA " + utils.FormatETA(eta)))
	}
	return b.String()
}

// RenderSlots lists upload slot occupancy, one slot per line.
func RenderSlots(slots []models.UploadSlot) string {
	lines := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.InUse {
			lines = append(lines, fmt.Sprintf("slot %d  %s", slot.Index, slot.Occupant))
			continue
		}
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("slot %d  idle", slot.Index)))
	}
	return strings.Join(lines, "\n")
}

// RenderSummary is the short end-of-batch panel shown instead of JSON.
func RenderSummary(res *models.BatchResult) string {
	lines := []string{titleStyle.Render("Batch " + res.BatchID)}
	lines = append(lines, fmt.Sprintf("items %d  cracked %d  compressed %d  uploaded %d  converted %d",
		res.TotalItems, res.Cracked, res.Zipped, res.Uploaded, res.Converted))
	lines = append(lines, mutedStyle.Render("took "+res.Duration.Round(time.Second).String()))

	switch {
	case res.Cancelled:
		lines = append(lines, errorStyle.Render(fmt.Sprintf("cancelled, %d items not finished", res.CancelledItems)))
	case len(res.Failures) == 0:
		lines = append(lines, okStyle.Render("all items finished"))
	}
	for _, f := range res.Failures {
		if f.Cancelled {
			continue
		}
		lines = append(lines, errorStyle.Render(fmt.Sprintf("%s failed at %s: %s", f.ItemName, f.Stage, f.Reason)))
	}
	for _, u := range res.UploadResults {
		lines = append(lines, fmt.Sprintf("%s  %s", u.GameName, u.FinalURL))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
