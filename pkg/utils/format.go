package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gamebatch/internal/models"
)

func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func PrintJSON(data any) error {
	jsonOutput, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(jsonOutput))
	return nil
}

func PrintError(err error, command string) {
	errorResp := models.ErrorResponse{
		Error:     err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
		Command:   command,
	}
	err = PrintJSON(errorResp)
	if err != nil {
		slog.Error("Failed to print error in JSON format", "error", err)
		fmt.Println("Error: ", errorResp)
		return
	}
}

func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// FormatETA renders d as h:mm:ss, or m:ss under an hour.
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
