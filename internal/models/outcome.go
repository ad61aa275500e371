package models

import "time"

type CompressOutcome struct {
	Attempted       bool          `json:"attempted"`
	Success         bool          `json:"success"`
	Error           string        `json:"error,omitempty"`
	OutputPath      string        `json:"output_path,omitempty"`
	Duration        time.Duration `json:"duration"`
	OutputSizeBytes int64         `json:"output_size_bytes"`
}

type UploadOutcome struct {
	Attempted    bool          `json:"attempted"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	URL          string        `json:"url,omitempty"`
	ConvertedURL string        `json:"converted_url,omitempty"`
	RetryCount   int           `json:"retry_count"`
	Duration     time.Duration `json:"duration"`
}

// ItemOutcome records everything that happened to one WorkItem. The
// top-level Success flag and file lists belong to the crack stage.
type ItemOutcome struct {
	Name           string          `json:"name"`
	Index          int             `json:"index"`
	State          string          `json:"state"`
	FilesBackedUp  []string        `json:"files_backed_up,omitempty"`
	FilesReplaced  []string        `json:"files_replaced,omitempty"`
	ExesAttempted  []string        `json:"exes_attempted,omitempty"`
	ExesUnpacked   []string        `json:"exes_unpacked,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
	CrackAttempted bool            `json:"crack_attempted"`
	Success        bool            `json:"success"`
	Cancelled      bool            `json:"cancelled"`
	Timestamp      time.Time       `json:"timestamp"`
	Compress       CompressOutcome `json:"compress"`
	Upload         UploadOutcome   `json:"upload"`
}

func (o ItemOutcome) HasAnyChanges() bool {
	return len(o.FilesReplaced) > 0 || len(o.ExesUnpacked) > 0
}

func (o ItemOutcome) HasDetails() bool {
	return o.HasAnyChanges() || o.CrackAttempted || o.Compress.Attempted || o.Upload.Attempted
}

// Clone returns a copy that shares no slices with o.
func (o ItemOutcome) Clone() ItemOutcome {
	c := o
	c.FilesBackedUp = append([]string(nil), o.FilesBackedUp...)
	c.FilesReplaced = append([]string(nil), o.FilesReplaced...)
	c.ExesAttempted = append([]string(nil), o.ExesAttempted...)
	c.ExesUnpacked = append([]string(nil), o.ExesUnpacked...)
	c.Errors = append([]string(nil), o.Errors...)
	return c
}
