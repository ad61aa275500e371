package models

type Phase string

const (
	PhaseCracking    Phase = "Cracking"
	PhaseCompressing Phase = "Compressing"
	PhaseUploading   Phase = "Uploading"
	PhaseConverting  Phase = "Converting"
	PhaseComplete    Phase = "Complete"
)

// ProgressSnapshot is emitted by value and never mutated afterwards.
type ProgressSnapshot struct {
	Phase                     Phase   `json:"phase"`
	OverallPercent            float64 `json:"overall_percent"`
	PhasePercent              float64 `json:"phase_percent"`
	EstimatedSecondsRemaining float64 `json:"estimated_seconds_remaining"`
	CurrentItemName           string  `json:"current_item_name"`
	CurrentItemIndex          int     `json:"current_item_index"`
	TotalItems                int     `json:"total_items"`
	Cracked                   int     `json:"cracked"`
	Compressed                int     `json:"compressed"`
	Uploaded                  int     `json:"uploaded"`
}

// UploadSlot is a read model of one upload lane for display purposes.
type UploadSlot struct {
	Index    int    `json:"index"`
	InUse    bool   `json:"in_use"`
	Occupant string `json:"occupant,omitempty"`
}
