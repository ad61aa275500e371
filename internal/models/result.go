package models

import "time"

type UploadResult struct {
	GameName     string `json:"game_name"`
	OriginalURL  string `json:"original_url"`
	ConvertedURL string `json:"converted_url,omitempty"`
	FinalURL     string `json:"final_url"`
}

type ItemFailure struct {
	ItemName  string `json:"item_name"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
	Cancelled bool   `json:"cancelled"`
}

type BatchResult struct {
	BatchID        string                 `json:"batch_id"`
	TotalItems     int                    `json:"total_items"`
	Cracked        int                    `json:"cracked"`
	CrackFailed    int                    `json:"crack_failed"`
	Zipped         int                    `json:"zipped"`
	ZipFailed      int                    `json:"zip_failed"`
	Uploaded       int                    `json:"uploaded"`
	UploadFailed   int                    `json:"upload_failed"`
	Converted      int                    `json:"converted"`
	CancelledItems int                    `json:"cancelled_items"`
	UploadResults  []UploadResult         `json:"upload_results"`
	Outcomes       map[string]ItemOutcome `json:"outcomes"`
	Failures       []ItemFailure          `json:"failures"`
	Duration       time.Duration          `json:"duration"`
	Cancelled      bool                   `json:"cancelled"`
}
