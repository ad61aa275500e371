package batch

import (
	"time"

	"gamebatch/internal/models"
)

// BuildResult folds outcomes, given in submission order, into the batch
// result. It only reads its input, so repeated calls agree on every count.
func BuildResult(outcomes []models.ItemOutcome, started time.Time) *models.BatchResult {
	res := &models.BatchResult{
		TotalItems:    len(outcomes),
		UploadResults: []models.UploadResult{},
		Outcomes:      make(map[string]models.ItemOutcome, len(outcomes)),
		Failures:      []models.ItemFailure{},
	}

	for _, o := range outcomes {
		res.Outcomes[o.Name] = o
		state := ItemState(o.State)

		if o.CrackAttempted && o.Success {
			res.Cracked++
		}
		if state == StateCrackFailed {
			res.CrackFailed++
		}
		if o.Compress.Success {
			res.Zipped++
		}
		if state == StateCompressFailed {
			res.ZipFailed++
		}
		if o.Upload.Success {
			res.Uploaded++
			res.UploadResults = append(res.UploadResults, uploadResult(o))
			if o.Upload.ConvertedURL != "" {
				res.Converted++
			}
		}
		if state == StateUploadFailed {
			res.UploadFailed++
		}
		if o.Cancelled {
			res.CancelledItems++
		}

		if state.Failed() || o.Cancelled {
			stage, reason := deepestFailure(o)
			res.Failures = append(res.Failures, models.ItemFailure{
				ItemName:  o.Name,
				Stage:     string(stage),
				Reason:    reason,
				Cancelled: o.Cancelled,
			})
		}
	}

	res.Duration = time.Since(started)
	return res
}

func uploadResult(o models.ItemOutcome) models.UploadResult {
	final := o.Upload.URL
	if o.Upload.ConvertedURL != "" {
		final = o.Upload.ConvertedURL
	}
	return models.UploadResult{
		GameName:     o.Name,
		OriginalURL:  o.Upload.URL,
		ConvertedURL: o.Upload.ConvertedURL,
		FinalURL:     final,
	}
}

// deepestFailure returns the last stage the item attempted and that
// stage's error text. Cancelled items always report the cancellation.
// Items that never started a stage report StagePending.
func deepestFailure(o models.ItemOutcome) (Stage, string) {
	stage := StagePending
	var reason string
	switch {
	case o.Upload.Attempted:
		stage, reason = StageUpload, o.Upload.Error
	case o.Compress.Attempted:
		stage, reason = StageCompress, o.Compress.Error
	case o.CrackAttempted:
		stage = StageCrack
		if n := len(o.Errors); n > 0 {
			reason = o.Errors[n-1]
		}
	}
	if o.Cancelled {
		reason = ErrCancelled.Error()
	}
	return stage, reason
}
