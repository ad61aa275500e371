package batch

import (
	"context"
	"fmt"

	"gamebatch/internal/models"
)

type Stage string

const (
	StageCrack    Stage = "crack"
	StageCompress Stage = "compress"
	StageUpload   Stage = "upload"
	StageConvert  Stage = "convert"

	// StagePending marks an item cancelled before any stage started.
	StagePending Stage = "pending"
)

// CrackReport lists what a crack pass touched. Errors holds non-fatal
// problems even when the pass as a whole succeeded.
type CrackReport struct {
	FilesBackedUp []string
	FilesReplaced []string
	ExesAttempted []string
	ExesUnpacked  []string
	Errors        []string
}

type CompressReport struct {
	OutputPath      string
	OutputSizeBytes int64
}

type Cracker interface {
	Crack(ctx context.Context, item models.WorkItem) (CrackReport, error)
}

type Compressor interface {
	Compress(ctx context.Context, item models.WorkItem, settings models.BatchSettings) (CompressReport, error)
}

// Uploader transfers path and returns the resulting URL. It must return
// promptly once ctx is cancelled.
type Uploader interface {
	Upload(ctx context.Context, item models.WorkItem, path string) (string, error)
}

type LinkConverter interface {
	ConvertLink(ctx context.Context, url string) (string, error)
}

// Connectivity reports whether uploads can currently reach the network.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// invalidator is implemented by connectivity checks that remember answers.
// A failed upload drops the remembered answer so the retry probes again.
type invalidator interface {
	Invalidate()
}

// ProgressSink receives snapshots on a dedicated goroutine. A slow sink
// only misses intermediate frames.
type ProgressSink func(models.ProgressSnapshot)

// Stages bundles the executors a batch may call. Executors for stages no
// item enables may be nil.
type Stages struct {
	Cracker    Cracker
	Compressor Compressor
	Uploader   Uploader
	Converter  LinkConverter
}

// guard runs fn, tags any failure with the stage and item, and turns a
// panic into an error so one misbehaving executor cannot take the batch down.
func guard[T any](stage Stage, item string, fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Item: item, Err: fmt.Errorf("executor panicked: %v", r)}
		}
	}()
	res, err = fn()
	if err != nil {
		err = &StageError{Stage: stage, Item: item, Err: err}
	}
	return res, err
}
