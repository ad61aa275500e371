// Package batch drives game work items through crack, compress, upload and
// link conversion, and folds what happened into progress snapshots and a
// final BatchResult.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gamebatch/internal/models"
)

type Orchestrator struct {
	stages       Stages
	connectivity Connectivity
	logger       *slog.Logger
	newID        func() string

	mu   sync.Mutex
	pool *SlotPool
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConnectivity makes every upload attempt consult c first. Offline
// attempts fail with ErrTransientNetwork and go through the retry policy.
func WithConnectivity(c Connectivity) Option {
	return func(o *Orchestrator) {
		o.connectivity = c
	}
}

func New(stages Stages, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stages: stages,
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CancelSlot skips the upload currently running in slot index of the
// active run. Other slots and the rest of the batch carry on.
func (o *Orchestrator) CancelSlot(index int) bool {
	o.mu.Lock()
	pool := o.pool
	o.mu.Unlock()
	if pool == nil {
		return false
	}
	return pool.CancelSlot(index)
}

// Slots reports upload slot occupancy of the active run, or nil when idle.
func (o *Orchestrator) Slots() []models.UploadSlot {
	o.mu.Lock()
	pool := o.pool
	o.mu.Unlock()
	if pool == nil {
		return nil
	}
	return pool.Slots()
}

// Run processes items and returns their aggregate result. Stage failures
// and cancellation are reported inside the result; the error is non-nil
// only for invalid input or an internal state fault.
func (o *Orchestrator) Run(ctx context.Context, items []models.WorkItem, settings models.BatchSettings, sink ProgressSink) (*models.BatchResult, error) {
	if err := o.validate(items, settings); err != nil {
		return nil, err
	}

	pool := NewSlotPool(settings.MaxConcurrentUploads)
	o.mu.Lock()
	if o.pool != nil {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.pool = pool
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.pool = nil
		o.mu.Unlock()
	}()

	r := &run{
		o:        o,
		items:    items,
		settings: settings,
		tracker:  newTracker(items),
		pool:     pool,
		emit:     newEmitter(sink, o.logger),
		policy:   RetryPolicy{MaxRetries: settings.MaxRetries, Delay: settings.RetryDelay},
		started:  time.Now(),
		logger:   o.logger,
	}
	res := r.execute(ctx)
	if r.fault != nil {
		return res, fmt.Errorf("internal state fault: %w", r.fault)
	}
	return res, nil
}

func (o *Orchestrator) validate(items []models.WorkItem, settings models.BatchSettings) error {
	if len(items) == 0 {
		return invalidConfig("no work items")
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		if it.Name == "" {
			return invalidConfig("item %d has no name", i+1)
		}
		if seen[it.Name] {
			return invalidConfig("duplicate item name %q", it.Name)
		}
		seen[it.Name] = true
		if it.SizeBytes < 0 {
			return invalidConfig("item %q has negative size", it.Name)
		}
		switch {
		case it.DoCrack && o.stages.Cracker == nil:
			return invalidConfig("item %q requests crack but no cracker is configured", it.Name)
		case it.DoCompress && o.stages.Compressor == nil:
			return invalidConfig("item %q requests compress but no compressor is configured", it.Name)
		case it.DoUpload && o.stages.Uploader == nil:
			return invalidConfig("item %q requests upload but no uploader is configured", it.Name)
		}
	}
	if settings.ConvertLinks && o.stages.Converter == nil {
		return invalidConfig("link conversion enabled but no converter is configured")
	}
	return nil
}

type run struct {
	o        *Orchestrator
	items    []models.WorkItem
	settings models.BatchSettings
	tracker  *tracker
	pool     *SlotPool
	emit     *emitter
	policy   RetryPolicy
	started  time.Time
	logger   *slog.Logger
	wg       sync.WaitGroup

	faultMu sync.Mutex
	fault   error
}

func (r *run) execute(ctx context.Context) *models.BatchResult {
	r.logger.Info("Batch started", "items", len(r.items), "upload_slots", r.pool.Size())
	r.publish(-1)

	for i, item := range r.items {
		if ctx.Err() != nil {
			r.logger.Warn("Batch cancelled, no further items dispatched", "next", item.Name)
			break
		}
		log := r.logger.With("item", item.Name, "index", i+1)
		if !r.crack(ctx, i, log) {
			continue
		}
		path, ok := r.compress(ctx, i, log)
		if !ok {
			continue
		}
		r.dispatchUpload(ctx, i, path, log)
	}

	r.wg.Wait()
	r.cancelRemaining()
	r.publish(-1)
	r.emit.close()

	res := BuildResult(r.tracker.snapshot(), r.started)
	res.BatchID = r.o.newID()
	res.Cancelled = ctx.Err() != nil
	r.logger.Info("Batch finished",
		"batch_id", res.BatchID,
		"uploaded", res.Uploaded,
		"failures", len(res.Failures),
		"cancelled", res.Cancelled,
		"duration", res.Duration)
	return res
}

func (r *run) crack(ctx context.Context, i int, log *slog.Logger) bool {
	item := r.items[i]
	if !item.DoCrack {
		return r.move(i, StateCracked)
	}
	if !r.move(i, StateCracking) {
		return false
	}
	r.tracker.update(i, func(o *models.ItemOutcome) { o.CrackAttempted = true })

	start := time.Now()
	rep, err := guard(StageCrack, item.Name, func() (CrackReport, error) {
		return r.o.stages.Cracker.Crack(ctx, item)
	})
	cancelled := err != nil && ctx.Err() != nil
	r.tracker.update(i, func(o *models.ItemOutcome) {
		o.FilesBackedUp = append(o.FilesBackedUp, rep.FilesBackedUp...)
		o.FilesReplaced = append(o.FilesReplaced, rep.FilesReplaced...)
		o.ExesAttempted = append(o.ExesAttempted, rep.ExesAttempted...)
		o.ExesUnpacked = append(o.ExesUnpacked, rep.ExesUnpacked...)
		o.Errors = append(o.Errors, rep.Errors...)
		if err != nil && !cancelled {
			o.Errors = append(o.Errors, err.Error())
		}
		o.Success = err == nil
	})

	switch {
	case cancelled:
		log.Warn("Crack cancelled")
		r.move(i, StateCancelled)
		return false
	case err != nil:
		log.Error("Crack failed", "error", err)
		r.move(i, StateCrackFailed)
		return false
	}
	log.Info("Cracked",
		"replaced", len(rep.FilesReplaced),
		"unpacked", len(rep.ExesUnpacked),
		"duration", time.Since(start))
	return r.move(i, StateCracked)
}

func (r *run) compress(ctx context.Context, i int, log *slog.Logger) (string, bool) {
	item := r.items[i]
	if ctx.Err() != nil {
		r.move(i, StateCancelled)
		return "", false
	}
	if !item.DoCompress {
		return "", r.move(i, StateCompressed)
	}
	if !r.move(i, StateCompressing) {
		return "", false
	}
	r.tracker.update(i, func(o *models.ItemOutcome) { o.Compress.Attempted = true })

	start := time.Now()
	rep, err := guard(StageCompress, item.Name, func() (CompressReport, error) {
		return r.o.stages.Compressor.Compress(ctx, item, r.settings)
	})
	cancelled := err != nil && ctx.Err() != nil
	r.tracker.update(i, func(o *models.ItemOutcome) {
		o.Compress.Duration = time.Since(start)
		o.Compress.Success = err == nil
		switch {
		case cancelled:
			o.Compress.Error = ErrCancelled.Error()
		case err != nil:
			o.Compress.Error = err.Error()
		default:
			o.Compress.OutputPath = rep.OutputPath
			o.Compress.OutputSizeBytes = rep.OutputSizeBytes
		}
	})

	switch {
	case cancelled:
		log.Warn("Compress cancelled")
		r.move(i, StateCancelled)
		return "", false
	case err != nil:
		log.Error("Compress failed", "error", err)
		r.move(i, StateCompressFailed)
		return "", false
	}
	log.Info("Compressed", "output", rep.OutputPath, "bytes", rep.OutputSizeBytes, "duration", time.Since(start))
	return rep.OutputPath, r.move(i, StateCompressed)
}

// dispatchUpload hands the item to the slot pool and returns immediately;
// the next item's crack can start while this upload runs.
func (r *run) dispatchUpload(ctx context.Context, i int, path string, log *slog.Logger) {
	item := r.items[i]
	if ctx.Err() != nil {
		r.move(i, StateCancelled)
		return
	}
	if !item.DoUpload {
		if r.move(i, StateUploaded) {
			r.move(i, StateDone)
		}
		return
	}
	if path == "" {
		path = item.SourcePath
	}
	if !r.move(i, StateUploading) {
		return
	}

	var url string
	var att Attempt
	done := r.pool.Submit(ctx, item.Name, func(slotCtx context.Context) error {
		r.tracker.update(i, func(o *models.ItemOutcome) { o.Upload.Attempted = true })
		log.Debug("Upload started", "path", path)
		url, att = Retry(slotCtx, r.policy, func(c context.Context) (string, error) {
			return r.upload(c, item, path)
		})
		return att.Err
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := <-done
		r.finishUpload(ctx, i, url, att, err, log)
	}()
}

func (r *run) upload(ctx context.Context, item models.WorkItem, path string) (string, error) {
	if r.o.connectivity != nil && !r.o.connectivity.Online(ctx) {
		return "", fmt.Errorf("%w: upload endpoint unreachable", ErrTransientNetwork)
	}
	url, err := guard(StageUpload, item.Name, func() (string, error) {
		return r.o.stages.Uploader.Upload(ctx, item, path)
	})
	if err != nil && ctx.Err() == nil {
		if inv, ok := r.o.connectivity.(invalidator); ok {
			inv.Invalidate()
		}
	}
	return url, err
}

func (r *run) finishUpload(ctx context.Context, i int, url string, att Attempt, err error, log *slog.Logger) {
	r.tracker.update(i, func(o *models.ItemOutcome) {
		o.Upload.RetryCount = att.RetryCount
		o.Upload.Duration = att.Duration
		o.Upload.Success = err == nil
		switch {
		case err == nil:
			o.Upload.URL = url
		case errors.Is(err, ErrSkippedByUser):
			o.Upload.Error = ErrSkippedByUser.Error()
		default:
			o.Upload.Error = err.Error()
		}
	})

	switch {
	case err == nil:
		log.Info("Uploaded", "url", url, "retries", att.RetryCount, "duration", att.Duration)
		if !r.move(i, StateUploaded) {
			return
		}
		r.convert(ctx, i, url, log)
		r.move(i, StateDone)
	case errors.Is(err, ErrSkippedByUser):
		log.Warn("Upload skipped by user")
		r.move(i, StateUploadFailed)
	case isCancellation(err) || ctx.Err() != nil:
		log.Warn("Upload cancelled")
		r.move(i, StateCancelled)
	default:
		log.Error("Upload failed", "error", err, "retries", att.RetryCount)
		r.move(i, StateUploadFailed)
	}
}

// convert rewrites the uploaded URL. Failure keeps the original URL.
func (r *run) convert(ctx context.Context, i int, url string, log *slog.Logger) {
	if !r.settings.ConvertLinks {
		return
	}
	item := r.items[i]
	if !r.move(i, StateConverting) {
		return
	}
	converted, err := guard(StageConvert, item.Name, func() (string, error) {
		return r.o.stages.Converter.ConvertLink(ctx, url)
	})
	if err != nil || converted == "" {
		log.Warn("Link conversion failed, keeping original URL", "error", err)
		return
	}
	r.tracker.update(i, func(o *models.ItemOutcome) { o.Upload.ConvertedURL = converted })
}

// cancelRemaining marks every item the loop never finished as cancelled.
func (r *run) cancelRemaining() {
	for i := range r.items {
		if !r.tracker.state(i).Terminal() {
			r.move(i, StateCancelled)
		}
	}
}

func (r *run) move(i int, to ItemState) bool {
	if err := r.tracker.transition(i, to); err != nil {
		r.logger.Error("State transition rejected", "error", err)
		r.faultMu.Lock()
		if r.fault == nil {
			r.fault = err
		}
		r.faultMu.Unlock()
		return false
	}
	r.publish(i)
	return true
}

func (r *run) publish(current int) {
	r.emit.publish(func() models.ProgressSnapshot {
		return Aggregate(r.tracker.progress(), current, time.Since(r.started))
	})
}
