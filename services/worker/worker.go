// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package worker consumes analysis jobs from the queue, runs the
// engine, and persists results. Several consumers run concurrently;
// idempotency checks make queue redeliveries harmless.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slopscope/slopscope/services/analysis"
	"github.com/slopscope/slopscope/services/queue"
	"github.com/slopscope/slopscope/services/store"
)

// Error codes persisted on failed jobs.
const (
	ErrCodeCloneFailed    = "clone_failed"
	ErrCodeTimeout        = "timeout"
	ErrCodeAnalysisFailed = "analysis_failed"
	ErrCodeBadPayload     = "bad_payload"
)

// Options tunes the worker pool.
type Options struct {
	// Concurrency is the number of concurrent consumers.
	Concurrency int

	// PollInterval is the idle delay between empty queue polls.
	PollInterval time.Duration

	// JobTimeout bounds one analysis run.
	JobTimeout time.Duration

	// MaxReceives mirrors the queue's dead-letter threshold; a failing
	// job is marked failed on its last allowed delivery instead of
	// being released for another round.
	MaxReceives int
}

func (o *Options) fillDefaults() {
	if o.Concurrency < 1 {
		o.Concurrency = 2
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 10 * time.Minute
	}
	if o.MaxReceives < 1 {
		o.MaxReceives = 3
	}
}

// Worker is the queue consumer pool.
type Worker struct {
	store    *store.Store
	queue    *queue.Queue
	engine   analysis.Engine
	archiver *Archiver
	metrics  *Metrics
	opts     Options
	logger   *slog.Logger
}

// New assembles a worker. archiver and metrics may be nil.
func New(st *store.Store, q *queue.Queue, engine analysis.Engine, archiver *Archiver, metrics *Metrics, opts Options, logger *slog.Logger) *Worker {
	opts.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:    st,
		queue:    q,
		engine:   engine,
		archiver: archiver,
		metrics:  metrics,
		opts:     opts,
		logger:   logger,
	}
}

// Run blocks, consuming jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting",
		"engine", w.engine.Name(), "concurrency", w.opts.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		g.Go(func() error { return w.consume(gctx) })
	}
	g.Go(func() error { return w.pollQueueStats(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) consume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := w.queue.Receive(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.opts.PollInterval):
			}
			continue
		}
		if err != nil {
			return err
		}

		w.handle(ctx, msg)
	}
}

// handle processes one delivery. All outcomes are absorbed here; only
// context cancellation propagates.
func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	logger := w.logger.With("message_id", msg.ID, "receives", msg.Receives)

	payload, err := queue.DecodeJobPayload(msg.Body)
	if err != nil {
		logger.Error("dropping malformed message", "error", err)
		if ferr := w.store.FailJob(ctx, msg.ID, err.Error(), ErrCodeBadPayload); ferr != nil {
			logger.Warn("could not mark job failed", "error", ferr)
		}
		_ = w.queue.Delete(ctx, msg.ID)
		w.count("failed")
		return
	}
	logger = logger.With("job_id", payload.JobID, "repo", payload.RepoURL)

	// Idempotency: a redelivered message whose job already finished is
	// acknowledged and dropped.
	if done, err := w.alreadyFinished(ctx, payload.JobID); err != nil {
		logger.Warn("state check failed, releasing message", "error", err)
		_ = w.queue.Release(ctx, payload.JobID)
		return
	} else if done {
		logger.Info("job already finished, acknowledging redelivery")
		// A consumer that died between saving the analysis and marking
		// the job leaves the row processing; settle it before acking.
		if err := w.store.CompleteJob(ctx, payload.JobID); err != nil &&
			!errors.Is(err, store.ErrBadTransition) && !errors.Is(err, store.ErrNotFound) {
			logger.Warn("could not settle finished job", "error", err)
		}
		_ = w.queue.Delete(ctx, payload.JobID)
		return
	}

	// A processing job here means a previous consumer died mid-run.
	if job, err := w.store.GetJob(ctx, payload.JobID); err == nil && job.Status == store.JobProcessing {
		if err := w.store.RequeueJob(ctx, payload.JobID); err != nil {
			logger.Warn("could not requeue stuck job", "error", err)
		}
	}

	if err := w.store.StartJob(ctx, payload.JobID); err != nil {
		logger.Warn("could not start job, releasing message", "error", err)
		_ = w.queue.Release(ctx, payload.JobID)
		return
	}

	start := time.Now()
	result, err := w.runAnalysis(ctx, payload)
	if err != nil {
		w.handleFailure(ctx, logger, payload, msg, err)
		return
	}

	if err := w.store.UpdateJobProgress(ctx, payload.JobID, analysis.StepSaving, 95); err != nil {
		logger.Debug("progress update failed", "error", err)
	}
	saveStart := time.Now()
	saved, err := w.store.SaveAnalysis(ctx, store.Analysis{
		JobID:        payload.JobID,
		RepositoryID: payload.RepositoryID,
		SlopScore:    result.SlopScore,
		Engine:       result.Engine,
		Metrics:      result.Components,
		Signals:      toStoreSignals(result),
		Notes:        result.Notes,
		Claims:       toStoreClaims(result),
	})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		w.handleFailure(ctx, logger, payload, msg, err)
		return
	}
	w.observeStep(analysis.StepSaving, time.Since(saveStart))

	if err := w.store.CompleteJob(ctx, payload.JobID); err != nil {
		logger.Warn("could not mark job completed", "error", err)
	}
	if err := w.queue.Delete(ctx, payload.JobID); err != nil {
		logger.Warn("could not acknowledge message", "error", err)
	}

	w.count("completed")
	if w.metrics != nil {
		w.metrics.JobDuration.Observe(time.Since(start).Seconds())
	}
	logger.Info("job completed",
		"score", result.SlopScore,
		"signals", len(result.Signals),
		"duration", time.Since(start).Round(time.Millisecond))

	if w.archiver != nil {
		if err := w.archiver.Archive(ctx, saved); err != nil {
			logger.Warn("report archival failed", "error", err)
		}
	}
}

func (w *Worker) runAnalysis(ctx context.Context, payload queue.JobPayload) (*analysis.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	var (
		lastStep string
		lastAt   time.Time
	)
	progress := func(step string, pct int) {
		now := time.Now()
		if lastStep != "" && step != lastStep {
			w.observeStep(lastStep, now.Sub(lastAt))
		}
		if step != lastStep {
			lastStep, lastAt = step, now
		}
		if err := w.store.UpdateJobProgress(runCtx, payload.JobID, step, pct); err != nil {
			w.logger.Debug("progress update failed", "job_id", payload.JobID, "error", err)
		}
	}
	result, err := w.engine.Analyze(runCtx, analysis.Request{RepoURL: payload.RepoURL}, progress)
	if err == nil && lastStep != "" {
		w.observeStep(lastStep, time.Since(lastAt))
	}
	return result, err
}

// handleFailure decides between retry and terminal failure. The last
// allowed delivery marks the job failed and acknowledges the message;
// earlier deliveries requeue both the job row and the message.
func (w *Worker) handleFailure(ctx context.Context, logger *slog.Logger, payload queue.JobPayload, msg queue.Message, runErr error) {
	if ctx.Err() != nil {
		// Shutdown, not a job failure. The lease expiry will redeliver.
		logger.Info("analysis interrupted by shutdown")
		return
	}

	code := classifyError(runErr)
	if msg.Receives >= w.opts.MaxReceives {
		logger.Error("job failed permanently", "error", runErr, "code", code)
		if err := w.store.FailJob(ctx, payload.JobID, runErr.Error(), code); err != nil {
			logger.Warn("could not mark job failed", "error", err)
		}
		_ = w.queue.Delete(ctx, payload.JobID)
		w.count("failed")
		return
	}

	logger.Warn("job attempt failed, retrying", "error", runErr, "code", code)
	if err := w.store.RequeueJob(ctx, payload.JobID); err != nil {
		logger.Warn("could not requeue job", "error", err)
	}
	_ = w.queue.Release(ctx, payload.JobID)
	w.count("retried")
}

func (w *Worker) alreadyFinished(ctx context.Context, jobID string) (bool, error) {
	job, err := w.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		// No job row for this message; treat as finished so the
		// message is dropped rather than looping forever.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if job.Status == store.JobCompleted || job.Status == store.JobFailed {
		return true, nil
	}
	return w.store.HasAnalysisForJob(ctx, jobID)
}

func (w *Worker) count(outcome string) {
	if w.metrics != nil {
		w.metrics.JobsProcessed.WithLabelValues(outcome).Inc()
	}
}

func (w *Worker) observeStep(step string, d time.Duration) {
	if w.metrics != nil {
		w.metrics.StepDuration.WithLabelValues(step).Observe(d.Seconds())
	}
}

// pollQueueStats exports queue depth gauges.
func (w *Worker) pollQueueStats(ctx context.Context) error {
	if w.metrics == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats, err := w.queue.Stats(ctx)
			if err != nil {
				continue
			}
			w.metrics.QueueReady.Set(float64(stats.Ready))
			w.metrics.QueueInFlight.Set(float64(stats.InFlight))
			w.metrics.QueueDead.Set(float64(stats.Dead))
		}
	}
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case containsPrefix(err, "fetch:"):
		return ErrCodeCloneFailed
	default:
		return ErrCodeAnalysisFailed
	}
}

func containsPrefix(err error, prefix string) bool {
	return err != nil && len(err.Error()) >= len(prefix) && err.Error()[:len(prefix)] == prefix
}

func toStoreSignals(result *analysis.Result) []store.Signal {
	out := make([]store.Signal, 0, len(result.Signals))
	for _, s := range result.Signals {
		out = append(out, store.Signal{
			Category: string(s.Category),
			Severity: string(s.Severity),
			File:     s.File,
			Line:     s.Line,
			Evidence: s.Evidence,
			Message:  s.Message,
		})
	}
	return out
}

func toStoreClaims(result *analysis.Result) []store.ReadmeClaim {
	out := make([]store.ReadmeClaim, 0, len(result.Claims))
	for _, c := range result.Claims {
		out = append(out, store.ReadmeClaim{
			Claim:    c.Text,
			Status:   c.Status,
			Evidence: c.Evidence,
		})
	}
	return out
}
