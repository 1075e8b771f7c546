// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Job is a deferred render request. It carries only references so it can
// be serialized onto an external queue; the worker resolves the field to
// rebuild the full Request.
type Job struct {
	ID            uuid.UUID `json:"id"`
	Field         string    `json:"field"` // app.model.field
	SourcePath    string    `json:"source_path"`
	Replace       bool      `json:"replace"`
	IgnoreMissing bool      `json:"ignore_missing"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Queue accepts jobs for asynchronous rendering.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// JobSource hands out queued jobs. Dequeue blocks up to timeout and
// returns (nil, nil) when no job arrived.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
}

// Queued is a Renderer that enqueues the work and returns a deferred report.
type Queued struct {
	Queue Queue
	Field string
}

func (q Queued) Render(ctx context.Context, req Request) (Report, error) {
	job := Job{
		ID:            uuid.New(),
		Field:         q.Field,
		SourcePath:    req.SourcePath,
		Replace:       req.Replace,
		IgnoreMissing: req.IgnoreMissing,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := q.Queue.Enqueue(ctx, job); err != nil {
		return Report{}, fmt.Errorf("enqueue render %s: %w", req.SourcePath, err)
	}
	slog.Debug("render queued", "job", job.ID, "field", q.Field, "source", req.SourcePath)
	return Deferred(), nil
}

// Resolver rebuilds the render request described by a job.
type Resolver func(ctx context.Context, job Job) (Request, Renderer, error)

// Worker drains a JobSource, rendering each job with the renderer the
// resolver returns.
type Worker struct {
	Source  JobSource
	Resolve Resolver
	// PollTimeout bounds each blocking dequeue so cancellation is noticed.
	PollTimeout time.Duration
}

// Run processes jobs until ctx is cancelled. Job failures are logged and
// do not stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	timeout := w.PollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	slog.Info("render worker started")
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("render worker stopped")
			return nil
		}
		job, err := w.Source.Dequeue(ctx, timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			slog.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		if _, err := w.Process(ctx, *job); err != nil {
			slog.Error("render job failed", "job", job.ID, "field", job.Field, "source", job.SourcePath, "error", err)
		}
	}
}

// Process renders a single job.
func (w *Worker) Process(ctx context.Context, job Job) (Report, error) {
	req, renderer, err := w.Resolve(ctx, job)
	if err != nil {
		return Report{}, fmt.Errorf("resolve job %s: %w", job.ID, err)
	}
	report, err := renderer.Render(ctx, req)
	if err != nil {
		return report, err
	}
	rendered, skipped, failed := report.Counts()
	slog.Info("render job done", "job", job.ID, "source", job.SourcePath,
		"rendered", rendered, "skipped", skipped, "failed", failed,
		"latency", time.Since(job.EnqueuedAt).Round(time.Millisecond))
	return report, nil
}
