// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package render

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"imagefield/internal/storage"
)

type memQueue struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (q *memQueue) Enqueue(_ context.Context, job Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return &job, nil
	}
	q.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func TestQueued_Defers(t *testing.T) {
	q := &memQueue{}
	r := Queued{Queue: q, Field: "gallery.photo.image"}

	report, err := r.Render(context.Background(), Request{SourcePath: "img/a.jpg", Replace: true})
	if err != nil {
		t.Fatal(err)
	}
	if !report.Deferred || len(report.Outcomes) != 0 {
		t.Errorf("report = %+v, want deferred", report)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("queued %d jobs, want 1", len(q.jobs))
	}
	job := q.jobs[0]
	if job.Field != "gallery.photo.image" || job.SourcePath != "img/a.jpg" || !job.Replace {
		t.Errorf("job = %+v", job)
	}
	if job.EnqueuedAt.IsZero() {
		t.Error("EnqueuedAt not set")
	}
}

func TestQueued_EnqueueError(t *testing.T) {
	r := Queued{Queue: &memQueue{err: errors.New("down")}}
	if _, err := r.Render(context.Background(), Request{SourcePath: "img/a.jpg"}); err == nil {
		t.Error("expected enqueue error")
	}
}

func TestWorker_ProcessesQueuedJobs(t *testing.T) {
	st := storage.NewMemory()
	put(t, st, "img/a.jpg", encodeImage(t, 600, 400, "jpeg"))

	q := &memQueue{}
	if _, err := (Queued{Queue: q, Field: "gallery.photo.image"}).Render(context.Background(), Request{SourcePath: "img/a.jpg"}); err != nil {
		t.Fatal(err)
	}

	done := make(chan Job, 1)
	w := &Worker{
		Source:      q,
		PollTimeout: 10 * time.Millisecond,
		Resolve: func(_ context.Context, job Job) (Request, Renderer, error) {
			return Request{SourcePath: job.SourcePath, Variations: testVariations(), Storage: st, Replace: job.Replace},
				RendererFunc(func(ctx context.Context, req Request) (Report, error) {
					defer func() { done <- job }()
					return Default{}.Render(ctx, req)
				}), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not process the job")
	}
	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Run returned %v", err)
	}

	if ok, _ := st.Exists(context.Background(), "img/a.thumbnail.jpg"); !ok {
		t.Error("variation not rendered by worker")
	}
}

func TestWorker_ProcessResolveError(t *testing.T) {
	w := &Worker{Resolve: func(context.Context, Job) (Request, Renderer, error) {
		return Request{}, nil, errors.New("unknown field")
	}}
	if _, err := w.Process(context.Background(), Job{Field: "x.y.z"}); err == nil {
		t.Error("expected resolve error")
	}
}
