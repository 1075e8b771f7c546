// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package batch regenerates the variations of every stored file of a field
// using a bounded pool of workers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"imagefield/internal/field"
	"imagefield/internal/render"
)

// ErrInvalidFieldPath marks a malformed app.model.field token.
var ErrInvalidFieldPath = errors.New("invalid field path")

// FieldPathError reports a token that is not app.model.field, or that
// names no registered field.
type FieldPathError struct {
	Token string
}

func (e *FieldPathError) Error() string {
	return fmt.Sprintf("Error parsing field_path '%s'. Use format <app.model.field app.model.field>.", e.Token)
}

func (e *FieldPathError) Unwrap() error { return ErrInvalidFieldPath }

// ParseFieldPath parses an app.model.field token.
func ParseFieldPath(token string) (field.Ref, error) {
	ref, ok := field.ParseRef(token)
	if !ok {
		return field.Ref{}, &FieldPathError{Token: token}
	}
	return ref, nil
}

// Missing is a record whose source file is absent from storage.
type Missing struct {
	RecordID string
	Path     string
}

// RecordError is an unexpected per-record failure (storage error, panic).
type RecordError struct {
	RecordID string
	Path     string
	Err      error
}

// CommandError is returned when sources were missing and the run did not
// opt into ignoring them. It is produced after all work has finished.
type CommandError struct {
	Field   string
	Missing []Missing
	Errors  []RecordError
}

func (e *CommandError) Error() string {
	var b strings.Builder
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "%s: %d source file(s) missing:", e.Field, len(e.Missing))
		for _, m := range e.Missing {
			fmt.Fprintf(&b, " %s (record %s)", m.Path, m.RecordID)
		}
	}
	if len(e.Errors) > 0 {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %d record(s) failed:", e.Field, len(e.Errors))
		for _, re := range e.Errors {
			fmt.Fprintf(&b, " record %s: %v", re.RecordID, re.Err)
		}
	}
	return b.String()
}

// Record is one persisted record with a non-empty file value.
type Record struct {
	ID   string
	Path string
}

// RecordLister enumerates the records of a field whose file is set.
type RecordLister interface {
	ListFiles(ctx context.Context, ref field.Ref) ([]Record, error)
}

// FieldResolver finds configured fields. *field.Registry implements it.
type FieldResolver interface {
	Lookup(ref field.Ref) (*field.Field, bool)
}

// Request parameterizes one run.
type Request struct {
	FieldPath     string
	Replace       bool
	IgnoreMissing bool
	// Workers overrides the driver's pool size when positive.
	Workers int
}

// Summary aggregates one run.
type Summary struct {
	Field     string
	Processed int
	Rendered  int
	Skipped   int
	Failed    int
	Deferred  int
	Missing   []Missing
	Errors    []RecordError
	Duration  time.Duration
}

// Driver runs batch renders.
type Driver struct {
	Fields  FieldResolver
	Records RecordLister
	// Workers bounds concurrent renders. Zero means runtime.NumCPU().
	Workers int
}

type result struct {
	record Record
	report render.Report
	err    error
}

// Run renders every record of one field. The field path is validated and
// resolved before any record is queried. Per-record failures never stop
// the run; missing sources turn into a *CommandError once all records have
// been processed, unless IgnoreMissing is set. Unexpected per-record
// errors are reported in the same way.
func (d *Driver) Run(ctx context.Context, req Request) (Summary, error) {
	ref, f, err := d.resolve(req.FieldPath)
	if err != nil {
		return Summary{}, err
	}
	return d.run(ctx, ref, f, req)
}

// RunAll validates every token before running any of them, then runs
// them in order. Summaries of completed runs are returned alongside the
// first error.
func (d *Driver) RunAll(ctx context.Context, tokens []string, req Request) ([]Summary, error) {
	type target struct {
		ref field.Ref
		f   *field.Field
	}
	targets := make([]target, 0, len(tokens))
	for _, tok := range tokens {
		ref, f, err := d.resolve(tok)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{ref, f})
	}

	summaries := make([]Summary, 0, len(targets))
	var cmdErrs []error
	for _, t := range targets {
		r := req
		r.FieldPath = t.ref.String()
		s, err := d.run(ctx, t.ref, t.f, r)
		summaries = append(summaries, s)
		if err != nil {
			var cmdErr *CommandError
			if !errors.As(err, &cmdErr) {
				return summaries, err
			}
			cmdErrs = append(cmdErrs, err)
		}
	}
	return summaries, errors.Join(cmdErrs...)
}

func (d *Driver) resolve(token string) (field.Ref, *field.Field, error) {
	ref, err := ParseFieldPath(token)
	if err != nil {
		return field.Ref{}, nil, err
	}
	f, ok := d.Fields.Lookup(ref)
	if !ok {
		return field.Ref{}, nil, &FieldPathError{Token: token}
	}
	return ref, f, nil
}

func (d *Driver) run(ctx context.Context, ref field.Ref, f *field.Field, req Request) (Summary, error) {
	start := time.Now()
	summary := Summary{Field: ref.String()}

	records, err := d.Records.ListFiles(ctx, ref)
	if err != nil {
		return summary, fmt.Errorf("list records of %s: %w", ref, err)
	}

	workers := req.Workers
	if workers <= 0 {
		workers = d.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	slog.Info("batch render started", "field", summary.Field, "records", len(records),
		"workers", workers, "replace", req.Replace, "ignore_missing", req.IgnoreMissing)

	results := make(chan result, workers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for res := range results {
			summary.add(res, req.IgnoreMissing)
		}
	}()

	var g errgroup.Group
	g.SetLimit(workers)
	for _, rec := range records {
		g.Go(func() error {
			results <- renderRecord(ctx, f, rec, req)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-done

	summary.Duration = time.Since(start)
	slog.Info("batch render finished", "field", summary.Field,
		"processed", summary.Processed, "rendered", summary.Rendered, "skipped", summary.Skipped,
		"failed", summary.Failed, "deferred", summary.Deferred, "missing", len(summary.Missing),
		"errors", len(summary.Errors), "duration", summary.Duration.Round(time.Millisecond))

	if (len(summary.Missing) > 0 && !req.IgnoreMissing) || len(summary.Errors) > 0 {
		cmdErr := &CommandError{Field: summary.Field, Errors: summary.Errors}
		if !req.IgnoreMissing {
			cmdErr.Missing = summary.Missing
		}
		return summary, cmdErr
	}
	return summary, nil
}

// renderRecord renders one record, converting a panic into an error so a
// bad image cannot take down the pool.
func renderRecord(ctx context.Context, f *field.Field, rec Record, req Request) (res result) {
	res.record = rec
	defer func() {
		if p := recover(); p != nil {
			res.err = fmt.Errorf("panic rendering %s: %v", rec.Path, p)
			slog.Error("panic in batch worker", "record", rec.ID, "path", rec.Path, "panic", p)
		}
	}()
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}
	res.report, res.err = f.Renderer().Render(ctx, f.Request(rec.Path, req.Replace, req.IgnoreMissing))
	return res
}

func (s *Summary) add(res result, ignoreMissing bool) {
	s.Processed++
	missing := Missing{RecordID: res.record.ID, Path: res.record.Path}

	if res.err != nil {
		if errors.Is(res.err, render.ErrSourceMissing) {
			s.Missing = append(s.Missing, missing)
			slog.Warn("source file missing", "record", res.record.ID, "path", res.record.Path)
			return
		}
		s.Errors = append(s.Errors, RecordError{RecordID: res.record.ID, Path: res.record.Path, Err: res.err})
		slog.Error("record render failed", "record", res.record.ID, "path", res.record.Path, "error", res.err)
		return
	}

	if res.report.Deferred {
		s.Deferred++
		return
	}
	if res.report.MissingSource() && ignoreMissing {
		s.Missing = append(s.Missing, missing)
	}
	rendered, skipped, failed := res.report.Counts()
	s.Rendered += rendered
	s.Skipped += skipped
	s.Failed += failed
}
