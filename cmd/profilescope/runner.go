// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/profilescope/pkg/analyzer"
	"github.com/AleutianAI/profilescope/pkg/ux"
	"github.com/AleutianAI/profilescope/pkg/validation"
	"golang.org/x/time/rate"
)

// redrawInterval limits how often the display is refreshed while chunks
// stream in. The final state is always drawn.
const redrawInterval = 100 * time.Millisecond

var (
	// errReported marks errors the display has already shown to the user.
	errReported = errors.New("reported")

	// errClientTimeout is the cancellation cause when --timeout expires.
	errClientTimeout = errors.New("client timeout")
)

// =============================================================================
// Options
// =============================================================================

// runnerOptions is the resolved configuration for one CLI invocation.
type runnerOptions struct {
	RelayURL string
	Timeout  time.Duration
	Plain    bool

	// Output is a file or directory for the plain-text export. A directory
	// receives a file named by ux.ReportFilename. Empty disables export.
	Output string

	// Live redraws the report in place with bubbletea. Requires a TTY.
	Live bool

	// ConfirmOverwrite is asked before replacing an existing export. Nil
	// overwrites without asking.
	ConfirmOverwrite func(path string) (bool, error)

	Stdout io.Writer
	Stderr io.Writer
}

// =============================================================================
// Display
// =============================================================================

// display shows one analysis while it runs.
//
// update may be skipped by the redraw throttle; finish is always called
// exactly once, after the last update.
type display interface {
	update(snap analyzer.Snapshot)
	finish(result analyzer.Result, err error)
}

// printerDisplay streams report text incrementally. Used for pipes and
// --plain.
type printerDisplay struct {
	printer *ux.StreamPrinter
	stderr  io.Writer
	plain   bool

	headerOnce sync.Once
}

func newPrinterDisplay(stdout, stderr io.Writer, plain bool) *printerDisplay {
	return &printerDisplay{
		printer: ux.NewStreamPrinter(stdout, stderr),
		stderr:  stderr,
		plain:   plain,
	}
}

func (d *printerDisplay) update(snap analyzer.Snapshot) {
	if len(snap.Handles) > 0 {
		d.headerOnce.Do(func() {
			fmt.Fprintf(d.stderr, "Researching %s\n", validation.FormatUsernames(snap.Handles))
		})
	}
	d.printer.Update(snap.Report)
}

func (d *printerDisplay) finish(result analyzer.Result, err error) {
	if result.Canceled {
		return
	}
	if len(result.Chunks) > 0 {
		d.printer.Finish(result.Report)
	}
	if err != nil {
		ux.Error(d.stderr, d.plain, err.Error())
	}
}

// =============================================================================
// Runner
// =============================================================================

// analysisRunner owns the CLI's analysis session and routes its updates
// to the display of the current run.
type analysisRunner struct {
	session *analyzer.Session
	opts    runnerOptions

	mu       sync.Mutex
	display  display
	throttle *rate.Sometimes
}

// newAnalysisRunner creates a runner. client may be nil for the default
// HTTP client.
func newAnalysisRunner(opts runnerOptions, client analyzer.HTTPClient) *analysisRunner {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	r := &analysisRunner{opts: opts}
	r.session = analyzer.NewSession(analyzer.Config{
		BaseURL:  opts.RelayURL,
		Client:   client,
		OnUpdate: r.onUpdate,
	})
	return r
}

func (r *analysisRunner) onUpdate(snap analyzer.Snapshot) {
	r.mu.Lock()
	d, throttle := r.display, r.throttle
	r.mu.Unlock()

	if d == nil {
		return
	}
	throttle.Do(func() { d.update(snap) })
}

// analyze runs a new analysis of handles.
func (r *analysisRunner) analyze(ctx context.Context, handles []string) (analyzer.Result, error) {
	return r.run(ctx, func(ctx context.Context) (analyzer.Result, error) {
		return r.session.Start(ctx, handles...)
	})
}

// retry re-runs the previous analysis.
func (r *analysisRunner) retry(ctx context.Context) (analyzer.Result, error) {
	return r.run(ctx, r.session.Retry)
}

// close cancels any running analysis and releases the session.
func (r *analysisRunner) close() {
	r.session.Close()
}

// run executes start with a fresh display and applies the client timeout.
//
// # Description
//
// A cancelled analysis (Ctrl+C, SIGTERM) returns silently. Hitting the
// client timeout is reported as an error. On success the report is
// exported when Output is set.
func (r *analysisRunner) run(ctx context.Context, start func(context.Context) (analyzer.Result, error)) (analyzer.Result, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.opts.Timeout, errClientTimeout)
		defer cancel()
	}

	d := r.newDisplay()
	r.mu.Lock()
	r.display = d
	r.throttle = &rate.Sometimes{Interval: redrawInterval}
	r.mu.Unlock()

	result, err := start(ctx)

	r.mu.Lock()
	r.display = nil
	r.mu.Unlock()

	if result.Canceled && errors.Is(context.Cause(ctx), errClientTimeout) {
		result.Canceled = false
		err = fmt.Errorf("analysis did not finish within %s", r.opts.Timeout)
	}

	d.finish(result, err)

	if err != nil {
		slog.Debug("analysis failed", "handles", result.Handles, "error", err)
		return result, fmt.Errorf("%w: %w", errReported, err)
	}
	if result.Canceled {
		slog.Debug("analysis cancelled", "handles", result.Handles)
		return result, nil
	}

	if r.opts.Output != "" && result.Report.Content != "" {
		if err := r.export(result.Report); err != nil {
			ux.Error(r.opts.Stderr, r.opts.Plain, err.Error())
			return result, fmt.Errorf("%w: %w", errReported, err)
		}
	}
	return result, nil
}

func (r *analysisRunner) newDisplay() display {
	if r.opts.Live && !r.opts.Plain {
		return newLiveDisplay(r.opts.Stdout, r.opts.Stderr, r.session.Cancel)
	}
	return newPrinterDisplay(r.opts.Stdout, r.opts.Stderr, r.opts.Plain)
}

// export writes the report to Output, asking before overwriting.
func (r *analysisRunner) export(report ux.ReportState) error {
	path := reportPath(r.opts.Output, time.Now())

	if _, err := os.Stat(path); err == nil && r.opts.ConfirmOverwrite != nil {
		ok, err := r.opts.ConfirmOverwrite(path)
		if err != nil {
			return fmt.Errorf("confirm overwrite: %w", err)
		}
		if !ok {
			ux.Warning(r.opts.Stderr, r.opts.Plain, "Report not saved")
			return nil
		}
	}

	if err := writeReport(path, report); err != nil {
		return err
	}
	ux.Success(r.opts.Stderr, r.opts.Plain, "Report saved to "+path)
	return nil
}

// reportPath resolves the export target. An existing directory receives
// a dated file name.
func reportPath(target string, now time.Time) string {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return filepath.Join(target, ux.ReportFilename(now))
	}
	return target
}

// writeReport saves the plain-text report to path.
func writeReport(path string, report ux.ReportState) error {
	content := ux.PlainTextReport(report.Content) + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
