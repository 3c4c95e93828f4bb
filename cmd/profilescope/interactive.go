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
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AleutianAI/profilescope/pkg/ux"
)

const interactivePrompt = "profile> "

const interactiveHelp = `Enter one handle to research it, or 2-4 handles to compare them:
  elonmusk
  @jack vs @sama
Commands: retry, help, exit`

// interactiveCommand is what one line of input asks for.
type interactiveCommand int

const (
	cmdNone interactiveCommand = iota
	cmdAnalyze
	cmdRetry
	cmdHelp
	cmdExit
)

// parseInteractiveLine classifies a line and extracts its handles.
//
// Handles may be separated by spaces, commas or the word "vs".
func parseInteractiveLine(line string) (interactiveCommand, []string) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return cmdNone, nil
	case "exit", "quit":
		return cmdExit, nil
	case "retry":
		return cmdRetry, nil
	case "help", "?":
		return cmdHelp, nil
	}
	return cmdAnalyze, parseHandles(line)
}

// parseHandles splits free-form input into handle tokens.
func parseHandles(line string) []string {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	handles := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.EqualFold(f, "vs") || strings.EqualFold(f, "vs.") {
			continue
		}
		handles = append(handles, f)
	}
	return handles
}

// runInteractive reads handles until EOF or "exit", running one analysis
// per line. Ctrl+C cancels only the analysis in progress.
func runInteractive(ctx context.Context, runner *analysisRunner, reader InputReader, out io.Writer, plain bool) error {
	defer runner.close()

	fmt.Fprintln(out, interactiveHelp)
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := reader.ReadLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		command, handles := parseInteractiveLine(line)
		switch command {
		case cmdNone:
			continue
		case cmdExit:
			return nil
		case cmdHelp:
			fmt.Fprintln(out, interactiveHelp)
			continue
		}

		runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		if command == cmdRetry {
			_, err = runner.retry(runCtx)
		} else {
			_, err = runner.analyze(runCtx, handles)
		}
		stop()

		// Failures are shown by the display; the loop keeps going.
		if err != nil && !errors.Is(err, errReported) {
			ux.Error(out, plain, err.Error())
		}
	}
}
