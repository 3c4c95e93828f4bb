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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/profilescope/cmd/profilescope/config"
	"github.com/AleutianAI/profilescope/pkg/logging"
	"github.com/AleutianAI/profilescope/pkg/ux"
	"github.com/AleutianAI/profilescope/pkg/validation"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	relayURL    string
	outputPath  string
	plainOutput bool
	timeout     time.Duration
	verbose     bool

	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "profilescope",
		Short: "Research X profiles with a streaming AI report",
		Long: `ProfileScope asks the relay to research one X profile, or compare
up to four, and streams the report to your terminal as it is written.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}

	analyzeCmd = &cobra.Command{
		Use:     "analyze <handle>",
		Short:   "Research a single X profile",
		Aliases: []string{"a"},
		Example: "  profilescope analyze @elonmusk\n  profilescope analyze jack -o .",
		Args:    cobra.ExactArgs(1),
		RunE:    runAnalyze,
	}

	compareCmd = &cobra.Command{
		Use:   "compare <handle> <handle> [handle...]",
		Short: "Compare 2 to 4 X profiles",
		Example: "  profilescope compare @jack @sama\n" +
			"  profilescope compare jack sama pmarca paulg --plain",
		Args: cobra.RangeArgs(2, validation.MaxCompareHandles),
		RunE: runCompare,
	}

	interactiveCmd = &cobra.Command{
		Use:     "interactive",
		Short:   "Research profiles from a prompt, one request per line",
		Aliases: []string{"i", "repl"},
		Args:    cobra.NoArgs,
		RunE:    runInteractiveCommand,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.profilescope/profilescope.yaml)")
	flags.StringVar(&relayURL, "relay-url", "", "relay base URL (overrides relay_url)")
	flags.StringVarP(&outputPath, "output", "o", "", "save the plain-text report to a file or directory")
	flags.BoolVar(&plainOutput, "plain", false, "disable colors and the live view")
	flags.DurationVar(&timeout, "timeout", 0, "give up after this long (overrides timeout)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(analyzeCmd, compareCmd, interactiveCmd)
}

// setup loads the config file and installs the logger.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.Load(configPath); err != nil {
		return err
	}

	level := logging.LevelWarn
	if verbose {
		level = logging.LevelDebug
	}
	logger = logging.New(logging.Config{
		Level:   level,
		Service: "cli",
		LogDir:  config.Global.LogDir,
	})
	logger.SetDefault()
	return nil
}

// resolveOptions merges flags over the loaded config.
func resolveOptions(cmd *cobra.Command) runnerOptions {
	cfg := config.Global
	flags := cmd.Flags()

	opts := runnerOptions{
		RelayURL: cfg.RelayURL,
		Timeout:  cfg.Timeout,
		Plain:    cfg.Plain,
		Output:   outputPath,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
	if flags.Changed("relay-url") {
		opts.RelayURL = relayURL
	}
	if flags.Changed("timeout") {
		opts.Timeout = timeout
	}
	if flags.Changed("plain") {
		opts.Plain = plainOutput
	}
	if !ux.ShouldStyle(os.Stdout) {
		opts.Plain = true
	}
	opts.Live = !opts.Plain && ux.IsTerminal(os.Stdin)
	if ux.IsTerminal(os.Stdin) && ux.IsTerminal(os.Stderr) {
		opts.ConfirmOverwrite = confirmOverwrite
	}
	return opts
}

// confirmOverwrite asks whether an existing export may be replaced.
func confirmOverwrite(path string) (bool, error) {
	overwrite := false
	err := huh.NewConfirm().
		Title(fmt.Sprintf("%s already exists. Overwrite it?", path)).
		Affirmative("Overwrite").
		Negative("Keep").
		Value(&overwrite).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return overwrite, err
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	return runOnce(cmd, args)
}

func runCompare(cmd *cobra.Command, args []string) error {
	return runOnce(cmd, args)
}

func runOnce(cmd *cobra.Command, handles []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := newAnalysisRunner(resolveOptions(cmd), nil)
	defer runner.close()

	_, err := runner.analyze(ctx, handles)
	return err
}

// runInteractiveCommand handles signals per analysis so Ctrl+C stops the
// current report without leaving the prompt.
func runInteractiveCommand(cmd *cobra.Command, args []string) error {
	opts := resolveOptions(cmd)
	runner := newAnalysisRunner(opts, nil)
	reader := newInputReader(interactivePrompt, config.Global.HistorySize, opts.Plain)

	if err := runInteractive(cmd.Context(), runner, reader, os.Stderr, opts.Plain); err != nil {
		return fmt.Errorf("interactive session: %w", err)
	}
	return nil
}
