// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	// DefaultRelayURL is where the relay listens by default.
	DefaultRelayURL = "http://localhost:3000"

	// DefaultTimeout bounds one analysis on the client side. It matches
	// the relay's upstream timeout.
	DefaultTimeout = time.Hour

	// DefaultHistorySize is the number of handles kept for up-arrow recall
	// in interactive mode.
	DefaultHistorySize = 50
)

// CLIConfig is the content of ~/.profilescope/profilescope.yaml.
type CLIConfig struct {
	// RelayURL is the relay root, e.g. http://localhost:3000
	RelayURL string `yaml:"relay_url"`

	// Timeout bounds one analysis, e.g. "30m". Zero disables the limit.
	Timeout time.Duration `yaml:"timeout"`

	// Plain disables styled output even on a terminal.
	Plain bool `yaml:"plain"`

	// HistorySize caps interactive input history.
	HistorySize int `yaml:"history_size"`

	// LogDir enables a JSON log file in this directory.
	LogDir string `yaml:"log_dir,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() CLIConfig {
	return CLIConfig{
		RelayURL:    DefaultRelayURL,
		Timeout:     DefaultTimeout,
		Plain:       false,
		HistorySize: DefaultHistorySize,
	}
}

// Validate checks the fields a hand-edited file can get wrong.
func (c CLIConfig) Validate() error {
	u, err := url.Parse(c.RelayURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("relay_url %q must be an absolute http(s) URL", c.RelayURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history_size must not be negative, got %d", c.HistorySize)
	}
	return nil
}
