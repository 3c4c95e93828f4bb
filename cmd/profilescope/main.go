// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command profilescope is the terminal client for the ProfileScope relay.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/AleutianAI/profilescope/pkg/ux"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errReported) {
			ux.Error(os.Stderr, !ux.ShouldStyle(os.Stderr), err.Error())
		}
		os.Exit(1)
	}
}
