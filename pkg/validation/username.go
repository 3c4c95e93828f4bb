// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for profile identifiers.
//
// Identifiers end up inside provider prompts and tool declarations, so both
// the relay and the CLI validate them with the same rules before use.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Messages returned to users. The relay echoes them verbatim in 400 bodies.
const (
	MsgUsernameRequired = "Username is required"
	MsgUsernameInvalid  = "Username must be 1-15 characters and contain only letters, numbers, and underscores"
	MsgTooManyUsernames = "At most 4 usernames can be compared"
)

// MaxCompareHandles is the largest identifier set accepted in comparison mode.
const MaxCompareHandles = 4

// usernamePattern matches X handles: 1-15 letters, digits or underscores.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,15}$`)

// Error is a validation failure carrying a user-facing message.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Sanitize trims whitespace and removes one leading "@".
//
//	Sanitize("  @jack ") // "jack"
//	Sanitize("@@jack")   // "@jack" (invalid afterwards)
func Sanitize(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// ValidateUsername checks a single identifier.
//
// Returns *Error with MsgUsernameRequired for empty input and
// MsgUsernameInvalid when the sanitized form does not match the handle rule.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return &Error{Message: MsgUsernameRequired}
	}
	if !usernamePattern.MatchString(Sanitize(username)) {
		return &Error{Message: MsgUsernameInvalid}
	}
	return nil
}

// IsValidHandle reports whether an already-sanitized value matches the rule.
func IsValidHandle(handle string) bool {
	return usernamePattern.MatchString(handle)
}

// SanitizeAll validates and sanitizes an identifier set.
//
// # Description
//
// Every entry is validated and sanitized. Duplicates (case-insensitive, as
// X handles are) are collapsed, keeping the first spelling. The result holds
// between 1 and MaxCompareHandles handles.
//
// # Outputs
//
//   - []string: Sanitized handles in input order.
//   - error: *Error describing the first failure.
func SanitizeAll(usernames []string) ([]string, error) {
	if len(usernames) == 0 {
		return nil, &Error{Message: MsgUsernameRequired}
	}

	seen := make(map[string]struct{}, len(usernames))
	out := make([]string, 0, len(usernames))
	for _, u := range usernames {
		if err := ValidateUsername(u); err != nil {
			return nil, err
		}
		handle := Sanitize(u)
		key := strings.ToLower(handle)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, handle)
	}

	if len(out) > MaxCompareHandles {
		return nil, &Error{Message: MsgTooManyUsernames}
	}
	return out, nil
}

// FormatUsername renders a handle for display with a leading "@".
func FormatUsername(username string) string {
	return fmt.Sprintf("@%s", Sanitize(username))
}

// FormatUsernames renders a handle list for display, e.g. "@a vs @b".
func FormatUsernames(usernames []string) string {
	parts := make([]string, len(usernames))
	for i, u := range usernames {
		parts[i] = FormatUsername(u)
	}
	return strings.Join(parts, " vs ")
}
