// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the relay's request types and their validation.
package datatypes

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/AleutianAI/profilescope/pkg/validation"
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxRequestBodyBytes bounds the analyze request body.
	MaxRequestBodyBytes = 10000

	// MsgBodyTooLarge is returned for bodies over MaxRequestBodyBytes.
	MsgBodyTooLarge = "Request body too large"

	// MsgInvalidJSON is returned when the body is not a JSON object.
	MsgInvalidJSON = "Invalid JSON body"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// analyzeValidate is the validator instance for analyze requests.
var analyzeValidate *validator.Validate

func init() {
	analyzeValidate = validator.New()

	_ = analyzeValidate.RegisterValidation("xhandle", validateXHandle)
}

// validateXHandle checks a sanitized handle against the X handle rule.
func validateXHandle(fl validator.FieldLevel) bool {
	return validation.IsValidHandle(fl.Field().String())
}

// =============================================================================
// Analyze Request
// =============================================================================

// AnalyzeRequest is a validated analysis request.
//
// # Description
//
// The wire body is either {"username": "jack"} for a single profile or
// {"usernames": ["jack", "dorsey"]} for a comparison. When both are present
// username is placed first. Handles holds the sanitized, de-duplicated
// identifiers; one handle means single-profile mode.
//
// # Validation
//
//   - Handles: required, each element must match the X handle rule
//     (custom "xhandle" tag), at most validation.MaxCompareHandles
type AnalyzeRequest struct {
	Handles []string `json:"handles" validate:"required,min=1,dive,xhandle"`
}

// IsComparison reports whether more than one profile was requested.
func (r *AnalyzeRequest) IsComparison() bool {
	return len(r.Handles) > 1
}

// Validate runs the struct tags and the comparison size limit.
//
// # Outputs
//
//   - error: *validation.Error with the user-facing message, or nil.
func (r *AnalyzeRequest) Validate() error {
	if err := analyzeValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "xhandle" {
			return &validation.Error{Message: validation.MsgUsernameInvalid}
		}
		return &validation.Error{Message: validation.MsgUsernameRequired}
	}
	if len(r.Handles) > validation.MaxCompareHandles {
		return &validation.Error{Message: validation.MsgTooManyUsernames}
	}
	return nil
}

// ParseAnalyzeRequest decodes and validates a raw request body.
//
// # Description
//
// Checks run in order: body size, JSON object shape, presence of a
// username, handle format, comparison size. A username field that is not a
// string (or a usernames field that is not an array of strings) counts as
// missing.
//
// # Inputs
//
//   - body: Raw request body. Callers read at most MaxRequestBodyBytes+1.
//
// # Outputs
//
//   - *AnalyzeRequest: Validated request.
//   - error: *validation.Error carrying the 400 message.
//
// # Examples
//
//	req, err := datatypes.ParseAnalyzeRequest([]byte(`{"username":"@jack"}`))
//	// req.Handles == []string{"jack"}
func ParseAnalyzeRequest(body []byte) (*AnalyzeRequest, error) {
	if len(body) > MaxRequestBodyBytes {
		return nil, &validation.Error{Message: MsgBodyTooLarge}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, &validation.Error{Message: MsgInvalidJSON}
	}

	var raw []string
	if data, ok := fields["username"]; ok {
		var username string
		if json.Unmarshal(data, &username) == nil && strings.TrimSpace(username) != "" {
			raw = append(raw, username)
		}
	}
	if data, ok := fields["usernames"]; ok {
		var usernames []string
		if json.Unmarshal(data, &usernames) == nil {
			for _, u := range usernames {
				if strings.TrimSpace(u) == "" {
					return nil, &validation.Error{Message: validation.MsgUsernameRequired}
				}
				raw = append(raw, u)
			}
		}
	}

	req := &AnalyzeRequest{Handles: dedupeHandles(raw)}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// dedupeHandles sanitizes each entry and drops case-insensitive duplicates,
// keeping the first spelling.
func dedupeHandles(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		handle := validation.Sanitize(u)
		key := strings.ToLower(handle)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, handle)
	}
	return out
}

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the JSON body of a non-streaming failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
