// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package derive

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for rule registration. A failure here is a programming
// error in the rule set, not a user error; it can only happen at build time.
var (
	// ErrInvalidRule is returned for a rule with no id, no output, or a
	// nil compute function.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrDuplicateRule is returned when two rules share an id.
	ErrDuplicateRule = errors.New("duplicate rule id")

	// ErrSelfCycle is returned when a rule's output appears in its inputs.
	ErrSelfCycle = errors.New("rule output appears in its own inputs")

	// ErrUnknownPair is returned when a rule names a paired rule id that
	// was never registered.
	ErrUnknownPair = errors.New("paired rule not registered")
)

// RuleError wraps a sentinel error with the offending rule id.
type RuleError struct {
	RuleID string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// CycleError reports a dependency cycle found at registration time.
type CycleError struct {
	Path []string
}

// NewCycleError creates a CycleError from the rule ids forming the cycle.
func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("derivation cycle: %s", strings.Join(e.Path, " -> "))
}
