// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

// Sentinel errors forming the engine's error taxonomy. Nothing here is
// fatal: the worst case is "section did not save", never corrupted
// in-memory state.
var (
	// ErrValidationFailed is returned when required paths are missing at
	// save-and-advance time. Recoverable; the section does not advance.
	ErrValidationFailed = errors.New("validation failed")

	// ErrPermissionDenied is returned for a mutation or save on a section
	// the actor cannot edit. Recoverable; no state change.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPersistenceFailed is returned for transport or server errors
	// during save. Recoverable; the section keeps its prior state.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrBusy is returned when a save for the same section is already in
	// flight. The source UI disables the triggering action, so a second
	// call is rejected rather than queued.
	ErrBusy = errors.New("save already in flight")

	// ErrNotFound is returned when the persisted document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrFormLocked is returned for complete-form calls on an already
	// completed form, or transitions a locked form cannot make.
	ErrFormLocked = errors.New("form is complete and locked")

	// ErrUnknownSection is returned for operations naming a section key
	// that is not part of the form.
	ErrUnknownSection = errors.New("unknown section")
)

// ValidationError wraps ErrValidationFailed with the paths that failed,
// for inline reporting next to the offending fields.
type ValidationError struct {
	SectionKey string
	Missing    []fieldstore.Path
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, p := range e.Missing {
		parts[i] = string(p)
	}
	return fmt.Sprintf("section %s: %v: missing %s",
		e.SectionKey, ErrValidationFailed, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
