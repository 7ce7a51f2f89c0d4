// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input-format validators for identifiers that
// end up in storage keys and schema lookups.
//
// Form paths, section keys, and case ids arrive from schema files, persisted
// documents, and CLI arguments. Validating their shape up front keeps a typo
// from silently creating a detached field and keeps untrusted input out of
// storage key construction.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// segmentPattern matches one dotted-path segment: lowercase snake_case,
// digits allowed after the first character ("year_1", "qh2").
var segmentPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// caseIDPattern matches case identifiers like "C-1001".
// Max length 32 covers every observed id format.
var caseIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-]{0,31}$`)

// ValidateSectionKey validates one section key ("family_details").
func ValidateSectionKey(key string) error {
	if key == "" {
		return fmt.Errorf("section key cannot be empty")
	}
	if !segmentPattern.MatchString(key) {
		return fmt.Errorf("invalid section key: %q (must be lowercase snake_case)", key)
	}
	return nil
}

// ValidateFormPath validates a dotted form path
// ("family_details.income_expense.income.business_monthly").
//
// Example:
//
//	if err := validation.ValidateFormPath(p); err != nil {
//	    return fmt.Errorf("schema field: %w", err)
//	}
func ValidateFormPath(path string) error {
	if path == "" {
		return fmt.Errorf("form path cannot be empty")
	}
	for _, seg := range strings.Split(path, ".") {
		if !segmentPattern.MatchString(seg) {
			return fmt.Errorf("invalid form path: %q (segment %q must be lowercase snake_case)", path, seg)
		}
	}
	return nil
}

// ValidateCaseID validates a case identifier before it is used in a
// storage key.
func ValidateCaseID(id string) error {
	if id == "" {
		return fmt.Errorf("case id cannot be empty")
	}
	if !caseIDPattern.MatchString(id) {
		return fmt.Errorf("invalid case id: %q (must be 1-32 alphanumeric chars or hyphens)", id)
	}
	return nil
}
