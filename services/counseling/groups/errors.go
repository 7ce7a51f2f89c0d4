// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package groups

import "errors"

// Sentinel errors for group operations. Note that RemoveRow deliberately
// has no error surface; refused removals are silent no-ops.
var (
	// ErrInvalidGroup is returned when a definition has no name.
	ErrInvalidGroup = errors.New("invalid group definition")

	// ErrDuplicateGroup is returned when a group name is registered twice.
	ErrDuplicateGroup = errors.New("duplicate group name")

	// ErrGroupNotFound is returned for operations on unregistered groups.
	ErrGroupNotFound = errors.New("group not found")

	// ErrRowNotFound is returned when an update names a missing rowId.
	ErrRowNotFound = errors.New("row not found")
)
