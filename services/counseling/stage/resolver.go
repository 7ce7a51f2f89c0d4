// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stage resolves per-section view/edit permissions for a counseling
// form from the surrounding case workflow.
//
// Resolution is a three-step chain: the workflow-engine-supplied permission
// for the section wins when its flags are explicitly set; otherwise the
// fallback stage-configuration table is consulted; otherwise the result is
// permissive.
//
// OPEN QUESTION: the default-permissive step mirrors the production system
// as observed — "no permission record" yields canEdit=true. This is almost
// certainly an unintended posture; it is preserved here rather than fixed
// because sections in live cases depend on it. See DESIGN.md.
package stage

import "log/slog"

// Role is the actor's role in the case workflow.
type Role string

const (
	// RoleSuperAdmin bypasses resolution entirely.
	RoleSuperAdmin Role = "super_admin"
	// RoleCounselor is the ordinary counseling actor.
	RoleCounselor Role = "counselor"
	// RoleReviewer reviews completed forms.
	RoleReviewer Role = "reviewer"
)

// CaseState is the state of the surrounding case.
type CaseState string

const (
	// StateInProgress is the ordinary editing state.
	StateInProgress CaseState = "in_progress"
	// StateSentBack re-opens editing after the form was completed.
	StateSentBack CaseState = "sent_back_for_rework"
	// StateApproved is terminal.
	StateApproved CaseState = "approved"
)

// Permission is the resolved capability for one section.
type Permission struct {
	CanView bool
	CanEdit bool
}

// Flags is one permission record. Nil pointers mean "not explicitly set";
// a workflow record only takes precedence when both flags are booleans.
type Flags struct {
	CanRead   *bool
	CanUpdate *bool
}

// Explicit reports whether both flags carry explicit boolean values.
func (f Flags) Explicit() bool {
	return f.CanRead != nil && f.CanUpdate != nil
}

// Context carries everything resolution needs for one actor and case.
type Context struct {
	Role      Role
	CaseState CaseState

	// FormComplete is the aggregate form's is_complete flag. Once set,
	// every section is read-only unless the case is in StateSentBack.
	FormComplete bool

	// Workflow holds workflow-engine-supplied permissions by section key.
	Workflow map[string]Flags

	// Fallback holds the stage-configuration permission table by section
	// key, consulted when no explicit workflow record exists.
	Fallback map[string]Flags

	Logger *slog.Logger
}

// Resolve returns the permission for one section.
//
// Description:
//
//	Order: super-admin bypass; workflow record (only when both flags are
//	explicit); fallback table record; default permissive. After per-section
//	resolution, the global completion lock is applied: a completed form is
//	non-editable everywhere unless the case was sent back for rework. The
//	lock never restricts viewing.
func Resolve(sectionKey string, ctx Context) Permission {
	if ctx.Role == RoleSuperAdmin {
		return Permission{CanView: true, CanEdit: true}
	}

	p := resolveSection(sectionKey, ctx)

	if ctx.FormComplete && ctx.CaseState != StateSentBack {
		p.CanEdit = false
	}
	return p
}

func resolveSection(sectionKey string, ctx Context) Permission {
	if f, ok := ctx.Workflow[sectionKey]; ok && f.Explicit() {
		return Permission{CanView: *f.CanRead, CanEdit: *f.CanUpdate}
	}

	if f, ok := ctx.Fallback[sectionKey]; ok {
		p := Permission{CanView: true, CanEdit: true}
		if f.CanRead != nil {
			p.CanView = *f.CanRead
		}
		if f.CanUpdate != nil {
			p.CanEdit = *f.CanUpdate
		}
		return p
	}

	if ctx.Logger != nil {
		ctx.Logger.Debug("no permission record, defaulting to permissive",
			slog.String("section", sectionKey))
	}
	return Permission{CanView: true, CanEdit: true}
}
