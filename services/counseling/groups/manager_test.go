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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

func newTimeline(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil)
	err := m.Register(Definition{
		Name:          "qardan_timeline",
		Section:       "qardan_details",
		FixedRowCount: 1,
		NamePrefix:    "QH",
	}, nil)
	require.NoError(t, err)
	return m
}

// TestRegisterSeedsFixedRows verifies fixed rows exist from registration.
func TestRegisterSeedsFixedRows(t *testing.T) {
	m := newTimeline(t)
	rows := m.Rows("qardan_timeline")
	require.Len(t, rows, 1)
	assert.Equal(t, "QH1", rows[0].Values[NameField])
	assert.NotEmpty(t, rows[0].ID)
}

// TestFixedRowRemovalIsNoOp verifies removing the fixed head row does nothing.
func TestFixedRowRemovalIsNoOp(t *testing.T) {
	m := newTimeline(t)
	_, err := m.AddRow("qardan_timeline", nil)
	require.NoError(t, err)

	fixed := m.Rows("qardan_timeline")[0]
	m.RemoveRow("qardan_timeline", fixed.ID)

	rows := m.Rows("qardan_timeline")
	assert.Len(t, rows, 2)
	assert.Equal(t, fixed.ID, rows[0].ID)
}

// TestRemovalBelowFixedCountIsNoOp verifies the rows >= fixedRowCount
// invariant holds even with a bogus id.
func TestRemovalBelowFixedCountIsNoOp(t *testing.T) {
	m := newTimeline(t)
	m.RemoveRow("qardan_timeline", "no-such-row")
	assert.Equal(t, 1, m.Len("qardan_timeline"))
}

// TestSequentialNamingAfterRemoval verifies QH1,QH2,QH3; remove QH2; add -> QH4.
func TestSequentialNamingAfterRemoval(t *testing.T) {
	m := newTimeline(t)

	r2, err := m.AddRow("qardan_timeline", nil)
	require.NoError(t, err)
	r3, err := m.AddRow("qardan_timeline", nil)
	require.NoError(t, err)
	assert.Equal(t, "QH2", r2.Values[NameField])
	assert.Equal(t, "QH3", r3.Values[NameField])

	m.RemoveRow("qardan_timeline", r2.ID)
	require.Equal(t, 2, m.Len("qardan_timeline"))

	r4, err := m.AddRow("qardan_timeline", nil)
	require.NoError(t, err)
	assert.Equal(t, "QH4", r4.Values[NameField])
}

// TestUpdateFixedRow verifies fixed rows stay editable.
func TestUpdateFixedRow(t *testing.T) {
	m := newTimeline(t)
	fixed := m.Rows("qardan_timeline")[0]

	err := m.UpdateRow("qardan_timeline", fixed.ID, "amount", 5000.0)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, m.Rows("qardan_timeline")[0].Values["amount"])
}

// TestUpdateMissingRow verifies ErrRowNotFound for stale ids.
func TestUpdateMissingRow(t *testing.T) {
	m := newTimeline(t)
	err := m.UpdateRow("qardan_timeline", "gone", "amount", 1.0)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

// TestAggregateTreatsUnparseableAsZero verifies footer totals.
func TestAggregateTreatsUnparseableAsZero(t *testing.T) {
	m := newTimeline(t)
	fixed := m.Rows("qardan_timeline")[0]
	require.NoError(t, m.UpdateRow("qardan_timeline", fixed.ID, "amount", 5000.0))

	_, err := m.AddRow("qardan_timeline", map[string]fieldstore.Value{"amount": "2500"})
	require.NoError(t, err)
	_, err = m.AddRow("qardan_timeline", map[string]fieldstore.Value{"amount": "pending"})
	require.NoError(t, err)

	total := m.Aggregate("qardan_timeline", "amount", SumFunc)
	assert.InDelta(t, 7500.0, total, 1e-9)
}

// TestSeededRowsKeepValues verifies hydration from a persisted document.
func TestSeededRowsKeepValues(t *testing.T) {
	m := NewManager(nil)
	seed := []map[string]fieldstore.Value{
		{"full_name": "Applicant", "relation": "self"},
		{"full_name": "Spouse", "relation": "spouse"},
	}
	err := m.Register(Definition{
		Name:          "family_members",
		Section:       "family_details",
		FixedRowCount: 1,
	}, seed)
	require.NoError(t, err)

	rows := m.Rows("family_members")
	require.Len(t, rows, 2)
	assert.Equal(t, "Applicant", rows[0].Values["full_name"])

	// The applicant's own record is fixed.
	m.RemoveRow("family_members", rows[0].ID)
	assert.Equal(t, 2, m.Len("family_members"))

	// Other members can be removed.
	m.RemoveRow("family_members", rows[1].ID)
	assert.Equal(t, 1, m.Len("family_members"))
}

// TestDuplicateRegistration verifies re-registering a group fails.
func TestDuplicateRegistration(t *testing.T) {
	m := newTimeline(t)
	err := m.Register(Definition{Name: "qardan_timeline"}, nil)
	assert.ErrorIs(t, err, ErrDuplicateGroup)
}

// TestNamesBySection verifies section filtering.
func TestNamesBySection(t *testing.T) {
	m := newTimeline(t)
	require.NoError(t, m.Register(Definition{
		Name: "action_items", Section: "action_plan",
	}, nil))

	assert.ElementsMatch(t, []string{"qardan_timeline"}, m.Names("qardan_details"))
	assert.Len(t, m.Names(""), 2)
}
