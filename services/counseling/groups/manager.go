// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package groups manages the repeating entry groups of a counseling form:
// family members, qardan repayment tranches, action-plan items.
//
// Rows are keyed by a stable rowId (uuid), never by slice index, so removal
// and insertion do not invalidate other rows' identities. Each group may
// declare a number of fixed leading rows (the applicant's own family-member
// entry, the "QH1" tranche) which can be edited but never removed.
package groups

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

// NameField is the row field used for sequential naming ("QH1", "QH2", ...).
const NameField = "name"

// Row is one record of a repeating group.
type Row struct {
	// ID is the stable identity used for keying and partial updates.
	ID string

	// Values maps field name to scalar value.
	Values map[string]fieldstore.Value
}

func (r *Row) clone() Row {
	vals := make(map[string]fieldstore.Value, len(r.Values))
	for k, v := range r.Values {
		vals[k] = v
	}
	return Row{ID: r.ID, Values: vals}
}

// Definition describes one repeating group.
type Definition struct {
	// Name identifies the group ("family_members", "qardan_timeline", ...).
	Name string

	// Section is the form section the group lives in.
	Section string

	// FixedRowCount is the number of leading rows that always exist and
	// cannot be removed. Rows are seeded up to this count on registration.
	FixedRowCount int

	// NamePrefix, when non-empty, enables sequential naming: new rows get
	// NameField set to prefix + next sequence number.
	NamePrefix string
}

type group struct {
	def  Definition
	rows []*Row
}

// AggregateFunc folds one cell value into a running accumulator.
type AggregateFunc func(acc, v float64) float64

// SumFunc is the footer-total aggregate.
func SumFunc(acc, v float64) float64 { return acc + v }

// Manager owns every repeating group of one form session.
//
// Thread Safety:
//
//	Manager is NOT safe for concurrent use; it is owned by one session.
type Manager struct {
	groups map[string]*group
	logger *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		groups: make(map[string]*group),
		logger: logger,
	}
}

// Register creates a group from its definition and seed rows.
//
// Description:
//
//	Seed rows come from the persisted document. If fewer seed rows than
//	FixedRowCount exist, empty fixed rows are appended so the invariant
//	rows >= FixedRowCount holds from the start. Seed rows without a rowId
//	get a fresh one.
func (m *Manager) Register(def Definition, seed []map[string]fieldstore.Value) error {
	if def.Name == "" {
		return ErrInvalidGroup
	}
	if _, exists := m.groups[def.Name]; exists {
		return ErrDuplicateGroup
	}

	g := &group{def: def}
	for _, vals := range seed {
		g.rows = append(g.rows, newRow(vals))
	}
	for len(g.rows) < def.FixedRowCount {
		row := newRow(nil)
		if def.NamePrefix != "" {
			row.Values[NameField] = def.NamePrefix + strconv.Itoa(len(g.rows)+1)
		}
		g.rows = append(g.rows, row)
	}
	m.groups[def.Name] = g
	return nil
}

func newRow(vals map[string]fieldstore.Value) *Row {
	r := &Row{ID: uuid.NewString(), Values: make(map[string]fieldstore.Value)}
	for k, v := range vals {
		r.Values[k] = v
	}
	return r
}

// AddRow appends a row with the given initial values.
//
// Description:
//
//	For sequentially named groups the new row's name is the prefix plus
//	max(existing numeric suffixes)+1 — not length+1 — so names stay unique
//	after removals (QH1, QH2, QH3; remove QH2; add -> QH4).
//
// Outputs:
//
//	Row - A copy of the created row.
//	error - ErrGroupNotFound for an unregistered group.
func (m *Manager) AddRow(name string, initial map[string]fieldstore.Value) (Row, error) {
	g, ok := m.groups[name]
	if !ok {
		return Row{}, ErrGroupNotFound
	}

	row := newRow(initial)
	if g.def.NamePrefix != "" {
		row.Values[NameField] = g.def.NamePrefix + strconv.Itoa(g.nextSequence())
	}
	g.rows = append(g.rows, row)
	return row.clone(), nil
}

// nextSequence scans existing row names for numeric suffixes and returns
// the next number after the maximum.
func (g *group) nextSequence() int {
	max := 0
	for _, r := range g.rows {
		s, _ := r.Values[NameField].(string)
		if !strings.HasPrefix(s, g.def.NamePrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(s, g.def.NamePrefix))
		if err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// RemoveRow removes the row with the given id.
//
// Description:
//
//	Fails silently (no-op, not an error) when the id indexes one of the
//	group's fixed leading rows, when removal would drop the group below
//	FixedRowCount, or when the id does not exist. The UI treats these as
//	disabled actions, not failures.
func (m *Manager) RemoveRow(name, rowID string) {
	g, ok := m.groups[name]
	if !ok {
		return
	}
	if len(g.rows) <= g.def.FixedRowCount {
		return
	}
	for i, r := range g.rows {
		if r.ID != rowID {
			continue
		}
		if i < g.def.FixedRowCount {
			m.logger.Debug("refused removal of fixed row",
				slog.String("group", name), slog.String("row", rowID))
			return
		}
		g.rows = append(g.rows[:i], g.rows[i+1:]...)
		return
	}
}

// UpdateRow sets one field of one row. Fixed rows are editable; only their
// removal is blocked.
func (m *Manager) UpdateRow(name, rowID, field string, value fieldstore.Value) error {
	g, ok := m.groups[name]
	if !ok {
		return ErrGroupNotFound
	}
	for _, r := range g.rows {
		if r.ID == rowID {
			r.Values[field] = value
			return nil
		}
	}
	return ErrRowNotFound
}

// Rows returns copies of the group's rows in order. Unknown groups yield nil.
func (m *Manager) Rows(name string) []Row {
	g, ok := m.groups[name]
	if !ok {
		return nil
	}
	out := make([]Row, len(g.rows))
	for i, r := range g.rows {
		out[i] = r.clone()
	}
	return out
}

// Len returns the row count of a group.
func (m *Manager) Len(name string) int {
	g, ok := m.groups[name]
	if !ok {
		return 0
	}
	return len(g.rows)
}

// Names returns the registered group names for a section, or all groups
// when section is "".
func (m *Manager) Names(section string) []string {
	var out []string
	for name, g := range m.groups {
		if section == "" || g.def.Section == section {
			out = append(out, name)
		}
	}
	return out
}

// Definition returns the registered definition for a group.
func (m *Manager) Definition(name string) (Definition, bool) {
	g, ok := m.groups[name]
	if !ok {
		return Definition{}, false
	}
	return g.def, true
}

// SectionRows collects every group of a section as raw row values, the
// shape the persistence collaborator takes at save time.
func (m *Manager) SectionRows(section string) map[string][]map[string]fieldstore.Value {
	out := make(map[string][]map[string]fieldstore.Value)
	for name, g := range m.groups {
		if g.def.Section != section {
			continue
		}
		rows := make([]map[string]fieldstore.Value, len(g.rows))
		for i, r := range g.rows {
			row := r.clone()
			rows[i] = row.Values
		}
		out[name] = rows
	}
	return out
}

// Aggregate folds fn over one field of every row (table-footer totals).
// Unparseable cell values count as 0.
func (m *Manager) Aggregate(name, field string, fn AggregateFunc) float64 {
	g, ok := m.groups[name]
	if !ok {
		return 0
	}
	var acc float64
	for _, r := range g.rows {
		acc = fn(acc, fieldstore.Num(r.Values[field]))
	}
	return acc
}
