// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CaseFlow/services/counseling/document"
	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
	"github.com/AleutianAI/CaseFlow/services/counseling/workflow"
)

func openStore(t *testing.T) *FormStore {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestLoadMissing verifies the tagged not-found error.
func TestLoadMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.LoadDocument(context.Background(), "nope")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

// TestPutLoadRoundtrip verifies document storage.
func TestPutLoadRoundtrip(t *testing.T) {
	s := openStore(t)

	doc := document.New("C-1")
	doc.Section("personal_details").Fields["personal_details.full_name"] = "Applicant"
	require.NoError(t, s.Put(context.Background(), doc))

	got, err := s.LoadDocument(context.Background(), "C-1")
	require.NoError(t, err)
	assert.Equal(t, "C-1", got.CaseID)
	assert.Equal(t, "Applicant",
		got.Sections["personal_details"].Fields["personal_details.full_name"])
}

// TestSaveSectionAssignsStableID verifies the first save assigns a server
// id and later saves keep it.
func TestSaveSectionAssignsStableID(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(context.Background(), document.New("C-2")))

	fields := map[fieldstore.Path]fieldstore.Value{
		"personal_details.full_name": "Applicant",
	}
	id1, err := s.SaveSection(context.Background(), "C-2", "personal_details", fields, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := s.SaveSection(context.Background(), "C-2", "personal_details", fields, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.LoadDocument(context.Background(), "C-2")
	require.NoError(t, err)
	assert.Equal(t, id1, got.Sections["personal_details"].ServerID)
}

// TestSaveSectionMissingForm verifies the tagged error for unknown forms.
func TestSaveSectionMissingForm(t *testing.T) {
	s := openStore(t)
	_, err := s.SaveSection(context.Background(), "ghost", "personal_details", nil, nil)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

// TestComplete verifies the completion flag persists.
func TestComplete(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(context.Background(), document.New("C-3")))

	require.NoError(t, s.Complete(context.Background(), "C-3"))

	got, err := s.LoadDocument(context.Background(), "C-3")
	require.NoError(t, err)
	assert.True(t, got.IsComplete)
}

// TestGroupRowsPersist verifies repeating-group rows survive a save.
func TestGroupRowsPersist(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(context.Background(), document.New("C-4")))

	groups := map[string][]map[string]fieldstore.Value{
		"qardan_timeline": {
			{"name": "QH1", "amount": 5000.0},
			{"name": "QH2", "amount": 2500.0},
		},
	}
	_, err := s.SaveSection(context.Background(), "C-4", "qardan_details", nil, groups)
	require.NoError(t, err)

	got, err := s.LoadDocument(context.Background(), "C-4")
	require.NoError(t, err)
	rows := got.Sections["qardan_details"].Groups["qardan_timeline"]
	require.Len(t, rows, 2)
	assert.Equal(t, "QH1", rows[0]["name"])
}
