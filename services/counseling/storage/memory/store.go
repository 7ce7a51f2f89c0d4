// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory provides an in-memory Persistence implementation for
// tests and CLI dry runs. Semantics match the badger-backed store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/CaseFlow/services/counseling/document"
	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
	"github.com/AleutianAI/CaseFlow/services/counseling/workflow"
)

// Store keeps form documents in a map. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	docs map[string]*document.Document
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string]*document.Document)}
}

// Put seeds a document, keyed by its case id.
func (s *Store) Put(doc *document.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.CaseID] = doc
}

// Document returns the stored document for inspection in tests.
func (s *Store) Document(caseID string) *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[caseID]
}

// LoadDocument returns a deep copy of the stored document so the engine's
// in-memory state never aliases the store.
func (s *Store) LoadDocument(_ context.Context, caseID string) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[caseID]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, workflow.ErrNotFound)
	}
	data, err := doc.Encode()
	if err != nil {
		return nil, fmt.Errorf("case %s: %w: %v", caseID, workflow.ErrPersistenceFailed, err)
	}
	copied, err := document.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w: %v", caseID, workflow.ErrPersistenceFailed, err)
	}
	return copied, nil
}

// SaveSection stores one section's slice and returns the section's
// server id, assigning a fresh one on first save.
func (s *Store) SaveSection(_ context.Context, formID, sectionKey string,
	fields map[fieldstore.Path]fieldstore.Value,
	groups map[string][]map[string]fieldstore.Value) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.byFormID(formID)
	if err != nil {
		return "", err
	}

	sec := doc.Section(sectionKey)
	sec.Fields = fields
	if groups != nil {
		sec.Groups = groups
	}
	if sec.ServerID == "" {
		sec.ServerID = uuid.NewString()
	}
	return sec.ServerID, nil
}

// Complete marks the form complete.
func (s *Store) Complete(_ context.Context, formID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.byFormID(formID)
	if err != nil {
		return err
	}
	doc.IsComplete = true
	return nil
}

func (s *Store) byFormID(formID string) (*document.Document, error) {
	if doc, ok := s.docs[formID]; ok {
		return doc, nil
	}
	for _, doc := range s.docs {
		if doc.FormID == formID {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("form %s: %w", formID, workflow.ErrNotFound)
}
