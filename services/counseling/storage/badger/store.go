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
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/CaseFlow/services/counseling/document"
	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
	"github.com/AleutianAI/CaseFlow/services/counseling/workflow"
)

// keyPrefix namespaces form documents within the database.
const keyPrefix = "form/"

// FormStore implements the workflow.Persistence contract on BadgerDB.
//
// Documents are stored canonically (one JSON value per case) under
// "form/<caseID>". Section saves are read-modify-write transactions, so a
// crash between read and commit leaves the prior document intact.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions isolate
// concurrent section saves.
type FormStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open creates a FormStore with the given configuration.
//
// Outputs:
//
//	*FormStore - The opened store. Caller must call Close() when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*FormStore, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FormStore{db: db, logger: logger}, nil
}

// OpenInMemory creates a FormStore for testing. Data is lost on Close.
func OpenInMemory() (*FormStore, error) {
	return Open(InMemoryConfig())
}

// Close closes the underlying database.
func (s *FormStore) Close() error {
	return s.db.Close()
}

func key(caseID string) []byte {
	return []byte(keyPrefix + caseID)
}

// Put stores a document, keyed by its case id. Used for seeding and by
// the CLI import path.
func (s *FormStore) Put(ctx context.Context, doc *document.Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrPersistenceFailed, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(doc.CaseID), data)
	})
	if err != nil {
		return fmt.Errorf("put form %s: %w: %v", doc.CaseID, workflow.ErrPersistenceFailed, err)
	}
	return nil
}

// LoadDocument fetches the persisted document for a case.
func (s *FormStore) LoadDocument(ctx context.Context, caseID string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var doc *document.Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(caseID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			doc, err = document.Decode(val)
			return err
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, fmt.Errorf("case %s: %w", caseID, workflow.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("load form %s: %w: %v", caseID, workflow.ErrPersistenceFailed, err)
	}
	return doc, nil
}

// SaveSection persists one section's slice inside a read-modify-write
// transaction and returns the section's server id.
func (s *FormStore) SaveSection(ctx context.Context, formID, sectionKey string,
	fields map[fieldstore.Path]fieldstore.Value,
	groups map[string][]map[string]fieldstore.Value) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	var serverID string
	err := s.update(formID, func(doc *document.Document) error {
		sec := doc.Section(sectionKey)
		sec.Fields = fields
		if groups != nil {
			sec.Groups = groups
		}
		if sec.ServerID == "" {
			sec.ServerID = uuid.NewString()
		}
		serverID = sec.ServerID
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("section persisted",
		slog.String("form_id", formID),
		slog.String("section", sectionKey),
		slog.String("server_id", serverID))
	return serverID, nil
}

// Complete marks the form complete.
func (s *FormStore) Complete(ctx context.Context, formID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.update(formID, func(doc *document.Document) error {
		doc.IsComplete = true
		return nil
	})
}

// update runs a read-modify-write cycle on one document. The form id is
// the case id for documents created by this store.
func (s *FormStore) update(formID string, mutate func(*document.Document) error) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key(formID))
		if err != nil {
			return err
		}
		var doc *document.Document
		if err := item.Value(func(val []byte) error {
			doc, err = document.Decode(val)
			return err
		}); err != nil {
			return err
		}
		if err := mutate(doc); err != nil {
			return err
		}
		data, err := doc.Encode()
		if err != nil {
			return err
		}
		return txn.Set(key(formID), data)
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("form %s: %w", formID, workflow.ErrNotFound)
	case err != nil:
		return fmt.Errorf("update form %s: %w: %v", formID, workflow.ErrPersistenceFailed, err)
	}
	return nil
}
