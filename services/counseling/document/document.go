// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package document defines the canonical in-memory shape of a persisted
// counseling-form document and the versioned adapter that upgrades older
// persisted formats to it.
//
// The persistence layer stores one JSON object per case: one sub-object per
// section, each optionally containing nested repeating-group arrays and a
// server-assigned "*_id" used as the section's completion signal. Older (v1)
// documents use flat income/expense field names; the adapter renames them to
// the split monthly/yearly convention once, at load time, so no "is old
// format?" checks leak into the engine.
package document

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

// Schema versions the adapter can produce or consume.
const (
	// SchemaV1 is the legacy format: flat income/expense names, cash
	// surplus without the other-income term.
	SchemaV1 = 1
	// SchemaV2 is the current format: split monthly/yearly names.
	SchemaV2 = 2
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Section is one section's persisted data in canonical form.
type Section struct {
	// ServerID is the server-assigned id; non-empty means the server has
	// persisted this section, which is the primary completion signal.
	ServerID string `json:"server_id,omitempty"`

	// Fields maps full dotted paths to scalar values.
	Fields map[fieldstore.Path]fieldstore.Value `json:"fields,omitempty"`

	// Groups maps repeating-group name to its rows' raw values.
	Groups map[string][]map[string]fieldstore.Value `json:"groups,omitempty"`
}

// Document is the canonical in-memory form document.
type Document struct {
	CaseID        string              `json:"case_id" validate:"required"`
	FormID        string              `json:"form_id"`
	SchemaVersion int                 `json:"schema_version" validate:"oneof=1 2"`
	IsComplete    bool                `json:"is_complete"`
	Sections      map[string]*Section `json:"sections" validate:"required"`
}

// New creates an empty canonical document at the current schema version.
func New(caseID string) *Document {
	return &Document{
		CaseID:        caseID,
		SchemaVersion: SchemaV2,
		Sections:      make(map[string]*Section),
	}
}

// Validate checks the document's structural invariants.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("document shape: %w", err)
	}
	return nil
}

// Section returns the named section, creating it if absent.
func (d *Document) Section(key string) *Section {
	s, ok := d.Sections[key]
	if !ok {
		s = &Section{}
		d.Sections[key] = s
	}
	if s.Fields == nil {
		s.Fields = make(map[fieldstore.Path]fieldstore.Value)
	}
	return s
}

// Encode serializes the canonical document for storage.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Decode deserializes a canonical document produced by Encode.
func Decode(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if d.Sections == nil {
		d.Sections = make(map[string]*Section)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
