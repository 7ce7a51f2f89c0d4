// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

// ErrMigrationAmbiguous marks an old-format document that cannot be
// unambiguously upgraded. It is logged with a best-effort default applied;
// migration never fails on it.
var ErrMigrationAmbiguous = errors.New("ambiguous schema migration")

// Reserved top-level keys of the raw persisted shape. Everything else at
// the top level is a section sub-object.
var reservedKeys = map[string]bool{
	"case_id":        true,
	"form_id":        true,
	"schema_version": true,
	"is_complete":    true,
}

// Parse decodes a raw persisted JSON document and migrates it to the
// canonical shape.
//
// Inputs:
//
//	data - Raw persisted JSON.
//	logger - Logger for migration warnings. If nil, uses slog.Default().
//
// Outputs:
//
//	*Document - Canonical document at the detected schema version.
//	error - Non-nil only for malformed JSON or a broken document shape;
//	        ambiguous old-format data is logged, never fatal.
func Parse(data []byte, logger *slog.Logger) (*Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return Migrate(raw, logger)
}

// Migrate converts a raw decoded document to canonical form, applying the
// v1 field-name upgrade when needed.
func Migrate(raw map[string]any, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Document{Sections: make(map[string]*Section)}
	d.CaseID, _ = raw["case_id"].(string)
	d.FormID, _ = raw["form_id"].(string)
	d.IsComplete, _ = raw["is_complete"].(bool)
	d.SchemaVersion = int(fieldstore.Num(raw["schema_version"]))

	for key, val := range raw {
		if reservedKeys[key] {
			continue
		}
		sub, ok := val.(map[string]any)
		if !ok {
			logger.Warn("skipping non-object top-level key",
				slog.String("key", key))
			continue
		}
		d.Sections[key] = flattenSection(key, sub)
	}

	if d.SchemaVersion == 0 {
		d.SchemaVersion = detectVersion(d)
	}
	if d.SchemaVersion == SchemaV1 {
		upgradeV1(d, logger)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// flattenSection turns one section sub-object into dotted field paths,
// repeating-group rows, and the server id.
func flattenSection(key string, sub map[string]any) *Section {
	s := &Section{
		Fields: make(map[fieldstore.Path]fieldstore.Value),
		Groups: make(map[string][]map[string]fieldstore.Value),
	}
	flattenInto(s, key, key, sub)
	return s
}

func flattenInto(s *Section, sectionKey, prefix string, m map[string]any) {
	for k, v := range m {
		// The server-assigned id lives at "<sectionKey>_id". Other *_id
		// fields (national_id, voter_id) are ordinary form data.
		if prefix == sectionKey && k == sectionKey+"_id" {
			if id, ok := v.(string); ok {
				s.ServerID = id
				continue
			}
		}
		switch val := v.(type) {
		case map[string]any:
			flattenInto(s, sectionKey, prefix+"."+k, val)
		case []any:
			s.Groups[k] = groupRows(val)
		default:
			s.Fields[fieldstore.Path(prefix+"."+k)] = val
		}
	}
}

func groupRows(arr []any) []map[string]fieldstore.Value {
	rows := make([]map[string]fieldstore.Value, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		row := make(map[string]fieldstore.Value, len(obj))
		for k, v := range obj {
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows
}

// detectVersion infers the schema version of an untagged document: any
// numeric field under an income/ or expense/ subtree whose leaf name lacks
// a _monthly/_yearly suffix marks the document as v1.
func detectVersion(d *Document) int {
	for _, s := range d.Sections {
		for p := range s.Fields {
			if isFlatMoneyPath(p) {
				return SchemaV1
			}
		}
	}
	return SchemaV2
}

func isFlatMoneyPath(p fieldstore.Path) bool {
	s := string(p)
	if !strings.Contains(s, ".income.") && !strings.Contains(s, ".expense.") {
		return false
	}
	leaf := s[strings.LastIndexByte(s, '.')+1:]
	return !strings.HasSuffix(leaf, "_monthly") && !strings.HasSuffix(leaf, "_yearly") &&
		leaf != "surplus" && leaf != "deficit"
}

// upgradeV1 renames flat income/expense fields to the split convention:
// <leaf> becomes <leaf>_monthly and <leaf>_yearly is derived as *12.
//
// When a document carries both the flat and the split name with different
// values it cannot be unambiguously upgraded; the split value wins and the
// conflict is logged with ErrMigrationAmbiguous.
func upgradeV1(d *Document, logger *slog.Logger) {
	for key, s := range d.Sections {
		for p, v := range s.Fields {
			if !isFlatMoneyPath(p) {
				continue
			}
			delete(s.Fields, p)

			monthly := p + "_monthly"
			yearly := p + "_yearly"
			if cur, exists := s.Fields[monthly]; exists {
				if !fieldstore.Equal(cur, v) {
					logger.Warn("conflicting flat and split values, keeping split",
						slog.String("section", key),
						slog.String("path", string(monthly)),
						slog.String("error", ErrMigrationAmbiguous.Error()))
				}
				continue
			}
			n := fieldstore.Num(v)
			s.Fields[monthly] = n
			if _, exists := s.Fields[yearly]; !exists {
				s.Fields[yearly] = n * 12
			}
		}
	}
}
