// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CaseFlow/services/counseling/document"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var importOverwrite bool

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// importCmd loads exported case documents into the local store. Legacy
// documents with flat income and expense field names are migrated to the
// current schema on the way in; ambiguous migrations are logged and the
// conflicting split values win.
//
// # Examples
//
//	caseflow import export/case_1042.json
//	caseflow import --overwrite export/*.json
var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import case documents from JSON exports",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false,
		"Replace cases that already exist in the store")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runImport(cmd *cobra.Command, args []string) error {
	store, err := openFormStore()
	if err != nil {
		return err
	}
	defer store.Close()

	imported := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		doc, err := document.Parse(data, logger.Slog())
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if !importOverwrite {
			if _, err := store.LoadDocument(cmd.Context(), doc.CaseID); err == nil {
				return fmt.Errorf("case %s already exists (use --overwrite)", doc.CaseID)
			}
		}
		if err := store.Put(cmd.Context(), doc); err != nil {
			return err
		}
		logger.Info("case imported",
			"case_id", doc.CaseID,
			"schema_version", doc.SchemaVersion,
			"file", path)
		imported++
	}

	fmt.Printf("Imported %d case(s) into %s\n", imported, dbPath)
	return nil
}
