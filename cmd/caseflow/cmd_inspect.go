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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CaseFlow/services/counseling/controller"
	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
	"github.com/AleutianAI/CaseFlow/services/counseling/stage"
	bstore "github.com/AleutianAI/CaseFlow/services/counseling/storage/badger"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// inspectCmd prints a stored case's workflow state and derived totals.
//
// # Examples
//
//	caseflow inspect CASE-1042
//	caseflow inspect CASE-1042 --json
var inspectCmd = &cobra.Command{
	Use:   "inspect [case-id]",
	Short: "Show a case's section states and derived financial fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

// inspectReport is the JSON shape emitted with --json.
type inspectReport struct {
	CaseID        string             `json:"case_id"`
	SchemaVersion int                `json:"schema_version"`
	Complete      bool               `json:"complete"`
	ActiveSection string             `json:"active_section"`
	Sections      map[string]string  `json:"sections"`
	Derived       map[string]float64 `json:"derived"`
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func openFormStore() (*bstore.FormStore, error) {
	cfg := bstore.DefaultConfig(dbPath)
	cfg.Logger = logger.Slog()
	return bstore.Open(cfg)
}

func runInspect(cmd *cobra.Command, args []string) error {
	caseID := args[0]

	store, err := openFormStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Inspection is read-only, so resolution never blocks it.
	c, err := controller.New(controller.Config{
		Schema:  form,
		Persist: store,
		Role:    stage.RoleReviewer,
		Logger:  logger.Slog(),
	})
	if err != nil {
		return err
	}
	if err := c.LoadForm(cmd.Context(), caseID); err != nil {
		return err
	}

	report := inspectReport{
		CaseID:        caseID,
		SchemaVersion: c.SchemaVersion(),
		Complete:      c.Workflow().IsComplete(),
		Sections:      make(map[string]string),
		Derived:       make(map[string]float64),
	}
	if active := c.ActiveSection(); active != nil {
		report.ActiveSection = active.Key
	}
	for _, s := range c.Workflow().Sections() {
		state, err := c.Workflow().State(s.Key)
		if err != nil {
			return err
		}
		report.Sections[s.Key] = state.String()
	}
	for _, path := range derivedSummaryPaths() {
		report.Derived[string(path)] = c.Store().Number(path)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Case:    %s (schema v%d)\n", report.CaseID, report.SchemaVersion)
	fmt.Printf("Status:  complete=%v active=%s\n", report.Complete, report.ActiveSection)
	fmt.Println("Sections:")
	for _, s := range c.Workflow().Sections() {
		fmt.Printf("  %-20s %s\n", s.Key, report.Sections[s.Key])
	}
	fmt.Println("Derived:")
	for _, path := range derivedSummaryPaths() {
		fmt.Printf("  %-55s %.2f\n", string(path), report.Derived[string(path)])
	}
	return nil
}

// derivedSummaryPaths is the short list shown in reports. Full field
// dumps go through --json on the compute command instead.
func derivedSummaryPaths() []fieldstore.Path {
	return []fieldstore.Path{
		"family_details.income_expense.income.total_monthly",
		"family_details.income_expense.income.total_yearly",
		"family_details.income_expense.expense.total_monthly",
		"family_details.income_expense.expense.total_yearly",
		"family_details.income_expense.surplus_monthly",
		"family_details.income_expense.deficit_monthly",
	}
}
