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
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CaseFlow/services/counseling/controller"
	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
	"github.com/AleutianAI/CaseFlow/services/counseling/stage"
	"github.com/AleutianAI/CaseFlow/services/counseling/workflow"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	computeSets    []string // path=value pairs applied before recomputation
	computeSave    string   // section key to persist after applying edits
	computeSection string   // restrict the field dump to one section
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// computeCmd applies field edits to a stored case, runs derivation, and
// prints the resulting field values. Without --save nothing is persisted;
// the command is a what-if calculator.
//
// # Examples
//
//	caseflow compute CASE-1042 \
//	  --set family_details.income_expense.income.business_monthly=1500
//	caseflow compute CASE-1042 --set ...=... --save family_details
var computeCmd = &cobra.Command{
	Use:   "compute [case-id]",
	Short: "Apply field edits and show recomputed derived values",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompute,
}

func init() {
	computeCmd.Flags().StringArrayVar(&computeSets, "set", nil,
		"Field assignment path=value (repeatable)")
	computeCmd.Flags().StringVar(&computeSave, "save", "",
		"Persist the named section after applying edits")
	computeCmd.Flags().StringVar(&computeSection, "section", "",
		"Limit output to fields under this section")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runCompute(cmd *cobra.Command, args []string) error {
	caseID := args[0]

	store, err := openFormStore()
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := controller.New(controller.Config{
		Schema:  form,
		Persist: store,
		Role:    stage.RoleCounselor,
		Logger:  logger.Slog(),
	})
	if err != nil {
		return err
	}
	if err := c.LoadForm(cmd.Context(), caseID); err != nil {
		return err
	}

	for _, assignment := range computeSets {
		path, value, err := parseAssignment(assignment)
		if err != nil {
			return err
		}
		if err := c.SetField(path, value); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}

	if computeSave != "" {
		if _, err := c.SaveSection(cmd.Context(), computeSave, workflow.SaveDraft); err != nil {
			return fmt.Errorf("save section %s: %w", computeSave, err)
		}
		logger.Info("section persisted", "case_id", caseID, "section", computeSave)
	}

	prefix := computeSection
	if prefix != "" && !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	fields := c.Store().Snapshot(fieldstore.Path(prefix))
	keys := make([]string, 0, len(fields))
	for p := range fields {
		keys = append(keys, string(p))
	}
	sort.Strings(keys)

	if jsonOutput {
		out := make(map[string]fieldstore.Value, len(fields))
		for p, v := range fields {
			out[string(p)] = v
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for _, k := range keys {
		fmt.Printf("%-60s %v\n", k, fields[fieldstore.Path(k)])
	}
	return nil
}

// parseAssignment splits "path=value" and coerces the value to the most
// specific of bool, number, or string.
func parseAssignment(s string) (fieldstore.Path, fieldstore.Value, error) {
	path, raw, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return "", nil, fmt.Errorf("malformed --set %q: want path=value", s)
	}
	switch raw {
	case "true":
		return fieldstore.Path(path), true, nil
	case "false":
		return fieldstore.Path(path), false, nil
	}
	var num float64
	if _, err := fmt.Sscanf(raw, "%g", &num); err == nil && isNumericLiteral(raw) {
		return fieldstore.Path(path), num, nil
	}
	return fieldstore.Path(path), raw, nil
}

func isNumericLiteral(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot:
			dot = true
		case r == '-' && i == 0:
		default:
			return false
		}
	}
	return true
}
