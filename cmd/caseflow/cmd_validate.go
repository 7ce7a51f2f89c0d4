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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/CaseFlow/services/counseling/controller"
	"github.com/AleutianAI/CaseFlow/services/counseling/stage"
	"github.com/AleutianAI/CaseFlow/services/counseling/workflow"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	validateParallel int  // Concurrent case loads
	validateStrict   bool // Exit non-zero when any case is incomplete
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// validateCmd checks stored cases: document shape, schema compatibility,
// and per-section completeness. Cases are validated concurrently.
//
// # Examples
//
//	caseflow validate CASE-1 CASE-2 CASE-3
//	caseflow validate --strict --json CASE-1
var validateCmd = &cobra.Command{
	Use:   "validate [case-id...]",
	Short: "Validate stored cases against the form schema",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().IntVar(&validateParallel, "parallel", 4,
		"Number of cases validated concurrently")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false,
		"Treat incomplete sections as failures")
}

// caseResult is one case's validation outcome.
type caseResult struct {
	CaseID     string            `json:"case_id"`
	OK         bool              `json:"ok"`
	Error      string            `json:"error,omitempty"`
	Incomplete []string          `json:"incomplete,omitempty"`
	Sections   map[string]string `json:"sections,omitempty"`
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runValidate(cmd *cobra.Command, args []string) error {
	store, err := openFormStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		mu      sync.Mutex
		results = make([]caseResult, 0, len(args))
	)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(validateParallel)
	for _, caseID := range args {
		caseID := caseID
		g.Go(func() error {
			res := validateCase(ctx, store, caseID)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CaseID < results[j].CaseID })

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			switch {
			case r.Error != "":
				fmt.Printf("FAIL  %-16s %s\n", r.CaseID, r.Error)
			case len(r.Incomplete) > 0:
				fmt.Printf("WARN  %-16s incomplete: %v\n", r.CaseID, r.Incomplete)
			default:
				fmt.Printf("OK    %s\n", r.CaseID)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed validation", failed, len(results))
	}
	return nil
}

// validateCase loads one case end to end. Errors are reported in the
// result rather than aborting the batch.
func validateCase(ctx context.Context, persist workflow.Persistence, caseID string) caseResult {
	res := caseResult{CaseID: caseID, Sections: make(map[string]string)}

	c, err := controller.New(controller.Config{
		Schema:  form,
		Persist: persist,
		Role:    stage.RoleReviewer,
		Logger:  logger.Slog(),
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := c.LoadForm(ctx, caseID); err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			res.Error = "case not found"
		} else {
			res.Error = err.Error()
		}
		return res
	}

	wf := c.Workflow()
	for _, s := range wf.Sections() {
		state, err := wf.State(s.Key)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Sections[s.Key] = state.String()
		if !wf.SectionComplete(s) {
			res.Incomplete = append(res.Incomplete, s.Key)
		}
	}

	res.OK = res.Error == "" && (!validateStrict || len(res.Incomplete) == 0)
	return res
}
