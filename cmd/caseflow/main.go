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

	"github.com/AleutianAI/CaseFlow/pkg/logging"
	"github.com/AleutianAI/CaseFlow/services/counseling/schema"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	dbPath     string // BadgerDB directory
	schemaPath string // Optional schema override file
	logLevel   string // debug|info|warn|error
	logDir     string // Optional log file directory
	jsonOutput bool   // Machine-readable output

	logger *logging.Logger
	form   *schema.Form
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "caseflow",
	Short: "A CLI to inspect and manage counseling form documents",
	Long: `CaseFlow manages multi-section counseling form documents: stored
cases, their derived financial fields, and their section workflow state.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(),
		"BadgerDB directory holding form documents")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "",
		"Override the embedded form schema with a YAML file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Directory for JSON log files (disabled when empty)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Emit machine-readable JSON on stdout")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.Config{
			Level:   logging.ParseLevel(logLevel),
			LogDir:  logDir,
			Service: "caseflow",
		})
		if err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}

		if schemaPath != "" {
			form, err = schema.LoadFile(schemaPath)
		} else {
			form, err = schema.Load()
		}
		if err != nil {
			return fmt.Errorf("load form schema: %w", err)
		}
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	}

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(computeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(importCmd)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".caseflow/db"
	}
	return home + "/.caseflow/db"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
