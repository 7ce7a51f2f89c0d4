// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema loads the counseling-form schema: sections, field
// defaults, derivation wiring, and repeating-group definitions.
//
// The default schema is embedded into the binary; an override file of the
// same shape can be supplied for deployments. The schema expands into the
// concrete rule set for either schema version, so v1 documents keep the
// cash-surplus arithmetic the server persisted for them.
//
// Thread Safety:
//
//	A loaded *Form is immutable and safe for concurrent use.
package schema

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/CaseFlow/pkg/validation"
	"github.com/AleutianAI/CaseFlow/services/counseling/derive"
	"github.com/AleutianAI/CaseFlow/services/counseling/document"
	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
	"github.com/AleutianAI/CaseFlow/services/counseling/groups"
	"github.com/AleutianAI/CaseFlow/services/counseling/workflow"
)

// MaxSchemaFileSize caps override schema files (1MB).
const MaxSchemaFileSize = 1024 * 1024

//go:embed counseling_form.yaml
var defaultSchemaYAML []byte

var schemaLoads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "caseflow_schema_loads_total",
		Help: "Schema load attempts by outcome.",
	},
	[]string{"outcome"},
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SectionDef is one section entry of the schema file.
type SectionDef struct {
	Key      string   `yaml:"key" validate:"required"`
	Order    int      `yaml:"order" validate:"gt=0"`
	Title    string   `yaml:"title" validate:"required"`
	Required []string `yaml:"required"`
}

// FieldEntry is one field default declaration.
type FieldEntry struct {
	Path        string `yaml:"path" validate:"required"`
	Kind        string `yaml:"kind" validate:"oneof=string number bool"`
	NullDefault bool   `yaml:"null_default"`
}

// TotalDef wires one sum rule.
type TotalDef struct {
	ID     string   `yaml:"id" validate:"required"`
	Output string   `yaml:"output" validate:"required"`
	Inputs []string `yaml:"inputs" validate:"min=1"`
}

// SurplusDef wires one surplus/deficit rule pair.
type SurplusDef struct {
	ID      string `yaml:"id" validate:"required"`
	Income  string `yaml:"income" validate:"required"`
	Expense string `yaml:"expense" validate:"required"`
	Surplus string `yaml:"surplus" validate:"required"`
	Deficit string `yaml:"deficit" validate:"required"`
}

// GrowthDef wires the multi-year projection rules.
type GrowthDef struct {
	Base              string   `yaml:"base" validate:"required"`
	Years             []string `yaml:"years" validate:"min=1"`
	Revenue           string   `yaml:"revenue" validate:"required"`
	ExpenseCategories []string `yaml:"expense_categories" validate:"min=1"`
	ExpenseTotal      string   `yaml:"expense_total" validate:"required"`
	Profit            string   `yaml:"profit" validate:"required"`
	CashSurplus       string   `yaml:"cash_surplus" validate:"required"`
	QardanRepayment   string   `yaml:"qardan_repayment" validate:"required"`
	HouseholdExpense  string   `yaml:"household_expense" validate:"required"`
	OtherIncome       string   `yaml:"other_income" validate:"required"`
}

// GroupDef is one repeating-group declaration.
type GroupDef struct {
	Name          string `yaml:"name" validate:"required"`
	Section       string `yaml:"section" validate:"required"`
	FixedRowCount int    `yaml:"fixed_row_count" validate:"gte=0"`
	NamePrefix    string `yaml:"name_prefix"`
}

// Form is the loaded, validated schema.
type Form struct {
	Version  int          `yaml:"version" validate:"oneof=1 2"`
	Sections []SectionDef `yaml:"sections" validate:"min=1,dive"`
	Fields   []FieldEntry `yaml:"fields" validate:"dive"`
	Pairs    []string     `yaml:"pairs"`
	Totals   []TotalDef   `yaml:"totals" validate:"dive"`
	Surplus  []SurplusDef `yaml:"surplus" validate:"dive"`
	Growth   *GrowthDef   `yaml:"growth"`
	Groups   []GroupDef   `yaml:"groups" validate:"dive"`
}

// Load parses and validates the embedded default schema.
func Load() (*Form, error) {
	return parse(defaultSchemaYAML)
}

// LoadFile parses and validates an override schema file.
func LoadFile(path string) (*Form, error) {
	info, err := os.Stat(path)
	if err != nil {
		schemaLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("stat schema file: %w", err)
	}
	if info.Size() > MaxSchemaFileSize {
		schemaLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("schema file %s exceeds %d bytes", path, MaxSchemaFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		schemaLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Form, error) {
	var f Form
	if err := yaml.Unmarshal(data, &f); err != nil {
		schemaLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		schemaLoads.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("schema shape: %w", err)
	}

	// Every declared path must parse as a well-formed form path; a typo
	// here would silently detach a rule from its fields.
	for _, s := range f.Sections {
		if err := validation.ValidateSectionKey(s.Key); err != nil {
			schemaLoads.WithLabelValues("invalid").Inc()
			return nil, err
		}
		for _, p := range s.Required {
			if err := validation.ValidateFormPath(p); err != nil {
				schemaLoads.WithLabelValues("invalid").Inc()
				return nil, err
			}
		}
	}
	for _, fd := range f.Fields {
		if err := validation.ValidateFormPath(fd.Path); err != nil {
			schemaLoads.WithLabelValues("invalid").Inc()
			return nil, err
		}
	}
	for _, base := range f.Pairs {
		if err := validation.ValidateFormPath(base); err != nil {
			schemaLoads.WithLabelValues("invalid").Inc()
			return nil, err
		}
	}

	schemaLoads.WithLabelValues("ok").Inc()
	return &f, nil
}

// FieldDefs expands the schema into field-store definitions. Monthly/yearly
// pair members default to numeric 0.
func (f *Form) FieldDefs() []fieldstore.FieldDef {
	var defs []fieldstore.FieldDef
	for _, fe := range f.Fields {
		var kind fieldstore.Kind
		switch fe.Kind {
		case "number":
			kind = fieldstore.KindNumber
		case "bool":
			kind = fieldstore.KindBool
		default:
			kind = fieldstore.KindString
		}
		defs = append(defs, fieldstore.FieldDef{
			Path:        fieldstore.Path(fe.Path),
			Kind:        kind,
			NullDefault: fe.NullDefault,
		})
	}
	for _, base := range f.Pairs {
		defs = append(defs,
			fieldstore.FieldDef{Path: fieldstore.Path(base + "_monthly"), Kind: fieldstore.KindNumber},
			fieldstore.FieldDef{Path: fieldstore.Path(base + "_yearly"), Kind: fieldstore.KindNumber},
		)
	}
	return defs
}

// WorkflowSections converts the schema's sections for the workflow.
func (f *Form) WorkflowSections() []workflow.Section {
	out := make([]workflow.Section, 0, len(f.Sections))
	for _, s := range f.Sections {
		paths := make([]fieldstore.Path, len(s.Required))
		for i, p := range s.Required {
			paths[i] = fieldstore.Path(p)
		}
		out = append(out, workflow.Section{
			Key:           s.Key,
			Order:         s.Order,
			RequiredPaths: paths,
		})
	}
	return out
}

// GroupDefs converts the schema's repeating groups for the manager.
func (f *Form) GroupDefs() []groups.Definition {
	out := make([]groups.Definition, 0, len(f.Groups))
	for _, g := range f.Groups {
		out = append(out, groups.Definition{
			Name:          g.Name,
			Section:       g.Section,
			FixedRowCount: g.FixedRowCount,
			NamePrefix:    g.NamePrefix,
		})
	}
	return out
}

// Rules expands the schema into the concrete derivation rule set for a
// document's schema version. The only version-dependent piece is the
// other-income term of the cash-surplus chain, which v1 omits.
func (f *Form) Rules(version int) []derive.Rule {
	var rules []derive.Rule

	for _, base := range f.Pairs {
		rules = append(rules, derive.MonthlyYearlyPair(fieldstore.Path(base))...)
	}
	for _, td := range f.Totals {
		inputs := make([]fieldstore.Path, len(td.Inputs))
		for i, p := range td.Inputs {
			inputs[i] = fieldstore.Path(p)
		}
		rules = append(rules, derive.Sum(td.ID, fieldstore.Path(td.Output), inputs...))
	}
	for _, sd := range f.Surplus {
		rules = append(rules, derive.SurplusDeficit(sd.ID,
			fieldstore.Path(sd.Income), fieldstore.Path(sd.Expense),
			fieldstore.Path(sd.Surplus), fieldstore.Path(sd.Deficit))...)
	}

	if g := f.Growth; g != nil {
		for _, year := range g.Years {
			col := g.Base + "." + year + "."
			cats := make([]fieldstore.Path, len(g.ExpenseCategories))
			for i, c := range g.ExpenseCategories {
				cats[i] = fieldstore.Path(col + c)
			}
			total := fieldstore.Path(col + g.ExpenseTotal)
			profit := fieldstore.Path(col + g.Profit)

			rules = append(rules,
				derive.Sum("growth_expenses:"+year, total, cats...),
				derive.Difference("growth_profit:"+year, profit,
					fieldstore.Path(col+g.Revenue), total))

			other := fieldstore.Path(col + g.OtherIncome)
			if version == document.SchemaV1 {
				other = ""
			}
			rules = append(rules, derive.CashSurplus("growth_cash:"+year,
				fieldstore.Path(col+g.CashSurplus), profit,
				fieldstore.Path(col+g.QardanRepayment),
				fieldstore.Path(col+g.HouseholdExpense), other))
		}
	}

	return rules
}
