// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package derive maintains the derived numeric fields of a counseling form.
//
// Rules are pure functions of other fields (monthly/yearly conversions,
// income and expense totals, surplus/deficit, profit, cash surplus).
// The rule set is validated for acyclicity when the graph is built; at
// runtime, a field write is propagated transitively until no value changes.
//
// Bidirectional monthly/yearly sync is modeled as two directed rules that
// declare each other as Pair. Paired rules are exempt from the build-time
// cycle check, and a write produced by one never triggers the other, which
// is what breaks the x12 / /12 feedback loop.
package derive

import (
	"log/slog"

	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

// ComputeFunc computes a rule's output from its resolved inputs.
// Inputs arrive in the order declared on the rule; missing fields have
// already been coerced per fieldstore semantics.
type ComputeFunc func(inputs []fieldstore.Value) fieldstore.Value

// Rule is one derived-field definition.
type Rule struct {
	// ID uniquely identifies the rule within the graph.
	ID string

	// Inputs are the paths the rule reads. The output must not be among them.
	Inputs []fieldstore.Path

	// Output is the path the rule writes.
	Output fieldstore.Path

	// Compute produces the output value. Must be pure.
	Compute ComputeFunc

	// Pair names the opposite-direction rule of a bidirectional sync
	// (monthly<->yearly). Empty for ordinary rules.
	Pair string
}

// Builder constructs a validated Graph.
//
// Description:
//
//	Builder accumulates rules and validates the set as a whole in Build:
//	duplicate ids, self-cycles, dangling Pair references, and dependency
//	cycles (ignoring declared pairs) are all rejected there.
//
// Thread Safety:
//
//	Builder is NOT safe for concurrent use. Build the graph in a single
//	goroutine during form construction.
//
// Example:
//
//	graph, err := derive.NewBuilder("counseling-form").
//	    AddRules(derive.MonthlyYearlyPair("family_details.income_expense.income.business")).
//	    AddRule(derive.Sum("total_income", totalPath, componentPaths...)).
//	    Build(store, logger)
type Builder struct {
	name   string
	rules  map[string]Rule
	order  []string
	errors []error
}

// NewBuilder creates a graph builder.
//
// Inputs:
//
//	name - Name for the graph, used in logging.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		rules: make(map[string]Rule),
	}
}

// AddRule adds one rule. Per-rule validation errors are recorded and
// surfaced by Build.
func (b *Builder) AddRule(r Rule) *Builder {
	if r.ID == "" || r.Output == "" || r.Compute == nil {
		b.errors = append(b.errors, &RuleError{RuleID: r.ID, Err: ErrInvalidRule})
		return b
	}
	if _, exists := b.rules[r.ID]; exists {
		b.errors = append(b.errors, &RuleError{RuleID: r.ID, Err: ErrDuplicateRule})
		return b
	}
	for _, in := range r.Inputs {
		if in == r.Output {
			b.errors = append(b.errors, &RuleError{RuleID: r.ID, Err: ErrSelfCycle})
			return b
		}
	}
	b.rules[r.ID] = r
	b.order = append(b.order, r.ID)
	return b
}

// AddRules adds a slice of rules, typically a generated rule family.
func (b *Builder) AddRules(rules []Rule) *Builder {
	for _, r := range rules {
		b.AddRule(r)
	}
	return b
}

// Build validates the rule set and constructs the graph.
//
// Inputs:
//
//	store - The field store the graph reads and writes. Must not be nil.
//	logger - Logger for propagation diagnostics. If nil, uses slog.Default().
//
// Outputs:
//
//	*Graph - The validated graph, already bound to the store.
//	error - Non-nil if any rule is invalid or the set contains a cycle.
func (b *Builder) Build(store *fieldstore.Store, logger *slog.Logger) (*Graph, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	if store == nil {
		return nil, ErrInvalidRule
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Validate pair references point at registered rules.
	for _, id := range b.order {
		r := b.rules[id]
		if r.Pair != "" {
			if _, ok := b.rules[r.Pair]; !ok {
				return nil, &RuleError{RuleID: id, Err: ErrUnknownPair}
			}
		}
	}

	// Rule R1 feeds R2 when R1's output is one of R2's inputs. Declared
	// pairs are excluded: they are the one sanctioned loop, broken at
	// runtime by origin tagging.
	byInput := make(map[fieldstore.Path][]string)
	for _, id := range b.order {
		r := b.rules[id]
		for _, in := range r.Inputs {
			byInput[in] = append(byInput[in], id)
		}
	}
	adj := make(map[string][]string, len(b.rules))
	for _, id := range b.order {
		r := b.rules[id]
		for _, next := range byInput[r.Output] {
			if next == id || next == r.Pair {
				continue
			}
			adj[id] = append(adj[id], next)
		}
	}

	if err := detectCycles(b.order, adj); err != nil {
		return nil, err
	}

	g := &Graph{
		name:    b.name,
		rules:   b.rules,
		byInput: byInput,
		store:   store,
		logger:  logger,
	}
	store.Bind(g)
	return g, nil
}

// detectCycles runs DFS over the rule dependency edges and reports the
// first cycle found.
func detectCycles(order []string, adj map[string][]string) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	var dfs func(id string) error
	dfs = func(id string) error {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, next := range adj[id] {
			if !visited[next] {
				if err := dfs(next); err != nil {
					return err
				}
			} else if recStack[next] {
				cycleStart := -1
				for i, n := range path {
					if n == next {
						cycleStart = i
						break
					}
				}
				cyclePath := append(path[cycleStart:], next)
				return NewCycleError(cyclePath)
			}
		}

		path = path[:len(path)-1]
		recStack[id] = false
		return nil
	}

	for _, id := range order {
		if !visited[id] {
			if err := dfs(id); err != nil {
				return err
			}
		}
	}
	return nil
}
