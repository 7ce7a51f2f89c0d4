// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package derive

import (
	"log/slog"

	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

// Graph is the validated derivation graph for one form session.
//
// Thread Safety:
//
//	Graph is NOT safe for concurrent use. It is owned by the same session
//	goroutine as its field store; propagation runs synchronously inside
//	fieldstore.Store.Set.
type Graph struct {
	name    string
	rules   map[string]Rule
	byInput map[fieldstore.Path][]string
	store   *fieldstore.Store
	logger  *slog.Logger
}

// pending is one queued propagation step: a path whose value changed and
// the id of the rule that produced the write ("" for a user write).
type pending struct {
	path   fieldstore.Path
	origin string
}

// Recompute propagates a field change to every dependent rule, repeating
// transitively until no value changes.
//
// Description:
//
//	Stop condition is value equality (with the store's numeric tolerance),
//	not a bounded iteration count. Each write carries its origin rule id;
//	a rule never fires on a write produced by itself or by its declared
//	pair, which prevents the monthly<->yearly feedback loop.
func (g *Graph) Recompute(changed fieldstore.Path) {
	queue := []pending{{path: changed}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		for _, id := range g.byInput[item.path] {
			r := g.rules[id]
			if item.origin != "" {
				if id == item.origin || r.Pair == item.origin {
					continue
				}
				if origin, ok := g.rules[item.origin]; ok && origin.Pair == id {
					continue
				}
			}

			inputs := make([]fieldstore.Value, len(r.Inputs))
			for i, in := range r.Inputs {
				inputs[i] = g.store.Get(in)
			}
			out := r.Compute(inputs)

			if g.store.SetDerived(r.Output, out) {
				g.logger.Debug("derived field updated",
					slog.String("graph", g.name),
					slog.String("rule", id),
					slog.String("output", string(r.Output)))
				queue = append(queue, pending{path: r.Output, origin: id})
			}
		}
	}
}

// Settle propagates every currently held value, in path order. Used after
// document hydration so derived fields agree with the loaded inputs.
//
// Description:
//
//	Only hydrated paths originate propagation. When a document carries one
//	side of a monthly/yearly pair, the loaded side drives the conversion;
//	the unset side never fires a rule of its own, so it cannot overwrite
//	the loaded value with its 0 default.
func (g *Graph) Settle() {
	for _, p := range g.store.Paths() {
		g.Recompute(p)
	}
}

// Rules returns the number of registered rules.
func (g *Graph) Rules() int {
	return len(g.rules)
}
