// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fieldstore holds the mutable state of one counseling form.
//
// The store maps dotted paths (e.g. "family_details.income_expense.income.
// business_monthly") to scalar values. Every write is propagated through the
// bound derivation graph before Set returns, so a caller reading the store
// after a write always observes a consistent derived state.
//
// Thread Safety:
//
//	Store is NOT safe for concurrent use. One store is owned by exactly one
//	form session; all mutation happens on the session's goroutine.
package fieldstore

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
)

// epsilon is the tolerance used when comparing numeric values.
// Derivation propagation stops on value equality; without a tolerance,
// floating-point jitter could keep a rule pair oscillating forever.
const epsilon = 1e-9

// Path is a dotted identifier for one leaf field of the form.
type Path string

// Section returns the first segment of the path, which is the key of the
// section the field belongs to.
func (p Path) Section() string {
	s := string(p)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// Value is a scalar form value: float64, string, bool, or nil.
// Collections never live in the store; repeating rows are managed
// by the groups package.
type Value any

// Kind declares the type of a field, which determines its default.
type Kind int

const (
	// KindString defaults to "".
	KindString Kind = iota
	// KindNumber defaults to 0 unless the field declares a null default.
	KindNumber
	// KindBool defaults to false.
	KindBool
)

// FieldDef describes one field of the form schema.
type FieldDef struct {
	Path Path
	Kind Kind

	// NullDefault makes an unset numeric field read as nil instead of 0.
	// Used for fields where "never entered" must stay distinguishable
	// from an explicit zero.
	NullDefault bool
}

// Default returns the value an unset field of this definition reads as.
func (d FieldDef) Default() Value {
	switch d.Kind {
	case KindNumber:
		if d.NullDefault {
			return nil
		}
		return float64(0)
	case KindBool:
		return false
	default:
		return ""
	}
}

// Listener receives change notifications for a path it subscribed to.
type Listener func(path Path, value Value)

// Propagator recomputes derived fields after a write. Implemented by the
// derive package; the store calls it synchronously inside Set.
type Propagator interface {
	Recompute(changed Path)
}

type subscription struct {
	id     int
	prefix Path
	fn     Listener
}

// Store is the mutable form state for one editing session.
type Store struct {
	values     map[Path]Value
	defs       map[Path]FieldDef
	subs       []subscription
	nextSubID  int
	propagator Propagator
	logger     *slog.Logger
}

// New creates a store seeded with the schema's field definitions.
//
// Inputs:
//
//	defs - Field definitions supplying per-field defaults. May be empty;
//	       fields without a definition default by KindString rules.
//	logger - Logger for diagnostics. If nil, uses slog.Default().
func New(defs []FieldDef, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		values: make(map[Path]Value),
		defs:   make(map[Path]FieldDef, len(defs)),
		logger: logger,
	}
	for _, d := range defs {
		s.defs[d.Path] = d
	}
	return s
}

// Bind attaches the derivation propagator. Must be called before the first
// Set; writes before binding are stored without derived recomputation.
func (s *Store) Bind(p Propagator) {
	s.propagator = p
}

// Get returns the value at path, or the field's declared default when unset.
func (s *Store) Get(path Path) Value {
	if v, ok := s.values[path]; ok {
		return v
	}
	if d, ok := s.defs[path]; ok {
		return d.Default()
	}
	return ""
}

// Number returns the value at path coerced to float64.
// Missing or unparseable values read as 0, never as an error.
func (s *Store) Number(path Path) float64 {
	return Num(s.Get(path))
}

// Set stores a value and synchronously propagates derived fields.
//
// Description:
//
//	If the new value equals the current one (numeric comparison uses a 1e-9
//	tolerance) the write is a no-op. Otherwise subscribers are notified and
//	the bound propagator recomputes every dependent field before Set returns.
func (s *Store) Set(path Path, value Value) {
	if !s.apply(path, value) {
		return
	}
	if s.propagator != nil {
		s.propagator.Recompute(path)
	}
}

// SetDerived stores a rule output without re-entering the propagator.
// The derivation graph drives transitive recomputation itself; going back
// through Set would recurse. Subscribers are still notified.
//
// Outputs:
//
//	bool - True if the stored value actually changed.
func (s *Store) SetDerived(path Path, value Value) bool {
	return s.apply(path, value)
}

func (s *Store) apply(path Path, value Value) bool {
	if Equal(s.Get(path), value) {
		return false
	}
	s.values[path] = value
	s.notify(path, value)
	return true
}

// Subscribe registers a listener for a path or path prefix. A prefix of ""
// observes every write. Returns a function that removes the subscription.
func (s *Store) Subscribe(prefix Path, fn Listener) func() {
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, prefix: prefix, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(path Path, value Value) {
	for _, sub := range s.subs {
		if sub.prefix == "" || strings.HasPrefix(string(path), string(sub.prefix)) {
			sub.fn(path, value)
		}
	}
}

// Snapshot returns a copy of every set value under the given prefix,
// in deterministic path order. Used to slice out one section's data
// for persistence.
func (s *Store) Snapshot(prefix Path) map[Path]Value {
	out := make(map[Path]Value)
	for p, v := range s.values {
		if prefix == "" || strings.HasPrefix(string(p), string(prefix)) {
			out[p] = v
		}
	}
	return out
}

// Paths returns every path that currently holds a value, sorted.
func (s *Store) Paths() []Path {
	out := make([]Path, 0, len(s.values))
	for p := range s.values {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Truthy reports whether the value at path counts as "filled in" for
// section-completion checks: a non-empty string, a nonzero number, or true.
func (s *Store) Truthy(path Path) bool {
	switch v := s.Get(path).(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	default:
		return math.Abs(Num(v)) > epsilon
	}
}

// Num coerces a scalar value to float64. Strings are parsed; anything
// missing or unparseable is 0.
func Num(v Value) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Equal compares two scalar values, using the propagation tolerance for
// numerics so floating-point jitter never counts as a change.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumeric(a) && isNumeric(b) {
		return math.Abs(Num(a)-Num(b)) <= epsilon
	}
	return a == b
}

func isNumeric(v Value) bool {
	switch v.(type) {
	case float64, float32, int, int64:
		return true
	default:
		return false
	}
}
