// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow tracks per-section completion of a counseling form and
// drives the save/complete state machine.
//
// Per section the machine is:
//
//	Incomplete -> Saved(serverId) -> Locked(form completed)
//
// with a side branch Locked -> Saved when the case re-enters the
// sent-back-for-rework state. A section counts as complete when the server
// has persisted it (serverId set) or, before the first save, when all of
// its required paths hold truthy values.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/CaseFlow/services/counseling/document"
	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

var (
	tracer = otel.Tracer("caseflow.workflow")
	meter  = otel.Meter("caseflow.workflow")
)

// SectionState is the per-section position in the state machine.
type SectionState int

const (
	// StateIncomplete means the section has never been persisted and its
	// required paths are not all filled.
	StateIncomplete SectionState = iota
	// StateSaved means the server has persisted the section.
	StateSaved
	// StateLocked means the aggregate form is complete and the section is
	// read-only until the case is sent back for rework.
	StateLocked
)

func (s SectionState) String() string {
	switch s {
	case StateIncomplete:
		return "incomplete"
	case StateSaved:
		return "saved"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// SaveMode selects the save transition.
type SaveMode int

const (
	// SaveDraft persists the section slice without validation and without
	// advancing the active section.
	SaveDraft SaveMode = iota
	// SaveAndAdvance validates required paths, persists, and advances to
	// the next incomplete section.
	SaveAndAdvance
)

// Section is one logical page of the multi-step form.
type Section struct {
	Key           string
	Order         int
	RequiredPaths []fieldstore.Path

	// ServerID is non-empty once the server has persisted the section.
	ServerID string
}

// Persistence is the external storage collaborator. Implementations return
// errors wrapping the package's sentinel taxonomy (ErrNotFound,
// ErrPermissionDenied, ErrValidationFailed, ErrPersistenceFailed) so the
// engine can pass them through unchanged.
type Persistence interface {
	// LoadDocument fetches the persisted form document for a case.
	LoadDocument(ctx context.Context, caseID string) (*document.Document, error)

	// SaveSection persists one section's field slice and returns the
	// server-assigned section id.
	SaveSection(ctx context.Context, formID, sectionKey string,
		fields map[fieldstore.Path]fieldstore.Value,
		groups map[string][]map[string]fieldstore.Value) (string, error)

	// Complete marks the whole form complete.
	Complete(ctx context.Context, formID string) error
}

// GroupSource supplies a section's repeating-group rows at save time.
// Implemented by the groups manager via the controller.
type GroupSource func(sectionKey string) map[string][]map[string]fieldstore.Value

// Config configures a Workflow.
type Config struct {
	FormID   string
	Sections []Section
	Store    *fieldstore.Store
	Persist  Persistence

	// Groups is optional; when nil, sections save with no group rows.
	Groups GroupSource

	// Complete marks a form already completed at load time.
	Complete bool

	Logger *slog.Logger
}

// Workflow drives section completion and persistence for one form session.
//
// Thread Safety:
//
//	The in-flight save guard is the only synchronized state; everything
//	else assumes single-session ownership like the rest of the engine.
type Workflow struct {
	formID   string
	sections []*Section
	byKey    map[string]*Section
	store    *fieldstore.Store
	persist  Persistence
	groups   GroupSource
	complete bool
	reopened bool
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool

	metricsOnce  sync.Once
	saveCounter  metric.Int64Counter
	saveFailures metric.Int64Counter
}

// New creates a workflow over the given sections, sorted by Order.
func New(cfg Config) (*Workflow, error) {
	if cfg.Store == nil || cfg.Persist == nil || len(cfg.Sections) == 0 {
		return nil, fmt.Errorf("workflow config: %w", ErrUnknownSection)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Workflow{
		formID:   cfg.FormID,
		store:    cfg.Store,
		persist:  cfg.Persist,
		groups:   cfg.Groups,
		complete: cfg.Complete,
		logger:   logger,
		byKey:    make(map[string]*Section, len(cfg.Sections)),
		inflight: make(map[string]bool),
	}
	for i := range cfg.Sections {
		s := cfg.Sections[i]
		w.sections = append(w.sections, &s)
		w.byKey[s.Key] = &s
	}
	sort.Slice(w.sections, func(i, j int) bool {
		return w.sections[i].Order < w.sections[j].Order
	})
	return w, nil
}

func (w *Workflow) initMetrics() {
	w.metricsOnce.Do(func() {
		var err error
		w.saveCounter, err = meter.Int64Counter("counseling_section_saves_total",
			metric.WithDescription("Number of section save attempts"))
		if err != nil {
			w.logger.Warn("metric init failed", slog.String("error", err.Error()))
		}
		w.saveFailures, err = meter.Int64Counter("counseling_section_save_failures_total",
			metric.WithDescription("Number of failed section saves"))
		if err != nil {
			w.logger.Warn("metric init failed", slog.String("error", err.Error()))
		}
	})
}

// Section returns the section with the given key.
func (w *Workflow) Section(key string) (*Section, error) {
	s, ok := w.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, key)
	}
	return s, nil
}

// Sections returns the sections in order.
func (w *Workflow) Sections() []*Section {
	return w.sections
}

// IsComplete reports the aggregate form completion flag.
func (w *Workflow) IsComplete() bool {
	return w.complete
}

// SetReopened records whether the case is in the sent-back-for-rework
// state, which unlocks editing on a completed form.
func (w *Workflow) SetReopened(reopened bool) {
	w.reopened = reopened
}

// Reopened reports the rework state.
func (w *Workflow) Reopened() bool {
	return w.reopened
}

// SectionComplete evaluates the completion predicate: server-persisted, or
// all required paths truthy as the client-side fallback before first save.
func (w *Workflow) SectionComplete(s *Section) bool {
	if s.ServerID != "" {
		return true
	}
	if len(s.RequiredPaths) == 0 {
		return false
	}
	for _, p := range s.RequiredPaths {
		if !w.store.Truthy(p) {
			return false
		}
	}
	return true
}

// State returns the section's position in the state machine.
func (w *Workflow) State(key string) (SectionState, error) {
	s, err := w.Section(key)
	if err != nil {
		return StateIncomplete, err
	}
	if w.complete && !w.reopened {
		return StateLocked, nil
	}
	if s.ServerID != "" {
		return StateSaved, nil
	}
	return StateIncomplete, nil
}

// NextIncomplete returns the first section (by order) whose completion
// predicate is false, defaulting to the last section when all complete.
func (w *Workflow) NextIncomplete() *Section {
	for _, s := range w.sections {
		if !w.SectionComplete(s) {
			return s
		}
	}
	return w.sections[len(w.sections)-1]
}

// ActiveOnLoad returns the section shown when the form opens: the first
// incomplete one, or the first section (read-only) when the form is
// already complete.
func (w *Workflow) ActiveOnLoad() *Section {
	if w.complete {
		return w.sections[0]
	}
	return w.NextIncomplete()
}

// Save runs the saveDraft or saveAndAdvance transition for a section.
//
// Description:
//
//	The section's field slice (and group rows, if a source is wired) is
//	read from the store and handed to the persistence collaborator; the
//	store itself is never mutated, so a failed save needs no rollback.
//	One save may be in flight per section; a concurrent call returns
//	ErrBusy. SaveAndAdvance validates required paths first and returns
//	the next active section on success.
//
// Outputs:
//
//	*Section - The next active section (SaveAndAdvance), or nil for drafts.
//	error - ErrBusy, ErrValidationFailed (as *ValidationError), ErrFormLocked,
//	        or the persistence collaborator's tagged error passed through.
func (w *Workflow) Save(ctx context.Context, key string, mode SaveMode) (*Section, error) {
	w.initMetrics()
	ctx, span := tracer.Start(ctx, "workflow.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("section", key),
		attribute.String("mode", map[SaveMode]string{SaveDraft: "draft", SaveAndAdvance: "advance"}[mode]),
	)

	s, err := w.Section(key)
	if err != nil {
		return nil, err
	}
	if w.complete && !w.reopened {
		return nil, fmt.Errorf("section %s: %w", key, ErrFormLocked)
	}

	if mode == SaveAndAdvance {
		if missing := w.missingPaths(s); len(missing) > 0 {
			return nil, &ValidationError{SectionKey: key, Missing: missing}
		}
	}

	if !w.acquire(key) {
		return nil, fmt.Errorf("section %s: %w", key, ErrBusy)
	}
	defer w.release(key)

	if w.saveCounter != nil {
		w.saveCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("section", key)))
	}

	fields := w.store.Snapshot(fieldstore.Path(key + "."))
	var groupRows map[string][]map[string]fieldstore.Value
	if w.groups != nil {
		groupRows = w.groups(key)
	}

	serverID, err := w.persist.SaveSection(ctx, w.formID, key, fields, groupRows)
	if err != nil {
		if w.saveFailures != nil {
			w.saveFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("section", key)))
		}
		span.SetStatus(codes.Error, err.Error())
		w.logger.Warn("section save failed",
			slog.String("section", key), slog.String("error", err.Error()))
		return nil, passthrough(key, err)
	}

	s.ServerID = serverID
	w.logger.Info("section saved",
		slog.String("section", key),
		slog.String("server_id", serverID),
		slog.Bool("advance", mode == SaveAndAdvance))

	if mode == SaveAndAdvance {
		return w.NextIncomplete(), nil
	}
	return nil, nil
}

// Complete runs the complete transition: every section's completion
// predicate must hold; the form is then locked except via the rework path.
func (w *Workflow) Complete(ctx context.Context) error {
	w.initMetrics()
	ctx, span := tracer.Start(ctx, "workflow.Complete")
	defer span.End()

	if w.complete && !w.reopened {
		return ErrFormLocked
	}
	for _, s := range w.sections {
		if !w.SectionComplete(s) {
			return &ValidationError{SectionKey: s.Key, Missing: w.missingPaths(s)}
		}
	}

	if err := w.persist.Complete(ctx, w.formID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return passthrough("complete", err)
	}

	w.complete = true
	w.reopened = false
	w.logger.Info("form completed", slog.String("form_id", w.formID))
	return nil
}

func (w *Workflow) missingPaths(s *Section) []fieldstore.Path {
	var missing []fieldstore.Path
	for _, p := range s.RequiredPaths {
		if !w.store.Truthy(p) {
			missing = append(missing, p)
		}
	}
	// Server-persisted sections count as complete even with empty fields.
	if s.ServerID != "" {
		return nil
	}
	return missing
}

func (w *Workflow) acquire(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[key] {
		return false
	}
	w.inflight[key] = true
	return true
}

func (w *Workflow) release(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, key)
}

// passthrough keeps the collaborator's tagged error intact, only wrapping
// untagged failures as ErrPersistenceFailed.
func passthrough(key string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrPersistenceFailed):
		return err
	default:
		return fmt.Errorf("%s: %w: %v", key, ErrPersistenceFailed, err)
	}
}
