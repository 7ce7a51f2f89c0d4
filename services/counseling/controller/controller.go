// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package controller composes the counseling-form engine into the
// operations a screen needs: load a form, mutate fields and group rows,
// save a section as draft or commit, complete the form.
//
// Every mutating operation confirms the stage permission for the target
// section first and fails with ErrPermissionDenied otherwise; the engine's
// in-memory state is untouched on any failure path.
package controller

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/CaseFlow/pkg/validation"
	"github.com/AleutianAI/CaseFlow/services/counseling/derive"
	"github.com/AleutianAI/CaseFlow/services/counseling/document"
	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
	"github.com/AleutianAI/CaseFlow/services/counseling/groups"
	"github.com/AleutianAI/CaseFlow/services/counseling/schema"
	"github.com/AleutianAI/CaseFlow/services/counseling/stage"
	"github.com/AleutianAI/CaseFlow/services/counseling/workflow"
)

var tracer = otel.Tracer("caseflow.controller")

// Config wires the controller's collaborators.
type Config struct {
	Schema  *schema.Form
	Persist workflow.Persistence

	// Actor and case context for permission resolution.
	Role      stage.Role
	CaseState stage.CaseState

	// WorkflowPerms and FallbackPerms are the two permission sources,
	// keyed by section key. Either may be nil.
	WorkflowPerms map[string]stage.Flags
	FallbackPerms map[string]stage.Flags

	Logger *slog.Logger
}

// Controller owns one form-editing session.
//
// Thread Safety:
//
//	NOT safe for concurrent use; one controller per session, like the
//	components it composes.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	doc    *document.Document
	store  *fieldstore.Store
	graph  *derive.Graph
	groups *groups.Manager
	wf     *workflow.Workflow
}

// New creates a controller. LoadForm must be called before any other
// operation.
func New(cfg Config) (*Controller, error) {
	if cfg.Schema == nil || cfg.Persist == nil {
		return nil, fmt.Errorf("controller config: schema and persistence are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{cfg: cfg, logger: cfg.Logger}, nil
}

// LoadForm fetches and hydrates the persisted document for a case.
//
// Description:
//
//	Builds the field store from the schema's defaults, compiles the
//	derivation graph for the document's schema version, hydrates fields
//	and repeating groups, then settles derived state so the first render
//	is already consistent. Collaborator errors pass through tagged.
func (c *Controller) LoadForm(ctx context.Context, caseID string) error {
	ctx, span := tracer.Start(ctx, "controller.LoadForm")
	defer span.End()

	if err := validation.ValidateCaseID(caseID); err != nil {
		return err
	}

	doc, err := c.cfg.Persist.LoadDocument(ctx, caseID)
	if err != nil {
		return err
	}

	store := fieldstore.New(c.cfg.Schema.FieldDefs(), c.logger)
	graph, err := derive.NewBuilder("counseling:"+caseID).
		AddRules(c.cfg.Schema.Rules(doc.SchemaVersion)).
		Build(store, c.logger)
	if err != nil {
		return fmt.Errorf("compile derivation rules: %w", err)
	}

	// Hydrate without propagation, then settle once: derived fields end
	// up agreeing with the loaded inputs regardless of what was persisted.
	for _, sec := range doc.Sections {
		for p, v := range sec.Fields {
			store.SetDerived(p, v)
		}
	}
	graph.Settle()

	mgr := groups.NewManager(c.logger)
	for _, def := range c.cfg.Schema.GroupDefs() {
		var seed []map[string]fieldstore.Value
		if sec, ok := doc.Sections[def.Section]; ok {
			seed = sec.Groups[def.Name]
		}
		if err := mgr.Register(def, seed); err != nil {
			return fmt.Errorf("register group %s: %w", def.Name, err)
		}
	}

	sections := c.cfg.Schema.WorkflowSections()
	for i := range sections {
		if sec, ok := doc.Sections[sections[i].Key]; ok {
			sections[i].ServerID = sec.ServerID
		}
	}

	formID := doc.FormID
	if formID == "" {
		formID = doc.CaseID
	}
	wf, err := workflow.New(workflow.Config{
		FormID:   formID,
		Sections: sections,
		Store:    store,
		Persist:  c.cfg.Persist,
		Groups:   mgr.SectionRows,
		Complete: doc.IsComplete,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	wf.SetReopened(c.cfg.CaseState == stage.StateSentBack)

	c.doc = doc
	c.store = store
	c.graph = graph
	c.groups = mgr
	c.wf = wf

	c.logger.Info("form loaded",
		slog.String("case_id", caseID),
		slog.Int("schema_version", doc.SchemaVersion),
		slog.Bool("complete", doc.IsComplete),
		slog.String("active_section", wf.ActiveOnLoad().Key))
	return nil
}

// SetCaseState updates the case state mid-session (e.g. sent back for
// rework), which re-resolves the completion lock.
func (c *Controller) SetCaseState(state stage.CaseState) {
	c.cfg.CaseState = state
	if c.wf != nil {
		c.wf.SetReopened(state == stage.StateSentBack)
	}
}

// Permission resolves the current actor's capability for a section.
func (c *Controller) Permission(sectionKey string) stage.Permission {
	return stage.Resolve(sectionKey, stage.Context{
		Role:         c.cfg.Role,
		CaseState:    c.cfg.CaseState,
		FormComplete: c.wf != nil && c.wf.IsComplete(),
		Workflow:     c.cfg.WorkflowPerms,
		Fallback:     c.cfg.FallbackPerms,
		Logger:       c.logger,
	})
}

// SetField writes one field after confirming edit permission for its
// section. The write propagates derived fields synchronously.
func (c *Controller) SetField(path fieldstore.Path, value fieldstore.Value) error {
	if err := c.requireLoaded(); err != nil {
		return err
	}
	if !c.Permission(path.Section()).CanEdit {
		return fmt.Errorf("field %s: %w", path, workflow.ErrPermissionDenied)
	}
	c.store.Set(path, value)
	return nil
}

// Field reads one field.
func (c *Controller) Field(path fieldstore.Path) fieldstore.Value {
	if c.store == nil {
		return nil
	}
	return c.store.Get(path)
}

// AddGroupRow appends a row to a repeating group, permission-checked
// against the group's section.
func (c *Controller) AddGroupRow(group string, initial map[string]fieldstore.Value) (groups.Row, error) {
	if err := c.requireLoaded(); err != nil {
		return groups.Row{}, err
	}
	if err := c.requireGroupEdit(group); err != nil {
		return groups.Row{}, err
	}
	return c.groups.AddRow(group, initial)
}

// RemoveGroupRow removes a row; refused removals (fixed rows) stay silent
// no-ops, matching the manager's contract.
func (c *Controller) RemoveGroupRow(group, rowID string) error {
	if err := c.requireLoaded(); err != nil {
		return err
	}
	if err := c.requireGroupEdit(group); err != nil {
		return err
	}
	c.groups.RemoveRow(group, rowID)
	return nil
}

// UpdateGroupRow updates one cell of one row.
func (c *Controller) UpdateGroupRow(group, rowID, field string, value fieldstore.Value) error {
	if err := c.requireLoaded(); err != nil {
		return err
	}
	if err := c.requireGroupEdit(group); err != nil {
		return err
	}
	return c.groups.UpdateRow(group, rowID, field, value)
}

// GroupRows returns copies of a group's rows.
func (c *Controller) GroupRows(group string) []groups.Row {
	if c.groups == nil {
		return nil
	}
	return c.groups.Rows(group)
}

// GroupTotal sums one field across a group's rows (table-footer totals).
func (c *Controller) GroupTotal(group, field string) float64 {
	if c.groups == nil {
		return 0
	}
	return c.groups.Aggregate(group, field, groups.SumFunc)
}

// SaveSection persists one section after confirming edit permission.
//
// Outputs:
//
//	*workflow.Section - Next active section for SaveAndAdvance, else nil.
//	error - ErrPermissionDenied, ErrValidationFailed, ErrBusy, or the
//	        persistence collaborator's tagged error passed through.
func (c *Controller) SaveSection(ctx context.Context, key string, mode workflow.SaveMode) (*workflow.Section, error) {
	if err := c.requireLoaded(); err != nil {
		return nil, err
	}
	if _, err := c.wf.Section(key); err != nil {
		return nil, err
	}
	if !c.Permission(key).CanEdit {
		return nil, fmt.Errorf("section %s: %w", key, workflow.ErrPermissionDenied)
	}
	return c.wf.Save(ctx, key, mode)
}

// CompleteForm marks the whole form complete. The actor must hold edit
// permission on every section; completion writes the form-level flag.
func (c *Controller) CompleteForm(ctx context.Context) error {
	if err := c.requireLoaded(); err != nil {
		return err
	}
	for _, s := range c.wf.Sections() {
		if !c.Permission(s.Key).CanEdit {
			return fmt.Errorf("section %s: %w", s.Key, workflow.ErrPermissionDenied)
		}
	}
	if err := c.wf.Complete(ctx); err != nil {
		return err
	}
	c.store.Set("is_complete", true)
	return nil
}

// ActiveSection returns the section the UI should show now.
func (c *Controller) ActiveSection() *workflow.Section {
	if c.wf == nil {
		return nil
	}
	if c.wf.IsComplete() && !c.wf.Reopened() {
		return c.wf.ActiveOnLoad()
	}
	return c.wf.NextIncomplete()
}

// SchemaVersion returns the loaded document's schema version, 0 before
// LoadForm.
func (c *Controller) SchemaVersion() int {
	if c.doc == nil {
		return 0
	}
	return c.doc.SchemaVersion
}

// Workflow exposes the underlying workflow for read-only queries.
func (c *Controller) Workflow() *workflow.Workflow {
	return c.wf
}

// Store exposes the field store for read-only queries.
func (c *Controller) Store() *fieldstore.Store {
	return c.store
}

func (c *Controller) requireLoaded() error {
	if c.wf == nil {
		return fmt.Errorf("form not loaded: %w", workflow.ErrNotFound)
	}
	return nil
}

func (c *Controller) requireGroupEdit(group string) error {
	def, ok := c.groups.Definition(group)
	if !ok {
		return groups.ErrGroupNotFound
	}
	if !c.Permission(def.Section).CanEdit {
		return fmt.Errorf("group %s: %w", group, workflow.ErrPermissionDenied)
	}
	return nil
}
