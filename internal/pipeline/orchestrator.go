// Package pipeline drives a scenario from seed to commit or discard.
//
// The orchestrator owns stage gating: answers are checked as they arrive, apply
// is refused until every required parameter is present and every linked prompt
// is accepted or skipped, and commit only writes a delta produced by the most
// recent apply. Operations on one scenario are serialized in-process, and the
// store's version check catches writers in other processes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/forecast"
	"github.com/Veraticus/runway/internal/metrics"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/rules"
	"github.com/Veraticus/runway/internal/scenario"
	"github.com/Veraticus/runway/internal/service"
	"github.com/google/uuid"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	service.EventSource
	service.ScenarioStore
	service.RuleStore
	service.EvaluationStore
	service.DeltaCommitter
}

// Result reports where a scenario stands after an operation.
type Result struct {
	Stage            model.Stage           `json:"stage"`
	RemainingPrompts []model.PromptRequest `json:"remaining_prompts"`
	OptionalPrompts  []model.PromptRequest `json:"optional_prompts,omitempty"`
	LinkedPrompts    []model.PromptRequest `json:"linked_prompts,omitempty"`
}

// Ready reports whether the scenario can be applied.
func (r Result) Ready() bool {
	return r.Stage == model.StageApplying || r.Stage == model.StageEvaluating
}

// ApplyResult is everything an apply computes.
type ApplyResult struct {
	Definition          *model.ScenarioDefinition `json:"definition"`
	Delta               *model.ScenarioDelta      `json:"delta"`
	BaseForecast        *model.Forecast           `json:"base_forecast"`
	LayeredForecast     *model.Forecast           `json:"layered_forecast"`
	Comparison          forecast.Comparison       `json:"comparison"`
	RuleEvaluations     []model.RuleEvaluation    `json:"rule_evaluations"`
	BaseRuleEvaluations []model.RuleEvaluation    `json:"base_rule_evaluations"`
}

// Config holds orchestrator settings.
type Config struct {
	Now           func() time.Time
	ForecastWeeks int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ForecastWeeks: 13,
		Now:           time.Now,
	}
}

// Orchestrator runs the scenario pipeline.
type Orchestrator struct {
	store      Store
	forecaster service.BaselineForecaster
	registry   *scenario.Registry
	engine     *rules.Engine
	now        func() time.Time
	locks      *keyedMutex
	weeks      int
}

// New creates an orchestrator with the built-in handlers and default configuration.
func New(store Store, forecaster service.BaselineForecaster) *Orchestrator {
	return NewWithConfig(store, forecaster, scenario.NewRegistry(), DefaultConfig())
}

// NewWithConfig creates an orchestrator with a custom registry and configuration.
func NewWithConfig(store Store, forecaster service.BaselineForecaster, registry *scenario.Registry, config Config) *Orchestrator {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.ForecastWeeks <= 0 {
		config.ForecastWeeks = DefaultConfig().ForecastWeeks
	}
	return &Orchestrator{
		store:      store,
		forecaster: forecaster,
		registry:   registry,
		engine:     rules.NewEngine(),
		now:        config.Now,
		locks:      newKeyedMutex(),
		weeks:      config.ForecastWeeks,
	}
}

// Registry returns the handler registry in use.
func (o *Orchestrator) Registry() *scenario.Registry {
	return o.registry
}

// Seed creates a scenario of type t for userID.
func (o *Orchestrator) Seed(ctx context.Context, userID string, t model.ScenarioType, entryPath model.EntryPath) (*model.ScenarioDefinition, Result, error) {
	h, err := o.registry.Handler(t)
	if err != nil {
		return nil, Result{}, err
	}
	if userID == "" {
		return nil, Result{}, common.NewValidationError("user_id", "is required")
	}
	if entryPath == "" {
		entryPath = model.EntryManual
	}
	if entryPath != model.EntryManual && entryPath != model.EntrySuggested {
		return nil, Result{}, common.NewValidationError("entry_path", "unknown entry path %q", entryPath)
	}

	now := o.now().UTC()
	def := &model.ScenarioDefinition{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      t,
		EntryPath: entryPath,
		Stage:     model.StageSeeded,
		Params:    make(map[string]string),
		Linked:    make(map[model.LinkedType]model.LinkedAnswer),
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Asking the handler for its parameters moves the scenario straight on.
	def.Stage = nextStage(h, def)
	if err := o.store.CreateScenario(ctx, def); err != nil {
		return nil, Result{}, fmt.Errorf("failed to create scenario: %w", err)
	}

	metrics.ScenariosSeeded.WithLabelValues(string(t)).Inc()
	slog.Info("Seeded scenario",
		"scenario_id", def.ID,
		"scenario_type", t,
		"entry_path", entryPath,
		"stage", def.Stage)

	return def, o.result(h, def), nil
}

// SubmitAnswers stores parameter answers. Every answer is checked before any is
// stored: its shape, its range and, once every required key is present, the
// handler's cross-field rules. Answering an applied scenario discards its delta
// so the next apply recomputes from scratch.
func (o *Orchestrator) SubmitAnswers(ctx context.Context, id string, answers map[string]string) (Result, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	def, h, err := o.load(ctx, id)
	if err != nil {
		return Result{}, err
	}

	scope := def.Scope
	params := make(map[string]string, len(def.Params)+len(answers))
	for k, v := range def.Params {
		params[k] = v
	}

	var errs []error
	for _, key := range sortedKeys(answers) {
		raw := answers[key]
		spec, ok := scenario.Spec(h, key)
		if !ok {
			errs = append(errs, common.NewValidationError(key, "is not a parameter of %s", def.Type))
			continue
		}
		if err := scenario.CheckAnswer(spec, raw); err != nil {
			errs = append(errs, err)
			continue
		}
		if model.IsScopeKey(key) {
			ids, _ := scenario.ParseIDList(raw)
			scope.Set(key, ids)
			continue
		}
		params[key] = raw
	}
	if len(errs) > 0 {
		return Result{}, errors.Join(errs...)
	}

	next := *def
	next.Params = params
	next.Scope = scope
	if err := checkValues(h, &next, answers); err != nil {
		return Result{}, err
	}
	return o.advance(ctx, h, &next)
}

// checkValues runs the handler's validation over def. While required keys are
// still missing, only problems with the keys just answered count; the rest
// will be prompted for.
func checkValues(h scenario.Handler, def *model.ScenarioDefinition, answered map[string]string) error {
	err := h.Validate(def)
	if err == nil || len(scenario.MissingParams(h, def)) == 0 {
		return err
	}

	var relevant []error
	for _, e := range flatten(err) {
		var verr *common.ValidationError
		if errors.As(e, &verr) {
			if _, ok := answered[verr.Field]; ok {
				relevant = append(relevant, e)
			}
		}
	}
	return errors.Join(relevant...)
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

// AnswerLinked accepts a linked effect with its parameters.
func (o *Orchestrator) AnswerLinked(ctx context.Context, id string, lt model.LinkedType, params map[string]string) (Result, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	def, h, err := o.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	effect, err := o.offered(h, lt)
	if err != nil {
		return Result{}, err
	}
	if err := effect.Validate(params); err != nil {
		return Result{}, err
	}

	stored := make(map[string]string, len(params))
	for k, v := range params {
		stored[k] = v
	}
	def.Linked = copyLinked(def.Linked)
	def.Linked[lt] = model.LinkedAnswer{Accepted: true, Params: stored}
	return o.advance(ctx, h, def)
}

// SkipLinked declines a linked effect.
func (o *Orchestrator) SkipLinked(ctx context.Context, id string, lt model.LinkedType) (Result, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	def, h, err := o.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if _, err := o.offered(h, lt); err != nil {
		return Result{}, err
	}

	def.Linked = copyLinked(def.Linked)
	def.Linked[lt] = model.LinkedAnswer{Skipped: true}
	return o.advance(ctx, h, def)
}

// Apply computes the scenario's delta and forecasts, evaluates rules against
// both forecasts and stores the delta in place of any earlier one.
func (o *Orchestrator) Apply(ctx context.Context, id string) (*ApplyResult, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	started := time.Now()

	def, h, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkComplete(h, def); err != nil {
		return nil, err
	}
	if err := h.Validate(def); err != nil {
		return nil, err
	}

	asOf := o.now().UTC()
	base, err := o.forecaster.ComputeBaseline(ctx, def.UserID, asOf, o.weeks)
	if err != nil {
		return nil, fmt.Errorf("failed to compute baseline forecast: %w", err)
	}
	future, err := o.store.GetFutureEvents(ctx, def.UserID, base.ForecastStartDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load future events: %w", err)
	}
	events := canonical(future)
	snap := scenario.NewSnapshot(def.UserID, base.ForecastStartDate, o.weeks, events)

	delta, err := o.compute(h, snap, def)
	if err != nil {
		return nil, err
	}
	delta.ID = uuid.NewString()
	delta.ScenarioID = def.ID
	delta.ComputedAt = asOf
	delta.Finalize()
	if err := delta.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s produced an inconsistent delta: %w", def.ID, err)
	}

	layered := forecast.Layered(base, events, delta)
	comparison := forecast.Compare(base, layered)

	ruleSet, err := o.store.ListRules(ctx, def.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	evals := o.engine.EvaluateAll(ruleSet, layered, def.ID)
	baseEvals := o.engine.EvaluateAll(ruleSet, base, "")
	for i := range evals {
		evals[i].EvaluatedAt = asOf
	}
	for i := range baseEvals {
		baseEvals[i].EvaluatedAt = asOf
	}

	from := def.Stage
	next := *def
	next.Stage = model.StageEvaluating
	next.ConfirmedAt = &asOf
	next.UpdatedAt = asOf
	err = o.store.TransitionScenario(ctx, service.ScenarioTransition{
		Definition:  &next,
		Delta:       delta,
		Evaluations: slices.Concat(baseEvals, evals),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store applied scenario: %w", err)
	}
	def = &next

	metrics.ApplyDuration.Observe(float64(time.Since(started).Milliseconds()))
	metrics.ScenariosApplied.WithLabelValues(string(def.Type)).Inc()
	for _, e := range rules.Breached(evals) {
		metrics.RuleBreaches.WithLabelValues(string(e.RuleType), string(e.Severity)).Inc()
	}
	if delta.IsEmpty() {
		metrics.EmptyDeltas.WithLabelValues(string(def.Type)).Inc()
		slog.Info("Scenario matched no events", "scenario_id", def.ID, "scenario_type", def.Type)
	}

	slog.Info("Applied scenario",
		"scenario_id", def.ID,
		"from", from,
		"events_affected", delta.TotalEventsAffected,
		"deleted", len(delta.DeletedEventIDs),
		"net_cash_impact", delta.NetCashImpact.StringFixed(2),
		"runway_change", comparison.RunwayChange,
		"breaches", len(rules.Breached(evals)))

	return &ApplyResult{
		Definition:          def,
		Delta:               delta,
		BaseForecast:        base,
		LayeredForecast:     layered,
		Comparison:          comparison,
		RuleEvaluations:     evals,
		BaseRuleEvaluations: baseEvals,
	}, nil
}

// compute applies the primary handler and folds in every accepted linked
// effect, each against the events with everything before it applied.
func (o *Orchestrator) compute(h scenario.Handler, snap *scenario.Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error) {
	primary, err := h.Apply(snap, def)
	if err != nil {
		return nil, err
	}

	delta := model.NewDelta(def.ID)
	delta.Merge(primary, "")
	anchor := h.Anchor(def)

	for _, lt := range h.LinkedPromptTypes() {
		answer := def.Linked[lt]
		if !answer.Accepted {
			continue
		}
		effect, err := o.registry.Linked(lt)
		if err != nil {
			return nil, err
		}
		sub, err := effect.Apply(scenario.LinkedInput{
			Anchor:     anchor,
			Snapshot:   snap.Layer(delta),
			Definition: def,
			Primary:    primary,
			Params:     answer.Params,
		})
		if err != nil {
			return nil, fmt.Errorf("linked effect %s: %w", lt, err)
		}
		delta.Merge(sub, uuid.NewString())
	}
	return delta, nil
}

// Commit writes the applied delta into canonical events. On failure the
// scenario stays in evaluating so it can be re-applied. Committing a committed
// scenario does nothing.
func (o *Orchestrator) Commit(ctx context.Context, id string) error {
	unlock := o.locks.lock(id)
	defer unlock()

	def, err := o.store.GetScenario(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	switch def.Stage {
	case model.StageCommitted:
		slog.Info("Scenario already committed", "scenario_id", id)
		return nil
	case model.StageDiscarded:
		return fmt.Errorf("scenario %s: %w", id, common.ErrScenarioClosed)
	case model.StageEvaluating:
	default:
		return common.NewValidationError("stage", "scenario %s is %s and must be applied before commit", id, def.Stage)
	}

	delta, err := o.store.GetDelta(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load delta for scenario %s: %w", id, err)
	}

	if err := o.store.CommitDelta(ctx, delta); err != nil {
		outcome := "error"
		if errors.Is(err, common.ErrCommitConflict) {
			outcome = "conflict"
		}
		metrics.Commits.WithLabelValues(outcome).Inc()
		slog.Warn("Commit failed",
			"scenario_id", id,
			"delta_id", delta.ID,
			"error", err)
		return fmt.Errorf("failed to commit scenario %s: %w", id, err)
	}

	def.Stage = model.StageCommitted
	def.UpdatedAt = o.now().UTC()
	if err := o.store.UpdateScenario(ctx, def); err != nil {
		// The delta is written; retrying Commit is safe because the store
		// recognises the delta id.
		return fmt.Errorf("committed delta %s but failed to update scenario: %w", delta.ID, err)
	}

	metrics.Commits.WithLabelValues("committed").Inc()
	slog.Info("Committed scenario",
		"scenario_id", id,
		"delta_id", delta.ID,
		"events_affected", delta.TotalEventsAffected,
		"deleted", len(delta.DeletedEventIDs))
	return nil
}

// Discard abandons a scenario without touching canonical events. Discarding
// twice is fine; discarding a committed scenario is not.
func (o *Orchestrator) Discard(ctx context.Context, id string) error {
	unlock := o.locks.lock(id)
	defer unlock()

	def, err := o.store.GetScenario(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	switch def.Stage {
	case model.StageDiscarded:
		return nil
	case model.StageCommitted:
		return fmt.Errorf("scenario %s: %w", id, common.ErrScenarioClosed)
	}

	from := def.Stage
	def.Stage = model.StageDiscarded
	def.UpdatedAt = o.now().UTC()
	if err := o.store.TransitionScenario(ctx, service.ScenarioTransition{Definition: def, DropDelta: true}); err != nil {
		return fmt.Errorf("failed to discard scenario: %w", err)
	}

	metrics.Discards.Inc()
	slog.Info("Discarded scenario", "scenario_id", id, "from", from)
	return nil
}

// Get returns a scenario and its outstanding prompts.
func (o *Orchestrator) Get(ctx context.Context, id string) (*model.ScenarioDefinition, Result, error) {
	def, err := o.store.GetScenario(ctx, id)
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	h, err := o.registry.Handler(def.Type)
	if err != nil {
		return nil, Result{}, err
	}
	return def, o.result(h, def), nil
}

// List returns a user's scenarios, newest first.
func (o *Orchestrator) List(ctx context.Context, userID string) ([]model.ScenarioDefinition, error) {
	defs, err := o.store.ListScenarios(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	return defs, nil
}

// load fetches an open scenario and its handler.
func (o *Orchestrator) load(ctx context.Context, id string) (*model.ScenarioDefinition, scenario.Handler, error) {
	def, err := o.store.GetScenario(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	if def.Stage.Terminal() {
		return nil, nil, fmt.Errorf("scenario %s is %s: %w", id, def.Stage, common.ErrScenarioClosed)
	}
	h, err := o.registry.Handler(def.Type)
	if err != nil {
		return nil, nil, err
	}
	return def, h, nil
}

// advance moves def to the stage its answers allow and stores it. An applied
// scenario whose inputs change loses its delta.
func (o *Orchestrator) advance(ctx context.Context, h scenario.Handler, def *model.ScenarioDefinition) (Result, error) {
	from := def.Stage
	def.Stage = nextStage(h, def)
	def.UpdatedAt = o.now().UTC()
	if from == model.StageEvaluating {
		def.ConfirmedAt = nil
	}

	err := o.store.TransitionScenario(ctx, service.ScenarioTransition{
		Definition: def,
		DropDelta:  from == model.StageEvaluating,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to update scenario: %w", err)
	}

	if from != def.Stage {
		slog.Info("Scenario stage changed",
			"scenario_id", def.ID,
			"from", from,
			"to", def.Stage)
	}
	return o.result(h, def), nil
}

func (o *Orchestrator) offered(h scenario.Handler, lt model.LinkedType) (scenario.LinkedEffect, error) {
	if !slices.Contains(h.LinkedPromptTypes(), lt) {
		return scenario.LinkedEffect{}, common.NewValidationError("linked_type", "%s does not offer %s", h.Type(), lt)
	}
	return o.registry.Linked(lt)
}

func (o *Orchestrator) result(h scenario.Handler, def *model.ScenarioDefinition) Result {
	r := Result{
		Stage:            def.Stage,
		RemainingPrompts: scenario.MissingParams(h, def),
	}
	for _, p := range h.OptionalParams() {
		if !def.Has(p.Key) && !slices.ContainsFunc(r.RemainingPrompts, func(req model.PromptRequest) bool { return req.Key == p.Key }) {
			req := p.Prompt()
			req.Optional = true
			r.OptionalPrompts = append(r.OptionalPrompts, req)
		}
	}
	for _, lt := range scenario.PendingLinked(h, def) {
		effect, err := o.registry.Linked(lt)
		if err != nil {
			continue
		}
		r.LinkedPrompts = append(r.LinkedPrompts, effect.Prompts()...)
	}
	return r
}

func nextStage(h scenario.Handler, def *model.ScenarioDefinition) model.Stage {
	switch {
	case len(scenario.MissingParams(h, def)) > 0:
		return model.StageCollectingParams
	case len(scenario.PendingLinked(h, def)) > 0:
		return model.StageCollectingLinked
	default:
		return model.StageApplying
	}
}

func checkComplete(h scenario.Handler, def *model.ScenarioDefinition) error {
	incomplete := &common.IncompleteScenarioError{}
	for _, p := range scenario.MissingParams(h, def) {
		incomplete.Missing = append(incomplete.Missing, p.Key)
	}
	for _, lt := range scenario.PendingLinked(h, def) {
		incomplete.PendingLinked = append(incomplete.PendingLinked, string(lt))
	}
	if len(incomplete.Missing) > 0 || len(incomplete.PendingLinked) > 0 {
		return incomplete
	}
	return nil
}

func canonical(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.IsCanonical() {
			out = append(out, e)
		}
	}
	return out
}

func copyLinked(in map[model.LinkedType]model.LinkedAnswer) map[model.LinkedType]model.LinkedAnswer {
	out := make(map[model.LinkedType]model.LinkedAnswer, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// keyedMutex serializes work per scenario id.
type keyedMutex struct {
	locks map[string]*refMutex
	mu    sync.Mutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
