// Package scenario turns scenario definitions into deltas over a snapshot of
// future cash events.
//
// Each scenario type has one Handler. Handlers never mutate the snapshot; they
// read the events they match and return a new ScenarioDelta. Linked effects are
// applied separately against the snapshot with the primary delta layered on, so
// that the orchestrator can fold them into one delta.
package scenario

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/forecast"
	"github.com/Veraticus/runway/internal/model"
	"github.com/google/uuid"
)

// Handler implements one scenario type.
type Handler interface {
	// Type returns the scenario type this handler is registered under.
	Type() model.ScenarioType
	// RequiredParams lists, in prompt order, the keys that must be answered
	// before the scenario can be applied. Keys may address a scope field.
	RequiredParams() []model.ParamSpec
	// OptionalParams lists keys the handler understands but does not require.
	OptionalParams() []model.ParamSpec
	// LinkedPromptTypes lists the secondary effects this scenario can offer.
	LinkedPromptTypes() []model.LinkedType
	// Validate decodes the definition's answers and checks cross-field rules.
	Validate(def *model.ScenarioDefinition) error
	// Apply reads matching events from snap and returns the resulting delta.
	Apply(snap *Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error)
	// Anchor is the date linked-effect lags are counted from. It is zero when
	// the definition does not carry one.
	Anchor(def *model.ScenarioDefinition) time.Time
}

// Snapshot is the immutable set of future events a scenario is applied to.
// Only events dated in [AsOf, HorizonEnd) are candidates for change, and
// generated series stop before HorizonEnd.
type Snapshot struct {
	AsOf       time.Time
	HorizonEnd time.Time
	UserID     string
	Events     []model.Event
}

// NewSnapshot builds a snapshot covering weeks weeks from asOf.
func NewSnapshot(userID string, asOf time.Time, weeks int, events []model.Event) *Snapshot {
	start := calendar.Day(asOf)
	return &Snapshot{
		UserID:     userID,
		AsOf:       start,
		HorizonEnd: start.AddDate(0, 0, 7*weeks),
		Events:     events,
	}
}

// InHorizon reports whether t falls inside the snapshot window.
func (s *Snapshot) InHorizon(t time.Time) bool {
	return !t.Before(s.AsOf) && t.Before(s.HorizonEnd)
}

// Clamp pulls t back onto the last day of the window when it falls at or after
// HorizonEnd. The second result reports whether t was moved. Events a scenario
// pushes out of the window stay visible in its final week so the layered
// forecast accounts for every delta event.
func (s *Snapshot) Clamp(t time.Time) (time.Time, bool) {
	if t.Before(s.HorizonEnd) {
		return t, false
	}
	return s.HorizonEnd.AddDate(0, 0, -1), true
}

// Select returns the in-horizon events dated on or after from that satisfy keep,
// ordered by date then id.
func (s *Snapshot) Select(from time.Time, keep func(model.Event) bool) []model.Event {
	var out []model.Event
	for _, e := range s.Events {
		if !s.InHorizon(e.Date) || e.Date.Before(from) {
			continue
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out
}

// Layer returns a snapshot with delta overlaid. The original is unchanged.
func (s *Snapshot) Layer(delta *model.ScenarioDelta) *Snapshot {
	return &Snapshot{
		UserID:     s.UserID,
		AsOf:       s.AsOf,
		HorizonEnd: s.HorizonEnd,
		Events:     forecast.Overlay(s.Events, delta),
	}
}

// start returns the later of t and the snapshot start; zero t means the start.
func (s *Snapshot) start(t time.Time) time.Time {
	if t.IsZero() || t.Before(s.AsOf) {
		return s.AsOf
	}
	return t
}

// Registry maps scenario types to handlers and linked types to effects.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.ScenarioType]Handler
	linked   map[model.LinkedType]LinkedEffect
}

// NewRegistry returns a registry holding every built-in handler and linked effect.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[model.ScenarioType]Handler),
		linked:   make(map[model.LinkedType]LinkedEffect),
	}
	for _, h := range builtinHandlers() {
		r.Register(h)
	}
	for _, e := range builtinLinkedEffects() {
		r.RegisterLinked(e)
	}
	return r
}

// Register adds a handler. Panics on a duplicate type.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Type()]; exists {
		panic(fmt.Sprintf("scenario registry: duplicate type %q", h.Type()))
	}
	r.handlers[h.Type()] = h
}

// RegisterLinked adds a linked effect. Panics on a duplicate type.
func (r *Registry) RegisterLinked(e LinkedEffect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.linked[e.Type]; exists {
		panic(fmt.Sprintf("scenario registry: duplicate linked type %q", e.Type))
	}
	r.linked[e.Type] = e
}

// Handler returns the handler for t. Unknown types are a validation error.
func (r *Registry) Handler(t model.ScenarioType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	if !ok {
		return nil, common.NewValidationError("scenario_type", "unknown scenario type %q", t)
	}
	return h, nil
}

// Linked returns the linked effect for t.
func (r *Registry) Linked(t model.LinkedType) (LinkedEffect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.linked[t]
	if !ok {
		return LinkedEffect{}, common.NewValidationError("linked_type", "unknown linked effect %q", t)
	}
	return e, nil
}

// Types returns the registered scenario types in display order.
func (r *Registry) Types() []model.ScenarioType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ScenarioType
	for _, t := range model.AllScenarioTypes() {
		if _, ok := r.handlers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Spec finds the parameter spec for key among h's required and optional params.
func Spec(h Handler, key string) (model.ParamSpec, bool) {
	for _, p := range slices.Concat(h.RequiredParams(), h.OptionalParams()) {
		if p.Key == key {
			return p, true
		}
	}
	return model.ParamSpec{}, false
}

// Conditional is implemented by handlers whose required keys depend on answers
// already given, such as a percentage that is only needed for partial payments.
type Conditional interface {
	ConditionalParams(def *model.ScenarioDefinition) []model.ParamSpec
}

// RequiredFor returns h's required keys for def, including any conditional ones.
func RequiredFor(h Handler, def *model.ScenarioDefinition) []model.ParamSpec {
	req := h.RequiredParams()
	if c, ok := h.(Conditional); ok {
		req = slices.Concat(req, c.ConditionalParams(def))
	}
	return req
}

// MissingParams returns a prompt for every required key without a value.
func MissingParams(h Handler, def *model.ScenarioDefinition) []model.PromptRequest {
	var out []model.PromptRequest
	for _, p := range RequiredFor(h, def) {
		if !def.Has(p.Key) {
			out = append(out, p.Prompt())
		}
	}
	return out
}

// PendingLinked returns the linked types offered by h that have been neither
// accepted nor skipped.
func PendingLinked(h Handler, def *model.ScenarioDefinition) []model.LinkedType {
	var out []model.LinkedType
	for _, t := range h.LinkedPromptTypes() {
		if !def.Linked[t].Answered() {
			out = append(out, t)
		}
	}
	return out
}

func newEventID() string {
	return uuid.NewString()
}

func sortEvents(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func builtinHandlers() []Handler {
	return []Handler{
		newDelayHandler(model.ScenarioPaymentDelayIn),
		newDelayHandler(model.ScenarioPaymentDelayOut),
		clientLossHandler{},
		clientGainHandler{},
		clientChangeHandler{},
		newCostGainHandler(model.ScenarioHiring),
		newCostGainHandler(model.ScenarioContractorGain),
		newCostLossHandler(model.ScenarioFiring),
		newCostLossHandler(model.ScenarioContractorLoss),
		increasedExpenseHandler{},
		decreasedExpenseHandler{},
	}
}
