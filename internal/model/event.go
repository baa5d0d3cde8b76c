// Package model defines the core data structures for the runway application.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether an event moves cash in or out.
type Direction string

// Direction constants.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Confidence is the epistemic certainty that an event occurs as stated.
type Confidence string

// Confidence levels, highest first.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidence levels; higher is more certain. Unknown levels rank 0.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether c is a known confidence level.
func (c Confidence) Valid() bool {
	return c.Rank() > 0
}

// Downgrade lowers confidence by one notch. Low stays low.
func (c Confidence) Downgrade() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// MinConfidence returns the less certain of a and b.
func MinConfidence(a, b Confidence) Confidence {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}

// RecurrencePattern describes the series an event instance belongs to.
type RecurrencePattern string

// Recurrence patterns.
const (
	RecurrenceNone      RecurrencePattern = ""
	RecurrenceWeekly    RecurrencePattern = "weekly"
	RecurrenceBiweekly  RecurrencePattern = "biweekly"
	RecurrenceMonthly   RecurrencePattern = "monthly"
	RecurrenceQuarterly RecurrencePattern = "quarterly"
)

// Common event types.
const (
	EventTypeExpectedRevenue = "expected_revenue"
	EventTypeExpectedExpense = "expected_expense"
	EventTypeActualReceipt   = "actual_receipt"
)

// Common categories.
const (
	CategoryPayroll      = "payroll"
	CategoryContractors  = "contractors"
	CategoryRetainer     = "retainer"
	CategorySoftware     = "software"
	CategoryTools        = "tools"
	CategoryProjectCosts = "project_costs"
	CategorySeverance    = "severance"
	CategoryOnboarding   = "onboarding"
	CategoryFees         = "fees"
)

// ErrInvalidEvent marks an event that fails validation.
var ErrInvalidEvent = errors.New("invalid event")

// Event is a single dated cash movement. Events are projections of upstream
// clients, expense buckets and obligation schedules; handlers never author them
// in place, they only propose changes through a ScenarioDelta.
type Event struct {
	Date              time.Time         `json:"date"`
	Amount            decimal.Decimal   `json:"amount"`
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	Direction         Direction         `json:"direction"`
	EventType         string            `json:"event_type"`
	Category          string            `json:"category"`
	Confidence        Confidence        `json:"confidence"`
	ConfidenceReason  string            `json:"confidence_reason,omitempty"`
	RecurrencePattern RecurrencePattern `json:"recurrence_pattern,omitempty"`
	ClientID          string            `json:"client_id,omitempty"`
	BucketID          string            `json:"bucket_id,omitempty"`
	ObligationID      string            `json:"obligation_id,omitempty"`
	Gate              string            `json:"gate,omitempty"`
	ScenarioID        string            `json:"scenario_id,omitempty"`
	IsRecurring       bool              `json:"is_recurring"`
}

// Signed returns the amount with the sign implied by direction: positive for
// inflows, negative for outflows.
func (e Event) Signed() decimal.Decimal {
	if e.Direction == DirectionOut {
		return e.Amount.Neg()
	}
	return e.Amount
}

// IsCanonical reports whether the event belongs to canonical data rather than
// being a scenario artifact.
func (e Event) IsCanonical() bool {
	return e.ScenarioID == ""
}

// SourceKey identifies the upstream source of an event: its bucket, client or
// obligation, falling back to the event id for unlinked events.
func (e Event) SourceKey() string {
	switch {
	case e.BucketID != "":
		return "bucket:" + e.BucketID
	case e.ClientID != "":
		return "client:" + e.ClientID
	case e.ObligationID != "":
		return "obligation:" + e.ObligationID
	default:
		return "event:" + e.ID
	}
}

// Validate checks the event invariants.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: %s missing date", ErrInvalidEvent, e.ID)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("%w: %s has negative amount %s", ErrInvalidEvent, e.ID, e.Amount)
	}
	if !e.Direction.Valid() {
		return fmt.Errorf("%w: %s has unknown direction %q", ErrInvalidEvent, e.ID, e.Direction)
	}
	if !e.Confidence.Valid() {
		return fmt.Errorf("%w: %s has unknown confidence %q", ErrInvalidEvent, e.ID, e.Confidence)
	}
	if e.IsRecurring && e.RecurrencePattern == RecurrenceNone {
		return fmt.Errorf("%w: %s is recurring without a pattern", ErrInvalidEvent, e.ID)
	}
	return nil
}
