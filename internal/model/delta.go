package model

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// EventOperation is the kind of change a delta applies to one event.
type EventOperation string

// Event operations.
const (
	OperationAdd    EventOperation = "add"
	OperationModify EventOperation = "modify"
	OperationDelete EventOperation = "delete"
)

// EventChange is one operation inside a ScenarioDelta. For add and modify, Event
// is the new payload; for delete it is the removed canonical payload. Previous
// carries the canonical payload for modify and delete.
//
// LinkedChangeID names the linked effect that introduced the change and is empty
// for the primary scenario. Later linked effects that rewrote the same event are
// listed in FollowUpChangeIDs, in merge order.
type EventChange struct {
	Previous          *Event         `json:"previous,omitempty"`
	OriginalEventID   string         `json:"original_event_id,omitempty"`
	Operation         EventOperation `json:"operation"`
	ChangeReason      string         `json:"change_reason"`
	LinkedChangeID    string         `json:"linked_change_id,omitempty"`
	FollowUpChangeIDs []string       `json:"follow_up_change_ids,omitempty"`
	Event             Event          `json:"event"`
}

// LinkedChangeIDs returns every linked effect that shaped the change.
func (c EventChange) LinkedChangeIDs() []string {
	var out []string
	if c.LinkedChangeID != "" {
		out = append(out, c.LinkedChangeID)
	}
	return append(out, c.FollowUpChangeIDs...)
}

// Impact is the signed cash effect of the change.
func (c EventChange) Impact() decimal.Decimal {
	switch c.Operation {
	case OperationAdd:
		return c.Event.Signed()
	case OperationModify:
		if c.Previous == nil {
			return c.Event.Signed()
		}
		return c.Event.Signed().Sub(c.Previous.Signed())
	case OperationDelete:
		if c.Previous != nil {
			return c.Previous.Signed().Neg()
		}
		return c.Event.Signed().Neg()
	default:
		return decimal.Zero
	}
}

// ScenarioDelta is the set of event creations, modifications and deletions a
// scenario would write if committed.
type ScenarioDelta struct {
	ComputedAt          time.Time       `json:"computed_at"`
	NetCashImpact       decimal.Decimal `json:"net_cash_impact"`
	ID                  string          `json:"id"`
	ScenarioID          string          `json:"scenario_id"`
	CreatedEvents       []EventChange   `json:"created_events"`
	UpdatedEvents       []EventChange   `json:"updated_events"`
	DeletedEventIDs     []string        `json:"deleted_event_ids"`
	TotalEventsAffected int             `json:"total_events_affected"`
}

// NewDelta returns an empty delta for a scenario.
func NewDelta(scenarioID string) *ScenarioDelta {
	return &ScenarioDelta{
		ScenarioID:    scenarioID,
		NetCashImpact: decimal.Zero,
	}
}

// IsEmpty reports whether the delta changes nothing.
func (d *ScenarioDelta) IsEmpty() bool {
	return len(d.CreatedEvents) == 0 && len(d.UpdatedEvents) == 0
}

// Add records a brand-new event.
func (d *ScenarioDelta) Add(e Event, reason string) {
	d.CreatedEvents = append(d.CreatedEvents, EventChange{
		Operation:    OperationAdd,
		ChangeReason: reason,
		Event:        e,
	})
}

// Modify records a replacement payload for a canonical event.
func (d *ScenarioDelta) Modify(previous, updated Event, reason string) {
	prev := previous
	updated.ID = previous.ID
	d.UpdatedEvents = append(d.UpdatedEvents, EventChange{
		Previous:        &prev,
		OriginalEventID: previous.ID,
		Operation:       OperationModify,
		ChangeReason:    reason,
		Event:           updated,
	})
}

// Delete records removal of a canonical event.
func (d *ScenarioDelta) Delete(previous Event, reason string) {
	prev := previous
	d.UpdatedEvents = append(d.UpdatedEvents, EventChange{
		Previous:        &prev,
		OriginalEventID: previous.ID,
		Operation:       OperationDelete,
		ChangeReason:    reason,
		Event:           previous,
	})
}

// Changes returns every operation, created events first.
func (d *ScenarioDelta) Changes() []EventChange {
	out := make([]EventChange, 0, len(d.CreatedEvents)+len(d.UpdatedEvents))
	out = append(out, d.CreatedEvents...)
	out = append(out, d.UpdatedEvents...)
	return out
}

// RecomputeNetImpact sums the signed amount differences across all operations.
func (d *ScenarioDelta) RecomputeNetImpact() decimal.Decimal {
	total := decimal.Zero
	for _, c := range d.Changes() {
		total = total.Add(c.Impact())
	}
	return total
}

// Finalize orders operations deterministically and rebuilds the derived fields.
func (d *ScenarioDelta) Finalize() {
	sortChanges(d.CreatedEvents)
	sortChanges(d.UpdatedEvents)

	d.DeletedEventIDs = d.DeletedEventIDs[:0]
	for _, c := range d.UpdatedEvents {
		if c.Operation == OperationDelete {
			d.DeletedEventIDs = append(d.DeletedEventIDs, c.OriginalEventID)
		}
	}
	sort.Strings(d.DeletedEventIDs)

	d.TotalEventsAffected = len(d.CreatedEvents) + len(d.UpdatedEvents)
	d.NetCashImpact = d.RecomputeNetImpact()
}

// Validate checks that no event id appears in more than one operation set and
// that every payload is a valid event.
func (d *ScenarioDelta) Validate() error {
	seen := make(map[string]EventOperation)
	for _, c := range d.Changes() {
		id := c.Event.ID
		if c.Operation != OperationAdd {
			id = c.OriginalEventID
		}
		if prior, ok := seen[id]; ok {
			return fmt.Errorf("event %s appears in both %s and %s operations", id, prior, c.Operation)
		}
		seen[id] = c.Operation
		if err := c.Event.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Merge composes a follow-up delta onto d. The follow-up was computed against
// the events as they look with d already applied, so its operations are folded
// into d's: modifying an event d created rewrites the creation, deleting it drops
// the creation, and changes to events d modified keep the canonical Previous.
// New changes are tagged with linkedChangeID; rewritten ones keep their original
// attribution and record linkedChangeID as a follow-up.
func (d *ScenarioDelta) Merge(next *ScenarioDelta, linkedChangeID string) {
	if next == nil {
		return
	}

	created := make(map[string]int, len(d.CreatedEvents))
	for i, c := range d.CreatedEvents {
		created[c.Event.ID] = i
	}
	updated := make(map[string]int, len(d.UpdatedEvents))
	for i, c := range d.UpdatedEvents {
		updated[c.OriginalEventID] = i
	}

	dropCreated := make(map[int]bool)

	for _, c := range next.CreatedEvents {
		c.LinkedChangeID = linkedChangeID
		d.CreatedEvents = append(d.CreatedEvents, c)
	}

	for _, c := range next.UpdatedEvents {
		c.LinkedChangeID = linkedChangeID
		id := c.OriginalEventID

		if i, ok := created[id]; ok {
			if c.Operation == OperationDelete {
				dropCreated[i] = true
				continue
			}
			d.CreatedEvents[i].Event = c.Event
			d.CreatedEvents[i].ChangeReason = d.CreatedEvents[i].ChangeReason + "; " + c.ChangeReason
			d.CreatedEvents[i].FollowUpChangeIDs = append(d.CreatedEvents[i].FollowUpChangeIDs, linkedChangeID)
			continue
		}

		if i, ok := updated[id]; ok {
			prior := d.UpdatedEvents[i]
			c.Previous = prior.Previous
			c.ChangeReason = prior.ChangeReason + "; " + c.ChangeReason
			c.LinkedChangeID = prior.LinkedChangeID
			c.FollowUpChangeIDs = append(slices.Clone(prior.FollowUpChangeIDs), linkedChangeID)
			if c.Operation == OperationDelete && prior.Previous != nil {
				c.Event = *prior.Previous
			}
			d.UpdatedEvents[i] = c
			continue
		}

		updated[id] = len(d.UpdatedEvents)
		d.UpdatedEvents = append(d.UpdatedEvents, c)
	}

	if len(dropCreated) > 0 {
		kept := d.CreatedEvents[:0]
		for i, c := range d.CreatedEvents {
			if !dropCreated[i] {
				kept = append(kept, c)
			}
		}
		d.CreatedEvents = kept
	}
}

func sortChanges(changes []EventChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i].Event, changes[j].Event
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
}
