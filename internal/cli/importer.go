package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/metrics"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/scenario"
	"github.com/Veraticus/runway/internal/service"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// ErrMissingColumn is returned when a CSV lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

var requiredColumns = []string{"date", "amount", "direction"}

const importBatchSize = 500

// EventImporter loads future cash events from CSV. The first row is a header;
// date, amount and direction are required and the other recognised columns are
// id, category, client_id, bucket_id, obligation_id, event_type, confidence,
// recurrence and gate. A file with any bad row imports nothing.
type EventImporter struct {
	writer   service.EventWriter
	progress io.Writer
	userID   string
}

// NewEventImporter creates an importer saving events for userID. Progress is
// drawn on progress when it is non-nil.
func NewEventImporter(w service.EventWriter, userID string, progress io.Writer) *EventImporter {
	return &EventImporter{writer: w, userID: userID, progress: progress}
}

// Import parses r and saves every event. It returns the number of events saved.
func (im *EventImporter) Import(ctx context.Context, r io.Reader) (int, error) {
	events, err := im.Parse(r)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var bar *progressbar.ProgressBar
	if im.progress != nil {
		bar = progressbar.NewOptions(len(events),
			progressbar.OptionSetWriter(im.progress),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan][bold]Importing events...[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				if _, err := fmt.Fprintln(im.progress); err != nil {
					slog.Warn("Failed to write newline after progress bar", "error", err)
				}
			}),
		)
	}

	saved := 0
	for start := 0; start < len(events); start += importBatchSize {
		end := min(start+importBatchSize, len(events))
		if err := im.writer.SaveEvents(ctx, events[start:end]); err != nil {
			return saved, fmt.Errorf("failed to save events %d-%d: %w", start+1, end, err)
		}
		saved += end - start
		metrics.EventsImported.Add(float64(end - start))
		if bar != nil {
			if err := bar.Add(end - start); err != nil {
				slog.Warn("Failed to update progress bar", "error", err)
			}
		}
	}

	slog.Info("Imported events", "user_id", im.userID, "count", saved)
	return saved, nil
}

// Add validates a single event given as column values and saves it. Only date
// and amount are required; direction follows the sign of amount when unset.
func (im *EventImporter) Add(ctx context.Context, fields map[string]string) (model.Event, error) {
	for _, col := range []string{"date", "amount"} {
		if strings.TrimSpace(fields[col]) == "" {
			return model.Event{}, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	e, err := im.parseRow(func(col string) string { return strings.TrimSpace(fields[col]) })
	if err != nil {
		return model.Event{}, err
	}
	if err := im.writer.SaveEvents(ctx, []model.Event{e}); err != nil {
		return model.Event{}, fmt.Errorf("failed to save event: %w", err)
	}
	metrics.EventsImported.Inc()
	return e, nil
}

// Parse reads every row without saving. Row errors are collected so the whole
// file can be fixed in one pass.
func (im *EventImporter) Parse(r io.Reader) ([]model.Event, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var (
		events []model.Event
		errs   []error
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		e, err := im.parseRow(get)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		events = append(events, e)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return events, nil
}

func (im *EventImporter) parseRow(get func(string) string) (model.Event, error) {
	date, err := calendar.ParseDate(get("date"))
	if err != nil {
		return model.Event{}, fmt.Errorf("date: %w", err)
	}

	amount, err := scenario.ParseSignedAmount(get("amount"))
	if err != nil {
		return model.Event{}, fmt.Errorf("amount: %w", err)
	}

	dir := model.Direction(strings.ToLower(get("direction")))
	if dir == "" {
		dir = model.DirectionIn
		if amount.IsNegative() {
			dir = model.DirectionOut
		}
	}
	if !dir.Valid() {
		return model.Event{}, fmt.Errorf("direction: expected in or out, got %q", dir)
	}
	if amount.IsNegative() && get("direction") != "" {
		return model.Event{}, errors.New("amount: give a positive amount when direction is set")
	}

	conf := model.Confidence(strings.ToLower(get("confidence")))
	if conf == "" {
		conf = model.ConfidenceHigh
	}

	e := model.Event{
		ID:                get("id"),
		UserID:            im.userID,
		Date:              date,
		Amount:            amount.Abs(),
		Direction:         dir,
		EventType:         get("event_type"),
		Category:          get("category"),
		Confidence:        conf,
		ClientID:          get("client_id"),
		BucketID:          get("bucket_id"),
		ObligationID:      get("obligation_id"),
		Gate:              get("gate"),
		RecurrencePattern: model.RecurrencePattern(strings.ToLower(get("recurrence"))),
	}
	if e.RecurrencePattern == model.RecurrencePattern(calendar.CadenceOneOff) {
		e.RecurrencePattern = model.RecurrenceNone
	}
	e.IsRecurring = e.RecurrencePattern != model.RecurrenceNone
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EventType == "" {
		e.EventType = model.EventTypeExpectedExpense
		if dir == model.DirectionIn {
			e.EventType = model.EventTypeExpectedRevenue
		}
	}
	if e.IsRecurring {
		if _, err := calendar.ParseCadence(string(e.RecurrencePattern)); err != nil {
			return model.Event{}, fmt.Errorf("recurrence: %w", err)
		}
	}

	if err := e.Validate(); err != nil {
		return model.Event{}, err
	}
	return e, nil
}
