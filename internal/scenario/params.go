package scenario

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount parses a non-negative money amount. A leading currency sign and
// thousands separators are accepted.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := ParseSignedAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("must not be negative")
	}
	return d, nil
}

// ParseSignedAmount parses a money amount that may be negative.
func ParseSignedAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}
	s = strings.TrimPrefix(s, "$")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.New("not a valid amount")
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// ParseBool accepts the usual strconv forms plus yes/no and y/n.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, errors.New("expected yes or no")
	}
	return b, nil
}

// ParseIDList splits a comma-separated id list, dropping blanks and duplicates.
func ParseIDList(raw string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, errors.New("expected at least one id")
	}
	return out, nil
}

// CheckAnswer reports whether raw is a well-formed answer for spec. It is used to
// reject an answer before it is stored.
func CheckAnswer(spec model.ParamSpec, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return common.NewValidationError(spec.Key, "value is empty")
	}

	var err error
	switch spec.Type {
	case model.AnswerAmount:
		_, err = ParseAmount(raw)
	case model.AnswerSignedAmount:
		_, err = ParseSignedAmount(raw)
	case model.AnswerInteger:
		var n int
		n, err = strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && n < 0 {
			err = errors.New("must not be negative")
		} else if err != nil {
			err = errors.New("expected a whole number")
		}
	case model.AnswerPercent:
		var p decimal.Decimal
		p, err = ParseAmount(raw)
		if err == nil && p.GreaterThan(hundred) {
			err = errors.New("must be between 0 and 100")
		}
	case model.AnswerDate:
		_, err = calendar.ParseDate(strings.TrimSpace(raw))
	case model.AnswerBool:
		_, err = ParseBool(raw)
	case model.AnswerIDList:
		_, err = ParseIDList(raw)
	case model.AnswerChoice:
		if !slices.Contains(spec.Choices, strings.TrimSpace(raw)) {
			err = errors.New("expected one of " + strings.Join(spec.Choices, ", "))
		}
	case model.AnswerText:
	default:
		err = errors.New("unknown answer type " + string(spec.Type))
	}

	if err != nil {
		return common.NewValidationError(spec.Key, "%v", err)
	}
	return nil
}

// paramReader decodes raw answers into typed values, collecting every problem
// instead of stopping at the first.
type paramReader struct {
	values map[string]string
	scope  model.Scope
	errs   []error
}

func newReader(def *model.ScenarioDefinition) *paramReader {
	return &paramReader{values: def.Params, scope: def.Scope}
}

func newLinkedReader(params map[string]string) *paramReader {
	return &paramReader{values: params}
}

func (r *paramReader) raw(key string) (string, bool) {
	v := strings.TrimSpace(r.values[key])
	return v, v != ""
}

func (r *paramReader) fail(key, format string, args ...any) {
	r.errs = append(r.errs, common.NewValidationError(key, format, args...))
}

func (r *paramReader) missing(key string, required bool) {
	if required {
		r.fail(key, "is required")
	}
}

func (r *paramReader) amount(key string, required bool) (decimal.Decimal, bool) {
	v, ok := r.raw(key)
	if !ok {
		r.missing(key, required)
		return decimal.Zero, false
	}
	d, err := ParseAmount(v)
	if err != nil {
		r.fail(key, "%v", err)
		return decimal.Zero, false
	}
	return d, true
}

func (r *paramReader) signedAmount(key string, required bool) (decimal.Decimal, bool) {
	v, ok := r.raw(key)
	if !ok {
		r.missing(key, required)
		return decimal.Zero, false
	}
	d, err := ParseSignedAmount(v)
	if err != nil {
		r.fail(key, "%v", err)
		return decimal.Zero, false
	}
	return d, true
}

func (r *paramReader) integer(key string, required bool) (int, bool) {
	v, ok := r.raw(key)
	if !ok {
		r.missing(key, required)
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, "expected a whole number, got %q", v)
		return 0, false
	}
	if n < 0 {
		r.fail(key, "must not be negative")
		return 0, false
	}
	return n, true
}

func (r *paramReader) percent(key string, required bool) (decimal.Decimal, bool) {
	p, ok := r.amount(key, required)
	if ok && p.GreaterThan(hundred) {
		r.fail(key, "must be between 0 and 100")
		return decimal.Zero, false
	}
	return p, ok
}

func (r *paramReader) date(key string, required bool) (time.Time, bool) {
	v, ok := r.raw(key)
	if !ok {
		r.missing(key, required)
		return time.Time{}, false
	}
	t, err := calendar.ParseDate(v)
	if err != nil {
		r.fail(key, "%v", err)
		return time.Time{}, false
	}
	return t, true
}

func (r *paramReader) boolean(key string) bool {
	v, ok := r.raw(key)
	if !ok {
		return false
	}
	b, err := ParseBool(v)
	if err != nil {
		r.fail(key, "%v", err)
		return false
	}
	return b
}

func (r *paramReader) text(key string, required bool) string {
	v, ok := r.raw(key)
	if !ok {
		r.missing(key, required)
	}
	return v
}

func (r *paramReader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	ids, err := ParseIDList(v)
	if err != nil {
		r.fail(key, "%v", err)
		return nil
	}
	return ids
}

// ids reads a scope field. Scope answers are stored on the definition's Scope,
// not in Params.
func (r *paramReader) ids(key string, required bool) []string {
	ids := r.scope.Field(key)
	if len(ids) == 0 {
		r.missing(key, required)
	}
	return ids
}

func (r *paramReader) cadence(key string, fallback calendar.Cadence, allowed ...calendar.Cadence) calendar.Cadence {
	v, ok := r.raw(key)
	if !ok {
		return fallback
	}
	c, err := calendar.ParseCadence(v)
	if err != nil {
		r.fail(key, "%v", err)
		return fallback
	}
	if len(allowed) > 0 && !slices.Contains(allowed, c) {
		r.fail(key, "cadence %s is not supported here", c)
		return fallback
	}
	return c
}

func (r *paramReader) err() error {
	return errors.Join(r.errs...)
}

func cadenceChoices(cs ...calendar.Cadence) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
