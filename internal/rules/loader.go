package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RuleSpec is one rule as written in a rules file.
type RuleSpec struct {
	Threshold map[string]string `yaml:"threshold"`
	Active    *bool             `yaml:"active"`
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"`
	Severity  string            `yaml:"severity"`
	Scope     string            `yaml:"scope"`
}

// RuleFile is the top-level document of a rules file.
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// ToRules converts the file into validated rules owned by userID. Every invalid
// entry is reported; nothing is returned unless all entries are valid.
func (f *RuleFile) ToRules(userID string) ([]model.FinancialRule, error) {
	var errs []error
	seen := make(map[string]bool)
	out := make([]model.FinancialRule, 0, len(f.Rules))
	for i, spec := range f.Rules {
		rule, err := spec.toRule(userID)
		if err == nil && seen[rule.ID] {
			err = common.NewValidationError("id", "duplicate rule id %q", rule.ID)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i+1, err))
			continue
		}
		seen[rule.ID] = true
		out = append(out, rule)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (s RuleSpec) toRule(userID string) (model.FinancialRule, error) {
	if s.ID == "" {
		return model.FinancialRule{}, common.NewValidationError("id", "is required")
	}
	rule := model.FinancialRule{
		ID:              s.ID,
		UserID:          userID,
		Name:            s.Name,
		RuleType:        model.RuleType(s.Type),
		Severity:        model.Severity(s.Severity),
		EvaluationScope: s.Scope,
		IsActive:        s.Active == nil || *s.Active,
		Threshold:       make(map[string]decimal.Decimal, len(s.Threshold)),
	}
	if rule.Severity == "" {
		rule.Severity = model.SeverityWarning
	}
	if rule.EvaluationScope == "" {
		rule.EvaluationScope = model.ScopeAll
	}

	keys := make([]string, 0, len(s.Threshold))
	for k := range s.Threshold {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := decimal.NewFromString(s.Threshold[k])
		if err != nil {
			return model.FinancialRule{}, common.NewValidationError("threshold."+k, "%q is not a number", s.Threshold[k])
		}
		rule.Threshold[k] = v
	}
	if err := Validate(rule); err != nil {
		return model.FinancialRule{}, err
	}
	return rule, nil
}

// Parse decodes a rules document.
func Parse(data []byte) (*RuleFile, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &file, nil
}

// Loader reads a YAML rules file and watches it for changes.
type Loader struct {
	current  []model.FinancialRule
	onChange []func([]model.FinancialRule)
	path     string
	userID   string
	mu       sync.RWMutex
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path, userID string) (*Loader, error) {
	l := &Loader{path: path, userID: userID}
	rules, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = rules
	return l, nil
}

// Rules returns the most recently loaded rules.
func (l *Loader) Rules() []model.FinancialRule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.FinancialRule(nil), l.current...)
}

// OnChange registers a callback invoked whenever the rules reload.
func (l *Loader) OnChange(fn func([]model.FinancialRule)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that reloads the rules on file changes.
// A file that fails to parse leaves the previous rules in place.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rules watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("rules watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						slog.Warn("Keeping previous rules", "path", l.path, "error", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("Rules watcher error", "path", l.path, "error", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the rules file.
func (l *Loader) Reload() ([]model.FinancialRule, error) {
	rules, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = rules
	callbacks := make([]func([]model.FinancialRule), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	slog.Info("Loaded rules", "path", l.path, "count", len(rules))
	for _, fn := range callbacks {
		fn(append([]model.FinancialRule(nil), rules...))
	}
	return rules, nil
}

func (l *Loader) load() ([]model.FinancialRule, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", l.path, err)
	}
	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	rules, err := file.ToRules(l.userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	return rules, nil
}
