package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/config"
	"github.com/Veraticus/runway/internal/forecast"
	"github.com/Veraticus/runway/internal/pipeline"
	"github.com/Veraticus/runway/internal/scenario"
	"github.com/Veraticus/runway/internal/storage"
	"github.com/spf13/viper"
)

// app bundles what most commands need: resolved config, the store and an
// orchestrator wired to it.
type app struct {
	cfg      *config.Config
	store    *storage.SQLiteStorage
	baseline *forecast.Baseline
	orch     *pipeline.Orchestrator
	now      func() time.Time
}

// openApp loads config and opens the migrated database.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	now, err := clock()
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	baseline := forecast.NewBaseline(store, store)
	orch := pipeline.NewWithConfig(store, baseline, scenario.NewRegistry(), pipeline.Config{
		Now:           now,
		ForecastWeeks: cfg.ForecastWeeks,
	})

	return &app{cfg: cfg, store: store, baseline: baseline, orch: orch, now: now}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// clock returns time.Now, or a fixed instant when --as-of is given.
func clock() (func() time.Time, error) {
	raw := strings.TrimSpace(viper.GetString("forecast.as_of"))
	if raw == "" {
		return time.Now, nil
	}
	asOf, err := calendar.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --as-of: %w", err)
	}
	return func() time.Time { return asOf }, nil
}

// parseAssignments turns key=value arguments into a map.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
