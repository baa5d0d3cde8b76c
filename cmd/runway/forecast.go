package main

import (
	"fmt"

	"github.com/Veraticus/runway/internal/cli"
	"github.com/Veraticus/runway/internal/config"
	"github.com/Veraticus/runway/internal/rules"
	"github.com/spf13/cobra"
)

func forecastCmd() *cobra.Command {
	var weeks int

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Show the base weekly cash forecast",
		Long: `Build the weekly forecast from canonical events and the starting cash,
then check it against every rule scoped to all forecasts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if weeks == 0 {
				weeks = a.cfg.ForecastWeeks
			}
			if weeks < 1 || weeks > config.MaxForecastWeeks {
				return fmt.Errorf("--weeks must be between 1 and %d", config.MaxForecastWeeks)
			}

			f, err := a.baseline.ComputeBaseline(ctx, a.cfg.UserID, a.now(), weeks)
			if err != nil {
				return fmt.Errorf("failed to compute forecast: %w", err)
			}
			ruleSet, err := a.store.ListRules(ctx, a.cfg.UserID)
			if err != nil {
				return fmt.Errorf("failed to load rules: %w", err)
			}
			evals := rules.NewEngine().EvaluateAll(ruleSet, f, "")

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(cli.ChartIcon+" Forecast"))
			fmt.Fprintln(out, cli.RenderForecast(f))
			fmt.Fprintln(out)
			fmt.Fprintln(out, cli.RenderEvaluations(evals))
			return nil
		},
	}

	cmd.Flags().IntVarP(&weeks, "weeks", "w", 0, "forecast horizon in weeks (default: forecast.weeks)")

	return cmd
}
