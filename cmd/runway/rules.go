package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Veraticus/runway/internal/cli"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/rules"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage financial rules",
		Long: `Rules are checks run against every forecast: keep a cash buffer, keep
some runway, avoid payment clusters, limit client concentration, never go
negative.`,
		Example: `  # Keep at least $5,000 on hand
  runway rules add --name "Buffer" --type cash_buffer --severity critical --threshold min_balance=5000

  # Load rules from a YAML file and keep them in sync while editing
  runway rules load rules.yaml
  runway rules watch rules.yaml`,
	}

	cmd.AddCommand(addRuleCmd())
	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(loadRulesCmd())
	cmd.AddCommand(deleteRuleCmd())
	cmd.AddCommand(watchRulesCmd())

	return cmd
}

func addRuleCmd() *cobra.Command {
	var (
		id, name, ruleType, severity, scope string
		threshold                           map[string]string
		inactive                            bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a rule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if id == "" {
				id = uuid.NewString()
			}
			rule := model.FinancialRule{
				ID:              id,
				UserID:          a.cfg.UserID,
				Name:            name,
				RuleType:        model.RuleType(ruleType),
				Severity:        model.Severity(severity),
				EvaluationScope: scope,
				IsActive:        !inactive,
				CreatedAt:       time.Now().UTC(),
				Threshold:       make(map[string]decimal.Decimal, len(threshold)),
			}
			for k, v := range threshold {
				d, err := decimal.NewFromString(v)
				if err != nil {
					return fmt.Errorf("threshold %s: %q is not a number", k, v)
				}
				rule.Threshold[k] = d
			}
			if err := rules.Validate(rule); err != nil {
				return err
			}

			if err := a.store.SaveRule(ctx, &rule); err != nil {
				return fmt.Errorf("failed to save rule: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Saved rule %s: %s", rule.ID, rules.Describe(rule))))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "rule id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&ruleType, "type", "", "cash_buffer, runway, payment_clustering, concentration or negative_week")
	cmd.Flags().StringVar(&severity, "severity", string(model.SeverityWarning), "info, warning or critical")
	cmd.Flags().StringVar(&scope, "scope", model.ScopeAll, "all, or a scenario id")
	cmd.Flags().StringToStringVar(&threshold, "threshold", nil, "threshold values, e.g. min_balance=5000")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "save the rule switched off")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func listRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ruleSet, err := a.store.ListRules(ctx, a.cfg.UserID)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			if len(ruleSet) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("No rules configured."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderRules(ruleSet, rules.Describe))
			return nil
		},
	}
}

func deleteRuleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.DeleteRule(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete rule %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted rule "+args[0]))
			return nil
		},
	}
}

// rulesPath picks the file argument, falling back to rules.file.
func rulesPath(a *app, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if a.cfg.RulesFile == "" {
		return "", errors.New("no rules file given and rules.file is not configured")
	}
	return a.cfg.RulesFile, nil
}

func loadRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [file.yaml]",
		Short: "Load rules from a YAML file",
		Long: `Save every rule in a YAML rules file, replacing rules with the same id.
The whole file is rejected if any rule is invalid.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			path, err := rulesPath(a, args)
			if err != nil {
				return err
			}
			loader, err := rules.NewLoader(path, a.cfg.UserID)
			if err != nil {
				return err
			}
			n, err := saveRules(cmd, a, loader.Rules())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Loaded %d rules from %s", n, path)))
			return nil
		},
	}
}

func watchRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [file.yaml]",
		Short: "Keep stored rules in sync with a YAML file",
		Long: `Load a rules file, then reload it every time it changes until
interrupted. An edit that fails to parse keeps the previous rules.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			path, err := rulesPath(a, args)
			if err != nil {
				return err
			}
			loader, err := rules.NewLoader(path, a.cfg.UserID)
			if err != nil {
				return err
			}
			if err := syncRules(cmd, a, loader.Rules()); err != nil {
				return err
			}

			loader.OnChange(func(updated []model.FinancialRule) {
				if err := syncRules(cmd, a, updated); err != nil {
					slog.Warn("Failed to apply reloaded rules", "path", path, "error", err)
				}
			})
			stop, err := loader.Watch()
			if err != nil {
				return err
			}
			defer stop()

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Watching "+path+" (Ctrl+C to stop)"))
			<-ctx.Done()
			return nil
		},
	}
}

func saveRules(cmd *cobra.Command, a *app, ruleSet []model.FinancialRule) (int, error) {
	sort.Slice(ruleSet, func(i, j int) bool { return ruleSet[i].ID < ruleSet[j].ID })
	for i := range ruleSet {
		if ruleSet[i].CreatedAt.IsZero() {
			ruleSet[i].CreatedAt = time.Now().UTC()
		}
		if err := a.store.SaveRule(cmd.Context(), &ruleSet[i]); err != nil {
			return i, fmt.Errorf("failed to save rule %s: %w", ruleSet[i].ID, err)
		}
	}
	return len(ruleSet), nil
}

// syncRules stores ruleSet and shows how the base forecast fares against it.
func syncRules(cmd *cobra.Command, a *app, ruleSet []model.FinancialRule) error {
	n, err := saveRules(cmd, a, ruleSet)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	f, err := a.baseline.ComputeBaseline(ctx, a.cfg.UserID, a.now(), a.cfg.ForecastWeeks)
	if err != nil {
		return fmt.Errorf("failed to compute forecast: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Loaded %d rules", n)))
	fmt.Fprintln(out, cli.RenderEvaluations(rules.NewEngine().EvaluateAll(ruleSet, f, "")))
	return nil
}
