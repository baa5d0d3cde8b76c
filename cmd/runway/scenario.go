package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/runway/internal/cli"
	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/pipeline"
	"github.com/Veraticus/runway/internal/service"
	"github.com/Veraticus/runway/internal/tui"
	"github.com/Veraticus/runway/internal/tui/themes"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func scenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scenario",
		Aliases: []string{"s"},
		Short:   "Build, compare and commit what-if scenarios",
		Long: `A scenario moves through stages: seeded, collecting parameters,
collecting linked follow-ups, applying, evaluating, and finally committed or
discarded. Nothing touches your events until commit.`,
		Example: `  # Walk through a scenario interactively
  runway scenario run client_loss

  # Or step by step
  runway scenario new client_loss
  runway scenario answer <id> scope.client_ids=acme effective_date=2025-02-01
  runway scenario link <id> reduce_contractors monthly_reduction=1000
  runway scenario skip <id> reduce_tools
  runway scenario apply <id> --tui
  runway scenario commit <id>`,
	}

	cmd.AddCommand(scenarioTypesCmd())
	cmd.AddCommand(newScenarioCmd())
	cmd.AddCommand(answerScenarioCmd())
	cmd.AddCommand(linkScenarioCmd())
	cmd.AddCommand(skipScenarioCmd())
	cmd.AddCommand(showScenarioCmd())
	cmd.AddCommand(listScenariosCmd())
	cmd.AddCommand(applyScenarioCmd())
	cmd.AddCommand(commitScenarioCmd())
	cmd.AddCommand(discardScenarioCmd())
	cmd.AddCommand(runScenarioCmd())

	return cmd
}

// withApp opens the app for a subcommand and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		return fn(cmd, a, args)
	}
}

func printScenario(w io.Writer, def *model.ScenarioDefinition, res pipeline.Result) {
	fmt.Fprintln(w, cli.RenderScenario(def, res))
}

func scenarioTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List scenario types and what they ask for",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderScenarioTypes(a.orch.Registry()))
			return nil
		}),
	}
}

func newScenarioCmd() *cobra.Command {
	var entry string

	cmd := &cobra.Command{
		Use:   "new <type>",
		Short: "Start a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			def, res, err := a.orch.Seed(cmd.Context(), a.cfg.UserID, model.ScenarioType(args[0]), model.EntryPath(entry))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Started scenario "+def.ID))
			printScenario(cmd.OutOrStdout(), def, res)
			return nil
		}),
	}

	cmd.Flags().StringVar(&entry, "entry", string(model.EntryManual), "how the scenario was started: manual or suggested")

	return cmd
}

func answerScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <id> key=value...",
		Short: "Answer scenario parameters",
		Long: `Answer one or more parameters. Scope keys (scope.client_ids,
scope.bucket_ids, scope.event_ids) take comma-separated ids. If any answer is
invalid none are stored. Answering an evaluated scenario discards its delta;
apply again to see the new result.`,
		Args: cobra.MinimumNArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			answers, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := a.orch.SubmitAnswers(ctx, args[0], answers); err != nil {
				return err
			}
			def, res, err := a.orch.Get(ctx, args[0])
			if err != nil {
				return err
			}
			printScenario(cmd.OutOrStdout(), def, res)
			return nil
		}),
	}
}

func linkScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <id> <linked-type> [key=value...]",
		Short: "Accept a linked follow-up with its answers",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			params, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := a.orch.AnswerLinked(ctx, args[0], model.LinkedType(args[1]), params); err != nil {
				return err
			}
			def, res, err := a.orch.Get(ctx, args[0])
			if err != nil {
				return err
			}
			printScenario(cmd.OutOrStdout(), def, res)
			return nil
		}),
	}
}

func skipScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip <id> <linked-type>",
		Short: "Decline a linked follow-up",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if _, err := a.orch.SkipLinked(ctx, args[0], model.LinkedType(args[1])); err != nil {
				return err
			}
			def, res, err := a.orch.Get(ctx, args[0])
			if err != nil {
				return err
			}
			printScenario(cmd.OutOrStdout(), def, res)
			return nil
		}),
	}
}

func showScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a scenario and what it still needs",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			def, res, err := a.orch.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printScenario(cmd.OutOrStdout(), def, res)
			return nil
		}),
	}
}

func listScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scenarios",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			defs, err := a.orch.List(cmd.Context(), a.cfg.UserID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderScenarios(defs))
			return nil
		}),
	}
}

func applyScenarioCmd() *cobra.Command {
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "apply <id>",
		Short: "Compute the scenario against the current forecast",
		Long: `Compute the scenario's delta, layer it over the base forecast, and
evaluate every rule against both. Applying again recomputes from scratch.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			res, err := a.orch.Apply(cmd.Context(), args[0])
			if err != nil {
				var incomplete *common.IncompleteScenarioError
				if errors.As(err, &incomplete) {
					return common.NewUserError("Answer the rest with: runway scenario answer "+args[0]+" key=value", err)
				}
				return err
			}
			if useTUI {
				return tui.Run(cmd.Context(), res, tui.Options{
					Input:     cmd.InOrStdin(),
					Output:    cmd.OutOrStdout(),
					Theme:     themes.ByName(viper.GetString("ui.theme")),
					AltScreen: true,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderApplyResult(res))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&useTUI, "tui", false, "browse the result in an interactive viewer")

	return cmd
}

// commit snapshots the database, then commits with retries for a busy store.
func commit(ctx context.Context, a *app, w io.Writer, id string) error {
	def, _, err := a.orch.Get(ctx, id)
	if err != nil {
		return err
	}
	if def.Stage == model.StageCommitted {
		fmt.Fprintln(w, cli.FormatInfo("Scenario "+id+" is already committed"))
		return nil
	}

	manager, err := a.store.NewCheckpointManager()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	info, err := manager.AutoCheckpoint(ctx, "commit-"+id)
	if err != nil {
		return fmt.Errorf("failed to checkpoint before commit: %w", err)
	}
	slog.Debug("Created pre-commit checkpoint", "checkpoint", info.ID, "scenario_id", id)

	err = common.WithRetry(ctx, func() error {
		return a.orch.Commit(ctx, id)
	}, service.RetryOptions{MaxAttempts: 3})
	if err != nil {
		if errors.Is(err, common.ErrCommitConflict) {
			return common.NewUserError("Events changed since apply. Re-run: runway scenario apply "+id, err)
		}
		return err
	}

	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Committed scenario %s (checkpoint %s)", id, info.ID)))
	return nil
}

func commitScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <id>",
		Short: "Write an evaluated scenario into canonical events",
		Long: `Commit writes the scenario's delta into your events in one
transaction. A checkpoint is taken first so the commit can be undone with
"runway checkpoint restore". Committing twice is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			return commit(cmd.Context(), a, cmd.OutOrStdout(), args[0])
		}),
	}
}

func discardScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Abandon a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.orch.Discard(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Discarded scenario "+args[0]))
			return nil
		}),
	}
}

func runScenarioCmd() *cobra.Command {
	var (
		skipOptional bool
		autoCommit   bool
	)

	cmd := &cobra.Command{
		Use:   "run <type|id>",
		Short: "Walk through a scenario interactively",
		Long: `Start a scenario of the given type, or resume one by id, answer its
prompts, apply it and decide whether to commit. Interrupting keeps every
answer given so far.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			out := cmd.OutOrStdout()

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, stop := handler.HandleInterrupts(cmd.Context())
			defer stop()

			id := args[0]
			if t := model.ScenarioType(args[0]); t.Valid() {
				def, _, err := a.orch.Seed(ctx, a.cfg.UserID, t, model.EntryManual)
				if err != nil {
					return err
				}
				id = def.ID
				fmt.Fprintln(out, cli.FormatInfo("Started scenario "+id))
			}
			handler.SetResumeHint("runway scenario run " + id)

			prompter := cli.NewPrompter(cmd.InOrStdin(), out)
			session := cli.NewSession(a.orch, prompter)
			session.AskOptional = !skipOptional

			if _, err := session.Collect(ctx, id); err != nil {
				if handler.WasInterrupted() {
					return nil
				}
				return err
			}

			res, err := a.orch.Apply(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, cli.RenderApplyResult(res))

			ok := autoCommit
			if !ok {
				ok, err = prompter.Confirm(ctx, "Commit this scenario to your events?", false)
				if err != nil {
					if handler.WasInterrupted() {
						return nil
					}
					return err
				}
			}
			if !ok {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Left %s for review. Commit later with: runway scenario commit %s", id, id)))
				return nil
			}
			return commit(ctx, a, out, id)
		}),
	}

	cmd.Flags().BoolVar(&skipOptional, "skip-optional", false, "do not ask optional parameters")
	cmd.Flags().BoolVar(&autoCommit, "yes", false, "commit without asking")

	return cmd
}
