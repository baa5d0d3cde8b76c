package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Veraticus/runway/internal/cli"
	"github.com/Veraticus/runway/internal/model"
	"github.com/spf13/cobra"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage canonical cash events",
		Long: `Canonical events are the expected future receipts and payments the
forecast is built from. Scenarios never touch them until committed.`,
		Example: `  # Import expected events from a CSV file
  runway events import forecast.csv

  # Add a single expected payment
  runway events add --date 2025-02-01 --amount 8000 --direction out --category rent

  # Show events from the forecast start onwards
  runway events list --future`,
	}

	cmd.AddCommand(importEventsCmd())
	cmd.AddCommand(listEventsCmd())
	cmd.AddCommand(addEventCmd())

	return cmd
}

func importEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv|->",
		Short: "Import events from CSV",
		Long: `Import events from a CSV file with a header row. date, amount and
direction are required; id, category, client_id, bucket_id, obligation_id,
event_type, confidence, recurrence and gate are optional. Rows with an
existing id replace that event. A file with any bad row imports nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer func() { _ = f.Close() }()
				r = f
			}

			n, err := cli.NewEventImporter(a.store, a.cfg.UserID, cmd.ErrOrStderr()).Import(ctx, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d events", n)))
			return nil
		},
	}
}

func listEventsCmd() *cobra.Command {
	var future bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var events []model.Event
			if future {
				events, err = a.store.GetFutureEvents(ctx, a.cfg.UserID, a.now())
			} else {
				events, err = a.store.ListEvents(ctx, a.cfg.UserID)
			}
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}

			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("No events found."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderEvents(events))
			return nil
		},
	}

	cmd.Flags().BoolVar(&future, "future", false, "only events dated on or after the forecast start")

	return cmd
}

func addEventCmd() *cobra.Command {
	fields := map[string]*string{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a single event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			values := make(map[string]string, len(fields))
			for col, v := range fields {
				values[col] = *v
			}
			e, err := cli.NewEventImporter(a.store, a.cfg.UserID, nil).Add(ctx, values)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Saved event "+e.ID))
			return nil
		},
	}

	for _, f := range []struct{ col, flag, usage string }{
		{"id", "id", "event id (generated when empty)"},
		{"date", "date", "event date, YYYY-MM-DD"},
		{"amount", "amount", "amount; negative means outflow when --direction is unset"},
		{"direction", "direction", "in or out"},
		{"category", "category", "category, e.g. payroll or software"},
		{"client_id", "client", "client the event belongs to"},
		{"bucket_id", "bucket", "bucket the event belongs to"},
		{"obligation_id", "obligation", "obligation the event belongs to"},
		{"event_type", "type", "event type"},
		{"confidence", "confidence", "high, medium or low"},
		{"recurrence", "recurrence", "weekly, biweekly, monthly, quarterly or one_off"},
		{"gate", "gate", "gate the event depends on"},
	} {
		fields[f.col] = cmd.Flags().String(f.flag, "", f.usage)
	}
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}
