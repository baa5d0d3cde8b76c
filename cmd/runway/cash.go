package main

import (
	"fmt"

	"github.com/Veraticus/runway/internal/cli"
	"github.com/Veraticus/runway/internal/scenario"
	"github.com/spf13/cobra"
)

func cashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cash",
		Short: "Manage the starting cash position",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <amount>",
		Short: "Set the cash on hand the forecast starts from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := scenario.ParseSignedAmount(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.SetStartingCash(ctx, a.cfg.UserID, amount); err != nil {
				return fmt.Errorf("failed to set starting cash: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Starting cash set to "+cli.FormatMoney(amount)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the starting cash position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			amount, err := a.store.GetStartingCash(ctx, a.cfg.UserID)
			if err != nil {
				return fmt.Errorf("failed to read starting cash: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatMoney(amount))
			return nil
		},
	})

	return cmd
}
