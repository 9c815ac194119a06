package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCommand(a *app) *cobra.Command {
	var (
		yes bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "remove every entry of the configured class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("clear removes every entry of class %q; pass --yes to confirm", a.store.Class())
			}

			if err := a.store.Clear(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cleared class %q\n", a.store.Class())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removal")

	return cmd
}
