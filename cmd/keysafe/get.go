package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artilugio0/keysafe"
	"github.com/spf13/cobra"
)

var errKeyNotFound = errors.New("not found")

func newGetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "print the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			value, found, err := keysafe.Get[any](cmd.Context(), a.store, key)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s: %w", key, errKeyNotFound)
			}

			out, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	return cmd
}
