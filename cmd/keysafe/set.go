package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/artilugio0/keysafe"
	"github.com/spf13/cobra"
)

func newSetCommand(a *app) *cobra.Command {
	var (
		raw bool
	)

	cmd := &cobra.Command{
		Use:   "set KEY [VALUE]",
		Short: "store a value under a key, replacing any previous one",
		Long: `Store VALUE under KEY. VALUE is a JSON document; when it is omitted it
is read from standard input. With --string the input is stored as a plain
string instead of being parsed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			var input string
			if len(args) == 2 {
				input = args[1]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read value: %w", err)
				}
				input = strings.TrimRight(string(data), "\r\n")
			}

			value, err := parseValue(input, raw)
			if err != nil {
				return err
			}

			return keysafe.Set(cmd.Context(), a.store, key, value)
		},
	}

	cmd.Flags().BoolVarP(&raw, "string", "s", false, "Store the value as a plain string")

	return cmd
}

func parseValue(input string, raw bool) (any, error) {
	if raw {
		return input, nil
	}

	dec := json.NewDecoder(strings.NewReader(input))

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("value is not a JSON document (use --string for plain text): %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("value has trailing data after the JSON document")
	}
	return value, nil
}
