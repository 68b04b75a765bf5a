package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twinfer/fam-parser/pkg/fam"
)

func newValidateSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-schema [schema.yml]",
		Short: "Check a schema file without decoding data",
		Long: `Load and compile a schema. Without an argument the built-in schema is
checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser := fam.NewParser(fam.WithLogger(newLogger(cmd, cmd.ErrOrStderr())))
			name := "built-in schema"
			var err error
			if len(args) == 1 {
				name = args[0]
				err = parser.ValidateSchema(fam.WithSchemaFile(args[0]))
			} else {
				err = parser.ValidateSchema()
			}
			if err != nil {
				return fmt.Errorf("invalid schema %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", name)
			return nil
		},
	}
}
