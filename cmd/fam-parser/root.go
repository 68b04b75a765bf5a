package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fam-parser",
		Short: "Decode FAM pedigree files",
		Long: `fam-parser decodes FAM pedigree files into JSON or YAML.

The file layout is described by a YAML schema. The built-in schema is used
unless --schema points at another one.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "Log decoding progress to stderr")

	rootCmd.AddCommand(newDecodeCmd(), newValidateSchemaCmd())
	return rootCmd
}

// newLogger returns a text logger on w. Decoding progress is only logged
// with --verbose.
func newLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
