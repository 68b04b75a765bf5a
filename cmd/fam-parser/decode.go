package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/twinfer/fam-parser/pkg/fam"
)

func newDecodeCmd() *cobra.Command {
	decodeCmd := &cobra.Command{
		Use:   "decode <file.fam>",
		Short: "Decode a FAM file",
		Long: `Decode a FAM file and write the result as YAML, or JSON with --json.

Example:
  fam-parser decode family.fam
  fam-parser decode --json -o family.json family.fam`,
		Args: cobra.ExactArgs(1),
		RunE: runDecode,
	}
	decodeCmd.Flags().Bool("json", false, "Write JSON instead of YAML")
	decodeCmd.Flags().String("schema", "", "Schema file to decode with instead of the built-in one")
	decodeCmd.Flags().Bool("debug", false, "Keep unnamed fields and print decoding statistics to stderr")
	decodeCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	decodeCmd.Flags().Int("max-iterations", 0, "Upper bound for every repeated group (0 keeps the default)")
	return decodeCmd
}

func runDecode(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	schemaPath, _ := cmd.Flags().GetString("schema")
	debug, _ := cmd.Flags().GetBool("debug")
	outputPath, _ := cmd.Flags().GetString("output")
	maxIterations, _ := cmd.Flags().GetInt("max-iterations")

	opts := []fam.Option{
		fam.WithLogger(newLogger(cmd, cmd.ErrOrStderr())),
		fam.WithDebugMode(debug),
	}
	if schemaPath != "" {
		opts = append(opts, fam.WithSchemaFile(schemaPath))
	}
	if maxIterations > 0 {
		opts = append(opts, fam.WithMaxIterations(maxIterations))
	}

	tree, err := fam.NewParser(opts...).ParseFile(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("decoding %s: %w", args[0], err)
	}

	var out []byte
	if asJSON {
		out, err = tree.JSON()
		out = append(out, '\n')
	} else {
		out, err = tree.YAML()
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if debug {
		writeStatistics(cmd.ErrOrStderr(), tree)
	}
	return nil
}

// writeStatistics reports how far decoding got and how much of the file was
// understood, followed by the internal fields.
func writeStatistics(w io.Writer, tree *fam.Tree) {
	fmt.Fprintf(w, "Reached byte %d out of %d.\n", tree.Offset, tree.Size)
	if tree.Size > 0 {
		parsed := float64(tree.Offset-tree.SkippedBytes) / float64(tree.Size) * 100
		fmt.Fprintf(w, "%.2f%% of the file was parsed.\n", parsed)
	}

	fmt.Fprintln(w, "\nInternal variables:")
	for _, key := range slices.Sorted(maps.Keys(tree.Internal)) {
		fmt.Fprintf(w, "- %s: %v\n", key, tree.Internal[key])
	}
}
