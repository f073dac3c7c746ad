package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// printSection writes a titled block of status lines. An empty title prints
// the lines alone.
func printSection(w io.Writer, title string, lines []string, colorize bool) {
	if title != "" {
		for _, line := range renderSectionHeader(title, colorize) {
			fmt.Fprintln(w, line)
		}
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
