package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var outputFormat string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "onboardctl",
		Short: "Operate the onboarding service",
		Long: `onboardctl inspects workflow templates, runs SLA sweeps against the
configured store and issues bearer tokens. It reads the same environment
(and .env file) as the service.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json, table")

	rootCmd.AddCommand(newTemplatesCommand())
	rootCmd.AddCommand(newSLACommand())
	rootCmd.AddCommand(newTokenCommand())
	return rootCmd
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
