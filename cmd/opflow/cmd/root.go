package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "opflow",
	Short: "opflow - declarative JSON-operator web server",
	Long: `opflow serves routes described by a declarative configuration document:
each route's pipeline and response are built from a small, closed set of
JSON operators rather than arbitrary code.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}
