package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opflowhq/opflow/configdoc"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config]",
	Short: "Parse a configuration document and report its shape",
	Long: `Validate parses a JSON or YAML configuration document the same way
serve does, without starting the HTTP server, and reports the route,
middleware and database schema counts it found.

Example:
  opflow validate flow-config.yaml
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&configPath, "config", "flow-config.yaml", "Path to the configuration document")
}

func runValidate(_ *cobra.Command, args []string) error {
	path := configPath
	if len(args) > 0 {
		path = args[0]
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config %q: %w", path, err)
	}
	defer f.Close()

	doc, err := configdoc.Load(f)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("✓ %s is valid\n", path)
	fmt.Printf("  routes:     %d\n", len(doc.Routes))
	fmt.Printf("  middleware: %d\n", len(doc.Middleware))
	if doc.Database != nil {
		fmt.Printf("  schemas:    %d\n", len(doc.Database.Schemas))
	}
	for _, route := range doc.Routes {
		fmt.Printf("    %-7s %s\n", route.Method, route.Path)
	}
	return nil
}
