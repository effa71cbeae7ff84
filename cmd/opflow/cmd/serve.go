package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opflowhq/opflow/clock"
	"github.com/opflowhq/opflow/configdoc"
	"github.com/opflowhq/opflow/httpserver"
	"github.com/opflowhq/opflow/observability"
	"github.com/opflowhq/opflow/runtime"
	"github.com/opflowhq/opflow/storage/memory"
	"github.com/opflowhq/opflow/storage/postgres"
)

var (
	configPath string
	addr       string
	devMode    bool
	pgDSN      string
)

var serveCmd = &cobra.Command{
	Use:   "serve [config]",
	Short: "Serve routes described by a configuration document",
	Long: `Serve reads a JSON or YAML configuration document, registers one
HTTP route per entry in its routes list, and runs the gin server.

Example:
  opflow serve flow-config.yaml
  opflow serve flow-config.json --addr :9090 --postgres-dsn "$DATABASE_URL"
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "flow-config.yaml", "Path to the configuration document")
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development-mode text logging")
	serveCmd.Flags().StringVar(&pgDSN, "postgres-dsn", "", "Postgres connection string; empty uses the in-memory store")
}

func runServe(_ *cobra.Command, args []string) error {
	path := configPath
	if len(args) > 0 {
		path = args[0]
	}

	observability.SetupLogging(devMode)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config %q: %w", path, err)
	}
	defer f.Close()

	doc, err := configdoc.Load(f)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("config loaded", "path", path, "routes", len(doc.Routes), "middleware", len(doc.Middleware))

	var storage runtime.StorageProvider
	if pgDSN != "" {
		store, err := postgres.Open(postgres.Config{ConnectionString: pgDSN})
		if err != nil {
			return fmt.Errorf("failed to open postgres store: %w", err)
		}
		defer store.Shutdown(context.Background())
		storage = store
		slog.Info("storage backend: postgres")
	} else {
		storage = memory.New()
		slog.Info("storage backend: in-memory")
	}

	telemetry, err := observability.Setup(context.Background(), "opflow")
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer telemetry.Shutdown(context.Background())

	resolvedAddr, err := httpserver.ResolveAddr(addr)
	if err != nil {
		return fmt.Errorf("invalid --addr: %w", err)
	}

	srv := httpserver.New(doc, storage, clock.System{})

	slog.Info("listening", "addr", resolvedAddr)
	return srv.Engine().Run(resolvedAddr)
}
