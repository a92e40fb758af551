/*
main.go - Application entry point

PURPOSE:
  Starts the personnel engine server, or runs one-off maintenance commands
  against the same database. Handles configuration, dependency injection,
  and graceful shutdown.

COMMANDS:
  serve   HTTP API with the periodic expiry sweep (default)
  sweep   Run the expiry sweep once and print the result as JSON

STARTUP SEQUENCE (serve):
  1. Load configuration (.env files, environment, flags)
  2. Initialize SQLite store
  3. Select the warning feed backend (Redis when REDIS_URL is set)
  4. Build the personnel service
  5. Start the sweep scheduler
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  --port   HTTP server port (overrides PORT)
  --db     SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler (waits for an in-flight sweep)
  4. Close cache and database connections

EXAMPLES:
  ./server serve --db="./data/personnel.db"
  ./server serve --db=":memory:" --port=3000
  ./server sweep --as-of=2025-07-02

SEE ALSO:
  - config/config.go: environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dbPath string
		port   int
	)

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Personnel identity and lifecycle engine",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")

	serve := newServeCmd(&dbPath, &port)
	serve.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides PORT)")

	cmd.AddCommand(serve, newSweepCmd(&dbPath))
	cmd.RunE = serve.RunE
	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides PORT)")
	return cmd
}
