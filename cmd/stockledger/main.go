/*
main.go - Application entry point

PURPOSE:
  The stockledger binary. Runs the HTTP server and offers one-shot
  commands for the kitchen office: print levels, take a snapshot, seed
  the catalog, read reports.

COMMANDS:
  serve      Start the HTTP API with graceful shutdown
  levels     Print stock levels (--low for low stock only)
  history    Print one ingredient's movement history
  verify     Replay one ingredient's history against its stock
  snapshot   Take a snapshot (--list to list existing ones)
  report     inventory | low-stock | high-value | monthly
  seed       Load a catalog file with opening stock (-f catalog.yaml)

CONFIGURATION:
  Environment variables, .env and config.yaml are read by the config
  package. Flags override them:
    --config     explicit config file (must exist)
    --db         SQLite database path (":memory:" for a throwaway ledger)
    --log-level  trace, debug, info, warn, error

EXAMPLES:
  stockledger seed -f kitchen.yaml
  stockledger levels --low
  stockledger history 3 --type purchase --start 2025-03-01
  stockledger serve --port 3000

SEE ALSO:
  - serve.go: Server startup and graceful shutdown
  - commands.go: One-shot commands
  - config/config.go: Settings and defaults
*/
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/logger"
	"github.com/warp/stock-ledger/store/sqlite"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	configFile string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "stockledger",
	Short: "Restaurant inventory ledger",
	Long: `stockledger keeps per-ingredient stock levels, an append-only movement
history and point-in-time snapshots in a local SQLite file.

Run 'stockledger serve' for the HTTP API, or use the one-shot commands
below from the kitchen office.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Config file (default: ./.env and ./config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "",
		"SQLite database path (overrides LEDGER_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(levelsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app is everything a command needs, opened from configuration.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	store  *sqlite.Store
	ledger *ledger.Ledger
}

// openApp loads configuration, applies flag overrides and opens the ledger.
// Logs go to logOut so command output on stdout stays clean.
func openApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel}, logOut)

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DB.Path, err)
	}

	l := ledger.New(store,
		ledger.WithLogger(log.Component("ledger")),
		ledger.WithReportWindow(cfg.Report.WindowDays),
	)
	return &app{cfg: cfg, log: log, store: store, ledger: l}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
