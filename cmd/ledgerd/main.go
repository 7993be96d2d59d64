// Package main provides ledgerd, a batch CSV-to-balances ledger runner.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klingon-exchange/ledger-engine/internal/config"
	"github.com/klingon-exchange/ledger-engine/internal/ingest"
	"github.com/klingon-exchange/ledger-engine/internal/ledger"
	"github.com/klingon-exchange/ledger-engine/internal/storage/memory"
	"github.com/klingon-exchange/ledger-engine/internal/storage/sqlitestore"
	"github.com/klingon-exchange/ledger-engine/pkg/helpers"
	"github.com/klingon-exchange/ledger-engine/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.ledgerd", "Data directory")
		backendFlag = flag.String("backend", "", "Storage backend (memory, sqlite), overrides config")
		input       = flag.String("input", "", "Path to input CSV file (required)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ledgerd %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*dataDir)
	if err != nil {
		logging.Fatal("Failed to load config", "error", err)
	}
	cfg.Storage.DataDir = *dataDir
	if *backendFlag != "" {
		cfg.Storage.Backend = config.Backend(*backendFlag)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log := logging.New(&logging.Config{Level: cfg.Logging.Level})
	logging.SetDefault(log)

	if *input == "" {
		log.Fatal("Missing required -input flag")
	}

	log.Info("Config loaded", "path", config.ConfigPath(*dataDir))

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer closeStore()
	log.Info("Storage initialized", "backend", cfg.Storage.Backend)

	l := ledger.New(store)

	f, err := os.Open(*input)
	if err != nil {
		log.Fatal("Failed to open input file", "path", *input, "error", err)
	}
	defer f.Close()

	stats, err := ingest.Run(l, f)
	if err != nil {
		log.Fatal("Ingestion failed", "error", err)
	}
	log.Info("Ingestion complete", "processed", stats.Processed, "skipped", stats.Skipped)

	if err := writeBalances(os.Stdout, l, cfg.Amount.Decimals); err != nil {
		log.Fatal("Failed to write balances", "error", err)
	}
}

// openStore opens the configured storage backend and returns its
// Storage and a close function. Both are returned so main can defer
// the close without type-switching at the call site.
func openStore(cfg *config.Config) (ledger.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		// Resolve the data directory the same way the config file's
		// location is resolved, so a leading ~ is expanded.
		dbPath := filepath.Join(filepath.Dir(config.ConfigPath(cfg.Storage.DataDir)), "ledger.db")
		store, err := sqlitestore.Open(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, func() { store.Close() }, nil
	case config.BackendMemory, "":
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// writeBalances writes each account's available (Main sub-account)
// balance as a "account,available" CSV row, sorted by account id.
func writeBalances(w *os.File, l *ledger.Ledger, decimals uint8) error {
	balances, err := l.GetBalances()
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	accounts := make([]ledger.AccountId, 0, len(balances))
	for account := range balances {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"account", "available"}); err != nil {
		return err
	}
	for _, account := range accounts {
		row := []string{
			fmt.Sprintf("%d", account),
			helpers.FormatAmount(uint64(balances[account]), decimals),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
