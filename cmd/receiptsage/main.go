package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/parvanovkp/receiptsage/internal/config"
	"github.com/parvanovkp/receiptsage/internal/importer"
	"github.com/parvanovkp/receiptsage/internal/ledger"
	"github.com/parvanovkp/receiptsage/internal/receipt"
	"github.com/parvanovkp/receiptsage/internal/scanning"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := ff.NewFlagSet("receiptsage")
	var (
		configPath  = fs.StringLong("config", "config.yaml", "Configuration file path")
		envPath     = fs.StringLong("env", ".env", "Path to .env file (optional)")
		receiptsDir = fs.StringLong("receipts", "", "Source directory of receipt images (overrides config)")
		dbPath      = fs.StringLong("db", "", "SQLite database path (overrides config)")
		ledgerPath  = fs.StringLong("ledger", "", "Import ledger path (overrides config)")
		provider    = fs.StringLong("provider", "", "Extraction provider: 'gemini' or 'ollama' (overrides config)")
		model       = fs.StringLong("model", "", "Extraction model name (overrides config)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY)")
		ollamaURL   = fs.StringLong("ollama-url", "", "Ollama API base URL (overrides config)")
		workers     = fs.IntLong("workers", 0, "Concurrent extraction workers (overrides config)")
	)

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("RECEIPTSAGE")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// Credentials come from the environment; a .env file is a convenience,
	// its absence is fine.
	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not load env file", "path", *envPath, "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}
	applyOverride(&cfg.Storage.ReceiptsDir, *receiptsDir)
	applyOverride(&cfg.Storage.DatabasePath, *dbPath)
	applyOverride(&cfg.Storage.LedgerPath, *ledgerPath)
	applyOverride(&cfg.Extraction.Provider, *provider)
	applyOverride(&cfg.Extraction.Model, *model)
	applyOverride(&cfg.Extraction.OllamaURL, *ollamaURL)
	if *workers > 0 {
		cfg.Import.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scanner scanning.Scanner
	switch cfg.Extraction.Provider {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key or GEMINI_API_KEY")
			return 1
		}
		slog.Info("Initializing Gemini extraction", "model", cfg.Extraction.Model)
		scanner, err = scanning.NewGemini(ctx, apiKey, cfg.Extraction.Model)
	case "ollama":
		slog.Info("Initializing Ollama extraction", "url", cfg.Extraction.OllamaURL, "model", cfg.Extraction.Model)
		scanner, err = scanning.NewOllama(cfg.Extraction.OllamaURL, cfg.Extraction.Model)
	default:
		slog.Error("Invalid extraction provider", "provider", cfg.Extraction.Provider, "valid", "gemini or ollama")
		return 1
	}
	if err != nil {
		slog.Error("Failed to initialize extraction provider", "error", err)
		return 1
	}
	defer scanner.Close()

	store, err := receipt.OpenStore(cfg.Storage.DatabasePath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		return 1
	}
	defer store.Close()

	led, err := ledger.Open(cfg.Storage.LedgerPath)
	if err != nil {
		slog.Error("Failed to open import ledger", "error", err)
		return 1
	}
	defer led.Close()

	imp := importer.New(scanner, led, store)
	imp.Workers = cfg.Import.Workers

	slog.Info("Starting import", "dir", cfg.Storage.ReceiptsDir, "workers", imp.Workers)
	summary, err := imp.Run(ctx, cfg.Storage.ReceiptsDir)
	if err != nil {
		if ledger.IsLedgerError(err) {
			slog.Error("Import aborted, ledger unusable", "error", err)
		} else {
			slog.Error("Import aborted", "error", err)
		}
		fmt.Println(summary)
		return 1
	}

	fmt.Println(summary)

	// Partial success still exits zero so unattended scheduling keeps
	// running; only a run that found work and imported nothing fails.
	if summary.Candidates() > 0 && summary.Imported == 0 && len(summary.Failed) > 0 {
		return 1
	}
	return 0
}

func applyOverride(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}
