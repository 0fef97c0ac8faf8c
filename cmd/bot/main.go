package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nekkiwi/InsiderAlgoBot/internal/broker"
	"github.com/nekkiwi/InsiderAlgoBot/internal/config"
	"github.com/nekkiwi/InsiderAlgoBot/internal/ledger"
	"github.com/nekkiwi/InsiderAlgoBot/internal/quotes"
	"github.com/nekkiwi/InsiderAlgoBot/internal/retry"
	signals "github.com/nekkiwi/InsiderAlgoBot/internal/signal"
	"github.com/nekkiwi/InsiderAlgoBot/internal/trader"
)

func main() {
	var configPath string
	var resultsPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&resultsPath, "results", "results.csv", "Path to inference results CSV")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.Printf("Starting InsiderAlgoBot in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Println("PAPER TRADING MODE - No real money at risk")
	} else {
		logger.Println("LIVE TRADING MODE - Real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	// One pass per invocation; the scheduler that launches the process owns
	// the cadence. A shutdown signal cancels in-flight broker calls.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	if err := run(ctx, cfg, resultsPath, logger); err != nil {
		logger.Fatalf("Trader error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, resultsPath string, logger *logrus.Logger) error {
	start := time.Now()
	runID := uuid.NewString()[:8]
	logger.Printf("### START ### Alpaca Trader (run %s)", runID)
	defer func() {
		logger.Printf("### END ### Elapsed: %s (run %s)", time.Since(start).Round(time.Second), runID)
	}()

	candidates, err := signals.ReadResultsCSV(resultsPath)
	if err != nil {
		return err
	}
	logger.Printf("Loaded %d scored candidates from %s", len(candidates), resultsPath)

	store, err := newLedgerStore(cfg, logger)
	if err != nil {
		return err
	}

	var provider quotes.Provider
	if cfg.Quotes.Enabled {
		provider = quotes.NewClient(cfg.Quotes.APIEndpoint)
	}

	b := newBroker(cfg)
	return trader.New(cfg, b, store, provider, logger).Run(ctx, candidates)
}

func newBroker(cfg *config.Config) broker.Broker {
	api := broker.NewAlpacaAPIWithBaseURLs(
		cfg.Broker.APIKey,
		cfg.Broker.APISecret,
		cfg.IsPaperTrading(),
		cfg.Broker.APIEndpoint,
		cfg.Broker.DataEndpoint,
	)
	return broker.NewCircuitBreakerBroker(api)
}

func newLedgerStore(cfg *config.Config, logger *logrus.Logger) (ledger.Store, error) {
	var store ledger.Store
	switch cfg.Ledger.Provider {
	case "sheets":
		store = ledger.NewSheetsStoreWithBaseURL(
			cfg.Ledger.SpreadsheetID, cfg.Ledger.AccessToken, cfg.Ledger.APIEndpoint)
	case "file":
		fs, err := ledger.NewFileStore(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("creating file ledger: %w", err)
		}
		store = fs
	default:
		return nil, fmt.Errorf("unknown ledger provider %q", cfg.Ledger.Provider)
	}
	return retry.NewStore(store, logger), nil
}
