// auditledger - A utility to audit broker positions vs the strategy ledger.
// This helps identify discrepancies between what the ledger claims the
// strategy owns and what's actually held in the broker account.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/nekkiwi/InsiderAlgoBot/internal/broker"
	"github.com/nekkiwi/InsiderAlgoBot/internal/config"
	"github.com/nekkiwi/InsiderAlgoBot/internal/ledger"
)

// AuditResult compares the broker's position list with the ledger channel's
// owned-ticker set.
type AuditResult struct {
	Channel string   `json:"channel"`
	Held    []string `json:"held"`
	Owned   []string `json:"owned"`
	// ForeignHeld are held at the broker but never bought on this channel:
	// positions belonging to another strategy or a manual trade.
	ForeignHeld []string `json:"foreign_held"`
	// MissingHeld are claimed by the ledger but no longer held: already sold,
	// or sold out from under the bot.
	MissingHeld []string `json:"missing_held"`
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		jsonOutput = flag.Bool("json", false, "Output results as JSON")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *verbose {
		fmt.Printf("Using config: %s\n", *configPath)
		fmt.Printf("Mode: %s, ledger provider: %s\n", cfg.Environment.Mode, cfg.Ledger.Provider)
		fmt.Printf("Channel: %s\n\n", cfg.Channel())
	}

	api := broker.NewAlpacaAPIWithBaseURLs(
		cfg.Broker.APIKey,
		cfg.Broker.APISecret,
		cfg.IsPaperTrading(),
		cfg.Broker.APIEndpoint,
		cfg.Broker.DataEndpoint,
	)

	var store ledger.Store
	switch cfg.Ledger.Provider {
	case "sheets":
		store = ledger.NewSheetsStoreWithBaseURL(
			cfg.Ledger.SpreadsheetID, cfg.Ledger.AccessToken, cfg.Ledger.APIEndpoint)
	case "file":
		fs, err := ledger.NewFileStore(cfg.Ledger.Path)
		if err != nil {
			log.Fatalf("Failed to open file ledger: %v", err)
		}
		store = fs
	default:
		log.Fatalf("Unknown ledger provider %q", cfg.Ledger.Provider)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Auditing broker positions against ledger channel %q...\n", cfg.Channel())
	audit, err := runAudit(ctx, api, store, cfg.Channel())
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}

	if *jsonOutput {
		output, err := json.MarshalIndent(audit, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal JSON: %v", err)
		}
		fmt.Println(string(output))
		return
	}

	fmt.Printf("\nHeld at broker:  %v\n", audit.Held)
	fmt.Printf("Owned per ledger: %v\n\n", audit.Owned)

	fmt.Printf("=== ANALYSIS ===\n")
	issues := analyzeAudit(audit)
	if len(issues) == 0 {
		fmt.Printf("No discrepancies detected.\n")
		return
	}
	fmt.Printf("POTENTIAL ISSUES FOUND:\n")
	for i, issue := range issues {
		fmt.Printf("  %d. %s\n", i+1, issue)
	}
}

func runAudit(ctx context.Context, b broker.Broker, store ledger.Store, channel string) (*AuditResult, error) {
	positions, err := b.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	owned, err := ledger.OwnedTickers(ctx, store, channel)
	if err != nil {
		return nil, fmt.Errorf("reading ledger history: %w", err)
	}

	held := make(map[string]struct{}, len(positions))
	audit := &AuditResult{Channel: channel}
	for _, pos := range positions {
		held[pos.Symbol] = struct{}{}
		audit.Held = append(audit.Held, pos.Symbol)
		if _, ok := owned[pos.Symbol]; !ok {
			audit.ForeignHeld = append(audit.ForeignHeld, pos.Symbol)
		}
	}
	for symbol := range owned {
		audit.Owned = append(audit.Owned, symbol)
		if _, ok := held[symbol]; !ok {
			audit.MissingHeld = append(audit.MissingHeld, symbol)
		}
	}
	sort.Strings(audit.Held)
	sort.Strings(audit.Owned)
	sort.Strings(audit.ForeignHeld)
	sort.Strings(audit.MissingHeld)
	return audit, nil
}

// analyzeAudit flags the discrepancy classes an operator should look at.
func analyzeAudit(audit *AuditResult) []string {
	var issues []string
	if audit == nil {
		return issues
	}
	if len(audit.ForeignHeld) > 0 {
		issues = append(issues, fmt.Sprintf(
			"%d position(s) held at the broker but not in the ledger: %v (another strategy or manual trade?)",
			len(audit.ForeignHeld), audit.ForeignHeld))
	}
	if len(audit.MissingHeld) > 0 {
		issues = append(issues, fmt.Sprintf(
			"%d ticker(s) in the ledger but not held: %v (sold externally, or already matured and sold)",
			len(audit.MissingHeld), audit.MissingHeld))
	}
	if len(audit.Held) > 0 && len(audit.Owned) == 0 {
		issues = append(issues, "Broker holds positions but the ledger channel is empty - wrong channel configured?")
	}
	return issues
}
