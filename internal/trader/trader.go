// Package trader implements the position lifecycle: selling matured holdings,
// selecting buy signals, and placing sized buy orders, with every outcome
// recorded in the strategy's ledger channel.
package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nekkiwi/InsiderAlgoBot/internal/broker"
	"github.com/nekkiwi/InsiderAlgoBot/internal/clock"
	"github.com/nekkiwi/InsiderAlgoBot/internal/config"
	"github.com/nekkiwi/InsiderAlgoBot/internal/ledger"
	"github.com/nekkiwi/InsiderAlgoBot/internal/quotes"
	"github.com/nekkiwi/InsiderAlgoBot/internal/signal"
)

// Trader runs one sell-then-buy pass per invocation. The process is driven by
// an external scheduler; nothing here loops or sleeps between runs.
type Trader struct {
	broker broker.Broker
	store  ledger.Store
	quotes quotes.Provider
	logger logrus.FieldLogger
	cfg    *config.Config
	now    func() time.Time
}

// New creates a Trader. The quotes provider may be nil; fundamentals are
// decorative and buys proceed without them.
func New(cfg *config.Config, b broker.Broker, store ledger.Store, q quotes.Provider, logger logrus.FieldLogger) *Trader {
	return &Trader{
		broker: b,
		store:  store,
		quotes: q,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// WithNowFunc overrides the time source (tests).
func (t *Trader) WithNowFunc(now func() time.Time) *Trader {
	if now != nil {
		t.now = now
	}
	return t
}

// Run executes one full pass: mature positions are sold first, then new
// candidates are bought, strictly in that order so a sale can free equity for
// the same run's buys. The ledger is the source of truth for what happened;
// log lines only mirror it.
func (t *Trader) Run(ctx context.Context, candidates []signal.Candidate) error {
	channel := t.cfg.Channel()
	t.logger.Printf("Logging to channel %q", channel)

	holdingDays, err := t.holdingDays()
	if err != nil {
		return err
	}

	owned, err := ledger.OwnedTickers(ctx, t.store, channel)
	if err != nil {
		// Ownership unknown: neither selling nor buying is safe.
		return fmt.Errorf("reading ledger history: %w", err)
	}

	seller := NewMaturitySeller(t.broker, t.store, t.logger, channel, holdingDays,
		t.cfg.GetPollInterval(), t.cfg.GetFillTimeout()).WithNowFunc(t.now)
	if err := seller.Run(ctx, owned); err != nil {
		// The buy phase takes its own broker snapshot, so it can still run.
		t.logger.Printf("Sell phase aborted: %v", err)
	}

	ranked := signal.Select(candidates)
	if len(ranked) == 0 {
		t.logger.Println("No valid buy signals found in inference results")
		appendEntry(ctx, t.store, t.logger, channel, "No new good buy found")
		return nil
	}

	budget, err := t.budget(ctx)
	if err != nil {
		t.logger.Printf("ERROR: could not size trades: %v", err)
		appendEntry(ctx, t.store, t.logger, channel,
			fmt.Sprintf("Failed to execute buys due to equity calculation error: %v", err))
		return nil
	}
	t.logger.Printf("Amount per trade: $%.2f", budget)

	buyer := NewBuyExecutor(t.broker, t.store, t.quotes, t.logger, channel, budget).WithNowFunc(t.now)
	placed, err := buyer.Run(ctx, ranked, owned)
	if err != nil {
		return err
	}
	if !placed {
		appendEntry(ctx, t.store, t.logger, channel, "No new good buy found")
	}
	return nil
}

func (t *Trader) holdingDays() (int, error) {
	if t.cfg.Trade.Timepoint != "" {
		return clock.ToBusinessDays(t.cfg.Trade.Timepoint)
	}
	return t.cfg.Trade.HoldingPeriodDays, nil
}

func (t *Trader) budget(ctx context.Context) (float64, error) {
	if t.cfg.UsesFixedBudget() {
		return t.cfg.Trade.Amount, nil
	}
	account, err := t.broker.GetAccount(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching account equity: %w", err)
	}
	equity := account.Equity.Float64()
	t.logger.Printf("Portfolio equity: $%.2f, allocation per trade: %.2f%%", equity, t.cfg.Trade.AllocationPct)
	return equity * t.cfg.Trade.AllocationPct / 100.0, nil
}

// appendEntry records a ledger entry and mirrors it to the console. Append
// failures are reported but never fail the surrounding operation.
func appendEntry(ctx context.Context, store ledger.Store, logger logrus.FieldLogger, channel, message string) {
	logger.Println(message)
	if err := store.Append(ctx, channel, message); err != nil {
		logger.Printf("Ledger append failed: %v", err)
	}
}
