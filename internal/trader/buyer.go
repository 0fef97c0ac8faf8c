package trader

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nekkiwi/InsiderAlgoBot/internal/broker"
	"github.com/nekkiwi/InsiderAlgoBot/internal/ledger"
	"github.com/nekkiwi/InsiderAlgoBot/internal/quotes"
	"github.com/nekkiwi/InsiderAlgoBot/internal/signal"
)

// BuyExecutor places sized market buys for ranked candidates, skipping any
// symbol the strategy already holds, has an open buy order for, or has ever
// bought on this channel.
type BuyExecutor struct {
	broker  broker.Broker
	store   ledger.Store
	quotes  quotes.Provider
	logger  logrus.FieldLogger
	channel string
	budget  float64
	now     func() time.Time
}

func NewBuyExecutor(b broker.Broker, store ledger.Store, q quotes.Provider,
	logger logrus.FieldLogger, channel string, budget float64) *BuyExecutor {
	return &BuyExecutor{
		broker:  b,
		store:   store,
		quotes:  q,
		logger:  logger,
		channel: channel,
		budget:  budget,
		now:     time.Now,
	}
}

// WithNowFunc overrides the time source (tests).
func (b *BuyExecutor) WithNowFunc(now func() time.Time) *BuyExecutor {
	if now != nil {
		b.now = now
	}
	return b
}

// Run submits buys for every eligible candidate in ranked order and reports
// whether at least one order was placed. The exclusion snapshots are taken
// once up front; order submission itself stays sequential so the snapshots
// remain valid for the whole pass.
func (b *BuyExecutor) Run(ctx context.Context, ranked []signal.Candidate, owned map[string]struct{}) (bool, error) {
	var positions []broker.Position
	var openBuys []broker.Order

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		positions, err = b.broker.ListPositions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		openBuys, err = b.broker.ListOrders(gctx, broker.OrderFilter{
			Status: broker.StatusOpen,
			Side:   broker.SideBuy,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("fetching exclusion sets: %w", err)
	}

	held := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		held[p.Symbol] = struct{}{}
	}
	pending := make(map[string]struct{}, len(openBuys))
	for _, o := range openBuys {
		pending[o.Symbol] = struct{}{}
	}

	placed := false
	for _, cand := range ranked {
		if excluded(cand.Ticker, held, pending, owned) {
			continue
		}
		bought, err := b.buyOne(ctx, cand)
		if err != nil {
			b.logger.Printf("Buying %s: %v", cand.Ticker, err)
			continue
		}
		if bought {
			placed = true
		}
	}
	return placed, nil
}

func excluded(symbol string, sets ...map[string]struct{}) bool {
	for _, set := range sets {
		if _, ok := set[symbol]; ok {
			return true
		}
	}
	return false
}

func (b *BuyExecutor) buyOne(ctx context.Context, cand signal.Candidate) (bool, error) {
	trade, err := b.broker.GetLatestTrade(ctx, cand.Ticker)
	if err != nil {
		return false, err
	}
	price := trade.Price.Float64()

	qty := int(b.budget / price)
	if qty <= 0 {
		b.logger.Printf("Skipping %s: price $%.2f exceeds budget $%.2f", cand.Ticker, price, b.budget)
		return false, nil
	}

	_, err = b.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:        cand.Ticker,
		Qty:           qty,
		Side:          broker.SideBuy,
		ClientOrderID: buyOrderID(cand.Ticker, qty, b.now()),
	})
	if err != nil {
		return false, err
	}

	total := price * float64(qty)
	message := fmt.Sprintf("Buy executed: %s for $%.2f | %s",
		cand.Ticker, total, b.enrichment(ctx, cand))
	appendEntry(ctx, b.store, b.logger, b.channel, message)
	return true, nil
}

// enrichment builds the fundamentals suffix for a buy entry. Any quote
// failure yields "NA" placeholders; the buy entry itself is never blocked.
func (b *BuyExecutor) enrichment(ctx context.Context, cand signal.Candidate) string {
	pred := strconv.FormatFloat(cand.PredictedReturn, 'f', 4, 64)
	if b.quotes == nil {
		return quotes.Fundamentals{PE: "NA", PS: "NA", DebtToEquity: "NA"}.Suffix(pred)
	}
	f, err := b.quotes.Fundamentals(ctx, cand.Ticker)
	if err != nil {
		b.logger.Printf("Fundamentals for %s unavailable: %v", cand.Ticker, err)
	}
	return f.Suffix(pred)
}

// buyOrderID derives an idempotency tag for one buy attempt: a hash of the
// order's identity for the day plus a short random nonce so a deliberate
// resubmission is still accepted.
func buyOrderID(symbol string, qty int, now time.Time) string {
	canonical := fmt.Sprintf("buy-%s-%d-%s", symbol, qty, now.UTC().Format("2006-01-02"))
	hash := sha256.Sum256([]byte(canonical))
	base := "buy-" + hex.EncodeToString(hash[:])[:8]

	nonceBytes := make([]byte, 2)
	if _, err := rand.Read(nonceBytes); err != nil {
		nonceBytes[0] = byte(time.Now().UnixNano() & 0xFF)
		nonceBytes[1] = byte((time.Now().UnixNano() >> 8) & 0xFF)
	}
	return base + "-" + hex.EncodeToString(nonceBytes)
}
