package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nekkiwi/InsiderAlgoBot/internal/broker"
	"github.com/nekkiwi/InsiderAlgoBot/internal/clock"
	"github.com/nekkiwi/InsiderAlgoBot/internal/ledger"
)

// MaturitySeller liquidates positions this strategy owns once their business
// day holding period has elapsed. Positions the ledger does not claim are
// left untouched; the account may be shared with other actors.
type MaturitySeller struct {
	broker      broker.Broker
	store       ledger.Store
	logger      logrus.FieldLogger
	watcher     *OrderFillWatcher
	channel     string
	holdingDays int
	now         func() time.Time
}

func NewMaturitySeller(b broker.Broker, store ledger.Store, logger logrus.FieldLogger,
	channel string, holdingDays int, pollInterval, fillTimeout time.Duration) *MaturitySeller {
	return &MaturitySeller{
		broker:      b,
		store:       store,
		logger:      logger,
		watcher:     NewOrderFillWatcher(b, logger, pollInterval, fillTimeout),
		channel:     channel,
		holdingDays: holdingDays,
		now:         time.Now,
	}
}

// WithNowFunc overrides the time source (tests).
func (s *MaturitySeller) WithNowFunc(now func() time.Time) *MaturitySeller {
	if now != nil {
		s.now = now
	}
	return s
}

// Run walks every held position and sells the mature, owned ones. A failure
// on one symbol never stops the batch; a closed market stops the whole batch
// since no remaining position can be sold either.
func (s *MaturitySeller) Run(ctx context.Context, owned map[string]struct{}) error {
	positions, err := s.broker.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("listing positions: %w", err)
	}

	for _, pos := range positions {
		if _, ok := owned[pos.Symbol]; !ok {
			continue
		}
		marketClosed, err := s.sellIfMature(ctx, pos)
		if err != nil {
			s.logger.Printf("Selling %s: %v", pos.Symbol, err)
			continue
		}
		if marketClosed {
			break
		}
	}
	return nil
}

func (s *MaturitySeller) sellIfMature(ctx context.Context, pos broker.Position) (marketClosed bool, err error) {
	buyOrder, err := broker.LatestClosedBuyOrder(ctx, s.broker, pos.Symbol)
	if err != nil {
		return false, err
	}
	if buyOrder == nil || buyOrder.FilledAt == nil {
		// Ledger claims the position but the broker has no buy on record.
		// Leave it for the operator rather than guess at a holding period.
		return false, nil
	}

	held := clock.ElapsedBusinessDays(*buyOrder.FilledAt, s.now()) + 1
	if held < s.holdingDays {
		return false, nil
	}

	clk, err := s.broker.GetClock(ctx)
	if err != nil {
		return false, err
	}
	if !clk.IsOpen {
		appendEntry(ctx, s.store, s.logger, s.channel,
			fmt.Sprintf("Sell of %s deferred, market closed", pos.Symbol))
		return true, nil
	}

	qty := int(pos.Qty.Float64())
	if qty <= 0 {
		return false, fmt.Errorf("position has non-positive quantity %v", pos.Qty.Float64())
	}
	order, err := s.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: pos.Symbol,
		Qty:    qty,
		Side:   broker.SideSell,
	})
	if err != nil {
		return false, err
	}
	s.logger.Printf("Submitted market sell for %d %s (order %s)", qty, pos.Symbol, order.ID)

	sellPrice, err := s.watcher.WaitForFill(ctx, order.ID)
	if errors.Is(err, ErrFillTimeout) {
		appendEntry(ctx, s.store, s.logger, s.channel,
			fmt.Sprintf("Sell order for %s did not fill in time", pos.Symbol))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	buyPrice := buyOrder.FilledAvgPrice.Float64()
	var realized float64
	if buyPrice > 0 {
		realized = (sellPrice - buyPrice) / buyPrice
	}
	appendEntry(ctx, s.store, s.logger, s.channel,
		fmt.Sprintf("Sell executed: %s at $%.2f, return %.2f%%", pos.Symbol, sellPrice, realized*100))
	return false, nil
}
