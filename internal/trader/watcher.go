package trader

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nekkiwi/InsiderAlgoBot/internal/broker"
)

// ErrFillTimeout is returned when an order does not report a fill price
// within the polling window. The order itself is never cancelled or retried
// here; a stuck order is an operator problem.
var ErrFillTimeout = errors.New("order did not fill within the polling window")

const (
	defaultPollInterval = 5 * time.Second
	defaultFillTimeout  = 5 * time.Minute
)

// OrderFillWatcher polls order status until a fill price appears or the
// wall-clock bound elapses. It is the only place in a run that blocks.
type OrderFillWatcher struct {
	broker   broker.Broker
	logger   logrus.FieldLogger
	interval time.Duration
	timeout  time.Duration
}

func NewOrderFillWatcher(b broker.Broker, logger logrus.FieldLogger, interval, timeout time.Duration) *OrderFillWatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if timeout <= 0 {
		timeout = defaultFillTimeout
	}
	return &OrderFillWatcher{
		broker:   b,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// WaitForFill returns the order's filled average price. Transient poll errors
// are logged and the next tick tries again; only the deadline ends the wait.
func (w *OrderFillWatcher) WaitForFill(ctx context.Context, orderID string) (float64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			return 0, ErrFillTimeout
		case <-ticker.C:
			order, err := w.broker.GetOrder(waitCtx, orderID)
			if err != nil {
				w.logger.Printf("Polling order %s: %v", orderID, err)
				continue
			}
			if price := order.FilledAvgPrice.Float64(); price > 0 {
				return price, nil
			}
		}
	}
}
