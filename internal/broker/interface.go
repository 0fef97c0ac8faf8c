package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// Broker defines the interface for interacting with a brokerage. All calls
// take a context because every operation is a network round trip.
type Broker interface {
	// Account operations
	GetAccount(ctx context.Context) (*Account, error)
	ListPositions(ctx context.Context) ([]Position, error)

	// Market data
	GetLatestTrade(ctx context.Context, symbol string) (*Trade, error)
	GetClock(ctx context.Context) (*Clock, error)

	// Orders
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}

// Ensure AlpacaAPI implements Broker at compile time.
var _ Broker = (*AlpacaAPI)(nil)

// LatestClosedBuyOrder returns the most recent closed buy order for a symbol,
// or nil if the broker has none on record.
func LatestClosedBuyOrder(ctx context.Context, b Broker, symbol string) (*Order, error) {
	orders, err := b.ListOrders(ctx, OrderFilter{
		Status:    StatusClosed,
		Symbols:   []string{symbol},
		Side:      SideBuy,
		Limit:     1,
		Direction: "desc",
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	order := orders[0]
	return &order, nil
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a new CircuitBreakerBroker with sensible defaults
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// GetAccount wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetAccount(ctx context.Context) (*Account, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Account, error) { return b.GetAccount(ctx) })
}

// ListPositions wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) ListPositions(ctx context.Context) ([]Position, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Position, error) { return b.ListPositions(ctx) })
}

// GetLatestTrade wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetLatestTrade(ctx context.Context, symbol string) (*Trade, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Trade, error) { return b.GetLatestTrade(ctx, symbol) })
}

// GetClock wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetClock(ctx context.Context) (*Clock, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Clock, error) { return b.GetClock(ctx) })
}

// ListOrders wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Order, error) { return b.ListOrders(ctx, filter) })
}

// SubmitOrder wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Order, error) { return b.SubmitOrder(ctx, req) })
}

// GetOrder wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Order, error) { return b.GetOrder(ctx, orderID) })
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)
