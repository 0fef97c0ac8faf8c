package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubBroker counts calls and fails on demand.
type stubBroker struct {
	calls int
	err   error
}

func (s *stubBroker) GetAccount(context.Context) (*Account, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Account{Equity: 10000}, nil
}
func (s *stubBroker) ListPositions(context.Context) ([]Position, error) { return nil, s.err }
func (s *stubBroker) GetLatestTrade(context.Context, string) (*Trade, error) {
	return nil, s.err
}
func (s *stubBroker) GetClock(context.Context) (*Clock, error) { return nil, s.err }
func (s *stubBroker) ListOrders(context.Context, OrderFilter) ([]Order, error) {
	return nil, s.err
}
func (s *stubBroker) SubmitOrder(context.Context, OrderRequest) (*Order, error) {
	return nil, s.err
}
func (s *stubBroker) GetOrder(context.Context, string) (*Order, error) { return nil, s.err }

var _ Broker = (*stubBroker)(nil)

func TestCircuitBreakerPassesThrough(t *testing.T) {
	stub := &stubBroker{}
	cb := NewCircuitBreakerBroker(stub)

	account, err := cb.GetAccount(context.Background())
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if account.Equity.Float64() != 10000 {
		t.Fatalf("equity = %v, want 10000", account.Equity)
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	stub := &stubBroker{err: errors.New("broker down")}
	cb := NewCircuitBreakerBrokerWithSettings(stub, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	})

	for i := 0; i < 3; i++ {
		if _, err := cb.GetAccount(context.Background()); err == nil {
			t.Fatal("expected failure")
		}
	}

	before := stub.calls
	if _, err := cb.GetAccount(context.Background()); err == nil {
		t.Fatal("expected open-circuit failure")
	}
	if stub.calls != before {
		t.Fatalf("broker called while circuit open: %d -> %d calls", before, stub.calls)
	}
}
