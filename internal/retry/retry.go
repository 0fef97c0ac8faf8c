// Package retry wraps the ledger store with bounded retries for transient
// append failures. Order submission is never retried here: a duplicate fill
// costs real money, a lost log line does not.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nekkiwi/InsiderAlgoBot/internal/ledger"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     15 * time.Second,
	Timeout:        1 * time.Minute,
}

// Store decorates a ledger.Store, retrying appends that fail with a
// transient error. Reads pass through untouched: a read failure aborts the
// caller's phase and retrying it would only delay that decision.
type Store struct {
	inner  ledger.Store
	logger logrus.FieldLogger
	config Config
}

var _ ledger.Store = (*Store)(nil)

func NewStore(inner ledger.Store, logger logrus.FieldLogger, config ...Config) *Store {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Store{
		inner:  inner,
		logger: logger,
		config: cfg,
	}
}

func (s *Store) Append(ctx context.Context, channel, message string) error {
	appendCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := s.config.InitialBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if appendCtx.Err() != nil {
			return fmt.Errorf("ledger append timed out after %v: %w", s.config.Timeout, appendCtx.Err())
		}

		err := s.inner.Append(appendCtx, channel, message)
		if err == nil {
			return nil
		}

		lastErr = err
		s.logger.Printf("Ledger append attempt %d failed: %v", attempt+1, err)

		if !isTransientError(err) || attempt == s.config.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
			backoff = s.nextBackoff(backoff)
		case <-appendCtx.Done():
			return fmt.Errorf("ledger append timed out during backoff: %w", appendCtx.Err())
		}
	}

	return fmt.Errorf("ledger append failed after %d attempts: %w", s.config.MaxRetries+1, lastErr)
}

func (s *Store) ReadAll(ctx context.Context, channel string) ([]ledger.Entry, error) {
	return s.inner.ReadAll(ctx, channel)
}

func (s *Store) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > s.config.MaxBackoff {
		backoff = s.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			s.logger.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
