// Package ledger provides the append-only external record of bot activity.
// The ledger is the single durable source of truth for which tickers this
// strategy has ever bought; the broker's position list is shared across
// strategies and cannot answer that question.
package ledger

import (
	"context"
	"strings"
	"time"
)

// buyExecutedPrefix marks the only message form that contributes to the
// owned-ticker set. The ticker is the whitespace token following the prefix.
const buyExecutedPrefix = "Buy executed:"

// Header is the fixed first row written when a channel is created.
var Header = []string{"Date", "Time", "Message"}

// Entry is one immutable ledger row.
type Entry struct {
	Date    string // dd/mm/yyyy
	Time    string // HH:MM, UTC
	Message string
}

// Store is the contract for a durable, channel-keyed, append-only log.
//
// Append must create the channel (with the Header row) if it does not exist.
// ReadAll must return an empty slice, not an error, for a missing channel:
// "no history" is the default state of a newly configured strategy.
type Store interface {
	Append(ctx context.Context, channel, message string) error
	ReadAll(ctx context.Context, channel string) ([]Entry, error)
}

// NewEntry stamps a message with the current UTC date and time.
func NewEntry(now time.Time, message string) Entry {
	utc := now.UTC()
	return Entry{
		Date:    utc.Format("02/01/2006"),
		Time:    utc.Format("15:04"),
		Message: message,
	}
}

// OwnedTickers replays the full channel history and returns the set of
// tickers recorded as bought by this strategy. Recomputed on every run; no
// incremental state survives between invocations.
func OwnedTickers(ctx context.Context, store Store, channel string) (map[string]struct{}, error) {
	entries, err := store.ReadAll(ctx, channel)
	if err != nil {
		return nil, err
	}

	owned := make(map[string]struct{})
	for _, entry := range entries {
		if ticker, ok := ParseBuyTicker(entry.Message); ok {
			owned[ticker] = struct{}{}
		}
	}
	return owned, nil
}

// ParseBuyTicker extracts the ticker from a "Buy executed: {symbol} ..."
// message, reporting false for any other message shape.
func ParseBuyTicker(message string) (string, bool) {
	if !strings.HasPrefix(message, buyExecutedPrefix) {
		return "", false
	}
	rest := strings.Fields(strings.TrimPrefix(message, buyExecutedPrefix))
	if len(rest) == 0 {
		return "", false
	}
	return rest[0], true
}
