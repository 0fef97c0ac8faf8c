// Package quotes fetches valuation ratios used to enrich ledger entries.
// Everything here is best effort: a dead quote service degrades a log line,
// never a trade.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://stockanalysis.com/api/symbol"

// Fundamentals holds display-ready ratio strings. Any ratio the source could
// not produce is the literal "NA".
type Fundamentals struct {
	PE           string
	PS           string
	DebtToEquity string
}

// Suffix formats the ledger enrichment suffix appended to buy entries.
// A missing prediction renders as NA like any other unavailable value.
func (f Fundamentals) Suffix(predicted string) string {
	if predicted == "" {
		predicted = "NA"
	}
	return fmt.Sprintf("P/E=%s, P/S=%s, D/E=%s, Pred=%s", f.PE, f.PS, f.DebtToEquity, predicted)
}

// Provider supplies fundamentals for a ticker. Implementations must not
// return an error for ordinary data gaps; callers treat any error as "NA
// across the board" anyway.
type Provider interface {
	Fundamentals(ctx context.Context, ticker string) (Fundamentals, error)
}

// Client reads valuation ratios from a quote-statistics JSON endpoint.
type Client struct {
	client  *http.Client
	baseURL string
}

var _ Provider = (*Client)(nil)

// NewClient creates a fundamentals client. An empty baseURL selects the
// default public endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// WithHTTPClient allows overriding the HTTP client (tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.client = hc
	}
	return c
}

type statsResponse struct {
	Data struct {
		PERatio      *float64 `json:"peRatio"`
		PSRatio      *float64 `json:"psRatio"`
		DebtToEquity *float64 `json:"debtEquity"`
	} `json:"data"`
}

// Fundamentals fetches P/E, P/S and debt-to-equity for one ticker. Ratios
// absent from the response come back as "NA"; only transport and decode
// failures surface as errors.
func (c *Client) Fundamentals(ctx context.Context, ticker string) (Fundamentals, error) {
	na := Fundamentals{PE: "NA", PS: "NA", DebtToEquity: "NA"}

	endpoint := fmt.Sprintf("%s/%s/statistics", c.baseURL, url.PathEscape(strings.ToUpper(ticker)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return na, err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "insideralgobot/1.0 (+quotes)")

	resp, err := c.client.Do(req)
	if err != nil {
		return na, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return na, fmt.Errorf("quotes API error %d: %s", resp.StatusCode, string(raw))
	}

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return na, fmt.Errorf("decoding quote statistics: %w", err)
	}

	return Fundamentals{
		PE:           formatRatio(stats.Data.PERatio),
		PS:           formatRatio(stats.Data.PSRatio),
		DebtToEquity: formatRatio(stats.Data.DebtToEquity),
	}, nil
}

func formatRatio(v *float64) string {
	if v == nil {
		return "NA"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
