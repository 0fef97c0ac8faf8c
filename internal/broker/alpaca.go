// Package broker provides the trading API client used to execute stock trades.
// It includes the Alpaca REST client implementation used by the position
// lifecycle manager.
package broker

import (
	"bytes"
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

// Default API hosts. The trading host differs between paper and live mode;
// market data is served from a separate host in both modes.
const (
	paperBaseURL   = "https://paper-api.alpaca.markets/v2"
	liveBaseURL    = "https://api.alpaca.markets/v2"
	defaultDataURL = "https://data.alpaca.markets/v2"
)

// Order sides accepted by SubmitOrder.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order status filters accepted by ListOrders.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
	StatusAll    = "all"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// floatString decodes Alpaca's decimal fields, which arrive either as JSON
// strings ("123.45"), bare numbers, or null.
type floatString float64

func (f *floatString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing decimal field %q: %w", string(b), err)
	}
	*f = floatString(v)
	return nil
}

func (f floatString) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(f), 'f', -1, 64)), nil
}

// Float64 returns the decoded value as a plain float64.
func (f floatString) Float64() float64 { return float64(f) }

// ============ API Response Structures ============

// Position represents one open position in the account. Positions are shared
// across every strategy trading the account; ownership is tracked externally.
type Position struct {
	Symbol        string      `json:"symbol"`
	Qty           floatString `json:"qty"`
	AvgEntryPrice floatString `json:"avg_entry_price"`
	MarketValue   floatString `json:"market_value"`
	CurrentPrice  floatString `json:"current_price"`
	Side          string      `json:"side"`
}

// Order represents an order as reported by the trading API.
type Order struct {
	ID             string      `json:"id"`
	ClientOrderID  string      `json:"client_order_id"`
	Symbol         string      `json:"symbol"`
	Side           string      `json:"side"`
	Type           string      `json:"type"`
	TimeInForce    string      `json:"time_in_force"`
	Status         string      `json:"status"`
	Qty            floatString `json:"qty"`
	FilledQty      floatString `json:"filled_qty"`
	FilledAvgPrice floatString `json:"filled_avg_price"`
	CreatedAt      time.Time   `json:"created_at"`
	SubmittedAt    time.Time   `json:"submitted_at"`
	FilledAt       *time.Time  `json:"filled_at"`
}

// Account represents the account snapshot returned by the trading API.
type Account struct {
	AccountNumber string      `json:"account_number"`
	Status        string      `json:"status"`
	Equity        floatString `json:"equity"`
	Cash          floatString `json:"cash"`
	BuyingPower   floatString `json:"buying_power"`
}

// Clock represents the market clock.
type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// Trade is the latest trade for a symbol from the market-data API.
type Trade struct {
	Price     floatString `json:"p"`
	Size      int64       `json:"s"`
	Timestamp time.Time   `json:"t"`
}

type latestTradeResponse struct {
	Symbol string `json:"symbol"`
	Trade  Trade  `json:"trade"`
}

// OrderRequest describes a new order submission.
type OrderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           int    `json:"qty,string"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// OrderFilter narrows a ListOrders call. Zero values are omitted from the
// query string.
type OrderFilter struct {
	Status    string   // open | closed | all
	Symbols   []string // restrict to these symbols
	Side      string   // buy | sell
	Limit     int
	Direction string // asc | desc
}

// AlpacaAPI is a hand-written client for the Alpaca v2 REST API.
type AlpacaAPI struct {
	client    *http.Client
	apiKey    string
	apiSecret string
	baseURL   string
	dataURL   string
	timeout   time.Duration
}

// NewAlpacaAPI creates a new AlpacaAPI client with default settings. Paper
// mode targets the paper trading host.
func NewAlpacaAPI(apiKey, apiSecret string, paper bool) *AlpacaAPI {
	return NewAlpacaAPIWithBaseURLs(apiKey, apiSecret, paper, "", "")
}

// NewAlpacaAPIWithBaseURLs creates a new AlpacaAPI client with optional custom
// trading and data hosts (tests, proxies).
func NewAlpacaAPIWithBaseURLs(apiKey, apiSecret string, paper bool, baseURL, dataURL string) *AlpacaAPI {
	if baseURL == "" {
		if paper {
			baseURL = paperBaseURL
		} else {
			baseURL = liveBaseURL
		}
	}
	if dataURL == "" {
		dataURL = defaultDataURL
	}

	const defaultTimeout = 10 * time.Second
	return &AlpacaAPI{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		dataURL:   strings.TrimRight(dataURL, "/"),
		client:    &http.Client{Timeout: defaultTimeout},
		timeout:   defaultTimeout,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (a *AlpacaAPI) WithHTTPClient(c *http.Client) *AlpacaAPI {
	if c != nil {
		a.client = c
	}
	return a
}

// WithTimeout sets the HTTP client timeout duration.
func (a *AlpacaAPI) WithTimeout(timeout time.Duration) *AlpacaAPI {
	a.timeout = timeout
	if a.client != nil {
		a.client.Timeout = timeout
	}
	return a
}

// ============ API Methods ============

// ListPositions retrieves all open positions in the account.
func (a *AlpacaAPI) ListPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := a.makeRequest(ctx, http.MethodGet, a.baseURL+"/positions", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// ListOrders retrieves orders matching the filter.
func (a *AlpacaAPI) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	params := url.Values{}
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if len(filter.Symbols) > 0 {
		params.Set("symbols", strings.Join(filter.Symbols, ","))
	}
	if filter.Side != "" {
		params.Set("side", filter.Side)
	}
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Direction != "" {
		params.Set("direction", filter.Direction)
	}

	endpoint := a.baseURL + "/orders"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var orders []Order
	if err := a.makeRequest(ctx, http.MethodGet, endpoint, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder retrieves a single order by ID.
func (a *AlpacaAPI) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	endpoint := a.baseURL + "/orders/" + url.PathEscape(orderID)
	var order Order
	if err := a.makeRequest(ctx, http.MethodGet, endpoint, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// SubmitOrder submits a new order and returns the broker's view of it.
func (a *AlpacaAPI) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Qty <= 0 {
		return nil, fmt.Errorf("invalid order quantity: %d (must be > 0)", req.Qty)
	}
	switch req.Side {
	case SideBuy, SideSell:
	default:
		return nil, fmt.Errorf("invalid order side %q: must be %q or %q", req.Side, SideBuy, SideSell)
	}
	if req.Type == "" {
		req.Type = "market"
	}
	if req.TimeInForce == "" {
		req.TimeInForce = "day"
	}

	var order Order
	if err := a.makeRequest(ctx, http.MethodPost, a.baseURL+"/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetAccount retrieves the account snapshot.
func (a *AlpacaAPI) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	if err := a.makeRequest(ctx, http.MethodGet, a.baseURL+"/account", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetClock retrieves the current market clock.
func (a *AlpacaAPI) GetClock(ctx context.Context) (*Clock, error) {
	var clock Clock
	if err := a.makeRequest(ctx, http.MethodGet, a.baseURL+"/clock", nil, &clock); err != nil {
		return nil, err
	}
	return &clock, nil
}

// GetLatestTrade retrieves the most recent trade price for a symbol from the
// market-data host.
func (a *AlpacaAPI) GetLatestTrade(ctx context.Context, symbol string) (*Trade, error) {
	endpoint := fmt.Sprintf("%s/stocks/%s/trades/latest", a.dataURL, url.PathEscape(symbol))
	var response latestTradeResponse
	if err := a.makeRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	if response.Trade.Price <= 0 {
		return nil, fmt.Errorf("no trade data for symbol %s", symbol)
	}
	trade := response.Trade
	return &trade, nil
}

// makeRequest performs one HTTP round trip with context support. A non-nil
// body is JSON-encoded; the response is decoded into the response argument.
func (a *AlpacaAPI) makeRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	var req *http.Request
	var err error

	if body != nil {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return fmt.Errorf("encoding request body: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Add("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return err
		}
	}

	req.Header.Add("APCA-API-KEY-ID", a.apiKey)
	req.Header.Add("APCA-API-SECRET-KEY", a.apiSecret)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "insideralgobot/1.0 (+alpaca)")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	case http.StatusNoContent:
		return nil
	default:
		raw, rerr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if rerr != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s (retry-after: %s)", method, endpoint, string(raw), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(raw))}
	}

	if response == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
