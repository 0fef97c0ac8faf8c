package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultSheetsBaseURL = "https://sheets.googleapis.com/v4"

// SheetsStore appends ledger rows to a Google Sheets spreadsheet. Each
// channel maps to one worksheet tab titled with the channel name; the tab is
// created with a header row on first append.
type SheetsStore struct {
	client        *http.Client
	baseURL       string
	spreadsheetID string
	token         string
	now           func() time.Time
}

var _ Store = (*SheetsStore)(nil)

// NewSheetsStore creates a Sheets-backed ledger store.
func NewSheetsStore(spreadsheetID, token string) *SheetsStore {
	return NewSheetsStoreWithBaseURL(spreadsheetID, token, "")
}

// NewSheetsStoreWithBaseURL creates a store against a custom endpoint (tests).
func NewSheetsStoreWithBaseURL(spreadsheetID, token, baseURL string) *SheetsStore {
	if baseURL == "" {
		baseURL = defaultSheetsBaseURL
	}
	return &SheetsStore{
		client:        &http.Client{Timeout: 15 * time.Second},
		baseURL:       strings.TrimRight(baseURL, "/"),
		spreadsheetID: spreadsheetID,
		token:         token,
		now:           time.Now,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (s *SheetsStore) WithHTTPClient(c *http.Client) *SheetsStore {
	if c != nil {
		s.client = c
	}
	return s
}

// WithNowFunc overrides the timestamp source (tests).
func (s *SheetsStore) WithNowFunc(now func() time.Time) *SheetsStore {
	if now != nil {
		s.now = now
	}
	return s
}

type valueRange struct {
	Values [][]string `json:"values"`
}

// Append writes one timestamped row to the channel's worksheet. If the
// worksheet does not exist yet it is created and seeded with the header row
// before the entry is appended.
func (s *SheetsStore) Append(ctx context.Context, channel, message string) error {
	entry := NewEntry(s.now(), message)
	row := []string{entry.Date, entry.Time, entry.Message}

	err := s.appendRows(ctx, channel, [][]string{row})
	if !isMissingSheet(err) {
		return err
	}

	// First write to this channel: create the tab, then header + entry.
	if err := s.addSheet(ctx, channel); err != nil {
		return err
	}
	return s.appendRows(ctx, channel, [][]string{Header, row})
}

// ReadAll returns every entry in the channel's worksheet, oldest first.
// A missing worksheet yields an empty slice and no error.
func (s *SheetsStore) ReadAll(ctx context.Context, channel string) ([]Entry, error) {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s",
		s.baseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(channelRange(channel)))

	var response valueRange
	if err := s.makeRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		if isMissingSheet(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for i, row := range response.Values {
		if i == 0 {
			continue // header
		}
		if len(row) < 3 {
			continue
		}
		entries = append(entries, Entry{Date: row[0], Time: row[1], Message: row[2]})
	}
	return entries, nil
}

func (s *SheetsStore) appendRows(ctx context.Context, channel string, rows [][]string) error {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		s.baseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(channelRange(channel)))
	return s.makeRequest(ctx, http.MethodPost, endpoint, valueRange{Values: rows}, nil)
}

func (s *SheetsStore) addSheet(ctx context.Context, channel string) error {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s:batchUpdate", s.baseURL, url.PathEscape(s.spreadsheetID))
	body := map[string]interface{}{
		"requests": []map[string]interface{}{
			{
				"addSheet": map[string]interface{}{
					"properties": map[string]interface{}{"title": channel},
				},
			},
		},
	}
	err := s.makeRequest(ctx, http.MethodPost, endpoint, body, nil)
	// Two concurrent first-appends can both try to create; treat "already
	// exists" as success.
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Body), "already exists") {
		return nil
	}
	return err
}

// channelRange addresses the three ledger columns of a channel's worksheet.
func channelRange(channel string) string {
	return fmt.Sprintf("'%s'!A:C", channel)
}

// isMissingSheet reports whether an error is the Sheets API's answer to a
// range that names a worksheet that does not exist.
func isMissingSheet(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	if apiErr.Status != http.StatusBadRequest && apiErr.Status != http.StatusNotFound {
		return false
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "unable to parse range") || strings.Contains(body, "not found")
}

// APIError represents a Sheets API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets API error %d: %s", e.Status, e.Body)
}

func (s *SheetsStore) makeRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
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

	req.Header.Add("Authorization", "Bearer "+s.token)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "insideralgobot/1.0 (+sheets)")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, rerr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap
		if rerr != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
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
