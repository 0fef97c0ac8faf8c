package signal

import (
	"reflect"
	"strings"
	"testing"
)

func TestSelectFiltersAndRanks(t *testing.T) {
	in := []Candidate{
		{Ticker: "AAPL", PredictedReturn: 0.02, Signal: 1},
		{Ticker: "MSFT", PredictedReturn: 0.05, Signal: 0},
		{Ticker: "NVDA", PredictedReturn: 0.08, Signal: 1},
		{Ticker: "TSLA", PredictedReturn: 0.03, Signal: 1},
	}
	got := Select(in)
	want := []string{"NVDA", "TSLA", "AAPL"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, ticker := range want {
		if got[i].Ticker != ticker {
			t.Errorf("rank %d = %s, want %s", i, got[i].Ticker, ticker)
		}
	}
}

func TestSelectDeduplicatesBestScore(t *testing.T) {
	in := []Candidate{
		{Ticker: "AAPL", PredictedReturn: 0.10, Signal: 1},
		{Ticker: "AAPL", PredictedReturn: 0.20, Signal: 1},
	}
	got := Select(in)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].PredictedReturn != 0.20 {
		t.Errorf("kept score %v, want 0.20", got[0].PredictedReturn)
	}
}

func TestSelectTieBreakFirstSeen(t *testing.T) {
	in := []Candidate{
		{Ticker: "XYZ", PredictedReturn: 0.5, Signal: 1},
		{Ticker: "XYZ", PredictedReturn: 0.5, Signal: 1},
	}
	got := Select(in)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	// First-seen row wins: same values either way, but confirm dedup held.
	if got[0].Ticker != "XYZ" {
		t.Errorf("ticker = %s", got[0].Ticker)
	}
}

func TestSelectIdempotent(t *testing.T) {
	in := []Candidate{
		{Ticker: "AAPL", PredictedReturn: 0.02, Signal: 1},
		{Ticker: "NVDA", PredictedReturn: 0.08, Signal: 1},
		{Ticker: "AAPL", PredictedReturn: 0.01, Signal: 1},
	}
	first := Select(in)
	second := Select(first)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Select is not idempotent:\nfirst  %v\nsecond %v", first, second)
	}
}

func TestSelectNoSignals(t *testing.T) {
	in := []Candidate{
		{Ticker: "AAPL", PredictedReturn: 0.9, Signal: 0},
	}
	if got := Select(in); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if got := Select(nil); len(got) != 0 {
		t.Errorf("expected empty result for nil input, got %v", got)
	}
}

func TestReadResults(t *testing.T) {
	csvText := "Ticker,Predicted_Return,Final_Signal\nAAPL,0.0421,1\nmsft,-0.013,0\n"
	got, err := readResults(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("readResults: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Ticker != "AAPL" || got[0].PredictedReturn != 0.0421 || got[0].Signal != 1 {
		t.Errorf("row 0 = %+v", got[0])
	}
	if got[1].Ticker != "MSFT" || got[1].Signal != 0 {
		t.Errorf("row 1 = %+v", got[1])
	}
}

func TestReadResultsColumnOrderTolerant(t *testing.T) {
	csvText := "Final_Signal,Extra,Ticker,Predicted_Return\n1,x,NVDA,0.08\n"
	got, err := readResults(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("readResults: %v", err)
	}
	if len(got) != 1 || got[0].Ticker != "NVDA" || got[0].PredictedReturn != 0.08 || got[0].Signal != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestReadResultsErrors(t *testing.T) {
	cases := []struct {
		name string
		csv  string
	}{
		{"empty file", ""},
		{"missing column", "Ticker,Predicted_Return\nAAPL,0.1\n"},
		{"bad score", "Ticker,Predicted_Return,Final_Signal\nAAPL,abc,1\n"},
		{"bad signal", "Ticker,Predicted_Return,Final_Signal\nAAPL,0.1,maybe\n"},
		{"short row", "Ticker,Predicted_Return,Final_Signal\nAAPL,0.1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := readResults(strings.NewReader(tc.csv)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}
