package signal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadResultsCSV loads the inference results table. The file must carry a
// header row with Ticker, Predicted_Return, and Final_Signal columns; column
// order does not matter and extra columns are ignored. Rows with a malformed
// score or signal are rejected rather than silently dropped, since a corrupt
// results file should stop the run before any order is placed.
func ReadResultsCSV(path string) ([]Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening results file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return readResults(f)
}

func readResults(r io.Reader) ([]Candidate, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("results file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading results header: %w", err)
	}

	tickerCol, scoreCol, signalCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "ticker":
			tickerCol = i
		case "predicted_return":
			scoreCol = i
		case "final_signal":
			signalCol = i
		}
	}
	if tickerCol < 0 || scoreCol < 0 || signalCol < 0 {
		return nil, fmt.Errorf("results header missing required columns, got %v", header)
	}

	var candidates []Candidate
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading results row %d: %w", line, err)
		}
		maxCol := tickerCol
		if scoreCol > maxCol {
			maxCol = scoreCol
		}
		if signalCol > maxCol {
			maxCol = signalCol
		}
		if len(record) <= maxCol {
			return nil, fmt.Errorf("results row %d has %d columns, need %d", line, len(record), maxCol+1)
		}

		score, err := strconv.ParseFloat(strings.TrimSpace(record[scoreCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("results row %d: bad predicted return %q", line, record[scoreCol])
		}
		flag, err := strconv.Atoi(strings.TrimSpace(record[signalCol]))
		if err != nil {
			return nil, fmt.Errorf("results row %d: bad signal %q", line, record[signalCol])
		}

		candidates = append(candidates, Candidate{
			Ticker:          strings.ToUpper(strings.TrimSpace(record[tickerCol])),
			PredictedReturn: score,
			Signal:          flag,
		})
	}
	return candidates, nil
}
