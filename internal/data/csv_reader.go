package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVReader reads a headed CSV file into records with string values. Type
// coercion is left to FromRecords.
type CSVReader struct {
	filename string
}

func NewCSVReader(filename string) (*CSVReader, error) {
	return &CSVReader{filename: filename}, nil
}

func (cr *CSVReader) LoadRecords() ([]Record, []string, error) {
	file, err := os.Open(cr.filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ReadRecords(file)
}

func ReadRecords(r io.Reader) ([]Record, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv: %w", err)
	}

	if len(records) < 2 {
		return nil, nil, fmt.Errorf("insufficient data in file")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]Record, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Record, len(headers))
		for j, h := range headers {
			row[h] = record[j]
		}
		rows = append(rows, row)
	}

	return rows, headers, nil
}

// FeatureColumns returns every header except the target, in file order.
func FeatureColumns(headers []string, target string) []string {
	features := make([]string, 0, len(headers))
	for _, h := range headers {
		if h != target {
			features = append(features, h)
		}
	}
	return features
}
