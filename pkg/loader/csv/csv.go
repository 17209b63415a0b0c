// Package csv turns CSV files into normalized text plus table metadata.
package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table is a parsed CSV document.
//
// Text holds the non-empty records as clean comma separated lines. Columns
// is the header record and Rows the number of data records below it.
type Table struct {
	Text    string
	Columns []string
	Rows    int
}

// Parse parses CSV content. Malformed records and records without any
// non-blank field are skipped.
func Parse(content []byte) (Table, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		output strings.Builder
		table  Table
	)
	lineNum := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		isEmpty := true
		for _, field := range record {
			if strings.TrimSpace(field) != "" {
				isEmpty = false
				break
			}
		}
		if isEmpty {
			continue
		}

		if lineNum == 0 {
			table.Columns = make([]string, len(record))
			for i, field := range record {
				table.Columns[i] = strings.TrimSpace(field)
			}
		} else {
			table.Rows++
			output.WriteByte('\n')
		}

		for i, field := range record {
			if i > 0 {
				output.WriteByte(',')
			}
			if strings.ContainsAny(field, ",\n\"") {
				output.WriteString(quoteField(field))
			} else {
				output.WriteString(field)
			}
		}
		lineNum++
	}

	if output.Len() == 0 {
		return Table{}, fmt.Errorf("CSV file is empty or contains no valid data")
	}

	output.WriteByte('\n')
	table.Text = output.String()
	return table, nil
}

// quoteField properly quotes a CSV field that contains special characters.
func quoteField(field string) string {
	escaped := strings.ReplaceAll(field, "\"", "\"\"")
	return "\"" + escaped + "\""
}
