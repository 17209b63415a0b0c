package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/loader/csv"
	"github.com/OFFIS-RIT/graphvec/pkg/loader/pdf"
)

func parseText(ctx context.Context, path string, meta common.Metadata) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseCSV adds "rows" and "columns".
func parseCSV(ctx context.Context, path string, meta common.Metadata) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	table, err := csv.Parse(data)
	if err != nil {
		return "", err
	}
	meta["rows"] = table.Rows
	meta["columns"] = table.Columns
	return table.Text, nil
}

// parseJSON returns the compacted document and adds "keys", the top level
// keys of an object document in document order.
func parseJSON(ctx context.Context, path string, meta common.Metadata) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	keys, err := topLevelKeys(buf.Bytes())
	if err != nil {
		return "", err
	}
	meta["keys"] = keys
	return buf.String(), nil
}

func topLevelKeys(data []byte) ([]string, error) {
	keys := []string{}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return keys, nil
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// parsePDF adds "pages".
func parsePDF(ctx context.Context, path string, meta common.Metadata) (string, error) {
	doc, err := pdf.Load(path)
	if err != nil {
		return "", err
	}
	meta["pages"] = doc.Pages
	return doc.Text, nil
}
