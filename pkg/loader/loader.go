// Package loader reads a directory of documents into records for the
// chunker.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
)

// FileType is the lower-cased extension of a file without the dot.
type FileType string

const (
	FileTypeText FileType = "txt"
	FileTypeCSV  FileType = "csv"
	FileTypeJSON FileType = "json"
	FileTypePDF  FileType = "pdf"
)

// FileParser extracts the text of one file. It may add format specific
// entries to meta.
type FileParser interface {
	Parse(ctx context.Context, path string, meta common.Metadata) (string, error)
}

// FileParserFunc adapts a function to the FileParser interface.
type FileParserFunc func(ctx context.Context, path string, meta common.Metadata) (string, error)

func (f FileParserFunc) Parse(ctx context.Context, path string, meta common.Metadata) (string, error) {
	return f(ctx, path, meta)
}

// Loader walks a directory and parses every file it has a parser for.
//
// A Loader should be created using NewLoader.
type Loader struct {
	parsers map[FileType]FileParser
}

// NewLoader returns a Loader that understands txt, csv, json and pdf files.
func NewLoader() *Loader {
	return &Loader{
		parsers: map[FileType]FileParser{
			FileTypeText: FileParserFunc(parseText),
			FileTypeCSV:  FileParserFunc(parseCSV),
			FileTypeJSON: FileParserFunc(parseJSON),
			FileTypePDF:  FileParserFunc(parsePDF),
		},
	}
}

// Register sets the parser for a file type, replacing any existing one.
func (l *Loader) Register(t FileType, p FileParser) {
	l.parsers[t] = p
}

// LoadDirectory loads all supported files below dir using NewLoader.
func LoadDirectory(ctx context.Context, dir string) ([]common.Record, error) {
	return NewLoader().LoadDirectory(ctx, dir)
}

// LoadDirectory walks dir in lexical order and returns one record per
// supported file. Files with other extensions are ignored. A file that
// cannot be parsed is logged and skipped. Only an unreadable dir or a
// cancelled context fail the call.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) ([]common.Record, error) {
	records := []common.Record{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == dir {
				return err
			}
			logger.Warn("[Loader] Failed to read entry", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		fileType := FileType(strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")))
		parser, ok := l.parsers[fileType]
		if !ok {
			logger.Debug("[Loader] Skipping unsupported file", "path", path)
			return nil
		}

		rec, err := l.load(ctx, path, d, fileType, parser)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn("[Loader] Failed to load file", "path", path, "err", err)
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load directory %s: %w", dir, err)
	}

	logger.Info("[Loader] Loaded documents", "dir", dir, "records", len(records))
	return records, nil
}

func (l *Loader) load(ctx context.Context, path string, d fs.DirEntry, fileType FileType, parser FileParser) (common.Record, error) {
	info, err := d.Info()
	if err != nil {
		return common.Record{}, err
	}

	meta := common.Metadata{
		"filename": d.Name(),
		"path":     path,
		"type":     string(fileType),
		"size":     info.Size(),
		"modified": info.ModTime().Format(time.RFC3339),
	}
	text, err := parser.Parse(ctx, path, meta)
	if err != nil {
		return common.Record{}, err
	}
	return common.Record{Text: text, Metadata: meta}, nil
}
