// Package extract adapts an entity extraction service to the graph builder.
//
// Whatever the service does, callers receive an Outcome: either a validated
// extraction or a failure wrapping common.ErrExtractionFailure.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/graphvec/pkg/common"
)

// Outcome is the result of one extraction call.
type Outcome struct {
	Extraction common.Extraction
	// Skipped counts entities and relations dropped during validation.
	Skipped int
	Err     error
}

// Success wraps a validated extraction.
func Success(ex common.Extraction, skipped int) Outcome {
	return Outcome{Extraction: ex, Skipped: skipped}
}

// Failure wraps err so that errors.Is(err, common.ErrExtractionFailure)
// holds. The extraction of a failed outcome is empty.
func Failure(err error) Outcome {
	if err == nil {
		err = errors.New("unknown error")
	}
	if !errors.Is(err, common.ErrExtractionFailure) {
		err = fmt.Errorf("%w: %w", common.ErrExtractionFailure, err)
	}
	return Outcome{Err: err}
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Oracle extracts entities and relations from a chunk of text. Extract must
// not panic and must report every problem through the Outcome.
type Oracle interface {
	Extract(ctx context.Context, text string) Outcome
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, text string) Outcome

func (f OracleFunc) Extract(ctx context.Context, text string) Outcome {
	return f(ctx, text)
}
