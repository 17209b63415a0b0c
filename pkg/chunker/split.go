package chunker

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/graphvec/pkg/common"
)

const (
	DefaultWindowSize = 400
	DefaultOverlap    = 50
	DefaultMinSize    = 20
)

// ValidateWindow reports ErrInvalidConfiguration for parameters that would
// make Split loop forever or produce nonsense.
func ValidateWindow(windowSize, overlap, minSize int) error {
	switch {
	case windowSize <= 0:
		return fmt.Errorf("%w: window size must be positive, got %d", common.ErrInvalidConfiguration, windowSize)
	case overlap < 0:
		return fmt.Errorf("%w: overlap must not be negative, got %d", common.ErrInvalidConfiguration, overlap)
	case overlap >= windowSize:
		return fmt.Errorf("%w: overlap %d must be smaller than window size %d", common.ErrInvalidConfiguration, overlap, windowSize)
	case minSize < 0:
		return fmt.Errorf("%w: minimum chunk size must not be negative, got %d", common.ErrInvalidConfiguration, minSize)
	}
	return nil
}

// Split cuts text into windows of windowSize whitespace separated tokens.
// Windows start every windowSize-overlap tokens. A window is kept only if it
// holds more than minSize tokens, so a short tail is dropped.
func Split(text string, windowSize, overlap, minSize int) ([]string, error) {
	if err := ValidateWindow(windowSize, overlap, minSize); err != nil {
		return nil, err
	}

	tokens := strings.Fields(text)
	step := windowSize - overlap
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := min(start+windowSize, len(tokens))
		if end-start > minSize {
			chunks = append(chunks, strings.Join(tokens[start:end], " "))
		}
	}
	return chunks, nil
}
