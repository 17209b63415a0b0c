package ai

import (
	"fmt"
	"strings"
)

// DefaultExtractFocus lists the entity categories the extraction prompt asks
// for when no focus is configured.
var DefaultExtractFocus = []string{
	"companies",
	"markets",
	"economic indicators",
	"financial instruments",
	"people",
	"regulations",
}

const extractPrompt = `Extract entities and their relationships from the text.

Focus on: %s.

Return ONLY valid JSON in this exact format:
{
  "entities": ["Entity1", "Entity2"],
  "relations": [
    {"source": "Entity1", "target": "Entity2", "relation": "affects", "confidence": 0.8}
  ]
}

Rules:
- Entity names are copied verbatim from the text.
- Every relation source and target also appears in "entities".
- "confidence" is a number between 0 and 1.
- Return {"entities": [], "relations": []} if the text contains nothing relevant.

Text: %s

JSON:`

// ExtractSystemPrompt is sent as the system message for extraction calls.
const ExtractSystemPrompt = "You are an information extraction service. You answer with JSON only."

// ExtractPrompt renders the entity and relation extraction prompt for text.
// An empty focus falls back to DefaultExtractFocus.
func ExtractPrompt(text string, focus []string) string {
	if len(focus) == 0 {
		focus = DefaultExtractFocus
	}
	return fmt.Sprintf(extractPrompt, strings.Join(focus, ", "), text)
}
