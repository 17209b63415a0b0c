package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/graphvec/pkg/ai"
	"github.com/OFFIS-RIT/graphvec/pkg/common"

	"github.com/go-playground/validator"
)

// DefaultConfidence is used for relations that carry no confidence.
const DefaultConfidence = 0.5

var validate = validator.New()

type wireRelation struct {
	Source     string   `json:"source" validate:"required"`
	Target     string   `json:"target" validate:"required"`
	Relation   string   `json:"relation" validate:"required"`
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,min=0,max=1"`
}

type wireExtraction struct {
	Entities  []string       `json:"entities"`
	Relations []wireRelation `json:"relations"`
}

func (r wireRelation) toRelation() (common.Relation, error) {
	if err := validate.Struct(r); err != nil {
		return common.Relation{}, err
	}
	conf := DefaultConfidence
	if r.Confidence != nil {
		conf = *r.Confidence
	}
	return common.Relation{
		Source:     r.Source,
		Target:     r.Target,
		Relation:   r.Relation,
		Confidence: conf,
	}, nil
}

// Parse validates raw oracle output.
//
// Markdown code fences are stripped and malformed JSON is repaired where
// possible. The top level must be an object; "entities" and "relations",
// when present, must be arrays. Within those arrays every item is checked on
// its own: non-string entities and relations missing source, target or
// relation, or with a confidence outside [0, 1], are skipped and counted.
// A missing confidence defaults to DefaultConfidence.
func Parse(raw string) (common.Extraction, int, error) {
	var ex common.Extraction

	body := ai.StripCodeFences(raw)
	if body == "" {
		return ex, 0, errors.New("empty response")
	}

	var top map[string]json.RawMessage
	if err := ai.UnmarshalFlexible(body, &top); err != nil {
		return ex, 0, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if top == nil {
		return ex, 0, errors.New("response is not a JSON object")
	}

	entities, err := rawArray(top, "entities")
	if err != nil {
		return ex, 0, err
	}
	relations, err := rawArray(top, "relations")
	if err != nil {
		return ex, 0, err
	}

	skipped := 0
	for _, item := range entities {
		var name string
		if err := json.Unmarshal(item, &name); err != nil || name == "" {
			skipped++
			continue
		}
		ex.Entities = append(ex.Entities, name)
	}
	for _, item := range relations {
		var wr wireRelation
		if err := json.Unmarshal(item, &wr); err != nil {
			skipped++
			continue
		}
		rel, err := wr.toRelation()
		if err != nil {
			skipped++
			continue
		}
		ex.Relations = append(ex.Relations, rel)
	}
	return ex, skipped, nil
}

func rawArray(top map[string]json.RawMessage, key string) ([]json.RawMessage, error) {
	raw, ok := top[key]
	if !ok || strings.TrimSpace(string(raw)) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%q is not an array", key)
	}
	return items, nil
}

func fromWire(w wireExtraction) (common.Extraction, int) {
	var ex common.Extraction
	skipped := 0
	for _, name := range w.Entities {
		if name == "" {
			skipped++
			continue
		}
		ex.Entities = append(ex.Entities, name)
	}
	for _, wr := range w.Relations {
		rel, err := wr.toRelation()
		if err != nil {
			skipped++
			continue
		}
		ex.Relations = append(ex.Relations, rel)
	}
	return ex, skipped
}
