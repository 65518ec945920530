// Package verdictschema validates the scoring oracle's JSON verdict before
// any of its numbers are trusted.
package verdictschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed score_verdict.schema.json
var scoreVerdictSchemaJSON string

// Verdict is the oracle's answer for one candidate. Sub-scores are required;
// everything else may be absent.
type Verdict struct {
	OverallScore      *int     `json:"overall_score,omitempty"`
	RelevanceScore    int      `json:"relevance_score"`
	ImpactScore       int      `json:"impact_score"`
	AdoptionScore     int      `json:"adoption_score"`
	UrgencyScore      int      `json:"urgency_score"`
	CredibilityScore  int      `json:"credibility_score"`
	Tags              []string `json:"tags,omitempty"`
	ActionHint        string   `json:"action_hint,omitempty"`
	MarketerRelevance []string `json:"marketer_relevance,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateVerdictPayload checks the raw JSON against the embedded schema and
// returns the decoded verdict.
func ValidateVerdictPayload(payload json.RawMessage) (*Verdict, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode verdict JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize verdict JSON: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal(normalized, &verdict); err != nil {
		return nil, fmt.Errorf("unmarshal verdict: %w", err)
	}

	if err := validateSemantics(&verdict); err != nil {
		return nil, err
	}

	return &verdict, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("score_verdict.schema.json", strings.NewReader(scoreVerdictSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("score_verdict.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("verdict is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("verdict contains trailing content")
	}

	return value, nil
}

func validateSemantics(verdict *Verdict) error {
	if verdict == nil {
		return fmt.Errorf("verdict is nil")
	}
	for i, tag := range verdict.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("tags[%d] must not be empty", i)
		}
	}
	for i, point := range verdict.MarketerRelevance {
		if strings.TrimSpace(point) == "" {
			return fmt.Errorf("marketer_relevance[%d] must not be empty", i)
		}
	}
	return nil
}
