package interview

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed evaluation.schema.json
var evaluationSchemaJSON string

const evaluationSchemaURL = "https://intervox.local/schemas/evaluation.schema.json"

var evaluationSchema = mustCompileEvaluationSchema()

func mustCompileEvaluationSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(evaluationSchemaURL, strings.NewReader(evaluationSchemaJSON)); err != nil {
		panic(fmt.Sprintf("interview: add evaluation schema: %v", err))
	}
	schema, err := compiler.Compile(evaluationSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("interview: compile evaluation schema: %v", err))
	}
	return schema
}

// ErrMalformedEvaluation is returned when model output holds no valid
// evaluation object.
var ErrMalformedEvaluation = errors.New("interview: malformed evaluation")

type evaluationPayload struct {
	Score        float64  `json:"score"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Feedback     string   `json:"feedback"`
	FollowUp     *string  `json:"follow_up"`
}

// ParseEvaluation extracts the evaluation object from model output. Chatty
// models often wrap JSON in prose or code fences, so the first balanced
// {...} block is used.
func ParseEvaluation(raw string) (Evaluation, error) {
	obj, ok := extractObject(raw)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: no JSON object found", ErrMalformedEvaluation)
	}

	var generic any
	if err := json.Unmarshal([]byte(obj), &generic); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %w", ErrMalformedEvaluation, err)
	}
	if err := evaluationSchema.Validate(generic); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %w", ErrMalformedEvaluation, err)
	}

	var p evaluationPayload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %w", ErrMalformedEvaluation, err)
	}

	ev := Evaluation{
		Score:        int(math.Round(p.Score)),
		Strengths:    cleanList(p.Strengths),
		Improvements: cleanList(p.Improvements),
		Feedback:     strings.TrimSpace(p.Feedback),
	}
	if p.FollowUp != nil {
		ev.FollowUp = strings.TrimSpace(*p.FollowUp)
	}
	return ev, nil
}

// extractObject returns the first balanced JSON object in s, honouring
// string literals.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
