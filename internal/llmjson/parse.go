package llmjson

import (
	"bytes"
	"encoding/json"
	"errors"

	"seoforge/internal/domain"
)

// Outcome tags a parse result.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSchemaViolation
	OutcomeDecodeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSchemaViolation:
		return "schema_violation"
	default:
		return "decode_failure"
	}
}

// Result is Ok(value), SchemaViolation(reasons) or DecodeFailure(raw).
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Reasons []string
	Raw     string
	Cleaned string
	// Pass names the normalization pass whose output decoded; empty when the
	// raw text decoded as-is.
	Pass string
	Err  error
}

// Failure returns the typed domain error for a failed result, nil otherwise.
func (r Result[T]) Failure() error {
	switch r.Outcome {
	case OutcomeOK:
		return nil
	case OutcomeSchemaViolation:
		return &domain.SchemaError{Reasons: r.Reasons}
	default:
		return &domain.DecodeError{Raw: r.Raw, Cleaned: r.Cleaned, Err: r.Err}
	}
}

// Unwrap returns the value or the typed error.
func (r Result[T]) Unwrap() (T, error) {
	if err := r.Failure(); err != nil {
		var zero T
		return zero, err
	}
	return r.Value, nil
}

// Decode tries the raw text and then the output of each pass in order,
// returning the first candidate that decodes into T.
func Decode[T any](raw string, passes []Pass) Result[T] {
	res := Result[T]{Raw: raw, Cleaned: raw}
	candidate := raw
	value, err := decodeStrict[T](candidate)
	if err == nil {
		res.Value = value
		return res
	}
	lastErr := err
	for _, pass := range passes {
		next := pass.Apply(candidate)
		if next == candidate {
			continue
		}
		candidate = next
		res.Cleaned = candidate
		value, err := decodeStrict[T](candidate)
		if err == nil {
			res.Value = value
			res.Pass = pass.Name
			return res
		}
		lastErr = err
	}
	res.Outcome = OutcomeDecodeFailure
	res.Err = lastErr
	return res
}

// Parse decodes raw with DefaultPasses and validates the value.
func Parse[T any](raw string, validate func(T) []string) Result[T] {
	res := Decode[T](raw, DefaultPasses)
	if res.Outcome != OutcomeOK {
		return res
	}
	if validate != nil {
		if reasons := validate(res.Value); len(reasons) > 0 {
			res.Outcome = OutcomeSchemaViolation
			res.Reasons = reasons
		}
	}
	return res
}

var errEmpty = errors.New("empty payload")

func decodeStrict[T any](text string) (T, error) {
	var out T
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return out, errEmpty
	}
	if trimmed[0] != '{' {
		return out, errors.New("payload is not a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	if dec.More() {
		return out, errors.New("trailing data after JSON object")
	}
	return out, nil
}
