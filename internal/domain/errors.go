package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrSourceExhausted    = errors.New("SourceExhausted: no pending keyword")
	ErrGenerationFailure  = errors.New("GenerationFailure")
	ErrDecodeFailure      = errors.New("DecodeFailure")
	ErrSchemaViolation    = errors.New("SchemaViolation")
	ErrAssetUploadFailure = errors.New("AssetUploadFailure")
	ErrPublishFailure     = errors.New("PublishFailure")
	ErrArtifactNotFound   = errors.New("ArtifactNotFound")
	ErrRunInProgress      = errors.New("run already in progress for slug")
	ErrInvalidInput       = errors.New("invalid input")
)

// GenerationError describes an upstream model failure.
type GenerationError struct {
	Provider    string
	Status      int
	RateLimited bool
	Truncated   bool
	Body        string
	Err         error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrGenerationFailure.Error())
	if e.Provider != "" {
		b.WriteString(" (")
		b.WriteString(e.Provider)
		b.WriteString(")")
	}
	switch {
	case e.RateLimited:
		b.WriteString(": rate limited")
	case e.Truncated:
		b.WriteString(": response truncated")
	case e.Status > 0:
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailure }

// DecodeError keeps the raw and partially cleaned model text for diagnosis.
type DecodeError struct {
	Raw     string
	Cleaned string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return ErrDecodeFailure.Error()
	}
	return ErrDecodeFailure.Error() + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecodeFailure }

// SchemaError lists every required field a decoded value is missing.
type SchemaError struct {
	Reasons []string
}

func (e *SchemaError) Error() string {
	return ErrSchemaViolation.Error() + ": " + strings.Join(e.Reasons, "; ")
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchemaViolation }

// UpstreamError is returned by the publishing target.
type UpstreamError struct {
	Kind   error
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
		b.WriteString(": ")
	}
	b.WriteString(e.Op)
	if e.Status > 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return e.Kind != nil && target == e.Kind }

// StageError attributes a fatal failure to the pipeline stage that raised it.
type StageError struct {
	Stage   Stage
	Keyword string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// UpstreamPayload returns the response body attached to err, if any.
func UpstreamPayload(err error) string {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Body
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Body
	}
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr.Raw
	}
	return ""
}
