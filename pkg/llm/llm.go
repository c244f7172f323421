// Package llm holds the model adapters used by the roll-up pipeline:
// a chat generator with a retry-with-escalation policy and a text embedder.
// Model output is treated as an unreliable upstream; callers get structured
// decode helpers and explicit sentinel errors instead of panics.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrBadOutput marks model output that could not be parsed into the
	// requested structure. Escalation policies treat it as retryable on a
	// higher-capacity backend.
	ErrBadOutput = errors.New("llm: unparseable model output")

	// ErrNoBackends is returned by an escalating generator constructed
	// without any backends.
	ErrNoBackends = errors.New("llm: no backends configured")
)

// Request is a single prompt exchange. The system text frames the task, the
// user text carries the content to operate on.
type Request struct {
	System string
	User   string
}

// Generator produces a text completion for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Embedder turns texts into embedding vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Metrics receives model-call instrumentation. Implementations must be
// safe for concurrent use; status is "ok" or "error".
type Metrics interface {
	RecordModelRequest(model, status string)
	RecordModelDuration(model string, d time.Duration)
	RecordEmbeddingRequest(status string)
	ObserveEmbeddingBatch(size int)
}

type nopMetrics struct{}

func (nopMetrics) RecordModelRequest(string, string)         {}
func (nopMetrics) RecordModelDuration(string, time.Duration) {}
func (nopMetrics) RecordEmbeddingRequest(string)             {}
func (nopMetrics) ObserveEmbeddingBatch(int)                 {}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("llm: embedder returned %d vectors for one text", len(vecs))
	}
	return vecs[0], nil
}

// DecodeJSON parses model output into out, tolerating markdown code fences
// and prose around the JSON payload. Failures wrap ErrBadOutput.
func DecodeJSON(text string, out any) error {
	payload := extractJSON(text)
	if payload == "" {
		return fmt.Errorf("%w: no JSON payload in %q", ErrBadOutput, truncate(text, 120))
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	return nil
}

// extractJSON returns the outermost JSON object or array embedded in text.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	objStart := strings.IndexAny(s, "{[")
	if objStart < 0 {
		return ""
	}
	var closer byte
	if s[objStart] == '{' {
		closer = '}'
	} else {
		closer = ']'
	}
	objEnd := strings.LastIndexByte(s, closer)
	if objEnd <= objStart {
		return ""
	}
	return s[objStart : objEnd+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
