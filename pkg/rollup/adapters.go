// Package rollup compresses raw events into a hierarchy of time-scaled
// summaries. The scheduler walks unprocessed windows per user and tier,
// clusters near-duplicate events, summarizes each cluster through a model
// backend, scores emotional salience, and promotes salient results into
// associative memory.
package rollup

import (
	"context"
	"fmt"
	"strings"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/llm"
)

// Generator is the model backend contract the adapters run on. An
// escalating chain satisfies it; tests substitute scripted fakes.
type Generator interface {
	GenerateInto(ctx context.Context, req llm.Request, out any) error
}

const summarizeSystem = `You merge observations about a person's day into one coherent memory.
Given a list of observations that describe the same ongoing situation, write a single merged record.
Respond with JSON only: {"summary": "<one sentence>", "detail": "<a few sentences with the concrete specifics>"}`

const conversationSystem = `You condense a conversation transcript into memories, one per distinct topic.
Most conversations cover a single topic; only split when the transcript clearly changes subject.
Respond with a JSON array only: [{"summary": "<one sentence>", "detail": "<a few sentences>"}]`

const importanceSystem = `You judge how emotionally significant a memory is to the person who lived it.
Respond with JSON only: {"emotion": "<dominant emotion word>", "emotional_arousal": <integer 1-10>, "is_memorable": <true|false>}`

const indexSystem = `You extract retrieval keys from a memory.
Respond with JSON only, mapping each category to a list of short phrases, for example:
{"activity": ["having lunch"], "location": ["noodle shop"], "object": ["ramen"]}
Use only categories that apply; leave out empty ones.`

// Summary is one merged record produced by the summarizer.
type Summary struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
}

// Summarizer collapses a cluster of events into one higher-level record.
type Summarizer struct {
	gen Generator
}

// NewSummarizer builds a summarizer on the given backend.
func NewSummarizer(gen Generator) *Summarizer {
	return &Summarizer{gen: gen}
}

// Summarize merges a cluster of events into a single summary and detail.
func (s *Summarizer) Summarize(ctx context.Context, events []*event.Event) (Summary, error) {
	if len(events) == 0 {
		return Summary{}, fmt.Errorf("rollup: summarize: %w", llm.ErrBadOutput)
	}
	if len(events) == 1 && events[0].Detail == "" {
		// Nothing to merge; pass the single observation through.
		return Summary{Summary: events[0].Content}, nil
	}
	var out Summary
	req := llm.Request{
		System: summarizeSystem,
		User:   event.FormatDescribedList(events, true),
	}
	if err := s.gen.GenerateInto(ctx, req, &out); err != nil {
		return Summary{}, fmt.Errorf("rollup: summarize: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return Summary{}, fmt.Errorf("rollup: summarize: empty summary: %w", llm.ErrBadOutput)
	}
	return out, nil
}

// SummarizeConversation condenses transcript turns into one summary per
// topic.
func (s *Summarizer) SummarizeConversation(ctx context.Context, turns []*event.Event) ([]Summary, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	var out []Summary
	req := llm.Request{
		System: conversationSystem,
		User:   event.FormatList(turns),
	}
	if err := s.gen.GenerateInto(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("rollup: summarize conversation: %w", err)
	}
	kept := out[:0]
	for _, sum := range out {
		if strings.TrimSpace(sum.Summary) != "" {
			kept = append(kept, sum)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("rollup: summarize conversation: no topics: %w", llm.ErrBadOutput)
	}
	return kept, nil
}

// ImportanceEvaluator scores a summarized event's emotional salience.
type ImportanceEvaluator struct {
	gen Generator
}

// NewImportanceEvaluator builds an evaluator on the given backend.
func NewImportanceEvaluator(gen Generator) *ImportanceEvaluator {
	return &ImportanceEvaluator{gen: gen}
}

// Evaluate returns the emotion label, arousal and memorability for an
// event. Arousal outside [1, 10] is clamped.
func (e *ImportanceEvaluator) Evaluate(ctx context.Context, ev *event.Event) (event.Importance, error) {
	var out event.Importance
	req := llm.Request{
		System: importanceSystem,
		User:   ev.FormatDescribed(false),
	}
	if err := e.gen.GenerateInto(ctx, req, &out); err != nil {
		return event.Importance{}, fmt.Errorf("rollup: evaluate importance: %w", err)
	}
	if out.Arousal < 1 {
		out.Arousal = 1
	}
	if out.Arousal > 10 {
		out.Arousal = 10
	}
	return out, nil
}

// IndexEvaluator extracts structured index terms from an event.
type IndexEvaluator struct {
	gen Generator
}

// NewIndexEvaluator builds an evaluator on the given backend.
func NewIndexEvaluator(gen Generator) *IndexEvaluator {
	return &IndexEvaluator{gen: gen}
}

// Extract returns category-keyed index phrases for an event. Empty
// categories and blank phrases are dropped.
func (e *IndexEvaluator) Extract(ctx context.Context, ev *event.Event) (event.IndexTerms, error) {
	var out event.IndexTerms
	req := llm.Request{
		System: indexSystem,
		User:   ev.FormatDescribed(false),
	}
	if err := e.gen.GenerateInto(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("rollup: extract index: %w", err)
	}
	terms := make(event.IndexTerms)
	for category, phrases := range out {
		var kept []string
		for _, p := range phrases {
			if strings.TrimSpace(p) != "" {
				kept = append(kept, p)
			}
		}
		if len(kept) > 0 {
			terms[category] = kept
		}
	}
	return terms, nil
}
