package rollup

import (
	"context"
	"fmt"
	"strings"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/llm"
	"github.com/recalld/recalld/pkg/logger"
	"github.com/recalld/recalld/pkg/retriever"
)

const personaSystem = `You extract durable facts about the user from a conversation transcript: preferences, habits, relationships, background.
Only state facts the transcript supports; never guess. Rate your confidence in each.
Respond with a JSON array only: [{"statement": "<fact about the user>", "kind": "<preference|habit|relationship|background|other>", "confidence": <0.0-1.0>}]
Respond with [] when the transcript reveals nothing durable.`

// personaStopWords mark model filler that carries no durable fact.
var personaStopWords = []string{
	"unknown",
	"not mentioned",
	"no information",
	"cannot be determined",
	"n/a",
}

// PersonaCandidate is one extracted fact before filtering.
type PersonaCandidate struct {
	Statement  string  `json:"statement"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
}

// PersonaConfig tunes persona extraction.
type PersonaConfig struct {
	// MinConfidence discards facts the model is unsure about.
	MinConfidence float64
}

func (c PersonaConfig) withDefaults() PersonaConfig {
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.7
	}
	return c
}

// PersonaExtractor distills durable user facts from consolidated
// conversation turns into the persona collection.
type PersonaExtractor struct {
	store   event.Store
	vectors *retriever.TimeWeighted
	gen     Generator
	log     logger.Logger
	cfg     PersonaConfig
}

// NewPersonaExtractor wires the extractor.
func NewPersonaExtractor(store event.Store, vectors *retriever.TimeWeighted, gen Generator, log logger.Logger, cfg PersonaConfig) *PersonaExtractor {
	return &PersonaExtractor{
		store:   store,
		vectors: vectors,
		gen:     gen,
		log:     log,
		cfg:     cfg.withDefaults(),
	}
}

// Extract pulls persona facts out of the turns, filters the weak and empty
// ones, and stores the rest. A fact near-identical to one already stored
// is dropped; the established fact wins.
func (p *PersonaExtractor) Extract(ctx context.Context, userID string, turns []*event.Event) error {
	if len(turns) == 0 {
		return nil
	}
	var candidates []PersonaCandidate
	req := llm.Request{
		System: personaSystem,
		User:   event.FormatList(turns),
	}
	if err := p.gen.GenerateInto(ctx, req, &candidates); err != nil {
		return fmt.Errorf("rollup: persona: %w", err)
	}

	start := turns[0].StartTime
	end := turns[len(turns)-1].EndTime
	for _, cand := range candidates {
		if !p.admissible(cand) {
			continue
		}
		ev := &event.Event{
			UserID:     userID,
			Tier:       event.TierPersona,
			StartTime:  start,
			EndTime:    end,
			Content:    cand.Statement,
			Importance: cand.Confidence,
			Meta: event.Metadata{
				Persona: &event.PersonaFact{Kind: cand.Kind, Score: cand.Confidence},
			},
		}
		if err := p.store.Append(ctx, ev); err != nil {
			return fmt.Errorf("rollup: persona: %w", err)
		}
		inserted, err := p.vectors.Insert(ctx, ev.Tier.Collection(), recordFor(ev, ev.MemoryID, ev.Content), true)
		if err != nil {
			return fmt.Errorf("rollup: persona: %w", err)
		}
		if !inserted {
			p.log.Debug("persona fact already known", "user", userID, "statement", cand.Statement)
		}
	}
	return nil
}

// admissible filters out low-confidence and contentless candidates.
func (p *PersonaExtractor) admissible(cand PersonaCandidate) bool {
	s := strings.TrimSpace(cand.Statement)
	if s == "" || cand.Confidence < p.cfg.MinConfidence {
		return false
	}
	lower := strings.ToLower(s)
	for _, stop := range personaStopWords {
		if strings.Contains(lower, stop) {
			return false
		}
	}
	return true
}
