package rollup

import (
	"context"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/retriever"
	"github.com/recalld/recalld/pkg/vectorstore"
)

// pipeline is the shared persist-and-promote path behind the roll-up
// scheduler and the conversation consolidator.
type pipeline struct {
	store   event.Store
	vectors *retriever.TimeWeighted
	imp     *ImportanceEvaluator
	idx     *IndexEvaluator
	metrics Metrics
}

func newPipeline(store event.Store, vectors *retriever.TimeWeighted, imp *ImportanceEvaluator, idx *IndexEvaluator, m Metrics) *pipeline {
	if m == nil {
		m = nopMetrics{}
	}
	return &pipeline{store: store, vectors: vectors, imp: imp, idx: idx, metrics: m}
}

// evaluate scores salience and, for salient events, extracts index terms.
// Below the salience threshold the detail text is dropped: only
// emotionally significant memories keep their specifics.
func (p *pipeline) evaluate(ctx context.Context, ev *event.Event) error {
	imp, err := p.imp.Evaluate(ctx, ev)
	if err != nil {
		return err
	}
	ev.Meta.Importance = &imp
	ev.Importance = float64(imp.Arousal) / 10
	if !imp.Salient() {
		ev.Detail = ""
		return nil
	}
	terms, err := p.idx.Extract(ctx, ev)
	if err != nil {
		return err
	}
	ev.Meta.Index = terms
	return nil
}

// commit persists the event and, when it is salient, pushes it into the
// vector store; promoted tiers additionally get an associative-memory copy
// with one index record per extracted phrase.
func (p *pipeline) commit(ctx context.Context, ev *event.Event) error {
	if err := p.store.Append(ctx, ev); err != nil {
		return err
	}
	p.metrics.RecordEventAppended(ev.Tier.String())
	if !ev.Salient() {
		return nil
	}
	if _, err := p.vectors.Insert(ctx, ev.Tier.Collection(), recordFor(ev, ev.MemoryID, ev.Content), false); err != nil {
		return err
	}
	p.metrics.EventPromoted(ev.Tier.Collection())
	if !ev.Tier.Promoted() {
		return nil
	}

	assoc := *ev
	assoc.Tier = event.TierAssociative
	assoc.MemoryID = ""
	assoc.CreatedAt = 0
	if err := p.store.Append(ctx, &assoc); err != nil {
		return err
	}
	p.metrics.RecordEventAppended(assoc.Tier.String())
	if _, err := p.vectors.Insert(ctx, assoc.Tier.Collection(), recordFor(&assoc, assoc.MemoryID, assoc.Content), false); err != nil {
		return err
	}
	p.metrics.EventPromoted(assoc.Tier.Collection())

	for _, phrase := range ev.Meta.Index.Phrases() {
		if _, err := p.vectors.Insert(ctx, event.IndexCollection, recordFor(&assoc, assoc.MemoryID, phrase), false); err != nil {
			return err
		}
	}
	return nil
}

// recordFor projects an event into a vector record. The content parameter
// lets index records carry a single phrase while pointing at the memory.
func recordFor(ev *event.Event, memoryID, content string) *vectorstore.Record {
	return &vectorstore.Record{
		UserID:     ev.UserID,
		MemoryID:   memoryID,
		Tier:       ev.Tier,
		StartTime:  ev.StartTime,
		EndTime:    ev.EndTime,
		Importance: ev.Importance,
		Content:    content,
	}
}
