package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/logger"
	"github.com/recalld/recalld/pkg/retriever"
)

// ConversationConfig tunes when transcript turns are consolidated.
type ConversationConfig struct {
	// IdleInterval consolidates a conversation once no turn has arrived
	// for this long; the exchange is considered over.
	IdleInterval time.Duration

	// MaxRounds forces consolidation mid-conversation once the open
	// transcript exceeds this many turns.
	MaxRounds int

	// KeepRounds is how many of the latest turns stay unconsolidated when
	// MaxRounds triggers, preserving immediate context.
	KeepRounds int

	// LookbackDays bounds the transcript search, in day-start boundaries.
	LookbackDays int
}

func (c ConversationConfig) withDefaults() ConversationConfig {
	if c.IdleInterval <= 0 {
		c.IdleInterval = 10 * time.Minute
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = 8
	}
	if c.KeepRounds <= 0 {
		c.KeepRounds = 2
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 1
	}
	return c
}

// ConversationConsolidator rolls open transcript turns into conversation
// memories, one per topic, and hands the consolidated turns to the persona
// extractor.
type ConversationConsolidator struct {
	*pipeline
	sum     *Summarizer
	persona *PersonaExtractor
	log     logger.Logger
	cfg     ConversationConfig
}

// NewConversationConsolidator wires the consolidator. persona may be nil
// to disable persona extraction.
func NewConversationConsolidator(
	store event.Store,
	vectors *retriever.TimeWeighted,
	sum *Summarizer,
	imp *ImportanceEvaluator,
	idx *IndexEvaluator,
	persona *PersonaExtractor,
	log logger.Logger,
	m Metrics,
	cfg ConversationConfig,
) *ConversationConsolidator {
	return &ConversationConsolidator{
		pipeline: newPipeline(store, vectors, imp, idx, m),
		sum:      sum,
		persona:  persona,
		log:      log,
		cfg:      cfg.withDefaults(),
	}
}

// Consolidate checks one user's open transcript and rolls it up when the
// conversation has gone idle or grown past the round limit. Turns covered
// by a committed conversation memory are never reprocessed.
func (c *ConversationConsolidator) Consolidate(ctx context.Context, userID string, now int64) error {
	horizon := event.DayStart(now, c.cfg.LookbackDays-1)

	// Cursor: everything before the latest committed conversation memory
	// is already consolidated.
	last, err := event.Latest(ctx, c.store, userID, event.TierConversation, horizon, now)
	if err != nil {
		return err
	}
	from := horizon
	if last != nil && last.EndTime > from {
		from = last.EndTime + 1
	}

	turns, err := c.store.ByDuration(ctx, userID, event.TierConversationTurn, from, now, 0)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	idle := now-turns[len(turns)-1].EndTime >= c.cfg.IdleInterval.Milliseconds()
	switch {
	case idle:
		// The exchange is over; consolidate everything.
	case len(turns) > c.cfg.MaxRounds:
		// Mid-conversation overflow: keep the newest turns as live context.
		// A KeepRounds at or above the transcript length still consolidates
		// the oldest turn, so overflow always makes progress.
		keep := c.cfg.KeepRounds
		if keep >= len(turns) {
			keep = len(turns) - 1
		}
		turns = turns[:len(turns)-keep]
	default:
		return nil
	}

	if err := c.consolidate(ctx, userID, turns, now); err != nil {
		return err
	}
	if c.persona != nil {
		if err := c.persona.Extract(ctx, userID, turns); err != nil {
			// Persona extraction is an enrichment; a failure must not undo
			// the committed consolidation.
			c.log.ErrorContext(ctx, "persona extraction failed", "user", userID, "error", err)
		}
	}
	return nil
}

// consolidate summarizes the turns into one memory per topic. Multi-topic
// conversations divide the transcript span evenly across topics.
func (c *ConversationConsolidator) consolidate(ctx context.Context, userID string, turns []*event.Event, now int64) error {
	summaries, err := c.sum.SummarizeConversation(ctx, turns)
	if err != nil {
		return err
	}

	location := c.latestLocation(ctx, userID, now)
	start := turns[0].StartTime
	end := turns[len(turns)-1].EndTime
	step := (end - start) / int64(len(summaries))

	for i, sum := range summaries {
		evStart := start + int64(i)*step
		evEnd := evStart + step
		if i == len(summaries)-1 {
			evEnd = end
		}
		ev := &event.Event{
			UserID:    userID,
			Tier:      event.TierConversation,
			StartTime: evStart,
			EndTime:   evEnd,
			Content:   sum.Summary,
			Detail:    sum.Detail,
		}
		if err := c.evaluate(ctx, ev); err != nil {
			return err
		}
		if ev.Salient() && location != "" {
			if ev.Meta.Index == nil {
				ev.Meta.Index = make(event.IndexTerms)
			}
			ev.Meta.Index["location"] = appendMissing(ev.Meta.Index["location"], location)
		}
		if err := c.commit(ctx, ev); err != nil {
			return fmt.Errorf("conversation topic %d: %w", i, err)
		}
	}
	return nil
}

// latestLocation pulls the most recent snapshot's location index phrase, so
// conversation memories are grounded where they happened. Absent or
// unindexed snapshots yield an empty string.
func (c *ConversationConsolidator) latestLocation(ctx context.Context, userID string, now int64) string {
	horizon := event.DayStart(now, c.cfg.LookbackDays-1)
	snap, err := event.Latest(ctx, c.store, userID, event.TierSnapshot, horizon, now)
	if err != nil || snap == nil {
		return ""
	}
	if locs := snap.Meta.Index["location"]; len(locs) > 0 {
		return locs[0]
	}
	return ""
}

func appendMissing(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
