package rollup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/llm"
	"github.com/recalld/recalld/pkg/logger"
	"github.com/recalld/recalld/pkg/retriever"
	"github.com/recalld/recalld/pkg/similarity"
)

// Metrics receives pipeline counters. The metrics package provides the
// production implementation; tests usually pass nil.
type Metrics interface {
	WindowProcessed(tier string)
	WindowFailed(tier string)
	EventPromoted(collection string)
	RecordWindowDuration(tier string, d time.Duration)
	RecordEventAppended(tier string)
}

type nopMetrics struct{}

func (nopMetrics) WindowProcessed(string)                     {}
func (nopMetrics) WindowFailed(string)                        {}
func (nopMetrics) EventPromoted(string)                       {}
func (nopMetrics) RecordWindowDuration(string, time.Duration) {}
func (nopMetrics) RecordEventAppended(string)                 {}

var tracer = otel.Tracer("github.com/recalld/recalld/pkg/rollup")

// Config tunes the roll-up scheduler.
type Config struct {
	// TickSpec is the cron expression for scheduling ticks.
	TickSpec string

	// SafetyDelay is the trailing delay before a window is considered
	// complete, covering late-arriving source data.
	SafetyDelay time.Duration

	// LookbackDays bounds how far back active users and unprocessed
	// windows are searched, measured in day-start boundaries.
	LookbackDays int

	// Workers is the number of concurrent (user, tier) jobs.
	Workers int

	// MaxWindowsPerTick caps windows processed per (user, tier) per tick,
	// keeping a backlog from starving other users.
	MaxWindowsPerTick int

	// ClusterThresholds overrides the per-tier clustering threshold.
	ClusterThresholds map[event.Tier]float64
}

func (c Config) withDefaults() Config {
	if c.TickSpec == "" {
		c.TickSpec = "@every 1m"
	}
	if c.SafetyDelay <= 0 {
		c.SafetyDelay = 5 * time.Minute
	}
	if c.LookbackDays <= 0 {
		// Two day-start boundaries: a day-tier window spans 23 hours, so
		// the horizon must reach into the previous day for it to complete.
		c.LookbackDays = 2
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxWindowsPerTick <= 0 {
		c.MaxWindowsPerTick = 30
	}
	return c
}

// thresholdFor picks the clustering threshold for a tier: fine tiers merge
// eagerly, coarser tiers require closer matches before consolidating.
func (c Config) thresholdFor(tier event.Tier) float64 {
	if t, ok := c.ClusterThresholds[tier]; ok {
		return t
	}
	switch tier {
	case event.TierMinute, event.TierTenMinutes:
		return 0.80
	default:
		return 0.85
	}
}

// Scheduler walks each active user's memory tiers forward in time,
// materializing roll-up windows as their source data completes.
type Scheduler struct {
	*pipeline
	embedder llm.Embedder
	sum      *Summarizer
	conv     *ConversationConsolidator
	log      logger.Logger
	cfg      Config
	cron     *cron.Cron
	now      func() int64
}

// NewScheduler wires the roll-up pipeline. conv may be nil when
// conversation consolidation is not deployed.
func NewScheduler(
	store event.Store,
	vectors *retriever.TimeWeighted,
	embedder llm.Embedder,
	sum *Summarizer,
	imp *ImportanceEvaluator,
	idx *IndexEvaluator,
	conv *ConversationConsolidator,
	log logger.Logger,
	m Metrics,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		pipeline: newPipeline(store, vectors, imp, idx, m),
		embedder: embedder,
		sum:      sum,
		conv:     conv,
		log:      log,
		cfg:      cfg.withDefaults(),
		now:      event.Now,
	}
}

// Start begins ticking on the configured schedule. Overlapping ticks are
// skipped rather than queued.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := s.cron.AddFunc(s.cfg.TickSpec, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("rollup: schedule %q: %w", s.cfg.TickSpec, err)
	}
	s.cron.Start()
	s.log.Info("rollup scheduler started", "tick", s.cfg.TickSpec, "workers", s.cfg.Workers)
	return nil
}

// Stop halts ticking and waits for the running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info("rollup scheduler stopped")
}

type job struct {
	userID string
	tier   event.Tier
}

// Tick runs one full scheduling pass: discover active users, then process
// every (user, tier) pair on a bounded worker pool. A failing pair never
// aborts the others.
func (s *Scheduler) Tick(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "rollup.tick")
	defer span.End()

	now := s.now()
	since := event.DayStart(now, s.cfg.LookbackDays-1)
	users, err := s.store.ActiveUsers(ctx, since)
	if err != nil {
		s.log.ErrorContext(ctx, "active user discovery failed", "error", err)
		return
	}
	if len(users) == 0 {
		return
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := s.processUserTier(ctx, j.userID, j.tier, now); err != nil {
					s.log.ErrorContext(ctx, "roll-up pass failed",
						"user", j.userID, "tier", j.tier.String(), "error", err)
				}
			}
		}()
	}
	for _, u := range users {
		for _, tier := range event.RollupTiers {
			jobs <- job{userID: u, tier: tier}
		}
	}
	close(jobs)
	wg.Wait()

	if s.conv != nil {
		for _, u := range users {
			if err := s.conv.Consolidate(ctx, u, now); err != nil {
				s.log.ErrorContext(ctx, "conversation consolidation failed",
					"user", u, "error", err)
			}
		}
	}
}

// processUserTier walks complete, unprocessed windows for one (user, tier)
// pair. The cursor is derived from committed events each pass, so a window
// that fails or has no data yet is retried on the next tick.
func (s *Scheduler) processUserTier(ctx context.Context, userID string, tier event.Tier, now int64) error {
	src, err := tier.Source()
	if err != nil {
		return err
	}
	dur, err := tier.Duration()
	if err != nil {
		return err
	}

	horizon := event.DayStart(now, s.cfg.LookbackDays-1)
	deadline := now - s.cfg.SafetyDelay.Milliseconds()

	last, err := event.Latest(ctx, s.store, userID, tier, horizon, now)
	if err != nil {
		return err
	}
	var w int64
	if last != nil {
		// Exclusive of the last committed span, so its final source event
		// is not consumed twice.
		w = last.EndTime + 1
	} else {
		sources, err := s.store.ByDuration(ctx, userID, src, horizon, now, 0)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			// No source data at all in range: nothing to roll up.
			return nil
		}
		w = sources[0].StartTime
	}

	for windows := 0; w+dur <= deadline && windows < s.cfg.MaxWindowsPerTick; windows++ {
		end := w + dur

		// A committed roll-up inside the window means a previous run (or a
		// concurrent one) already covered it.
		existing, err := s.store.ByDuration(ctx, userID, tier, w, end, 1)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			next := existing[len(existing)-1].EndTime + 1
			if next <= w {
				next = end
			}
			w = next
			continue
		}

		sources, err := s.store.ByDuration(ctx, userID, src, w, end, 0)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			w = end
			continue
		}

		started := time.Now()
		err = s.processWindow(ctx, userID, tier, sources)
		s.metrics.RecordWindowDuration(tier.String(), time.Since(started))
		if err != nil {
			s.metrics.WindowFailed(tier.String())
			// The window's committed clusters stay put; the next tick's
			// cursor lands past them and retries only the failed suffix.
			return fmt.Errorf("window [%s]: %w", event.FormatWindow(w, end), err)
		}
		s.metrics.WindowProcessed(tier.String())
		w = end
	}
	return nil
}

// processWindow clusters the window's source events and materializes one
// roll-up event per cluster. Clusters are committed one at a time, so a
// failure mid-window leaves a committed prefix; the cursor probe in
// processUserTier resumes after it and only the suffix is redone.
func (s *Scheduler) processWindow(ctx context.Context, userID string, tier event.Tier, sources []*event.Event) error {
	ctx, span := tracer.Start(ctx, "rollup.window",
		trace.WithAttributes(
			attribute.String("tier", tier.String()),
			attribute.Int("sources", len(sources)),
		))
	defer span.End()

	texts := make([]string, len(sources))
	for i, e := range sources {
		texts[i] = e.Content
	}
	spans, err := similarity.ClusterTexts(ctx, s.embedder, texts, s.cfg.thresholdFor(tier))
	if err != nil {
		return err
	}

	for _, span := range spans {
		cluster := sources[span.Start:span.End]
		sum, err := s.sum.Summarize(ctx, cluster)
		if err != nil {
			return err
		}
		ev := &event.Event{
			UserID: userID,
			Tier:   tier,
			// Span of actual content, not the nominal window: clustering
			// may have collapsed the window to a narrower stretch.
			StartTime: cluster[0].StartTime,
			EndTime:   cluster[len(cluster)-1].EndTime,
			Content:   sum.Summary,
			Detail:    sum.Detail,
		}
		if tier.Evaluated() {
			if err := s.evaluate(ctx, ev); err != nil {
				return err
			}
		}
		if err := s.commit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
