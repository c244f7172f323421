package rollup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/llm"
	"github.com/recalld/recalld/pkg/logger"
	"github.com/recalld/recalld/pkg/retriever"
	"github.com/recalld/recalld/pkg/vectorstore"
)

// fakeModel answers each adapter prompt with canned structured output,
// routed by the system prompt of the request.
type fakeModel struct {
	mu sync.Mutex

	arousal      int
	memorable    bool
	topics       []Summary
	personaFacts []PersonaCandidate

	failSummarize int // fail this many summarize calls before recovering

	summarizeCalls  int
	importanceCalls int
	indexCalls      int
	personaCalls    int
}

func (f *fakeModel) GenerateInto(ctx context.Context, req llm.Request, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var payload any
	switch req.System {
	case summarizeSystem:
		f.summarizeCalls++
		if f.failSummarize > 0 {
			f.failSummarize--
			return errors.New("model unavailable")
		}
		payload = Summary{Summary: "merged summary", Detail: "merged detail"}
	case conversationSystem:
		f.summarizeCalls++
		if len(f.topics) > 0 {
			payload = f.topics
		} else {
			payload = []Summary{{Summary: "talked about the day", Detail: "a pleasant chat"}}
		}
	case importanceSystem:
		f.importanceCalls++
		payload = event.Importance{Emotion: "joy", Arousal: f.arousal, IsMemorable: f.memorable}
	case indexSystem:
		f.indexCalls++
		payload = event.IndexTerms{"activity": {"having lunch"}, "location": {"noodle shop"}}
	case personaSystem:
		f.personaCalls++
		payload = f.personaFacts
	default:
		return fmt.Errorf("unexpected system prompt: %q", req.System)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// textEmbedder returns fixed vectors per text; unknown texts share a
// default.
type textEmbedder struct {
	vectors map[string][]float32
}

func (e *textEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 1}
		}
	}
	return out, nil
}

// constEmbedder maps every text to the same vector, so clustering always
// merges and vector search always matches.
type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// recordingMetrics counts pipeline instrumentation calls per label.
type recordingMetrics struct {
	mu        sync.Mutex
	processed map[string]int
	failed    map[string]int
	promoted  map[string]int
	durations map[string]int
	appended  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		processed: make(map[string]int),
		failed:    make(map[string]int),
		promoted:  make(map[string]int),
		durations: make(map[string]int),
		appended:  make(map[string]int),
	}
}

func (m *recordingMetrics) bump(counts map[string]int, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts[key]++
}

func (m *recordingMetrics) WindowProcessed(tier string) { m.bump(m.processed, tier) }
func (m *recordingMetrics) WindowFailed(tier string)    { m.bump(m.failed, tier) }
func (m *recordingMetrics) EventPromoted(coll string)   { m.bump(m.promoted, coll) }
func (m *recordingMetrics) RecordWindowDuration(tier string, d time.Duration) {
	m.bump(m.durations, tier)
}
func (m *recordingMetrics) RecordEventAppended(tier string) { m.bump(m.appended, tier) }

func (m *recordingMetrics) count(counts map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return counts[key]
}

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"})
}

type fixture struct {
	store   *event.MemoryStore
	vecs    *vectorstore.InMem
	ret     *retriever.TimeWeighted
	model   *fakeModel
	sched   *Scheduler
	conv    *ConversationConsolidator
	persona *PersonaExtractor
	now     int64
}

func newFixture(t *testing.T, model *fakeModel, cfg Config, ccfg ConversationConfig) *fixture {
	t.Helper()
	store := event.NewMemoryStore()
	vecs := vectorstore.NewInMem()
	emb := constEmbedder{}
	ret := retriever.NewTimeWeighted(vecs, emb, retriever.Config{})
	log := testLogger()

	sum := NewSummarizer(model)
	imp := NewImportanceEvaluator(model)
	idx := NewIndexEvaluator(model)
	persona := NewPersonaExtractor(store, ret, model, log, PersonaConfig{})
	conv := NewConversationConsolidator(store, ret, sum, imp, idx, persona, log, nil, ccfg)
	sched := NewScheduler(store, ret, emb, sum, imp, idx, conv, log, nil, cfg)

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.Local).UnixMilli()
	sched.now = func() int64 { return now }
	return &fixture{
		store: store, vecs: vecs, ret: ret, model: model,
		sched: sched, conv: conv, persona: persona, now: now,
	}
}

func (f *fixture) addSnapshot(t *testing.T, userID string, at int64, content string) *event.Event {
	t.Helper()
	e := &event.Event{
		UserID:    userID,
		Tier:      event.TierSnapshot,
		StartTime: at,
		EndTime:   at,
		Content:   content,
	}
	if err := f.store.Append(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	return e
}

func (f *fixture) addEvent(t *testing.T, userID string, tier event.Tier, start, end int64, content string) *event.Event {
	t.Helper()
	e := &event.Event{
		UserID:    userID,
		Tier:      tier,
		StartTime: start,
		EndTime:   end,
		Content:   content,
	}
	if err := f.store.Append(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	return e
}

func (f *fixture) eventsAt(t *testing.T, userID string, tier event.Tier) []*event.Event {
	t.Helper()
	evs, err := f.store.ByDuration(context.Background(), userID, tier, 0, f.now+time.Hour.Milliseconds(), 0)
	if err != nil {
		t.Fatal(err)
	}
	return evs
}

func mins(n int) int64 { return int64(n) * time.Minute.Milliseconds() }
