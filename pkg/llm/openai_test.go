package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// recordingMetrics counts instrumentation calls.
type recordingMetrics struct {
	requests  map[string]int // "model|status"
	durations int
	embeds    map[string]int
	batches   []int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{requests: make(map[string]int), embeds: make(map[string]int)}
}

func (m *recordingMetrics) RecordModelRequest(model, status string) {
	m.requests[model+"|"+status]++
}
func (m *recordingMetrics) RecordModelDuration(model string, d time.Duration) { m.durations++ }
func (m *recordingMetrics) RecordEmbeddingRequest(status string)              { m.embeds[status]++ }
func (m *recordingMetrics) ObserveEmbeddingBatch(size int)                    { m.batches = append(m.batches, size) }

func TestChatModelReportsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`)
	}))
	defer srv.Close()

	rec := newRecordingMetrics()
	client := NewClient(ClientConfig{APIKey: "test", BaseURL: srv.URL})
	m := NewChatModel(client, nil, ModelConfig{Model: "gpt-4o-mini"}).WithMetrics(rec)

	text, err := m.Generate(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello" {
		t.Errorf("got %q", text)
	}
	if rec.requests["gpt-4o-mini|ok"] != 1 {
		t.Errorf("ok requests = %d, want 1", rec.requests["gpt-4o-mini|ok"])
	}
	if rec.durations != 1 {
		t.Errorf("durations = %d, want 1", rec.durations)
	}
}

func TestChatModelReportsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 400 is not retried client-side, so the test stays fast.
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	rec := newRecordingMetrics()
	client := NewClient(ClientConfig{APIKey: "test", BaseURL: srv.URL})
	m := NewChatModel(client, nil, ModelConfig{Model: "gpt-4o-mini"}).WithMetrics(rec)

	if _, err := m.Generate(context.Background(), Request{User: "hi"}); err == nil {
		t.Fatal("want error from 400 response")
	}
	if rec.requests["gpt-4o-mini|error"] != 1 {
		t.Errorf("error requests = %d, want 1", rec.requests["gpt-4o-mini|error"])
	}
	if rec.durations != 1 {
		t.Errorf("durations = %d, want 1", rec.durations)
	}
}

func TestEmbedderReportsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"object":"embedding","index":0,"embedding":[0.1,0.2]},
			{"object":"embedding","index":1,"embedding":[0.3,0.4]}
		],"model":"text-embedding-3-small"}`)
	}))
	defer srv.Close()

	rec := newRecordingMetrics()
	client := NewClient(ClientConfig{APIKey: "test", BaseURL: srv.URL})
	e := NewOpenAIEmbedder(client, nil, EmbeddingConfig{}).WithMetrics(rec)

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if rec.embeds["ok"] != 1 {
		t.Errorf("ok embeds = %d, want 1", rec.embeds["ok"])
	}
	if len(rec.batches) != 1 || rec.batches[0] != 2 {
		t.Errorf("batches = %v, want [2]", rec.batches)
	}
}
