package llm

import (
	"context"
	"errors"
	"testing"
)

// scriptedGenerator returns canned outputs in order, then repeats the last.
type scriptedGenerator struct {
	outputs []string
	err     error
	calls   int
}

func (g *scriptedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	i := g.calls - 1
	if i >= len(g.outputs) {
		i = len(g.outputs) - 1
	}
	return g.outputs[i], nil
}

func TestDecodeJSONPlain(t *testing.T) {
	var out struct {
		Emotion string `json:"emotion"`
		Arousal int    `json:"emotional_arousal"`
	}
	err := DecodeJSON(`{"emotion":"joy","emotional_arousal":7}`, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.Emotion != "joy" || out.Arousal != 7 {
		t.Errorf("decoded %+v", out)
	}
}

func TestDecodeJSONFenced(t *testing.T) {
	text := "Here is the result:\n```json\n{\"summary\": \"lunch\", \"detail\": \"ramen\"}\n```\nDone."
	var out struct {
		Summary string `json:"summary"`
		Detail  string `json:"detail"`
	}
	if err := DecodeJSON(text, &out); err != nil {
		t.Fatal(err)
	}
	if out.Summary != "lunch" || out.Detail != "ramen" {
		t.Errorf("decoded %+v", out)
	}
}

func TestDecodeJSONSurroundingProse(t *testing.T) {
	var out []string
	if err := DecodeJSON(`The phrases are ["a", "b"] as requested.`, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != "a" {
		t.Errorf("decoded %v", out)
	}
}

func TestDecodeJSONGarbage(t *testing.T) {
	var out map[string]any
	err := DecodeJSON("I could not produce the requested structure.", &out)
	if !errors.Is(err, ErrBadOutput) {
		t.Errorf("want ErrBadOutput, got %v", err)
	}
}

func TestEscalatingGenerateFallsThrough(t *testing.T) {
	failing := &scriptedGenerator{err: errors.New("upstream 500")}
	working := &scriptedGenerator{outputs: []string{"ok"}}
	e := NewEscalating(failing, working)

	text, err := e.Generate(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "ok" {
		t.Errorf("got %q", text)
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Errorf("calls: %d, %d", failing.calls, working.calls)
	}
}

func TestEscalatingGenerateIntoRetriesOnParseFailure(t *testing.T) {
	// First backend answers with prose, second with valid JSON.
	chatty := &scriptedGenerator{outputs: []string{"sorry, no json here"}}
	precise := &scriptedGenerator{outputs: []string{`{"summary":"ok","detail":"d"}`}}
	e := NewEscalating(chatty, precise)

	var out struct {
		Summary string `json:"summary"`
		Detail  string `json:"detail"`
	}
	if err := e.GenerateInto(context.Background(), Request{User: "summarize"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.Summary != "ok" {
		t.Errorf("decoded %+v", out)
	}
	if chatty.calls != 1 || precise.calls != 1 {
		t.Errorf("calls: %d, %d", chatty.calls, precise.calls)
	}
}

func TestEscalatingGenerateIntoDiscardsFailedAttempt(t *testing.T) {
	// The first backend's JSON fails with a type error after the decoder
	// has already filled detail; that partial value must not bleed into
	// the next backend's result.
	dirty := &scriptedGenerator{outputs: []string{`{"detail":"stale leftover","summary":5}`}}
	clean := &scriptedGenerator{outputs: []string{`{"summary":"clean"}`}}
	e := NewEscalating(dirty, clean)

	var out struct {
		Summary string `json:"summary"`
		Detail  string `json:"detail"`
	}
	if err := e.GenerateInto(context.Background(), Request{User: "summarize"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.Summary != "clean" {
		t.Errorf("summary = %q", out.Summary)
	}
	if out.Detail != "" {
		t.Errorf("detail = %q, want empty", out.Detail)
	}
}

func TestEscalatingGenerateIntoRejectsNonPointer(t *testing.T) {
	e := NewEscalating(&scriptedGenerator{outputs: []string{`{}`}})
	var out struct{}
	if err := e.GenerateInto(context.Background(), Request{}, out); err == nil {
		t.Error("want error for non-pointer target")
	}
}

func TestEscalatingGenerateIntoAllFail(t *testing.T) {
	bad := &scriptedGenerator{outputs: []string{"nope"}}
	worse := &scriptedGenerator{err: errors.New("down")}
	e := NewEscalating(bad, worse)

	var out map[string]any
	err := e.GenerateInto(context.Background(), Request{User: "x"}, &out)
	if err == nil {
		t.Fatal("want error when every backend fails")
	}
	if !errors.Is(err, ErrBadOutput) {
		t.Errorf("joined error should carry the parse failure: %v", err)
	}
}

func TestEscalatingNoBackends(t *testing.T) {
	e := NewEscalating()
	if _, err := e.Generate(context.Background(), Request{}); !errors.Is(err, ErrNoBackends) {
		t.Errorf("got %v", err)
	}
	var out any
	if err := e.GenerateInto(context.Background(), Request{}, &out); !errors.Is(err, ErrNoBackends) {
		t.Errorf("got %v", err)
	}
}

func TestEscalatingStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &scriptedGenerator{err: errors.New("failed")}
	second := &scriptedGenerator{outputs: []string{"ok"}}
	e := NewEscalating(first, second)

	cancel()
	_, err := e.Generate(ctx, Request{User: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
	if second.calls != 0 {
		t.Error("cancelled context should not escalate further")
	}
}

func TestEmbedOne(t *testing.T) {
	emb := embedFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 2, 3}
		}
		return out, nil
	})
	vec, err := EmbedOne(context.Background(), emb, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 {
		t.Errorf("got %v", vec)
	}
}

type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f embedFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
