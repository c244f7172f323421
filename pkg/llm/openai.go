package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// ModelConfig describes one chat backend. Configs are immutable once built;
// escalation switches between configs rather than rewriting one.
type ModelConfig struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	Timeout             time.Duration
}

// ClientConfig holds connection-level settings shared by all backends.
type ClientConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
}

// NewClient builds an OpenAI API client from the connection config.
func NewClient(cfg ClientConfig) openai.Client {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}

func newLimiter(cfg ClientConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// ChatModel is a Generator backed by the OpenAI Chat Completions API.
type ChatModel struct {
	client  openai.Client
	limiter *rate.Limiter
	cfg     ModelConfig
	metrics Metrics
}

// NewChatModel creates a chat generator for one model config. The limiter
// may be shared across models targeting the same API.
func NewChatModel(client openai.Client, limiter *rate.Limiter, cfg ModelConfig) *ChatModel {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ChatModel{client: client, limiter: limiter, cfg: cfg, metrics: nopMetrics{}}
}

// WithMetrics attaches a metrics sink to the model and returns it.
func (m *ChatModel) WithMetrics(mm Metrics) *ChatModel {
	if mm != nil {
		m.metrics = mm
	}
	return m
}

// NewChatChain builds an escalating generator over the configs in order,
// sharing one client and one rate limiter. m may be nil.
func NewChatChain(client ClientConfig, models []ModelConfig, m Metrics) *Escalating {
	c := NewClient(client)
	lim := newLimiter(client)
	backends := make([]Generator, 0, len(models))
	for _, mc := range models {
		backends = append(backends, NewChatModel(c, lim, mc).WithMetrics(m))
	}
	return NewEscalating(backends...)
}

// Generate sends the request and returns the completion text.
func (m *ChatModel) Generate(ctx context.Context, req Request) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	started := time.Now()
	defer func() { m.metrics.RecordModelDuration(m.cfg.Model, time.Since(started)) }()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       m.cfg.Model,
		Temperature: openai.Float(m.cfg.Temperature),
	}
	if m.cfg.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(m.cfg.MaxCompletionTokens)
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		m.metrics.RecordModelRequest(m.cfg.Model, "error")
		return "", fmt.Errorf("llm: chat %s: %w", m.cfg.Model, err)
	}
	if len(resp.Choices) == 0 {
		m.metrics.RecordModelRequest(m.cfg.Model, "error")
		return "", fmt.Errorf("llm: chat %s: empty response", m.cfg.Model)
	}
	m.metrics.RecordModelRequest(m.cfg.Model, "ok")
	return resp.Choices[0].Message.Content, nil
}

// EmbeddingConfig configures the embedder backend.
type EmbeddingConfig struct {
	Model   string
	Timeout time.Duration
}

// OpenAIEmbedder is an Embedder backed by the OpenAI Embeddings API.
type OpenAIEmbedder struct {
	client  openai.Client
	limiter *rate.Limiter
	cfg     EmbeddingConfig
	metrics Metrics
}

// NewOpenAIEmbedder creates an embedder for the configured model.
func NewOpenAIEmbedder(client openai.Client, limiter *rate.Limiter, cfg EmbeddingConfig) *OpenAIEmbedder {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if cfg.Model == "" {
		cfg.Model = openai.EmbeddingModelTextEmbedding3Small
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{client: client, limiter: limiter, cfg: cfg, metrics: nopMetrics{}}
}

// WithMetrics attaches a metrics sink to the embedder and returns it.
func (e *OpenAIEmbedder) WithMetrics(m Metrics) *OpenAIEmbedder {
	if m != nil {
		e.metrics = m
	}
	return e
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	e.metrics.ObserveEmbeddingBatch(len(texts))
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: e.cfg.Model,
	})
	if err != nil {
		e.metrics.RecordEmbeddingRequest("error")
		return nil, fmt.Errorf("llm: embed %s: %w", e.cfg.Model, err)
	}
	if len(resp.Data) != len(texts) {
		e.metrics.RecordEmbeddingRequest("error")
		return nil, fmt.Errorf("llm: embed %s: got %d vectors for %d texts", e.cfg.Model, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			e.metrics.RecordEmbeddingRequest("error")
			return nil, fmt.Errorf("llm: embed %s: index %d out of range", e.cfg.Model, d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	e.metrics.RecordEmbeddingRequest("ok")
	return out, nil
}
