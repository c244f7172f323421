package config

import (
	"fmt"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/llm"
	"github.com/recalld/recalld/pkg/logger"
	"github.com/recalld/recalld/pkg/retriever"
	"github.com/recalld/recalld/pkg/rollup"
	"github.com/recalld/recalld/pkg/vectorstore"
)

// ToLoggerConfig converts config.LogConfig to pkg/logger.Config.
func (l *LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.ParseLevel(l.Level),
		Format: l.Format,
		Output: l.Output,
	}
}

// ToBadgerConfig converts config.BadgerConfig to pkg/event.BadgerConfig.
func (b *BadgerConfig) ToBadgerConfig() event.BadgerConfig {
	return event.BadgerConfig{
		Path:              b.Path,
		SyncWrites:        b.SyncWrites,
		ValueLogFileSize:  b.ValueLogFileSize,
		NumVersionsToKeep: b.NumVersionsToKeep,
	}
}

// ToRedisConfig converts config.RedisConfig to pkg/vectorstore.RedisConfig.
func (r *RedisConfig) ToRedisConfig() vectorstore.RedisConfig {
	return vectorstore.RedisConfig{
		Addr:      r.Address,
		Password:  r.Password,
		DB:        r.DB,
		KeyPrefix: r.KeyPrefix,
	}
}

// ToClientConfig converts config.ModelConfig to pkg/llm.ClientConfig.
func (m *ModelConfig) ToClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		APIKey:            m.APIKey,
		BaseURL:           m.BaseURL,
		RequestsPerSecond: m.RequestsPerSecond,
		Burst:             m.Burst,
	}
}

// ChainConfigs converts the model chain to pkg/llm.ModelConfig entries,
// preserving escalation order.
func (m *ModelConfig) ChainConfigs() []llm.ModelConfig {
	models := make([]llm.ModelConfig, 0, len(m.Chain))
	for _, c := range m.Chain {
		models = append(models, llm.ModelConfig{
			Model:               c.Name,
			Temperature:         c.Temperature,
			MaxCompletionTokens: c.MaxCompletionTokens,
			Timeout:             c.Timeout,
		})
	}
	return models
}

// ToEmbeddingConfig converts config.EmbeddingConfig to pkg/llm.EmbeddingConfig.
func (e *EmbeddingConfig) ToEmbeddingConfig() llm.EmbeddingConfig {
	return llm.EmbeddingConfig{
		Model:   e.Model,
		Timeout: e.Timeout,
	}
}

// ToSchedulerConfig converts config.RollupConfig to pkg/rollup.Config.
// Cluster threshold keys are tier names; unknown names fail the conversion.
func (r *RollupConfig) ToSchedulerConfig() (rollup.Config, error) {
	cfg := rollup.Config{
		TickSpec:          r.TickSpec,
		SafetyDelay:       r.SafetyDelay,
		LookbackDays:      r.LookbackDays,
		Workers:           r.Workers,
		MaxWindowsPerTick: r.MaxWindowsPerTick,
	}
	if len(r.ClusterThresholds) > 0 {
		cfg.ClusterThresholds = make(map[event.Tier]float64, len(r.ClusterThresholds))
		for name, threshold := range r.ClusterThresholds {
			tier, err := event.ParseTier(name)
			if err != nil {
				return rollup.Config{}, fmt.Errorf("cluster threshold: %w", err)
			}
			cfg.ClusterThresholds[tier] = threshold
		}
	}
	return cfg, nil
}

// ToConversationConfig converts config.ConversationConfig to
// pkg/rollup.ConversationConfig.
func (c *ConversationConfig) ToConversationConfig() rollup.ConversationConfig {
	return rollup.ConversationConfig{
		IdleInterval: c.IdleInterval,
		MaxRounds:    c.MaxRounds,
		KeepRounds:   c.KeepRounds,
		LookbackDays: c.LookbackDays,
	}
}

// ToPersonaConfig converts config.PersonaConfig to pkg/rollup.PersonaConfig.
func (p *PersonaConfig) ToPersonaConfig() rollup.PersonaConfig {
	return rollup.PersonaConfig{
		MinConfidence: p.MinConfidence,
	}
}

// ToRetrieverConfig converts config.RetrievalConfig to pkg/retriever.Config.
func (r *RetrievalConfig) ToRetrieverConfig() retriever.Config {
	return retriever.Config{
		DecayRate:        r.DecayRate,
		ScoreThreshold:   r.ScoreThreshold,
		TopK:             r.TopK,
		DecayWeight:      r.DecayWeight,
		ImportanceWeight: r.ImportanceWeight,
		SimilarityWeight: r.SimilarityWeight,
	}
}
