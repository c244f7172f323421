package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "recalld",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Events: EventStoreConfig{
				Type: "badger",
				Badger: BadgerConfig{
					Path:              "./data/events",
					SyncWrites:        true,
					ValueLogFileSize:  1073741824, // 1GB
					NumVersionsToKeep: 1,
				},
			},
			Vector: VectorStoreConfig{
				Type: "memory",
				Redis: RedisConfig{
					Address:   "localhost:6379",
					Password:  "",
					DB:        0,
					KeyPrefix: "recalld:vec",
				},
			},
		},
		Model: ModelConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			Chain: []ChatModelConfig{
				{
					Name:                "gpt-4o-mini",
					Temperature:         0.2,
					MaxCompletionTokens: 1024,
					Timeout:             60 * time.Second,
				},
				{
					Name:                "gpt-4o",
					Temperature:         0.2,
					MaxCompletionTokens: 1024,
					Timeout:             120 * time.Second,
				},
			},
		},
		Embedding: EmbeddingConfig{
			Model:   "text-embedding-3-small",
			Timeout: 30 * time.Second,
		},
		Rollup: RollupConfig{
			TickSpec:          "@every 1m",
			SafetyDelay:       5 * time.Minute,
			LookbackDays:      2,
			Workers:           4,
			MaxWindowsPerTick: 30,
		},
		Conversation: ConversationConfig{
			IdleInterval: 10 * time.Minute,
			MaxRounds:    8,
			KeepRounds:   2,
			LookbackDays: 1,
		},
		Persona: PersonaConfig{
			MinConfidence: 0.7,
		},
		Retrieval: RetrievalConfig{
			DecayRate:        0.01,
			ScoreThreshold:   0,
			TopK:             5,
			DecayWeight:      1,
			ImportanceWeight: 1,
			SimilarityWeight: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    10 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
	}
}
