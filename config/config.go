// Package config provides configuration management for Recalld.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for Recalld.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage is the persistence configuration for the event journal and
	// the vector index.
	Storage StorageConfig `mapstructure:"storage"`

	// Model is the chat model configuration, including the escalation
	// chain used by the roll-up summarizers.
	Model ModelConfig `mapstructure:"model"`

	// Embedding is the text embedding configuration.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Rollup is the roll-up scheduler configuration.
	Rollup RollupConfig `mapstructure:"rollup"`

	// Conversation is the conversation consolidation configuration.
	Conversation ConversationConfig `mapstructure:"conversation"`

	// Persona is the persona extraction configuration.
	Persona PersonaConfig `mapstructure:"persona"`

	// Retrieval is the time-weighted retrieval configuration.
	Retrieval RetrievalConfig `mapstructure:"retrieval"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Events is the event journal configuration.
	Events EventStoreConfig `mapstructure:"events"`

	// Vector is the vector index configuration.
	Vector VectorStoreConfig `mapstructure:"vector"`
}

// EventStoreConfig holds event journal settings.
type EventStoreConfig struct {
	// Type is the journal backend (memory, badger).
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	// Type is the vector backend (memory, redis).
	Type string `mapstructure:"type" validate:"oneof=memory redis"`

	// Redis is the Redis configuration.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`

	// KeyPrefix namespaces all vector keys.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ModelConfig holds chat model connection settings and the escalation chain.
type ModelConfig struct {
	// APIKey is the API key for the model provider.
	APIKey string `mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint, for proxies and
	// self-hosted gateways.
	BaseURL string `mapstructure:"base_url"`

	// RequestsPerSecond rate-limits outgoing model calls. Zero disables
	// the limiter.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the rate limiter burst size.
	Burst int `mapstructure:"burst" validate:"min=0"`

	// Chain is the ordered list of models to try. The first entry is the
	// cheap default; later entries are escalation targets used when an
	// earlier model fails or returns unparseable output.
	Chain []ChatModelConfig `mapstructure:"chain" validate:"min=1,dive"`
}

// ChatModelConfig holds per-model generation settings.
type ChatModelConfig struct {
	// Name is the provider model identifier.
	Name string `mapstructure:"name" validate:"required"`

	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature" validate:"min=0,max=2"`

	// MaxCompletionTokens caps the completion length.
	MaxCompletionTokens int64 `mapstructure:"max_completion_tokens" validate:"min=0"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig holds text embedding settings.
type EmbeddingConfig struct {
	// Model is the embedding model identifier.
	Model string `mapstructure:"model"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// RollupConfig holds roll-up scheduler settings.
type RollupConfig struct {
	// TickSpec is the cron expression for scheduler ticks.
	TickSpec string `mapstructure:"tick_spec"`

	// SafetyDelay is the trailing delay before a window is considered
	// complete, covering late-arriving source data.
	SafetyDelay time.Duration `mapstructure:"safety_delay"`

	// LookbackDays bounds how far back active users and unprocessed
	// windows are searched.
	LookbackDays int `mapstructure:"lookback_days" validate:"min=0"`

	// Workers is the number of concurrent (user, tier) jobs per tick.
	Workers int `mapstructure:"workers" validate:"min=0"`

	// MaxWindowsPerTick caps windows processed per (user, tier) per tick.
	MaxWindowsPerTick int `mapstructure:"max_windows_per_tick" validate:"min=0"`

	// ClusterThresholds overrides the per-tier clustering similarity
	// threshold, keyed by tier name (minute, ten_minutes, hour,
	// three_hours, day).
	ClusterThresholds map[string]float64 `mapstructure:"cluster_thresholds"`
}

// ConversationConfig holds conversation consolidation settings.
type ConversationConfig struct {
	// IdleInterval consolidates a conversation once no turn has arrived
	// for this long.
	IdleInterval time.Duration `mapstructure:"idle_interval"`

	// MaxRounds forces consolidation mid-conversation once the open
	// transcript exceeds this many turns.
	MaxRounds int `mapstructure:"max_rounds" validate:"min=0"`

	// KeepRounds is how many of the latest turns stay unconsolidated
	// when MaxRounds triggers. A value at or above the transcript length
	// is clamped at consolidation time so overflow still makes progress.
	KeepRounds int `mapstructure:"keep_rounds" validate:"min=0"`

	// LookbackDays bounds the turn scan.
	LookbackDays int `mapstructure:"lookback_days" validate:"min=0"`
}

// PersonaConfig holds persona extraction settings.
type PersonaConfig struct {
	// MinConfidence discards extracted facts below this confidence.
	MinConfidence float64 `mapstructure:"min_confidence" validate:"min=0,max=1"`
}

// RetrievalConfig holds time-weighted retrieval settings.
type RetrievalConfig struct {
	// DecayRate is the hourly decay applied to time since last access.
	DecayRate float64 `mapstructure:"decay_rate" validate:"min=0,max=1"`

	// ScoreThreshold filters candidates on raw vector similarity before
	// re-ranking.
	ScoreThreshold float64 `mapstructure:"score_threshold"`

	// TopK is the default result count.
	TopK int `mapstructure:"top_k" validate:"min=0"`

	// DecayWeight weights the recency term of the combined score.
	DecayWeight float64 `mapstructure:"decay_weight" validate:"min=0"`

	// ImportanceWeight weights the importance term of the combined score.
	ImportanceWeight float64 `mapstructure:"importance_weight" validate:"min=0"`

	// SimilarityWeight weights the similarity term of the combined score.
	SimilarityWeight float64 `mapstructure:"similarity_weight" validate:"min=0"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the tracing exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout is the export timeout.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are extra headers sent to the collector.
	Headers map[string]string `mapstructure:"headers"`

	// Sampler selects the sampling strategy (ratio, always_on, always_off).
	Sampler string `mapstructure:"sampler"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Env: %s, Events: %s, Vector: %s}",
		c.App.Name, c.App.Environment, c.Storage.Events.Type, c.Storage.Vector.Type)
}
