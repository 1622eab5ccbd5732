package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface is the read-only contract components use to reach configuration.
// Accepting the interface instead of the concrete Config keeps every package
// mockable in tests.
type Interface interface {
	Logger() LoggerConfig
	Loop() LoopConfig
	Dispatch() DispatchConfig
	Cost() CostConfig
	Sandbox() SandboxConfig
	Queue() QueueConfig
	Redis() RedisConfig
	Database() DatabaseConfig
	LLM() LLMConfig
	Feedback() FeedbackConfig
}

// LoggerConfig controls the zap logger and its file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSizeMB   int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LoopConfig is the per-request action budget. These are policy knobs, not
// constants: every request gets its own LoopState seeded from this section.
type LoopConfig struct {
	MaxIterations     int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	CumulativeTimeout time.Duration `mapstructure:"cumulative_timeout" yaml:"cumulative_timeout"`
	PerActionTimeout  time.Duration `mapstructure:"per_action_timeout" yaml:"per_action_timeout"`
	HistoryEntryChars int           `mapstructure:"history_entry_chars" yaml:"history_entry_chars"`
}

// DispatchConfig tunes the dispatcher's critic-skip fast path.
type DispatchConfig struct {
	// CriticConfidenceThreshold gates the critic skip. The skip fires only on
	// strict inequality: confidence must exceed the threshold, equality runs
	// the critic.
	CriticConfidenceThreshold float64           `mapstructure:"critic_confidence_threshold" yaml:"critic_confidence_threshold"`
	Confidence                float64           `mapstructure:"confidence" yaml:"confidence"`
	Aliases                   map[string]string `mapstructure:"aliases" yaml:"aliases"`
}

// CostConfig parameterizes the iteration/action pricing model.
type CostConfig struct {
	IterationBase     float64 `mapstructure:"iteration_base" yaml:"iteration_base"`
	GrowthFactor      float64 `mapstructure:"growth_factor" yaml:"growth_factor"`
	BatchScale        float64 `mapstructure:"batch_scale" yaml:"batch_scale"`
	DefaultComplexity float64 `mapstructure:"default_complexity" yaml:"default_complexity"`
	CycleEffortBudget float64 `mapstructure:"cycle_effort_budget" yaml:"cycle_effort_budget"`
}

// SandboxConfig bounds every sandboxed execution unit.
type SandboxConfig struct {
	DefaultMemory   string `mapstructure:"default_memory" yaml:"default_memory"`
	PidsLimit       int64  `mapstructure:"pids_limit" yaml:"pids_limit"`
	StdoutCapBytes  int    `mapstructure:"stdout_cap_bytes" yaml:"stdout_cap_bytes"`
	StderrTailChars int    `mapstructure:"stderr_tail_chars" yaml:"stderr_tail_chars"`
	ToolSourceDir   string `mapstructure:"tool_source_dir" yaml:"tool_source_dir"`
}

// QueueConfig tunes the single-flight background inference queue.
type QueueConfig struct {
	JobList             string        `mapstructure:"job_list" yaml:"job_list"`
	ResultKeyPrefix     string        `mapstructure:"result_key_prefix" yaml:"result_key_prefix"`
	HeartbeatKey        string        `mapstructure:"heartbeat_key" yaml:"heartbeat_key"`
	MaxDepth            int64         `mapstructure:"max_depth" yaml:"max_depth"`
	SubmitWait          time.Duration `mapstructure:"submit_wait" yaml:"submit_wait"`
	ResultTTL           time.Duration `mapstructure:"result_ttl" yaml:"result_ttl"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatStaleAfter time.Duration `mapstructure:"heartbeat_stale_after" yaml:"heartbeat_stale_after"`
	WorkerCallsPerMin   int           `mapstructure:"worker_calls_per_min" yaml:"worker_calls_per_min"`
}

// RedisConfig is the connection block for the durable queue transport.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// DatabaseConfig locates the Postgres instance holding the outcome weight
// table.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// LLMConfig configures the inference provider client.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
}

// FeedbackConfig bounds the outcome feedback path and the novelty gate.
type FeedbackConfig struct {
	ReflectionList string        `mapstructure:"reflection_list" yaml:"reflection_list"`
	ReflectionTTL  time.Duration `mapstructure:"reflection_ttl" yaml:"reflection_ttl"`
	MinResultChars int           `mapstructure:"min_result_chars" yaml:"min_result_chars"`
	TruncateChars  int           `mapstructure:"truncate_chars" yaml:"truncate_chars"`
}

// Config is the root configuration object, hydrated once at startup.
type Config struct {
	LoggerSection   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	LoopSection     LoopConfig     `mapstructure:"loop" yaml:"loop"`
	DispatchSection DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	CostSection     CostConfig     `mapstructure:"cost" yaml:"cost"`
	SandboxSection  SandboxConfig  `mapstructure:"sandbox" yaml:"sandbox"`
	QueueSection    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	RedisSection    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	DBSection       DatabaseConfig `mapstructure:"database" yaml:"database"`
	LLMSection      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	FeedbackSection FeedbackConfig `mapstructure:"feedback" yaml:"feedback"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerSection }
func (c *Config) Loop() LoopConfig         { return c.LoopSection }
func (c *Config) Dispatch() DispatchConfig { return c.DispatchSection }
func (c *Config) Cost() CostConfig         { return c.CostSection }
func (c *Config) Sandbox() SandboxConfig   { return c.SandboxSection }
func (c *Config) Queue() QueueConfig       { return c.QueueSection }
func (c *Config) Redis() RedisConfig       { return c.RedisSection }
func (c *Config) Database() DatabaseConfig { return c.DBSection }
func (c *Config) LLM() LLMConfig           { return c.LLMSection }
func (c *Config) Feedback() FeedbackConfig { return c.FeedbackSection }

// Load reads the config file (if any), applies PRAXIS_* environment
// overrides, fills defaults and validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PRAXIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars carry the day.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "praxis")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("loop.max_iterations", 3)
	v.SetDefault("loop.cumulative_timeout", 60*time.Second)
	v.SetDefault("loop.per_action_timeout", 10*time.Second)
	v.SetDefault("loop.history_entry_chars", 240)

	v.SetDefault("dispatch.critic_confidence_threshold", 0.75)
	v.SetDefault("dispatch.confidence", 0.5)

	v.SetDefault("cost.iteration_base", 1.0)
	v.SetDefault("cost.growth_factor", 1.5)
	v.SetDefault("cost.batch_scale", 0.2)
	v.SetDefault("cost.default_complexity", 1.5)
	v.SetDefault("cost.cycle_effort_budget", 12.0)

	v.SetDefault("sandbox.default_memory", "256m")
	v.SetDefault("sandbox.pids_limit", 64)
	v.SetDefault("sandbox.stdout_cap_bytes", 20000)
	v.SetDefault("sandbox.stderr_tail_chars", 300)
	v.SetDefault("sandbox.tool_source_dir", "tools")

	v.SetDefault("queue.job_list", "praxis:inference:jobs")
	v.SetDefault("queue.result_key_prefix", "praxis:inference:result:")
	v.SetDefault("queue.heartbeat_key", "praxis:inference:worker:heartbeat")
	v.SetDefault("queue.max_depth", 25)
	v.SetDefault("queue.submit_wait", 180*time.Second)
	v.SetDefault("queue.result_ttl", 5*time.Minute)
	v.SetDefault("queue.heartbeat_interval", 5*time.Second)
	v.SetDefault("queue.heartbeat_stale_after", 30*time.Second)
	v.SetDefault("queue.worker_calls_per_min", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_timeout", 90*time.Second)
	v.SetDefault("llm.temperature", 0.4)

	v.SetDefault("feedback.reflection_list", "praxis:reflection:pending")
	v.SetDefault("feedback.reflection_ttl", 24*time.Hour)
	v.SetDefault("feedback.min_result_chars", 50)
	v.SetDefault("feedback.truncate_chars", 2000)
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.LoopSection.MaxIterations < 1 {
		return fmt.Errorf("loop.max_iterations must be >= 1, got %d", c.LoopSection.MaxIterations)
	}
	if c.LoopSection.CumulativeTimeout <= 0 {
		return fmt.Errorf("loop.cumulative_timeout must be positive")
	}
	if c.LoopSection.PerActionTimeout <= 0 {
		return fmt.Errorf("loop.per_action_timeout must be positive")
	}
	if c.CostSection.GrowthFactor <= 0 {
		return fmt.Errorf("cost.growth_factor must be positive")
	}
	if c.QueueSection.MaxDepth < 1 {
		return fmt.Errorf("queue.max_depth must be >= 1, got %d", c.QueueSection.MaxDepth)
	}
	if t := c.DispatchSection.CriticConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("dispatch.critic_confidence_threshold must be in [0,1], got %v", t)
	}
	return nil
}
