// Package config centralizes PyFerris configuration: one root Config
// struct composed of per-component configs, loadable from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for every PyFerris engine component.
type Config struct {
	Parallel   ParallelConfig   `yaml:"parallel" json:"parallel"`
	Executor   ExecutorConfig   `yaml:"executor" json:"executor"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" json:"scheduler"`
	VThread    VThreadConfig    `yaml:"vthread" json:"vthread"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Cluster    ClusterConfig    `yaml:"cluster" json:"cluster"`
	Retry      RetryConfig      `yaml:"retry" json:"retry"`
	Breaker    BreakerConfig    `yaml:"breaker" json:"breaker"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`
}

// ParallelConfig configures the parallel operations engine (section 4.2).
type ParallelConfig struct {
	WorkerCount int `yaml:"worker_count" json:"worker_count"`
	ChunkSize   int `yaml:"chunk_size" json:"chunk_size"` // 0 = auto
}

// ExecutorConfig configures the task executor (section 4.3).
type ExecutorConfig struct {
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
	QueueSize  int `yaml:"queue_size" json:"queue_size"`
}

// SchedulerConfig configures the scheduler family (section 4.4).
type SchedulerConfig struct {
	Workers    int `yaml:"workers" json:"workers"`
	MinWorkers int `yaml:"min_workers" json:"min_workers"`
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`

	PriorityLevels    int           `yaml:"priority_levels" json:"priority_levels"`
	AgingInterval     time.Duration `yaml:"aging_interval" json:"aging_interval"`
	AdjustmentCooldown time.Duration `yaml:"adjustment_cooldown" json:"adjustment_cooldown"`
}

// VThreadConfig configures the virtual-thread executor (section 4.5).
type VThreadConfig struct {
	MaxVirtualThreads int `yaml:"max_virtual_threads" json:"max_virtual_threads"`
	MaxPlatformThreads int `yaml:"max_platform_threads" json:"max_platform_threads"`
	MaxBlockingThreads int `yaml:"max_blocking_threads" json:"max_blocking_threads"`
}

// CacheEvictionPolicy names a smart-cache eviction policy.
type CacheEvictionPolicy string

const (
	CacheLRU      CacheEvictionPolicy = "lru"
	CacheLFU      CacheEvictionPolicy = "lfu"
	CacheTTL      CacheEvictionPolicy = "ttl"
	CacheAdaptive CacheEvictionPolicy = "adaptive"
)

// CacheConfig configures the smart cache (section 4.1).
type CacheConfig struct {
	MaxSize           int                 `yaml:"max_size" json:"max_size"`
	Policy            CacheEvictionPolicy `yaml:"policy" json:"policy"`
	TTL               time.Duration       `yaml:"ttl_seconds" json:"ttl_seconds"`
	AdaptiveThreshold float64             `yaml:"adaptive_threshold" json:"adaptive_threshold"`
	AdaptiveWindow    int                 `yaml:"adaptive_window" json:"adaptive_window"`
}

// ClusterConfig configures cluster membership (section 4.6).
type ClusterConfig struct {
	CoordinatorAddress string        `yaml:"coordinator_address" json:"coordinator_address"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout" json:"heartbeat_timeout"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout        time.Duration `yaml:"read_timeout" json:"read_timeout"`
}

// RetryStrategy names a backoff schedule (section 4.9).
type RetryStrategy string

const (
	RetryFixed       RetryStrategy = "fixed"
	RetryLinear      RetryStrategy = "linear"
	RetryExponential RetryStrategy = "exponential"
)

// RetryConfig configures the retry executor (section 4.9).
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	Strategy          RetryStrategy `yaml:"strategy" json:"strategy"`
	InitialDelay      time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	RetryableKinds    []string      `yaml:"retryable_kinds" json:"retryable_kinds"`
}

// BreakerConfig configures the circuit breaker (section 4.10).
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
}

// CheckpointConfig configures the checkpoint manager (section 4.11).
type CheckpointConfig struct {
	CheckpointDir    string        `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	AutoSaveInterval time.Duration `yaml:"auto_save_interval" json:"auto_save_interval"`
	MaxCheckpoints   int           `yaml:"max_checkpoints" json:"max_checkpoints"`
	// SQLDSN, when non-empty, enables the optional Postgres-backed
	// secondary catalog (pkg/checkpoint.SQLIndex). The filesystem
	// remains authoritative.
	SQLDSN string `yaml:"sql_dsn" json:"sql_dsn"`
}

// Default returns a Config populated with PyFerris's defaults, with
// environment-variable overrides applied the same way the teacher's
// DefaultConfig does.
func Default() *Config {
	cpus := runtime.NumCPU()
	return &Config{
		Parallel: ParallelConfig{
			WorkerCount: getEnvIntOrDefault("PYFERRIS_PARALLEL_WORKERS", cpus),
			ChunkSize:   getEnvIntOrDefault("PYFERRIS_CHUNK_SIZE", 0),
		},
		Executor: ExecutorConfig{
			MaxWorkers: getEnvIntOrDefault("PYFERRIS_EXECUTOR_WORKERS", cpus),
			QueueSize:  getEnvIntOrDefault("PYFERRIS_EXECUTOR_QUEUE", 1024),
		},
		Scheduler: SchedulerConfig{
			Workers:            cpus,
			MinWorkers:         1,
			MaxWorkers:         cpus * 4,
			PriorityLevels:     256,
			AgingInterval:      2 * time.Second,
			AdjustmentCooldown: 2 * time.Second,
		},
		VThread: VThreadConfig{
			MaxVirtualThreads:  getEnvIntOrDefault("PYFERRIS_MAX_VTHREADS", 1_000_000),
			MaxPlatformThreads: getEnvIntOrDefault("PYFERRIS_MAX_PTHREADS", cpus),
			MaxBlockingThreads: getEnvIntOrDefault("PYFERRIS_MAX_BLOCKING", cpus*4),
		},
		Cache: CacheConfig{
			MaxSize:           getEnvIntOrDefault("PYFERRIS_CACHE_SIZE", 10_000),
			Policy:            CacheEvictionPolicy(getEnvOrDefault("PYFERRIS_CACHE_POLICY", string(CacheLRU))),
			TTL:               60 * time.Second,
			AdaptiveThreshold: 0.5,
			AdaptiveWindow:    100,
		},
		Cluster: ClusterConfig{
			CoordinatorAddress: getEnvOrDefault("PYFERRIS_COORDINATOR_ADDR", "0.0.0.0:7070"),
			HeartbeatInterval:  3 * time.Second,
			HeartbeatTimeout:   9 * time.Second,
			ConnectTimeout:     10 * time.Second,
			ReadTimeout:        10 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			Strategy:          RetryExponential,
			InitialDelay:      100 * time.Millisecond,
			MaxDelay:          5 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			CheckpointDir:    getEnvOrDefault("PYFERRIS_CHECKPOINT_DIR", "./checkpoints"),
			AutoSaveInterval: 10 * time.Second,
			MaxCheckpoints:   50,
			SQLDSN:           getEnvOrDefault("PYFERRIS_CHECKPOINT_DSN", ""),
		},
	}
}

// Load reads a YAML config file and applies it over the defaults. A
// missing path is not an error — callers get Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
