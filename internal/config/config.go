package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Scheduler contains admission and worker pool configuration.
type Scheduler struct {
	// WorkerCount bounds the number of concurrently running pipelines.
	WorkerCount int `toml:"worker_count"`
	// MaxPending bounds queued-but-not-started jobs; Submit rejects beyond it.
	MaxPending int `toml:"max_pending"`
	// PollInterval is the idle queue poll interval in seconds.
	PollInterval int `toml:"poll_interval"`
	// ErrorRetryInterval is the backoff after store fetch errors in seconds.
	ErrorRetryInterval int `toml:"error_retry_interval"`
	// HeartbeatInterval is how often running jobs refresh their heartbeat, seconds.
	HeartbeatInterval int `toml:"heartbeat_interval"`
	// HeartbeatTimeout reclaims jobs whose heartbeat is older than this, seconds.
	HeartbeatTimeout int `toml:"heartbeat_timeout"`
	// CancelGraceSeconds bounds how long Cancel waits for a running pipeline
	// to acknowledge before the job is force-marked cancelled.
	CancelGraceSeconds int `toml:"cancel_grace_seconds"`
}

// Stages contains the uniform stage execution policy.
type Stages struct {
	// CallTimeoutSeconds bounds every single external adapter call.
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`
	// RetryMaxAttempts caps attempts per stage call (first try included).
	RetryMaxAttempts int `toml:"retry_max_attempts"`
	// RetryBaseDelayMillis is the exponential backoff base delay.
	RetryBaseDelayMillis int `toml:"retry_base_delay_millis"`
	// RetryMaxDelayMillis caps individual backoff delays.
	RetryMaxDelayMillis int `toml:"retry_max_delay_millis"`
	// DiarizationFatal flips diarization failure from degrade-and-continue to
	// job-fatal. Default false.
	DiarizationFatal bool `toml:"diarization_fatal"`
}

// Adapter contains connection settings for one external AI service.
type Adapter struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Cache contains result cache configuration.
type Cache struct {
	// InProcessCapacity bounds the fast-path LRU tier entry count.
	InProcessCapacity int `toml:"in_process_capacity"`
	// Backend selects the durable tier: "sqlite" (default) or "redis".
	Backend string `toml:"backend"`
	// RedisAddr is required when backend is "redis".
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	// VerifyBatchSize bounds how many uncached claims go out per batch.
	VerifyBatchSize int `toml:"verify_batch_size"`
	// VerifyBatchConcurrency bounds concurrent verify calls within a batch.
	VerifyBatchConcurrency int `toml:"verify_batch_concurrency"`
	// VerifyBatchDelayMillis is the inter-batch delay that keeps the verify
	// call rate under the external ceiling.
	VerifyBatchDelayMillis int `toml:"verify_batch_delay_millis"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for claimlens.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and the IPC socket path
//   - Scheduler: worker pool bounds, admission limit, heartbeats
//   - Stages: uniform stage timeout/retry policy and degrade knobs
//   - Transcribe/Diarize/Claims/Verify: external adapter connections
//   - Cache: result cache tiers, verify batching, and rate limiting
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Stages        Stages        `toml:"stages"`
	Transcribe    Adapter       `toml:"transcribe"`
	Diarize       Adapter       `toml:"diarize"`
	Claims        Adapter       `toml:"claims"`
	Verify        Adapter       `toml:"verify"`
	Cache         Cache         `toml:"cache"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/claimlens/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("claimlens.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves ~ prefixes and returns a cleaned absolute path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to the given path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
