package testsupport

import (
	"path/filepath"
	"testing"

	"claimlens/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "claimlensd.sock")
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers sets the scheduler worker count on the test config.
func WithWorkers(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.WorkerCount = count
	}
}

// WithMaxPending sets the queue admission limit on the test config.
func WithMaxPending(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.MaxPending = limit
	}
}

// WithDiarizationFatal makes diarization failures fail the whole job.
func WithDiarizationFatal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stages.DiarizationFatal = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
