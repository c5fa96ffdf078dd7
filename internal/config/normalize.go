package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeStages()
	c.normalizeCache()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.WorkerCount <= 0 {
		c.Scheduler.WorkerCount = defaultWorkerCount
	}
	if c.Scheduler.MaxPending <= 0 {
		c.Scheduler.MaxPending = defaultMaxPending
	}
	if c.Scheduler.PollInterval < 0 {
		c.Scheduler.PollInterval = defaultPollInterval
	}
	if c.Scheduler.ErrorRetryInterval <= 0 {
		c.Scheduler.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Scheduler.HeartbeatInterval <= 0 {
		c.Scheduler.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Scheduler.CancelGraceSeconds <= 0 {
		c.Scheduler.CancelGraceSeconds = defaultCancelGraceSeconds
	}
}

func (c *Config) normalizeStages() {
	if c.Stages.CallTimeoutSeconds <= 0 {
		c.Stages.CallTimeoutSeconds = defaultCallTimeoutSeconds
	}
	if c.Stages.RetryMaxAttempts <= 0 {
		c.Stages.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if c.Stages.RetryBaseDelayMillis <= 0 {
		c.Stages.RetryBaseDelayMillis = defaultRetryBaseDelayMillis
	}
	if c.Stages.RetryMaxDelayMillis <= 0 {
		c.Stages.RetryMaxDelayMillis = defaultRetryMaxDelayMillis
	}
}

func (c *Config) normalizeCache() {
	if c.Cache.InProcessCapacity <= 0 {
		c.Cache.InProcessCapacity = defaultCacheCapacity
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}
	if c.Cache.VerifyBatchSize <= 0 {
		c.Cache.VerifyBatchSize = defaultVerifyBatchSize
	}
	if c.Cache.VerifyBatchConcurrency <= 0 {
		c.Cache.VerifyBatchConcurrency = defaultVerifyBatchConcurrency
	}
	if c.Cache.VerifyBatchDelayMillis < 0 {
		c.Cache.VerifyBatchDelayMillis = defaultVerifyBatchDelayMillis
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
