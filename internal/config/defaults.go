package config

const (
	defaultDataDir    = "~/.local/share/claimlens"
	defaultLogDir     = "~/.local/share/claimlens/logs"
	defaultSocketPath = "~/.local/share/claimlens/claimlensd.sock"

	defaultWorkerCount        = 3
	defaultMaxPending         = 64
	defaultPollInterval       = 2
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultCancelGraceSeconds = 10

	defaultCallTimeoutSeconds   = 60
	defaultRetryMaxAttempts     = 3
	defaultRetryBaseDelayMillis = 500
	defaultRetryMaxDelayMillis  = 8000

	defaultCacheCapacity          = 1024
	defaultCacheBackend           = "sqlite"
	defaultVerifyBatchSize        = 8
	defaultVerifyBatchConcurrency = 4
	defaultVerifyBatchDelayMillis = 1000

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultVerifyBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultVerifyModel       = "perplexity/sonar"
	defaultClaimsBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultClaimsModel       = "google/gemini-3-flash-preview"
	defaultTranscribeBaseURL = "http://127.0.0.1:9090"
	defaultDiarizeBaseURL    = "http://127.0.0.1:9091"
	defaultAdapterTimeout    = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		Scheduler: Scheduler{
			WorkerCount:        defaultWorkerCount,
			MaxPending:         defaultMaxPending,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			CancelGraceSeconds: defaultCancelGraceSeconds,
		},
		Stages: Stages{
			CallTimeoutSeconds:   defaultCallTimeoutSeconds,
			RetryMaxAttempts:     defaultRetryMaxAttempts,
			RetryBaseDelayMillis: defaultRetryBaseDelayMillis,
			RetryMaxDelayMillis:  defaultRetryMaxDelayMillis,
		},
		Transcribe: Adapter{
			BaseURL:        defaultTranscribeBaseURL,
			TimeoutSeconds: defaultAdapterTimeout,
		},
		Diarize: Adapter{
			BaseURL:        defaultDiarizeBaseURL,
			TimeoutSeconds: defaultAdapterTimeout,
		},
		Claims: Adapter{
			BaseURL:        defaultClaimsBaseURL,
			Model:          defaultClaimsModel,
			TimeoutSeconds: defaultAdapterTimeout,
		},
		Verify: Adapter{
			BaseURL:        defaultVerifyBaseURL,
			Model:          defaultVerifyModel,
			TimeoutSeconds: defaultAdapterTimeout,
		},
		Cache: Cache{
			InProcessCapacity:      defaultCacheCapacity,
			Backend:                defaultCacheBackend,
			VerifyBatchSize:        defaultVerifyBatchSize,
			VerifyBatchConcurrency: defaultVerifyBatchConcurrency,
			VerifyBatchDelayMillis: defaultVerifyBatchDelayMillis,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
