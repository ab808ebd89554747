package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBDriver string
	DBDSN    string

	// Application configuration
	SourcesDir         string
	Port               string
	APIAccessKey       string
	SchedulerInterval  time.Duration
	RunOnStart         bool
	WorkerCount        int
	SourceBudget       time.Duration
	DedupSnapshotLimit int

	// Page fetching
	FetchTimeout   time.Duration
	ProbeTimeout   time.Duration
	MaxPageBytes   int64
	MaxMarkupBytes int
	UserAgent      string

	// Generative model
	GeminiAPIKey        string
	GeminiModel         string
	GeminiBaseURL       string
	AITimeout           time.Duration
	AIRequestsPerMinute int
	AIMaxRetries        int

	// Optional infrastructure
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
	KafkaBrokers  []string
	KafkaTopic    string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
