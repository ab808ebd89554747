package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBDriver string `long:"db-driver" env:"DB_DRIVER" default:"sqlite" choice:"sqlite" choice:"postgres" description:"Database driver"`
	DBDSN    string `long:"db-dsn" env:"DB_DSN" default:"file:opp-comb.db" description:"Database connection string"`

	// Application configuration
	SourcesDir         string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing crawl target seed files"`
	Port               string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey       string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	SchedulerInterval  int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"600" description:"Scheduler interval in seconds"`
	RunOnStart         bool   `long:"run-on-start" env:"RUN_ON_START" description:"Start a pipeline run immediately after boot"`
	WorkerCount        int    `long:"worker-count" env:"WORKER_COUNT" default:"1" description:"Number of crawl targets processed concurrently"`
	SourceBudget       int    `long:"source-budget" env:"SOURCE_BUDGET" default:"60" description:"Time budget for one crawl target in seconds"`
	DedupSnapshotLimit int    `long:"dedup-snapshot-limit" env:"DEDUP_SNAPSHOT_LIMIT" default:"200" description:"Number of recent listings sent to the deduplication prompt"`

	// Page fetching
	FetchTimeout   int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"20" description:"Page fetch timeout in seconds"`
	ProbeTimeout   int    `long:"probe-timeout" env:"PROBE_TIMEOUT" default:"5" description:"Reachability probe timeout in seconds"`
	MaxPageBytes   int64  `long:"max-page-bytes" env:"MAX_PAGE_BYTES" default:"5242880" description:"Maximum page body size in bytes"`
	MaxMarkupBytes int    `long:"max-markup-bytes" env:"MAX_MARKUP_BYTES" default:"200000" description:"Maximum markup size sent to the extraction prompt"`
	UserAgent      string `long:"user-agent" env:"USER_AGENT" default:"Opp Comb/1.0" description:"User agent string for HTTP requests"`

	// Generative model
	GeminiAPIKey        string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key (required)" required:"true"`
	GeminiModel         string `long:"gemini-model" env:"GEMINI_MODEL" default:"gemini-2.0-flash" description:"Gemini model name"`
	GeminiBaseURL       string `long:"gemini-base-url" env:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta" description:"Gemini API base URL"`
	AITimeout           int    `long:"ai-timeout" env:"AI_TIMEOUT" default:"45" description:"Model call timeout in seconds"`
	AIRequestsPerMinute int    `long:"ai-rpm" env:"AI_RPM" default:"15" description:"Maximum model requests per minute"`
	AIMaxRetries        int    `long:"ai-max-retries" env:"AI_MAX_RETRIES" default:"2" description:"Retries for throttled or failed model calls"`

	// Optional infrastructure
	RedisAddr     string   `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for run status and the shared run lock (optional)"`
	RedisPassword string   `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisPrefix   string   `long:"redis-prefix" env:"REDIS_PREFIX" default:"opp-comb:" description:"Redis key prefix"`
	KafkaBrokers  []string `long:"kafka-brokers" env:"KAFKA_BROKERS" env-delim:"," description:"Kafka brokers for listing events (optional)"`
	KafkaTopic    string   `long:"kafka-topic" env:"KAFKA_TOPIC" default:"opportunities.pending" description:"Kafka topic for listing events"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Africa/Lagos)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments, or os.Args when args is nil.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if raw.WorkerCount < 1 {
		return nil, fmt.Errorf("worker-count must be at least 1, got %d", raw.WorkerCount)
	}
	if raw.SchedulerInterval < 1 {
		return nil, fmt.Errorf("scheduler-interval must be positive, got %d", raw.SchedulerInterval)
	}

	cfg := &Cfg{
		DBDriver:            raw.DBDriver,
		DBDSN:               raw.DBDSN,
		SourcesDir:          raw.SourcesDir,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		SchedulerInterval:   seconds(raw.SchedulerInterval),
		RunOnStart:          raw.RunOnStart,
		WorkerCount:         raw.WorkerCount,
		SourceBudget:        seconds(raw.SourceBudget),
		DedupSnapshotLimit:  raw.DedupSnapshotLimit,
		FetchTimeout:        seconds(raw.FetchTimeout),
		ProbeTimeout:        seconds(raw.ProbeTimeout),
		MaxPageBytes:        raw.MaxPageBytes,
		MaxMarkupBytes:      raw.MaxMarkupBytes,
		UserAgent:           raw.UserAgent,
		GeminiAPIKey:        raw.GeminiAPIKey,
		GeminiModel:         raw.GeminiModel,
		GeminiBaseURL:       raw.GeminiBaseURL,
		AITimeout:           seconds(raw.AITimeout),
		AIRequestsPerMinute: raw.AIRequestsPerMinute,
		AIMaxRetries:        raw.AIMaxRetries,
		RedisAddr:           raw.RedisAddr,
		RedisPassword:       raw.RedisPassword,
		RedisPrefix:         raw.RedisPrefix,
		KafkaBrokers:        raw.KafkaBrokers,
		KafkaTopic:          raw.KafkaTopic,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
