// Package seed loads crawl targets from a directory of YAML files and
// registers them at startup.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/opp-comb/app/database"
	"github.com/lysyi3m/opp-comb/app/registry"
)

var validFilterFields = map[string]bool{
	"title":       true,
	"description": true,
	"location":    true,
	"tags":        true,
	"category":    true,
	"url":         true,
}

// Registrar creates a crawl target or returns the one already registered for the URL.
type Registrar interface {
	Register(ctx context.Context, in registry.NewTarget) (*database.CrawlTarget, bool, error)
}

type SourceCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewSourceCache(sourcesDir string) *SourceCache {
	return &SourceCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (sc *SourceCache) Run() error {
	if _, err := os.Stat(sc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(sc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := sc.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source configuration loaded", "source", name, "url", config.URL, "enabled", config.Enabled())
	}

	return nil
}

func (sc *SourceCache) LoadConfig(name string) (*Config, error) {
	configFile := filepath.Join(sc.sourcesDir, name+".yml")

	config, err := sc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}
	config.Name = name

	if err := sc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache[config.Name] = config

	return config, nil
}

func (sc *SourceCache) GetConfig(name string) (*Config, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	config, ok := sc.cache[name]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", name)
	}
	return config, nil
}

// GetConfigs returns the loaded configurations sorted by name.
func (sc *SourceCache) GetConfigs() []*Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	configs := make([]*Config, 0, len(sc.cache))
	for _, c := range sc.cache {
		configs = append(configs, c)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs
}

func (sc *SourceCache) GetConfigCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.cache)
}

// FiltersFor returns the listing filters configured for the source URL.
func (sc *SourceCache) FiltersFor(url string) []Filter {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	for _, c := range sc.cache {
		if c.URL == url {
			return c.Filters
		}
	}
	return nil
}

// Sync registers every loaded source. Sources whose URL is already registered
// are left untouched. It returns the number of targets created.
func (sc *SourceCache) Sync(ctx context.Context, reg Registrar) (int, error) {
	created := 0

	for _, config := range sc.GetConfigs() {
		active := config.Enabled()

		target, isNew, err := reg.Register(ctx, registry.NewTarget{
			URL:       config.URL,
			Label:     config.Label,
			Platform:  config.Platform,
			Frequency: config.Settings.Frequency,
			Active:    &active,
		})
		if err != nil {
			return created, fmt.Errorf("failed to register source %s: %w", config.Name, err)
		}

		if isNew {
			created++
			slog.Info("Source registered from seed", "source", config.Name, "id", target.ID, "url", target.URL)
		} else {
			slog.Debug("Source already registered", "source", config.Name, "id", target.ID)
		}
	}

	return created, nil
}

func (sc *SourceCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Settings.Frequency == "" {
		config.Settings.Frequency = registry.DefaultFrequency
	}

	return &config, nil
}

func (sc *SourceCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if config.URL == "" {
		return fmt.Errorf("source URL is required")
	}

	for i, filter := range config.Filters {
		if !validFilterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}
