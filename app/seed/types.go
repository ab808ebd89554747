package seed

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Label    string         `yaml:"label"`
	Platform string         `yaml:"platform"`
	Settings ConfigSettings `yaml:"settings"`
	Filters  []Filter       `yaml:"filters"`
}

type ConfigSettings struct {
	Enabled   *bool  `yaml:"enabled"` // default true
	Frequency string `yaml:"frequency"`
}

// Filter drops extracted listings by keyword on one field.
type Filter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

func (c *Config) Enabled() bool {
	return c.Settings.Enabled == nil || *c.Settings.Enabled
}
