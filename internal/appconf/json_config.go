package appconf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxConfigSize caps config files at 10MB to avoid accidental huge reads.
const maxConfigSize = 10 << 20

// JSONConfig is the on-disk configuration shape. Zero fields receive
// defaults before validation.
type JSONConfig struct {
	Port         int            `json:"port"`
	Env          string         `json:"env"`
	ApiKeys      []string       `json:"api_keys"`
	RateLimit    int            `json:"rate_limit"`
	GtfsURL      string         `json:"gtfs_url"`
	SnapshotPath string         `json:"snapshot_path"`
	PollSeconds  int            `json:"poll_seconds"`
	Feeds        []JSONFeedSpec `json:"realtime_feeds"`
}

// JSONFeedSpec is one realtime feed entry of the config file.
type JSONFeedSpec struct {
	ID              string `json:"id"`
	TripUpdatesURL  string `json:"trip_updates_url"`
	AuthHeaderName  string `json:"auth_header_name"`
	AuthHeaderValue string `json:"auth_header_value"`
}

// LoadFromFile reads, defaults and validates a JSON config file.
func LoadFromFile(path string) (*JSONConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes", info.Size())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg JSONConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *JSONConfig) setDefaults() {
	if c.Port == 0 {
		c.Port = 4000
	}
	if c.Env == "" {
		c.Env = "development"
	}
	if len(c.ApiKeys) == 0 {
		c.ApiKeys = []string{"test"}
	}
	if c.RateLimit == 0 {
		c.RateLimit = 100
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = "./wayfarer.snap"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 30
	}
}

func (c *JSONConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	switch c.Env {
	case "development", "test", "production":
	default:
		return fmt.Errorf("env must be one of development, test, production; got %q", c.Env)
	}
	if c.RateLimit < 1 {
		return fmt.Errorf("rate-limit must be at least 1, got %d", c.RateLimit)
	}
	if len(c.ApiKeys) == 0 {
		return fmt.Errorf("api-keys cannot be empty")
	}
	seen := make(map[string]bool)
	for _, key := range c.ApiKeys {
		if key == "" {
			return fmt.Errorf("api-keys cannot contain empty strings")
		}
		if seen[key] {
			return fmt.Errorf("duplicate API key found: %s", key)
		}
		seen[key] = true
	}

	if err := checkLocalPath("snapshot-path", c.SnapshotPath); err != nil {
		return err
	}
	if err := checkSourceURL("gtfs-url", c.GtfsURL); err != nil {
		return err
	}
	for i, feed := range c.Feeds {
		if err := checkSourceURL(fmt.Sprintf("realtime-feeds[%d]", i), feed.TripUpdatesURL); err != nil {
			return err
		}
		if (feed.AuthHeaderName == "") != (feed.AuthHeaderValue == "") {
			return fmt.Errorf("realtime-feeds[%d]: both auth-header-name and auth-header-value must be provided together", i)
		}
	}
	return nil
}

// checkLocalPath rejects paths escaping the working directory.
func checkLocalPath(field, path string) error {
	if path == "" {
		return nil
	}
	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("%s must not traverse outside the working directory: %s", field, path)
	}
	return nil
}

// checkSourceURL rejects file:// URLs and relative traversal in local
// source paths; http(s) URLs pass through untouched.
func checkSourceURL(field, url string) error {
	if url == "" {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(url), "file://") {
		return fmt.Errorf("%s: file:// URLs are not allowed", field)
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return nil
	}
	return checkLocalPath(field, url)
}

// ToAppConfig converts the validated file shape into the runtime config.
func (c *JSONConfig) ToAppConfig() Config {
	feeds := make([]RealtimeFeed, 0, len(c.Feeds))
	for i, f := range c.Feeds {
		id := f.ID
		if id == "" {
			id = fmt.Sprintf("feed-%d", i)
		}
		feeds = append(feeds, RealtimeFeed{
			ID:              id,
			TripUpdatesURL:  f.TripUpdatesURL,
			AuthHeaderName:  f.AuthHeaderName,
			AuthHeaderValue: f.AuthHeaderValue,
		})
	}
	return Config{
		Env:          EnvFlagToEnvironment(c.Env),
		Port:         c.Port,
		ApiKeys:      append([]string(nil), c.ApiKeys...),
		RateLimit:    c.RateLimit,
		Verbose:      true,
		GtfsURL:      c.GtfsURL,
		SnapshotPath: c.SnapshotPath,
		Feeds:        feeds,
		PollSeconds:  c.PollSeconds,
	}
}
