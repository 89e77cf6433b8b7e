package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

//go:embed default_config.yaml
var defaultConfig []byte

// EnvPrefix prefixes every environment override, e.g. FEEDSMITH_LOG_LEVEL.
const EnvPrefix = "FEEDSMITH"

const fileName = "feedsmith.yaml"

type Config struct {
	Log            LogConfig    `mapstructure:"log" yaml:"log"`
	HTTP           HTTPConfig   `mapstructure:"http" yaml:"http"`
	Cache          CacheConfig  `mapstructure:"cache" yaml:"cache"`
	RunLog         RunLogConfig `mapstructure:"run_log" yaml:"run_log"`
	Server         ServerConfig `mapstructure:"server" yaml:"server"`
	PublishersFile string       `mapstructure:"publishers_file" yaml:"publishers_file"`
	Sources        []Source     `mapstructure:"sources" yaml:"sources"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type HTTPConfig struct {
	Timeout      string `mapstructure:"timeout" yaml:"timeout"`
	UserAgent    string `mapstructure:"user_agent" yaml:"user_agent"`
	RequestDelay string `mapstructure:"request_delay" yaml:"request_delay"`
}

// CacheConfig selects where source caches live. The json backend uses each source's
// cache_file; the bolt backend keeps every source in one database at bolt_path.
type CacheConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	BoltPath string `mapstructure:"bolt_path" yaml:"bolt_path"`
}

type RunLogConfig struct {
	Path      string `mapstructure:"path" yaml:"path"`
	Retention string `mapstructure:"retention" yaml:"retention"`
	MaxTitles int    `mapstructure:"max_titles" yaml:"max_titles"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port" yaml:"port"`
	Dir  string `mapstructure:"dir" yaml:"dir"`
}

// Source is one listing to crawl and publish.
type Source struct {
	ID      string `mapstructure:"id" yaml:"id"`
	Name    string `mapstructure:"name" yaml:"name"`
	Type    string `mapstructure:"type" yaml:"type"`
	URL     string `mapstructure:"url" yaml:"url"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`

	MaxPages                int    `mapstructure:"max_pages" yaml:"max_pages"`
	MaxItems                int    `mapstructure:"max_items" yaml:"max_items,omitempty"`
	MaxAge                  string `mapstructure:"max_age" yaml:"max_age,omitempty"`
	FeedLimit               int    `mapstructure:"feed_limit" yaml:"feed_limit,omitempty"`
	SinglePageAfterFirstRun bool   `mapstructure:"single_page_after_first_run" yaml:"single_page_after_first_run,omitempty"`

	// EnrichDescriptions fetches the page of each new item lacking a description.
	EnrichDescriptions bool `mapstructure:"enrich_descriptions" yaml:"enrich_descriptions,omitempty"`

	CacheFile string `mapstructure:"cache_file" yaml:"cache_file"`
	FeedFile  string `mapstructure:"feed_file" yaml:"feed_file"`
	Feed      Feed   `mapstructure:"feed" yaml:"feed"`
}

// Feed holds RSS channel metadata. An empty link falls back to the source url.
type Feed struct {
	Title       string `mapstructure:"title" yaml:"title"`
	Link        string `mapstructure:"link" yaml:"link,omitempty"`
	Description string `mapstructure:"description" yaml:"description"`
	Language    string `mapstructure:"language" yaml:"language"`
}

// DefaultConfigPath is the per-user config location.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "feedsmith", fileName)
}

// Load merges the embedded defaults, the first config file found and FEEDSMITH_* environment
// variables. An explicit path must exist; otherwise ./feedsmith.yaml and DefaultConfigPath are
// tried in turn. A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultConfig)); err != nil {
		return nil, "", fmt.Errorf("parse embedded config: %w", err)
	}

	used, err := mergeUserFile(v, path)
	if err != nil {
		return nil, "", err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, used, nil
}

func mergeUserFile(v *viper.Viper, path string) (string, error) {
	candidates := []string{fileName, DefaultConfigPath()}
	if path = strings.TrimSpace(path); path != "" {
		candidates = []string{path}
	}

	for i, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, os.ErrNotExist) && path == "" {
				continue
			}
			return "", fmt.Errorf("config file %s: %w", candidate, err)
		}
		v.SetConfigFile(candidate)
		if ext := filepath.Ext(candidate); ext == "" {
			v.SetConfigType("yaml")
		} else {
			v.SetConfigType(strings.TrimPrefix(ext, "."))
		}
		if err := v.MergeInConfig(); err != nil {
			return "", fmt.Errorf("merge config %s: %w", candidates[i], err)
		}
		return candidate, nil
	}
	return "", nil
}

// bindEnv registers the scalar keys so AutomaticEnv reaches them through Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"log.level", "log.format",
		"http.timeout", "http.user_agent", "http.request_delay",
		"cache.backend", "cache.bolt_path",
		"run_log.path", "run_log.retention", "run_log.max_titles",
		"server.port", "server.dir",
		"publishers_file",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate checks every field a run depends on.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "json", "bolt":
	default:
		return fmt.Errorf("cache.backend %q not supported (json, bolt)", c.Cache.Backend)
	}
	if c.Cache.Backend == "bolt" && strings.TrimSpace(c.Cache.BoltPath) == "" {
		return errors.New("cache.bolt_path is required for the bolt backend")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for key, raw := range map[string]string{
		"http.timeout":       c.HTTP.Timeout,
		"http.request_delay": c.HTTP.RequestDelay,
		"run_log.retention":  c.RunLog.Retention,
	} {
		if _, err := ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("source %q declared twice", s.ID)
		}
		seen[s.ID] = struct{}{}

		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("source %q: url must be http or https, got %q", s.ID, s.URL)
		}
		if s.Type == "" {
			return fmt.Errorf("source %q: type is required", s.ID)
		}
		if s.MaxPages < 0 || s.MaxItems < 0 || s.FeedLimit < 0 {
			return fmt.Errorf("source %q: limits must not be negative", s.ID)
		}
		if _, err := ParseDuration(s.MaxAge); err != nil {
			return fmt.Errorf("source %q: max_age: %w", s.ID, err)
		}
		if s.FeedFile == "" {
			return fmt.Errorf("source %q: feed_file is required", s.ID)
		}
		if c.Cache.Backend == "json" && s.CacheFile == "" {
			return fmt.Errorf("source %q: cache_file is required for the json backend", s.ID)
		}
	}
	return nil
}

// EnabledSources returns the enabled sources in declaration order.
func (c *Config) EnabledSources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// SourceByID finds a source regardless of its enabled flag.
func (c *Config) SourceByID(id string) (Source, bool) {
	for _, s := range c.Sources {
		if strings.EqualFold(s.ID, id) {
			return s, true
		}
	}
	return Source{}, false
}

func (c *Config) Timeout() time.Duration {
	d, _ := ParseDuration(c.HTTP.Timeout)
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c *Config) RequestDelay() time.Duration {
	d, _ := ParseDuration(c.HTTP.RequestDelay)
	return d
}

func (c *Config) RunLogRetention() time.Duration {
	d, _ := ParseDuration(c.RunLog.Retention)
	if d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// MaxAgeDuration is zero when the source keeps items regardless of age.
func (s Source) MaxAgeDuration() time.Duration {
	d, _ := ParseDuration(s.MaxAge)
	return d
}

// DisplayName is the name used in the run log and console output.
func (s Source) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// FeedLink is the channel link of the source's feed.
func (s Source) FeedLink() string {
	if s.Feed.Link != "" {
		return s.Feed.Link
	}
	return s.URL
}

// ParseDuration accepts Go durations plus an "Nd" day suffix. Empty means zero.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid day duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
