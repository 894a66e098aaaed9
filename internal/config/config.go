// Package config loads build configuration.
//
// Values come from defaults, then an optional file, then COMMONER_*
// environment variables (COMMONER_CACHE_BACKEND overrides cache.backend).
// Files may be JSON, YAML, TOML or CUE; CUE files are checked against the
// #Config schema before they are merged. The path "-" reads JSON from
// standard input.
//
// Everything under "build" is opaque to the tool and exists to be hashed:
// changing it invalidates every cached artifact. Keys are lowercased on
// load, so "Target" and "target" are the same key.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/facebookarchive/commoner/internal/cache"
	"github.com/facebookarchive/commoner/internal/digest"
	"github.com/facebookarchive/commoner/internal/source"
)

//go:embed schema.cue
var configSchema string

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "COMMONER"

// StdinPath selects standard input as the config file.
const StdinPath = "-"

// Config is the complete build configuration.
type Config struct {
	Extension string         `mapstructure:"extension"`
	Debug     bool           `mapstructure:"debug"`
	Cache     CacheConfig    `mapstructure:"cache"`
	Source    SourceConfig   `mapstructure:"source"`
	Watch     WatchConfig    `mapstructure:"watch"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	Build     map[string]any `mapstructure:"build"`
}

// CacheConfig selects the content cache.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	// Dir holds the disk cache or the SQLite database. Empty means
	// <output>/.module-cache.
	Dir string `mapstructure:"dir"`
}

// SourceConfig configures resolution.
type SourceConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
	Directive   string        `mapstructure:"directive"`
	Patterns    []string      `mapstructure:"patterns"`
	Ignore      []string      `mapstructure:"ignore"`
	Shell       []ShellConfig `mapstructure:"shell"`
}

// ShellConfig declares a shell provider.
type ShellConfig struct {
	Name    string        `mapstructure:"name"`
	Script  string        `mapstructure:"script"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Ignore   []string      `mapstructure:"ignore"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is a listen address such as ":9090". Empty disables the server.
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Extension: ".js",
		Cache:     CacheConfig{Backend: cache.BackendDisk},
		Source: SourceConfig{
			GracePeriod: source.DefaultGracePeriod,
			Directive:   source.DefaultDirective,
		},
		Watch: WatchConfig{Debounce: 100 * time.Millisecond},
		Build: map[string]any{},
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Path is the config file. Empty means defaults and environment only.
	Path string
	// Stdin is read when Path is "-". Defaults to os.Stdin.
	Stdin io.Reader
	// Logger receives the stalled-stdin warning.
	Logger *slog.Logger
}

// Load builds a Config from defaults, the file at opts.Path, and the
// environment.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	v := viper.New()
	defaults := DefaultConfig()
	v.SetDefault("extension", defaults.Extension)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("cache.backend", defaults.Cache.Backend)
	v.SetDefault("cache.dir", defaults.Cache.Dir)
	v.SetDefault("source.grace_period", defaults.Source.GracePeriod)
	v.SetDefault("source.directive", defaults.Source.Directive)
	v.SetDefault("source.patterns", defaults.Source.Patterns)
	v.SetDefault("source.ignore", defaults.Source.Ignore)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("watch.ignore", defaults.Watch.Ignore)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("build", defaults.Build)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case opts.Path == "":
	case opts.Path == StdinPath:
		stdin := opts.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		data, err := readWithGrace(ctx, stdin, defaults.Source.GracePeriod, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("read config from stdin: %w", err)
		}
		v.SetConfigType("json")
		if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("parse config from stdin: %w", err)
		}
	case strings.EqualFold(filepath.Ext(opts.Path), ".cue"):
		if err := loadCUEIntoViper(v, opts.Path); err != nil {
			return nil, err
		}
	default:
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.Path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Build == nil {
		cfg.Build = map[string]any{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadCUEIntoViper validates a CUE file against #Config and merges it.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return fmt.Errorf("config %s: %w", path, userValue.Err())
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// readWithGrace reads r to EOF, warning once if that takes longer than
// grace. The read itself is never abandoned unless ctx ends.
func readWithGrace(ctx context.Context, r io.Reader, grace time.Duration, logger *slog.Logger) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(r)
		done <- result{data, err}
	}()

	var warn <-chan time.Time
	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		warn = timer.C
	}

	for {
		select {
		case res := <-done:
			return res.data, res.err
		case <-warn:
			logger.Warn("still waiting for configuration on standard input", "elapsed", grace)
			warn = nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Validate checks values the decoders cannot.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case cache.BackendDisk, cache.BackendMemory, cache.BackendSQLite:
	default:
		return fmt.Errorf("config: unknown cache.backend %q (want disk, sqlite or memory)", c.Cache.Backend)
	}
	if !strings.HasPrefix(c.Extension, ".") || len(c.Extension) < 2 {
		return fmt.Errorf("config: extension %q must start with a dot", c.Extension)
	}
	if c.Source.Directive == "" {
		return fmt.Errorf("config: source.directive must not be empty")
	}
	seen := make(map[string]bool)
	for i, sh := range c.Source.Shell {
		if sh.Name == "" || sh.Script == "" {
			return fmt.Errorf("config: source.shell[%d] needs a name and a script", i)
		}
		if seen[sh.Name] {
			return fmt.Errorf("config: duplicate shell provider %q", sh.Name)
		}
		seen[sh.Name] = true
	}
	return nil
}

// Hash is the configuration hash mixed into every module and bundle key.
// It covers the settings that change artifact bytes: build, debug and
// extension.
func (c *Config) Hash() (string, error) {
	return digest.Config(map[string]any{
		"build":     c.Build,
		"debug":     c.Debug,
		"extension": c.Extension,
	})
}

// CacheDir returns the cache directory for a build writing to outputDir.
func (c *Config) CacheDir(outputDir string) string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return filepath.Join(outputDir, ".module-cache")
}
