// Package config loads pseval settings from defaults, an optional YAML or
// TOML file, a .env file and PSEVAL_* environment variables, in that order,
// and validates the result against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PSEVAL_"

// Config is the complete pseval configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database" json:"database"`
	Sample   SampleConfig   `yaml:"sample" toml:"sample" json:"sample"`
	Export   ExportConfig   `yaml:"export" toml:"export" json:"export"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics" json:"metrics"`
	S3       S3Config       `yaml:"s3" toml:"s3" json:"s3"`
}

// DatabaseConfig selects the store. Path is a SQLite file; DSN is passed to
// the driver as is and wins over Path when both are set.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver" json:"driver"`
	Path   string `yaml:"path" toml:"path" json:"path"`
	DSN    string `yaml:"dsn" toml:"dsn" json:"dsn"`
}

// SampleConfig tunes the sampler.
type SampleConfig struct {
	PageSize        int     `yaml:"page_size" toml:"page_size" json:"page_size"`
	RetryMultiplier int     `yaml:"retry_multiplier" toml:"retry_multiplier" json:"retry_multiplier"`
	Seed            *uint64 `yaml:"seed" toml:"seed" json:"seed,omitempty"`
}

// ExportConfig tunes the resolver and the assembled documents.
type ExportConfig struct {
	Version       string `yaml:"version" toml:"version" json:"version"`
	CacheSize     int    `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
	Strict        bool   `yaml:"strict" toml:"strict" json:"strict"`
	NormalizeText bool   `yaml:"normalize_text" toml:"normalize_text" json:"normalize_text"`
	Compress      string `yaml:"compress" toml:"compress" json:"compress"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

type MetricsConfig struct {
	// File receives a Prometheus textfile after each command. Empty disables it.
	File string `yaml:"file" toml:"file" json:"file"`
}

// S3Config configures the object storage sink. Credentials come from the
// standard AWS chain.
type S3Config struct {
	Region   string `yaml:"region" toml:"region" json:"region"`
	Endpoint string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite3"},
		Sample:   SampleConfig{PageSize: 500, RetryMultiplier: 4},
		Export:   ExportConfig{Version: string(model.VersionSQL), CacheSize: 256},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
	}
}

// Options controls where Load looks for overrides.
type Options struct {
	// EnvFile is a dotenv file. Empty means ".env" if it exists.
	EnvFile string

	// LookupEnv reads the environment. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error unless named explicitly.
func Load(path string, opts Options) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	lookup, err := envLookup(opts)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("decode config %s: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml", ".json":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: config %s: unsupported extension", model.ErrInvalidArgument, path)
	}
	return nil
}

// envLookup layers the process environment over the dotenv file.
func envLookup(opts Options) (func(string) (string, bool), error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	file := opts.EnvFile
	if file == "" {
		if _, err := os.Stat(".env"); err != nil {
			return lookup, nil
		}
		file = ".env"
	}
	dotenv, err := godotenv.Read(file)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", file, err)
	}

	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

type envSetter func(cfg *Config, value string) error

func setString(field func(*Config) *string) envSetter {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func setInt(field func(*Config) *int) envSetter {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func setBool(field func(*Config) *bool) envSetter {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

var envSetters = map[string]envSetter{
	"DB_DRIVER":        setString(func(c *Config) *string { return &c.Database.Driver }),
	"DB_PATH":          setString(func(c *Config) *string { return &c.Database.Path }),
	"DB_DSN":           setString(func(c *Config) *string { return &c.Database.DSN }),
	"PAGE_SIZE":        setInt(func(c *Config) *int { return &c.Sample.PageSize }),
	"RETRY_MULTIPLIER": setInt(func(c *Config) *int { return &c.Sample.RetryMultiplier }),
	"VERSION":          setString(func(c *Config) *string { return &c.Export.Version }),
	"CACHE_SIZE":       setInt(func(c *Config) *int { return &c.Export.CacheSize }),
	"STRICT":           setBool(func(c *Config) *bool { return &c.Export.Strict }),
	"NORMALIZE_TEXT":   setBool(func(c *Config) *bool { return &c.Export.NormalizeText }),
	"COMPRESS":         setString(func(c *Config) *string { return &c.Export.Compress }),
	"LOG_LEVEL":        setString(func(c *Config) *string { return &c.Logging.Level }),
	"LOG_FORMAT":       setString(func(c *Config) *string { return &c.Logging.Format }),
	"METRICS_FILE":     setString(func(c *Config) *string { return &c.Metrics.File }),
	"S3_REGION":        setString(func(c *Config) *string { return &c.S3.Region }),
	"S3_ENDPOINT":      setString(func(c *Config) *string { return &c.S3.Endpoint }),
	"SEED": func(c *Config, v string) error {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		c.Sample.Seed = &seed
		return nil
	},
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for name, set := range envSetters {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %w", model.ErrInvalidArgument, EnvPrefix, name, v, err)
		}
	}
	return nil
}

// Validate checks cfg against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: config: %w", model.ErrInvalidArgument, err)
	}
	return nil
}

// Source returns the data source name for the store, preferring DSN over Path.
func (d DatabaseConfig) Source() string {
	if d.DSN != "" {
		return d.DSN
	}
	return d.Path
}
