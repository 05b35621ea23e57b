package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethpandaops/compressoor/pkg/fsutil"
	"github.com/ethpandaops/compressoor/pkg/matrix"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment variables that override config keys,
	// e.g. COMPRESSOOR_BENCHMARK_MACHINE for benchmark.machine.
	EnvPrefix = "COMPRESSOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDatabaseDriver is the default store driver.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "compression.db"

	// DefaultTimeCommand is the default timing wrapper.
	DefaultTimeCommand = "time"

	// DefaultAPIListen is the default API listen address.
	DefaultAPIListen = ":8080"

	// DefaultRequestsPerMinute is the default per-IP API rate limit.
	DefaultRequestsPerMinute = 120
)

// Config is the root configuration for compressoor.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Benchmark BenchmarkConfig `yaml:"benchmark" mapstructure:"benchmark"`
	Upload    UploadConfig    `yaml:"upload,omitempty" mapstructure:"upload"`
	API       APIConfig       `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// BenchmarkConfig contains benchmark-specific settings. Machine is a brief
// description of this machine, e.g. "Pi Zero 2"; Arch overrides the detected
// host architecture; Input is the uncompressed data file every test case
// compresses; Timeout bounds each compress/decompress phase (zero is
// unbounded). CPUGovernor, when set, is pinned on every CPU for the run;
// ResultsOwner ("UID:GID") is applied to the SQLite database afterwards.
type BenchmarkConfig struct {
	Machine      string         `yaml:"machine" mapstructure:"machine"`
	Arch         string         `yaml:"arch,omitempty" mapstructure:"arch"`
	Input        string         `yaml:"input" mapstructure:"input"`
	Timeout      time.Duration  `yaml:"timeout,omitempty" mapstructure:"timeout"`
	Reset        bool           `yaml:"reset" mapstructure:"reset"`
	SpoolDir     string         `yaml:"spool_dir,omitempty" mapstructure:"spool_dir"`
	TimeCommand  string         `yaml:"time_command" mapstructure:"time_command"`
	CPUGovernor  string         `yaml:"cpu_governor,omitempty" mapstructure:"cpu_governor"`
	ResultsOwner string         `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
	Matrix       []matrix.Entry `yaml:"matrix" mapstructure:"matrix"`
}

// defaults lists every scalar key with its default so that environment
// overrides are visible to viper even when a key is absent from the files.
var defaults = map[string]any{
	"global.log_level":                          DefaultLogLevel,
	"database.driver":                           DefaultDatabaseDriver,
	"database.sqlite.path":                      DefaultSQLitePath,
	"database.postgres.host":                    "",
	"database.postgres.port":                    5432,
	"database.postgres.user":                    "",
	"database.postgres.password":                "",
	"database.postgres.database":                "",
	"database.postgres.ssl_mode":                "disable",
	"benchmark.machine":                         "",
	"benchmark.arch":                            "",
	"benchmark.input":                           "",
	"benchmark.timeout":                         "0s",
	"benchmark.reset":                           false,
	"benchmark.spool_dir":                       "",
	"benchmark.time_command":                    DefaultTimeCommand,
	"benchmark.cpu_governor":                    "",
	"benchmark.results_owner":                   "",
	"upload.s3.enabled":                         false,
	"upload.s3.endpoint_url":                    "",
	"upload.s3.region":                          "",
	"upload.s3.bucket":                          "",
	"upload.s3.access_key_id":                   "",
	"upload.s3.secret_access_key":               "",
	"upload.s3.force_path_style":                false,
	"upload.s3.prefix":                          "",
	"upload.s3.storage_class":                   "",
	"upload.s3.acl":                             "",
	"api.server.listen":                         DefaultAPIListen,
	"api.server.cors_origins":                   []string{},
	"api.server.rate_limit.enabled":             false,
	"api.server.rate_limit.requests_per_minute": DefaultRequestsPerMinute,
}

// Load reads and merges the configuration files at paths (later files win),
// applies COMPRESSOOR_* environment overrides and defaults. With no paths
// only defaults and the environment are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		err = v.MergeConfig(f)
		_ = f.Close()

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Benchmark.TimeCommand == "" {
		c.Benchmark.TimeCommand = DefaultTimeCommand
	}

	if len(c.Benchmark.Matrix) == 0 {
		c.Benchmark.Matrix = matrix.DefaultEntries()
	}

	if c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultAPIListen
	}

	if c.API.Server.RateLimit.RequestsPerMinute <= 0 {
		c.API.Server.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Upload.S3 != nil && c.Upload.S3.Enabled {
		if err := c.Upload.S3.Validate(); err != nil {
			return fmt.Errorf("upload.s3: %w", err)
		}
	}

	return nil
}

// ValidateBenchmark checks the settings required to run the benchmark.
func (c *Config) ValidateBenchmark() error {
	if err := c.Validate(); err != nil {
		return err
	}

	b := &c.Benchmark

	if b.Input == "" {
		return fmt.Errorf("benchmark.input is required")
	}

	info, err := os.Stat(b.Input)
	if err != nil {
		return fmt.Errorf("benchmark.input: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("benchmark.input %q is a directory", b.Input)
	}

	if b.Timeout < 0 {
		return fmt.Errorf("benchmark.timeout must not be negative")
	}

	if b.SpoolDir != "" {
		if info, err := os.Stat(b.SpoolDir); err != nil || !info.IsDir() {
			return fmt.Errorf("benchmark.spool_dir %q is not a directory", b.SpoolDir)
		}
	}

	if _, err := fsutil.ParseOwner(b.ResultsOwner); err != nil {
		return fmt.Errorf("benchmark.results_owner: %w", err)
	}

	for i := range b.Matrix {
		if err := b.Matrix[i].Validate(); err != nil {
			return fmt.Errorf("benchmark.matrix[%d]: %w", i, err)
		}
	}

	return nil
}

// ValidateAPI checks the settings required to serve the API.
func (c *Config) ValidateAPI() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.API.Server.Listen == "" {
		return fmt.Errorf("api.server.listen is required")
	}

	return nil
}

// Redacted returns a copy of the configuration with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c

	if out.Database.Postgres.Password != "" {
		out.Database.Postgres.Password = redacted
	}

	if out.Upload.S3 != nil {
		s3 := *out.Upload.S3
		if s3.SecretAccessKey != "" {
			s3.SecretAccessKey = redacted
		}

		out.Upload.S3 = &s3
	}

	return &out
}

const redacted = "<redacted>"

// sqliteDir returns the directory holding the SQLite database file.
func (c *DatabaseConfig) sqliteDir() string {
	return filepath.Dir(c.SQLite.Path)
}
