package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultDir      = ".fbpages"
	ConfigFileName  = "config.toml"
	SecretsFileName = "secrets.toml"

	AccessTokenPlaceholder = "YOUR_FACEBOOK_LONG_LIVED_ACCESS_TOKEN_HERE"
	PageIDPlaceholder      = "YOUR_FACEBOOK_PAGE_ID_HERE"

	DateLayout = "2006-01-02"

	// DefaultMaxNullRate only fails required columns that are entirely null.
	DefaultMaxNullRate = 1.0
)

var (
	ErrMissingCredentials = errors.New("facebook credentials not configured")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Loader returns the effective configuration. Commands receive one so tests
// can inject configs without touching the filesystem.
type Loader func() (AppConfig, error)

// LoaderFor returns a Loader reading from dir.
func LoaderFor(dir string) Loader {
	return func() (AppConfig, error) {
		return Load(dir)
	}
}

// Static returns a Loader that always yields cfg.
func Static(cfg AppConfig) Loader {
	return func() (AppConfig, error) {
		return cfg, nil
	}
}

type RuntimeConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // console or json
}

type PipelineConfig struct {
	Name            string   `toml:"name"`
	Destination     string   `toml:"destination"` // duckdb or sqlite
	DatabasePath    string   `toml:"database_path"`
	DaysBack        int      `toml:"days_back"`
	StartDate       string   `toml:"start_date"`
	EndDate         string   `toml:"end_date"`
	Tables          []string `toml:"tables"`
	SchemaExportDir string   `toml:"schema_export_dir"`
	MetricsTextfile string   `toml:"metrics_textfile"`
}

type APIConfig struct {
	BaseURL       string `toml:"base_url"`
	Version       string `toml:"version"`
	TimeoutSec    int    `toml:"timeout_sec"`
	PageSize      int    `toml:"page_size"`
	MaxAttempts   int    `toml:"max_attempts"`
	BackoffMillis int    `toml:"backoff_ms"`
	MaxWindowDays int    `toml:"max_window_days"`
}

type ValidationConfig struct {
	MinRows       int64   `toml:"min_rows"`
	MaxNullRate   float64 `toml:"max_null_rate"` // in (0, 1]
	DBTProjectDir string  `toml:"dbt_project_dir"`
}

type TableConfig struct {
	WriteDisposition string `toml:"write_disposition"`
}

// Credentials is the [facebook] section of secrets.toml.
type Credentials struct {
	AccessToken string `toml:"access_token"`
	PageID      string `toml:"page_id"`
}

type secretsFile struct {
	Facebook Credentials `toml:"facebook"`
}

// AppConfig is the merged view of config.toml, secrets.toml and the environment.
type AppConfig struct {
	Dir string `toml:"-"`

	Runtime    RuntimeConfig          `toml:"runtime"`
	Pipeline   PipelineConfig         `toml:"pipeline"`
	API        APIConfig              `toml:"api"`
	Validation ValidationConfig       `toml:"validation"`
	Tables     map[string]TableConfig `toml:"tables"`

	Facebook Credentials `toml:"-"`
}

// Default returns the configuration used when no config.toml exists.
func Default() AppConfig {
	c := newAppConfig(DefaultDir)
	c.ApplyDefaults()
	return c
}

// newAppConfig presets the settings whose zero value is meaningful, so an
// explicit zero in config.toml survives ApplyDefaults and reaches Validate.
func newAppConfig(dir string) AppConfig {
	return AppConfig{
		Dir:        dir,
		Validation: ValidationConfig{MaxNullRate: DefaultMaxNullRate},
	}
}

// ApplyDefaults fills in zero-valued optional fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Runtime.LogLevel == "" {
		c.Runtime.LogLevel = "info"
	}
	if c.Runtime.LogFormat == "" {
		c.Runtime.LogFormat = "console"
	}

	if c.Pipeline.Name == "" {
		c.Pipeline.Name = "facebook_pages_pipeline"
	}
	if c.Pipeline.Destination == "" {
		c.Pipeline.Destination = "duckdb"
	}
	if c.Pipeline.DatabasePath == "" {
		if c.Pipeline.Destination == "sqlite" {
			c.Pipeline.DatabasePath = c.Pipeline.Name + ".db"
		} else {
			c.Pipeline.DatabasePath = c.Pipeline.Name + ".duckdb"
		}
	}
	if c.Pipeline.DaysBack <= 0 {
		c.Pipeline.DaysBack = 30
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://graph.facebook.com"
	}
	if c.API.Version == "" {
		c.API.Version = "v22.0"
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = 30
	}
	if c.API.PageSize <= 0 {
		c.API.PageSize = 100
	}
	if c.API.MaxAttempts <= 0 {
		c.API.MaxAttempts = 3
	}
	if c.API.BackoffMillis <= 0 {
		c.API.BackoffMillis = 500
	}
	if c.API.MaxWindowDays <= 0 {
		c.API.MaxWindowDays = 90
	}

	if c.Validation.MinRows <= 0 {
		c.Validation.MinRows = 1
	}
}

// Validate checks settings that do not depend on credentials.
func (c *AppConfig) Validate() error {
	switch c.Pipeline.Destination {
	case "duckdb", "sqlite":
	default:
		return fmt.Errorf("%w: pipeline.destination must be 'duckdb' or 'sqlite', got: %s", ErrInvalidConfig, c.Pipeline.Destination)
	}
	for name, t := range c.Tables {
		switch t.WriteDisposition {
		case "", "merge", "replace", "append":
		default:
			return fmt.Errorf("%w: tables.%s.write_disposition must be one of merge, replace, append, got: %s", ErrInvalidConfig, name, t.WriteDisposition)
		}
	}
	if c.Validation.MaxNullRate <= 0 || c.Validation.MaxNullRate > 1 {
		return fmt.Errorf("%w: validation.max_null_rate must be in (0, 1], got: %g", ErrInvalidConfig, c.Validation.MaxNullRate)
	}
	if _, _, err := c.Window(time.Now()); err != nil {
		return err
	}
	return nil
}

// CheckCredentials reports whether the access token and page id are usable.
// It never touches the network.
func (c *AppConfig) CheckCredentials() error {
	var missing []string
	token := strings.TrimSpace(c.Facebook.AccessToken)
	if token == "" || token == AccessTokenPlaceholder {
		missing = append(missing, "access_token")
	}
	page := strings.TrimSpace(c.Facebook.PageID)
	if page == "" || page == PageIDPlaceholder {
		missing = append(missing, "page_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s in %s or via FACEBOOK_ACCESS_TOKEN / FACEBOOK_PAGE_ID",
			ErrMissingCredentials, strings.Join(missing, ", "), c.SecretsPath())
	}
	return nil
}

// Window returns the extraction window [since, until). Explicit dates win
// over days_back.
func (c *AppConfig) Window(now time.Time) (time.Time, time.Time, error) {
	until := now
	if s := strings.TrimSpace(c.Pipeline.EndDate); s != "" {
		t, err := time.ParseInLocation(DateLayout, s, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: pipeline.end_date: %v", ErrInvalidConfig, err)
		}
		until = t
	}
	since := until.AddDate(0, 0, -c.Pipeline.DaysBack)
	if s := strings.TrimSpace(c.Pipeline.StartDate); s != "" {
		t, err := time.ParseInLocation(DateLayout, s, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: pipeline.start_date: %v", ErrInvalidConfig, err)
		}
		since = t
	}
	if !since.Before(until) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window start %s is not before end %s",
			ErrInvalidConfig, since.Format(DateLayout), until.Format(DateLayout))
	}
	return since, until, nil
}

// WriteDisposition returns the configured disposition for table, merge by default.
func (c *AppConfig) WriteDisposition(table string) string {
	if t, ok := c.Tables[table]; ok && t.WriteDisposition != "" {
		return t.WriteDisposition
	}
	return "merge"
}

func (c *AppConfig) ConfigPath() string  { return filepath.Join(c.Dir, ConfigFileName) }
func (c *AppConfig) SecretsPath() string { return filepath.Join(c.Dir, SecretsFileName) }

// DatabasePath returns the expanded output store path.
func (c *AppConfig) DatabasePath() string {
	return ExpandPath(c.Pipeline.DatabasePath)
}

// ResolveDir picks the config directory: explicit flag, then FBPAGES_CONFIG_DIR, then .fbpages.
func ResolveDir(flag string) string {
	if d := strings.TrimSpace(flag); d != "" {
		return ExpandPath(d)
	}
	if d := strings.TrimSpace(os.Getenv("FBPAGES_CONFIG_DIR")); d != "" {
		return ExpandPath(d)
	}
	return DefaultDir
}

// Load reads config.toml and secrets.toml from dir and applies environment
// overrides. Missing files are not an error; credentials are checked by the
// commands that need them.
func Load(dir string) (AppConfig, error) {
	// .env is optional
	_ = godotenv.Load()

	ac := newAppConfig(dir)

	b, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ac, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(b, &ac); err != nil {
			return ac, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, filepath.Join(dir, ConfigFileName), err)
		}
	}

	b, err = os.ReadFile(filepath.Join(dir, SecretsFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ac, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if err == nil {
		var sf secretsFile
		if err := toml.Unmarshal(b, &sf); err != nil {
			return ac, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, filepath.Join(dir, SecretsFileName), err)
		}
		ac.Facebook = sf.Facebook
	}

	applyEnv(&ac)
	ac.ApplyDefaults()

	if err := ac.Validate(); err != nil {
		return ac, err
	}
	return ac, nil
}

func applyEnv(ac *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("FACEBOOK_ACCESS_TOKEN")); v != "" {
		ac.Facebook.AccessToken = v
	}
	if v := strings.TrimSpace(os.Getenv("FACEBOOK_PAGE_ID")); v != "" {
		ac.Facebook.PageID = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		ac.Runtime.LogLevel = v
	}
}

// ExpandPath expands leading ~ and environment variables in a filesystem path.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}
