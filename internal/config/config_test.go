package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FACEBOOK_ACCESS_TOKEN", "")
	t.Setenv("FACEBOOK_PAGE_ID", "")
	t.Setenv("LOG_LEVEL", "")
}

func TestLoadDefaultsWhenNoFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	ac, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ac.Pipeline.Destination != "duckdb" {
		t.Errorf("expected duckdb destination, got %q", ac.Pipeline.Destination)
	}
	if ac.Pipeline.DatabasePath != "facebook_pages_pipeline.duckdb" {
		t.Errorf("unexpected database path %q", ac.Pipeline.DatabasePath)
	}
	if ac.API.Version != "v22.0" {
		t.Errorf("expected pinned v22.0, got %q", ac.API.Version)
	}
	if ac.Pipeline.DaysBack != 30 {
		t.Errorf("expected 30 days back, got %d", ac.Pipeline.DaysBack)
	}
	if err := ac.CheckCredentials(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestLoadConfigAndSecrets(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg := `
[pipeline]
destination = "sqlite"
days_back = 7
tables = ["page", "post_history"]

[api]
page_size = 25

[tables.page]
write_disposition = "replace"
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteSecrets(dir, Credentials{AccessToken: " tok ", PageID: "12345"}); err != nil {
		t.Fatalf("WriteSecrets: %v", err)
	}

	ac, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ac.Pipeline.Destination != "sqlite" || ac.Pipeline.DatabasePath != "facebook_pages_pipeline.db" {
		t.Errorf("unexpected destination settings: %+v", ac.Pipeline)
	}
	if ac.API.PageSize != 25 || ac.API.MaxAttempts != 3 {
		t.Errorf("unexpected api settings: %+v", ac.API)
	}
	if len(ac.Pipeline.Tables) != 2 {
		t.Errorf("expected 2 tables, got %v", ac.Pipeline.Tables)
	}
	if got := ac.WriteDisposition("page"); got != "replace" {
		t.Errorf("expected replace for page, got %q", got)
	}
	if got := ac.WriteDisposition("post_history"); got != "merge" {
		t.Errorf("expected merge default, got %q", got)
	}
	if ac.Facebook.AccessToken != "tok" || ac.Facebook.PageID != "12345" {
		t.Errorf("unexpected credentials: %+v", ac.Facebook)
	}
	if err := ac.CheckCredentials(); err != nil {
		t.Errorf("expected credentials to pass, got %v", err)
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if _, _, err := WriteSecretsTemplate(dir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FACEBOOK_ACCESS_TOKEN", "env-token")
	t.Setenv("FACEBOOK_PAGE_ID", "env-page")

	ac, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ac.Facebook.AccessToken != "env-token" || ac.Facebook.PageID != "env-page" {
		t.Errorf("env overrides not applied: %+v", ac.Facebook)
	}
}

func TestCheckCredentials(t *testing.T) {
	cases := []struct {
		name    string
		creds   Credentials
		wantErr bool
		mention string
	}{
		{"valid", Credentials{AccessToken: "t", PageID: "p"}, false, ""},
		{"missing token", Credentials{PageID: "p"}, true, "access_token"},
		{"missing page", Credentials{AccessToken: "t"}, true, "page_id"},
		{"placeholder token", Credentials{AccessToken: AccessTokenPlaceholder, PageID: "p"}, true, "access_token"},
		{"placeholder page", Credentials{AccessToken: "t", PageID: PageIDPlaceholder}, true, "page_id"},
		{"whitespace", Credentials{AccessToken: "  ", PageID: " "}, true, "access_token, page_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ac := Default()
			ac.Facebook = tc.creds
			err := ac.CheckCredentials()
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrMissingCredentials) {
				t.Fatalf("expected ErrMissingCredentials, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.mention) {
				t.Errorf("expected error to mention %q, got %q", tc.mention, err.Error())
			}
		})
	}
}

func TestWindow(t *testing.T) {
	now := time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)

	t.Run("DaysBack", func(t *testing.T) {
		ac := Default()
		ac.Pipeline.DaysBack = 10
		since, until, err := ac.Window(now)
		if err != nil {
			t.Fatal(err)
		}
		if !until.Equal(now) {
			t.Errorf("expected until=now, got %s", until)
		}
		if got := since.Format(DateLayout); got != "2025-03-21" {
			t.Errorf("expected since 2025-03-21, got %s", got)
		}
	})

	t.Run("ExplicitDates", func(t *testing.T) {
		ac := Default()
		ac.Pipeline.StartDate = "2025-01-01"
		ac.Pipeline.EndDate = "2025-02-01"
		since, until, err := ac.Window(now)
		if err != nil {
			t.Fatal(err)
		}
		if since.Format(DateLayout) != "2025-01-01" || until.Format(DateLayout) != "2025-02-01" {
			t.Errorf("unexpected window %s..%s", since, until)
		}
	})

	t.Run("Inverted", func(t *testing.T) {
		ac := Default()
		ac.Pipeline.StartDate = "2025-02-01"
		ac.Pipeline.EndDate = "2025-01-01"
		if _, _, err := ac.Window(now); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("BadDate", func(t *testing.T) {
		ac := Default()
		ac.Pipeline.StartDate = "01/02/2025"
		if _, _, err := ac.Window(now); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestValidateRejectsUnknownSettings(t *testing.T) {
	ac := Default()
	ac.Pipeline.Destination = "postgres"
	if err := ac.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected invalid destination error, got %v", err)
	}

	ac = Default()
	ac.Tables = map[string]TableConfig{"page": {WriteDisposition: "upsert"}}
	if err := ac.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected invalid disposition error, got %v", err)
	}
}

func TestMaxNullRate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		config  string
		want    float64
		invalid bool
	}{
		{name: "default", config: "[validation]\nmin_rows = 1\n", want: DefaultMaxNullRate},
		{name: "explicit", config: "[validation]\nmax_null_rate = 0.25\n", want: 0.25},
		{name: "zero", config: "[validation]\nmax_null_rate = 0.0\n", invalid: true},
		{name: "negative", config: "[validation]\nmax_null_rate = -0.5\n", invalid: true},
		{name: "above one", config: "[validation]\nmax_null_rate = 1.5\n", invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(tt.config), 0o600); err != nil {
				t.Fatal(err)
			}
			ac, err := Load(dir)
			if tt.invalid {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if ac.Validation.MaxNullRate != tt.want {
				t.Errorf("expected max_null_rate %g, got %g", tt.want, ac.Validation.MaxNullRate)
			}
		})
	}

	if ac := Default(); ac.Validate() != nil || ac.Validation.MaxNullRate != DefaultMaxNullRate {
		t.Errorf("Default() should carry the default null rate, got %g", ac.Validation.MaxNullRate)
	}
}

func TestDefaultDatabasePathPerDestination(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("[pipeline]\ndestination = \"sqlite\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	ac, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ac.Pipeline.DatabasePath != "facebook_pages_pipeline.db" {
		t.Errorf("unexpected sqlite database path %q", ac.Pipeline.DatabasePath)
	}
	if got := Default().Pipeline.DatabasePath; got != "facebook_pages_pipeline.duckdb" {
		t.Errorf("unexpected duckdb database path %q", got)
	}
}

func TestWriteDefaultConfigDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	path, created, err := WriteDefaultConfig(dir)
	if err != nil || !created {
		t.Fatalf("expected config to be created, created=%v err=%v", created, err)
	}
	if err := os.WriteFile(path, []byte("# mine\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, created, err = WriteDefaultConfig(dir)
	if err != nil || created {
		t.Fatalf("expected existing config to be kept, created=%v err=%v", created, err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "# mine\n" {
		t.Errorf("config was overwritten: %q", string(b))
	}
}
