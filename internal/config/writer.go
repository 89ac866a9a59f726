package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const configTemplate = `# fbpages configuration

[runtime]
log_level = "info"
log_format = "console"

[pipeline]
name = "facebook_pages_pipeline"
destination = "duckdb"
# database_path = "facebook_pages_pipeline.duckdb"
days_back = 30
# start_date = "2025-01-01"
# end_date = "2025-02-01"
tables = ["page", "post_history", "daily_page_metrics_total", "lifetime_post_metrics_total"]
# schema_export_dir = "schemas/export"
# metrics_textfile = "/var/lib/node_exporter/fbpages.prom"

[api]
base_url = "https://graph.facebook.com"
version = "v22.0"
timeout_sec = 30
page_size = 100
max_attempts = 3
backoff_ms = 500

[validation]
min_rows = 1
# required columns fail at or above this null share; must be in (0, 1]
max_null_rate = 1.0
# dbt_project_dir = "../dbt_facebook_pages"

# [tables.daily_page_metrics_total]
# write_disposition = "merge"
`

const secretsHeader = `# fbpages secrets - keep this file out of version control.
# Use a long-lived page access token (60+ days validity).
`

// WriteDefaultConfig writes config.toml into dir unless it already exists.
func WriteDefaultConfig(dir string) (string, bool, error) {
	return writeIfMissing(filepath.Join(dir, ConfigFileName), []byte(configTemplate))
}

// WriteSecretsTemplate writes a secrets.toml with placeholder credentials
// unless one already exists.
func WriteSecretsTemplate(dir string) (string, bool, error) {
	b, err := renderSecrets(Credentials{AccessToken: AccessTokenPlaceholder, PageID: PageIDPlaceholder})
	if err != nil {
		return "", false, err
	}
	return writeIfMissing(filepath.Join(dir, SecretsFileName), b)
}

// WriteSecrets stores creds in dir/secrets.toml, backing up any previous file.
func WriteSecrets(dir string, creds Credentials) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	path := filepath.Join(dir, SecretsFileName)
	if _, err := os.Stat(path); err == nil {
		if err := BackupFile(path); err != nil {
			return "", fmt.Errorf("failed to back up %s: %w", path, err)
		}
	}
	creds.AccessToken = strings.TrimSpace(creds.AccessToken)
	creds.PageID = strings.TrimSpace(creds.PageID)
	b, err := renderSecrets(creds)
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, b, 0o600)
}

func renderSecrets(creds Credentials) ([]byte, error) {
	body, err := toml.Marshal(secretsFile{Facebook: creds})
	if err != nil {
		return nil, fmt.Errorf("failed to render secrets: %w", err)
	}
	return append([]byte(secretsHeader), body...), nil
}

func writeIfMissing(path string, content []byte) (string, bool, error) {
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return path, false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return path, false, err
	}
	return path, true, nil
}

// BackupFile creates a backup of the specified file with a timestamp
func BackupFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ts := time.Now().Format("20060102-150405")
	bak := path + ".bak-" + ts
	return os.WriteFile(bak, b, 0o600)
}
