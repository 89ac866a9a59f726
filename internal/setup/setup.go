// Package setup prepares a working configuration directory: it scaffolds
// config.toml and secrets.toml, checks the credentials and optionally tests
// them against the Graph API.
package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"fbpages/internal/config"
	"fbpages/internal/graph"
)

var ErrCancelled = errors.New("setup cancelled")

// Prompter asks the user for credentials, starting from current.
type Prompter func(current config.Credentials) (config.Credentials, error)

type Options struct {
	Dir             string
	Interactive     bool
	CheckConnection bool
	Out             io.Writer

	// Prompt replaces the terminal prompt used when Interactive is set.
	Prompt     Prompter
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Run executes the setup steps in order and stops at the first failing one.
func Run(ctx context.Context, opts Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := opts.Dir
	if dir == "" {
		dir = config.DefaultDir
	}
	s := &steps{out: out}

	fmt.Fprintln(out, "🚀 Facebook Pages pipeline setup")
	fmt.Fprintln(out)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return s.fail("create config directory", err)
	}
	s.ok("config directory %s", dir)

	path, created, err := config.WriteDefaultConfig(dir)
	if err != nil {
		return s.fail("write config.toml", err)
	}
	s.ok("%s %s", path, createdOrKept(created))

	path, created, err = config.WriteSecretsTemplate(dir)
	if err != nil {
		return s.fail("write secrets.toml", err)
	}
	s.ok("%s %s", path, createdOrKept(created))

	if opts.Interactive {
		if err := promptCredentials(dir, opts.Prompt, s); err != nil {
			return err
		}
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return s.fail("load configuration", err)
	}
	if err := cfg.CheckCredentials(); err != nil {
		s.bad("credentials: %v", err)
		printCredentialHelp(out, cfg.SecretsPath())
		return err
	}
	s.ok("credentials configured for page %s", cfg.Facebook.PageID)

	if opts.CheckConnection {
		name, err := checkConnection(ctx, cfg, opts.HTTPClient, logger)
		if err != nil {
			return s.fail("connect to the Graph API", err)
		}
		s.ok("connected to page %q", name)
	}

	printGuide(out)
	return nil
}

func promptCredentials(dir string, prompt Prompter, s *steps) error {
	if prompt == nil {
		prompt = TerminalPrompt
	}
	current := config.Credentials{}
	if cfg, err := config.Load(dir); err == nil {
		current = cfg.Facebook
	}
	creds, err := prompt(current)
	if err != nil {
		return s.fail("read credentials", err)
	}
	path, err := config.WriteSecrets(dir, creds)
	if err != nil {
		return s.fail("save credentials", err)
	}
	s.ok("credentials saved to %s", path)
	return nil
}

// checkConnection fetches the configured page and returns its name.
func checkConnection(ctx context.Context, cfg config.AppConfig, hc *http.Client, logger *zap.Logger) (string, error) {
	client := graph.New(graph.Options{
		BaseURL:     cfg.API.BaseURL,
		Version:     cfg.API.Version,
		AccessToken: cfg.Facebook.AccessToken,
		Timeout:     time.Duration(cfg.API.TimeoutSec) * time.Second,
		MaxAttempts: 1,
		HTTPClient:  hc,
		Logger:      logger,
	})
	obj, err := client.GetObject(ctx, cfg.Facebook.PageID, url.Values{"fields": {"id,name"}})
	if err != nil {
		return "", err
	}
	name, _ := obj["name"].(string)
	return name, nil
}

type steps struct {
	out io.Writer
}

func (s *steps) ok(format string, args ...any) {
	fmt.Fprintf(s.out, "✅ "+format+"\n", args...)
}

func (s *steps) bad(format string, args ...any) {
	fmt.Fprintf(s.out, "❌ "+format+"\n", args...)
}

func (s *steps) fail(step string, err error) error {
	s.bad("%s: %v", step, err)
	return fmt.Errorf("%s: %w", step, err)
}

func createdOrKept(created bool) string {
	if created {
		return "created"
	}
	return "already exists, kept"
}

func printCredentialHelp(w io.Writer, secretsPath string) {
	fmt.Fprintf(w, `
To get credentials:
  1. Create an app at https://developers.facebook.com/apps
  2. In the Graph API Explorer, request pages_read_engagement,
     pages_show_list and read_insights for your page
  3. Exchange the token for a long-lived page access token
  4. Put it and your numeric page id in %s
     (or export FACEBOOK_ACCESS_TOKEN and FACEBOOK_PAGE_ID)
  5. Or run: fbpages setup --interactive
`, secretsPath)
}

func printGuide(w io.Writer) {
	fmt.Fprint(w, `
Setup complete! 🎉
Next steps:
  fbpages extract     load page, posts and insights into the database
  fbpages validate    check the output against the dbt models
  fbpages pipeline    extract then validate
  fbpages tables      show row counts and sample rows
  fbpages schedule install   run the pipeline daily (macOS)
`)
}
