package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"fbpages/internal/config"
	"fbpages/internal/launchd"
	"fbpages/internal/logging"
	"fbpages/internal/pipeline"
	"fbpages/internal/server"
	"fbpages/internal/setup"
	"fbpages/internal/tables"
	"fbpages/internal/tui"
	"fbpages/internal/validate"
	"fbpages/internal/version"
)

// app carries what every command needs once the root flags are parsed.
type app struct {
	dir    string
	load   config.Loader
	logger *zap.Logger
}

func (a *app) before(ctx context.Context, c *cli.Command) (context.Context, error) {
	a.dir = config.ResolveDir(c.String("config"))
	a.load = config.LoaderFor(a.dir)

	level, format := "info", "console"
	if cfg, err := a.load(); err == nil {
		level, format = cfg.Runtime.LogLevel, cfg.Runtime.LogFormat
	}
	if c.Bool("verbose") {
		level = "debug"
	}
	a.logger = logging.Must(level, format)
	return ctx, nil
}

// withOverrides applies extraction flags on top of the loaded config.
func (a *app) withOverrides(c *cli.Command) config.Loader {
	return func() (config.AppConfig, error) {
		cfg, err := a.load()
		if err != nil {
			return cfg, err
		}
		if v := c.String("start-date"); v != "" {
			cfg.Pipeline.StartDate = v
		}
		if v := c.String("end-date"); v != "" {
			cfg.Pipeline.EndDate = v
		}
		if v := c.Int("days-back"); v > 0 {
			cfg.Pipeline.DaysBack = int(v)
		}
		if v := c.String("destination"); v != "" {
			cfg.Pipeline.Destination = v
			if err := cfg.Validate(); err != nil {
				return cfg, err
			}
		}
		return cfg, nil
	}
}

func extractFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "tables", Usage: "Tables to load (default: pipeline.tables)"},
		&cli.StringFlag{Name: "start-date", Usage: "Window start, YYYY-MM-DD"},
		&cli.StringFlag{Name: "end-date", Usage: "Window end, YYYY-MM-DD"},
		&cli.IntFlag{Name: "days-back", Usage: "Window length in days when no start date is set"},
		&cli.StringFlag{Name: "destination", Usage: "duckdb or sqlite"},
	}
}

func splitTables(values []string) []string {
	var out []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func main() {
	a := &app{}
	cmd := &cli.Command{
		Name:  "fbpages",
		Usage: "Load Facebook Page data from the Graph API into DuckDB",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Config directory (default: $FBPAGES_CONFIG_DIR or .fbpages)"},
			&cli.BoolFlag{Name: "verbose", Usage: "Debug logging"},
		},
		Before: a.before,
		Commands: []*cli.Command{
			{
				Name:  "extract",
				Usage: "Extract page, posts and insights and load them into the database",
				Flags: extractFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					_, err := pipeline.Run(ctx, pipeline.Options{Tables: splitTables(c.StringSlice("tables"))}, a.withOverrides(c), a.logger)
					return err
				},
			},
			{
				Name:  "validate",
				Usage: "Check the database against the dbt models",
				Action: func(ctx context.Context, c *cli.Command) error {
					_, err := validate.Run(ctx, validate.Options{}, a.load, a.logger)
					return err
				},
			},
			{
				Name:  "pipeline",
				Usage: "Extract then validate",
				Flags: extractFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					load := a.withOverrides(c)
					if _, err := pipeline.Run(ctx, pipeline.Options{Tables: splitTables(c.StringSlice("tables"))}, load, a.logger); err != nil {
						return err
					}
					fmt.Println()
					_, err := validate.Run(ctx, validate.Options{}, load, a.logger)
					return err
				},
			},
			{
				Name:  "setup",
				Usage: "Create the config directory and check credentials",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "interactive", Usage: "Prompt for the access token and page id"},
					&cli.BoolFlag{Name: "check-connection", Usage: "Fetch the page to verify the token"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return setup.Run(ctx, setup.Options{
						Dir:             a.dir,
						Interactive:     c.Bool("interactive"),
						CheckConnection: c.Bool("check-connection"),
						Logger:          a.logger,
					})
				},
			},
			{
				Name:  "tables",
				Usage: "Show row counts and sample rows",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "samples", Value: 3, Usage: "Sample rows per table, 0 for none"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					n := int(c.Int("samples"))
					if n == 0 {
						n = -1
					}
					return tables.Run(ctx, tables.Options{Samples: n}, a.load, a.logger)
				},
			},
			{
				Name:  "browse",
				Usage: "Browse the loaded tables in the terminal",
				Action: func(ctx context.Context, c *cli.Command) error {
					return tui.Run(ctx, a.load, a.logger)
				},
			},
			{
				Name:  "export",
				Usage: "Export the loaded tables to parquet or csv (DuckDB only)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Value: "parquet", Usage: "parquet or csv"},
					&cli.StringFlag{Name: "dir", Value: "export", Usage: "Output directory"},
					&cli.StringSliceFlag{Name: "tables", Usage: "Tables to export (default: all loaded)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					_, err := pipeline.Export(ctx, pipeline.ExportOptions{
						Format: c.String("format"),
						Dir:    c.String("dir"),
						Tables: splitTables(c.StringSlice("tables")),
					}, a.load, a.logger)
					return err
				},
			},
			{
				Name:  "server",
				Usage: "Run MCP server on stdio",
				Action: func(ctx context.Context, c *cli.Command) error {
					return server.New(a.load, a.logger).Run(ctx)
				},
			},
			scheduleCommand(a),
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Println(version.GetVersion())
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Run(ctx, os.Args)
	stop()
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if pipeline.IsConfigError(err) {
			fmt.Fprintln(os.Stderr, "hint: run 'fbpages setup' to create or fix the configuration")
		}
		os.Exit(1)
	}
}

func scheduleCommand(a *app) *cli.Command {
	labelFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "label", Value: launchd.DefaultLabel, Usage: "launchd label"}
	}
	plistFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "plist", Usage: "custom plist path (default ~/Library/LaunchAgents/<label>.plist)"}
	}
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run the pipeline on a schedule with launchd (macOS)",
		Commands: []*cli.Command{
			{
				Name:  "install",
				Usage: "Install the launchd agent",
				Flags: []cli.Flag{
					labelFlag(),
					plistFlag(),
					&cli.IntFlag{Name: "interval-minutes", Value: launchd.DefaultIntervalMinutes, Usage: "Minutes between runs"},
					&cli.StringFlag{Name: "log-file", Usage: "Log file (default ~/Library/Logs/fbpages/pipeline.log)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					exe, err := os.Executable()
					if err != nil || strings.TrimSpace(exe) == "" {
						return fmt.Errorf("cannot discover program path: %w", err)
					}
					wd, err := os.Getwd()
					if err != nil {
						return err
					}
					dir, err := filepath.Abs(a.dir)
					if err != nil {
						return err
					}
					path, err := launchd.Install(launchd.InstallOptions{
						Label:            c.String("label"),
						IntervalMinutes:  int(c.Int("interval-minutes")),
						ProgramPath:      exe,
						ProgramArgs:      []string{"pipeline"},
						WorkingDirectory: wd,
						Env:              map[string]string{"FBPAGES_CONFIG_DIR": dir},
						StdOutPath:       c.String("log-file"),
						StdErrPath:       c.String("log-file"),
						PlistPath:        c.String("plist"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("launchd agent installed and loaded: %s\n", path)
					return nil
				},
			},
			{
				Name:  "uninstall",
				Usage: "Unload and remove the launchd agent",
				Flags: []cli.Flag{labelFlag(), plistFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := launchd.Uninstall(c.String("label"), c.String("plist")); err != nil {
						return err
					}
					fmt.Println("launchd agent unloaded and removed")
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Show whether the launchd agent is loaded",
				Flags: []cli.Flag{labelFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					label := c.String("label")
					loaded, state := launchd.Status(label)
					fmt.Printf("%s: %s\n", label, state)
					if !loaded {
						return nil
					}
					if p, err := launchd.DefaultAgentPath(label); err == nil {
						if m, err := launchd.IntervalMinutes(p); err == nil {
							fmt.Printf("runs every %d minutes\n", m)
						}
					}
					return nil
				},
			},
		},
	}
}
