package server

import (
	"context"
	"fmt"
	"os"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"fbpages/internal/config"
	"fbpages/internal/store"
	"fbpages/internal/validate"
	"fbpages/internal/version"
)

type TableStatsParams struct{}

type SampleRowsParams struct {
	Table string `json:"table"`
	Limit *int   `json:"limit,omitempty"`
}

type ValidateParams struct{}

// Server exposes read-only views of the pipeline database over MCP.
type Server struct {
	load   config.Loader
	logger *zap.Logger
}

func New(load config.Loader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{load: load, logger: logger}
}

// Run serves MCP over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{Name: "fbpages", Version: version.GetVersion()}, nil)

	mcp.AddTool(server, &mcp.Tool{Name: "table_stats", Description: "Row and column counts of every table in the pipeline database"}, s.handleTableStats)
	mcp.AddTool(server, &mcp.Tool{Name: "sample_rows", Description: "Return the first rows of one table"}, s.handleSampleRows)
	mcp.AddTool(server, &mcp.Tool{Name: "validate", Description: "Check the database against the tables and columns the dbt models expect"}, s.handleValidate)

	return server.Run(ctx, &mcp.StdioTransport{})
}

// openStore opens the configured database read-only. When it cannot, the
// second return value is a tool response describing why.
func (s *Server) openStore(ctx context.Context) (*store.Store, map[string]any, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, nil, err
	}
	kind, err := store.ParseKind(cfg.Pipeline.Destination)
	if err != nil {
		return nil, nil, err
	}
	dbPath := cfg.DatabasePath()
	if !fileExists(dbPath) {
		return nil, map[string]any{
			"ok":      false,
			"message": fmt.Sprintf("database not found at %s", dbPath),
			"hint":    "Run 'fbpages extract' to create and populate it, or set pipeline.database_path in config.toml.",
			"db_path": dbPath,
		}, nil
	}
	st, err := store.OpenReadOnly(ctx, kind, dbPath, s.logger)
	if err != nil {
		return nil, map[string]any{
			"ok":      false,
			"message": "failed opening the database",
			"error":   err.Error(),
			"db_path": dbPath,
		}, nil
	}
	return st, nil, nil
}

func (s *Server) handleTableStats(ctx context.Context, req *mcp.CallToolRequest, p TableStatsParams) (*mcp.CallToolResult, any, error) {
	st, failure, err := s.openStore(ctx)
	if err != nil || failure != nil {
		return nil, failure, err
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return nil, map[string]any{"ok": false, "message": "failed reading table stats", "error": err.Error()}, nil
	}
	resp := map[string]any{"ok": true, "db_path": st.Path(), "tables": stats}
	if has, _ := st.HasTable(ctx, store.LoadsTable); has {
		if last, err := st.LastLoad(ctx); err == nil && last != nil {
			resp["last_load"] = map[string]any{
				"load_id":    last.ID,
				"status":     last.Status,
				"started_at": last.StartedAt,
				"rows":       last.Rows,
				"error":      last.Error,
			}
		}
	}
	return nil, resp, nil
}

func (s *Server) handleSampleRows(ctx context.Context, req *mcp.CallToolRequest, p SampleRowsParams) (*mcp.CallToolResult, any, error) {
	limit := 5
	if p.Limit != nil && *p.Limit > 0 {
		limit = min(*p.Limit, 100)
	}
	st, failure, err := s.openStore(ctx)
	if err != nil || failure != nil {
		return nil, failure, err
	}
	defer st.Close()

	if has, err := st.HasTable(ctx, p.Table); err != nil || !has {
		return nil, map[string]any{"ok": false, "message": fmt.Sprintf("table %q not found", p.Table)}, nil
	}
	cols, rows, err := st.Sample(ctx, p.Table, limit)
	if err != nil {
		return nil, map[string]any{"ok": false, "message": "query failed", "error": err.Error()}, nil
	}
	items := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		item := make(map[string]string, len(cols))
		for i, c := range cols {
			item[c] = r[i]
		}
		items = append(items, item)
	}
	return nil, map[string]any{"ok": true, "table": p.Table, "count": len(items), "rows": items}, nil
}

func (s *Server) handleValidate(ctx context.Context, req *mcp.CallToolRequest, p ValidateParams) (*mcp.CallToolResult, any, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, nil, err
	}
	st, failure, err := s.openStore(ctx)
	if err != nil || failure != nil {
		return nil, failure, err
	}
	defer st.Close()

	results, err := validate.Check(ctx, st, cfg.Validation)
	if err != nil {
		return nil, map[string]any{"ok": false, "message": "validation query failed", "error": err.Error()}, nil
	}
	rep := validate.Report{Database: st.Path(), Tables: results}
	return nil, map[string]any{
		"ok":            rep.Passed(),
		"compatibility": rep.Compatibility(),
		"failed":        rep.Failed(),
		"tables":        results,
	}, nil
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
