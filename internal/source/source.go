// Package source turns Graph API responses for a Facebook Page into rows for
// the four output tables.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"fbpages/internal/graph"
	"fbpages/internal/schema"
)

// Fetcher is the subset of graph.Client the resources need.
type Fetcher interface {
	GetObject(ctx context.Context, path string, params url.Values) (map[string]any, error)
	GetData(ctx context.Context, path string, params url.Values) ([]map[string]any, error)
	Paginate(ctx context.Context, path string, params url.Values, fn func([]map[string]any) error) error
}

// Window is the extraction range [Since, Until].
type Window struct {
	Since time.Time
	Until time.Time
}

// Chunks splits w into consecutive windows no longer than maxDays.
func (w Window) Chunks(maxDays int) []Window {
	if maxDays <= 0 || !w.Since.Before(w.Until) {
		return []Window{w}
	}
	var out []Window
	for start := w.Since; start.Before(w.Until); {
		end := start.AddDate(0, 0, maxDays)
		if end.After(w.Until) {
			end = w.Until
		}
		out = append(out, Window{Since: start, Until: end})
		start = end
	}
	return out
}

func (w Window) params() url.Values {
	return url.Values{
		"since": {strconv.FormatInt(w.Since.Unix(), 10)},
		"until": {strconv.FormatInt(w.Until.Unix(), 10)},
	}
}

type Options struct {
	PageID        string
	Window        Window
	PageSize      int
	MaxWindowDays int
	Now           func() time.Time
	Logger        *zap.Logger
}

// Source extracts the Facebook Page resources.
type Source struct {
	api    Fetcher
	opts   Options
	logger *zap.Logger
}

// Resource pairs an output table with the function that extracts its rows.
type Resource struct {
	Table   schema.Table
	Extract func(ctx context.Context) ([]schema.Row, error)
}

func New(api Fetcher, opts Options) *Source {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{api: api, opts: opts, logger: logger.With(zap.String("page_id", opts.PageID))}
}

// Resources returns all four resources in load order.
func (s *Source) Resources() []Resource {
	return []Resource{
		{Table: schema.Page(), Extract: s.Page},
		{Table: schema.PostHistory(), Extract: s.Posts},
		{Table: schema.DailyPageMetricsTotal(), Extract: s.DailyMetrics},
		{Table: schema.LifetimePostMetricsTotal(), Extract: s.LifetimePostMetrics},
	}
}

// Resource returns the resource for the named table.
func (s *Source) Resource(name string) (Resource, bool) {
	for _, r := range s.Resources() {
		if r.Table.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

func (s *Source) now() time.Time { return s.opts.Now().UTC() }

// Page fetches the page node.
func (s *Source) Page(ctx context.Context) ([]schema.Row, error) {
	obj, err := s.api.GetObject(ctx, s.opts.PageID, url.Values{
		"fields": {strings.Join(schema.PageFields, ",")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %s: %w", s.opts.PageID, err)
	}
	row := schema.Row(obj)
	if id, ok := obj["id"]; ok {
		row["page_id"] = id
	}
	row[schema.ExtractedAtColumn] = s.now()
	return []schema.Row{row}, nil
}

// Posts lists the page's posts created inside the window.
func (s *Source) Posts(ctx context.Context) ([]schema.Row, error) {
	extractedAt := s.now()
	var rows []schema.Row
	err := s.listPosts(ctx, schema.PostFields, func(post map[string]any) {
		row := schema.Row(post)
		if id, _ := post["id"].(string); strings.Contains(id, "_") {
			row["page_id"] = id[:strings.Index(id, "_")]
		}
		row[schema.ExtractedAtColumn] = extractedAt
		rows = append(rows, row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return rows, nil
}

func (s *Source) listPosts(ctx context.Context, fields []string, fn func(map[string]any)) error {
	params := s.opts.Window.params()
	params.Set("fields", strings.Join(fields, ","))
	params.Set("limit", strconv.Itoa(s.opts.PageSize))
	return s.api.Paginate(ctx, s.opts.PageID+"/posts", params, func(batch []map[string]any) error {
		for _, p := range batch {
			fn(p)
		}
		return nil
	})
}

// DailyMetrics fetches daily page insights, one request per window chunk,
// and pivots them into one row per date.
func (s *Source) DailyMetrics(ctx context.Context) ([]schema.Row, error) {
	extractedAt := s.now()
	var rows []schema.Row
	for _, w := range s.opts.Window.Chunks(s.opts.MaxWindowDays) {
		params := w.params()
		params.Set("metric", strings.Join(schema.DailyPageMetrics, ","))
		params.Set("period", "day")

		entries, err := s.api.GetData(ctx, s.opts.PageID+"/insights", params)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page insights %s..%s: %w",
				w.Since.Format(time.DateOnly), w.Until.Format(time.DateOnly), err)
		}
		rows = append(rows, PivotDailyMetrics(s.opts.PageID, entries, extractedAt)...)
	}
	return rows, nil
}

// PivotDailyMetrics turns insights entries (one per metric, each with a
// series of values) into one row per day keyed by the value's end_time date.
func PivotDailyMetrics(pageID string, entries []map[string]any, extractedAt time.Time) []schema.Row {
	byDate := map[string]schema.Row{}
	for _, e := range entries {
		name, _ := e["name"].(string)
		if name == "" {
			continue
		}
		if period, ok := e["period"].(string); ok && period != "day" {
			continue
		}
		values, _ := e["values"].([]any)
		for _, raw := range values {
			v, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			endTime, _ := v["end_time"].(string)
			t, err := schema.ParseGraphTime(endTime)
			if err != nil {
				continue
			}
			date := t.Format(time.DateOnly)
			row, ok := byDate[date]
			if !ok {
				row = schema.Row{
					"page_id":                pageID,
					"date":                   date,
					schema.ExtractedAtColumn: extractedAt,
				}
				byDate[date] = row
			}
			row[name] = v["value"]
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	rows := make([]schema.Row, len(dates))
	for i, d := range dates {
		rows[i] = byDate[d]
	}
	return rows
}

// LifetimePostMetrics fetches lifetime insights for every post in the
// window. A post whose insights request is rejected by the API keeps null
// metrics instead of failing the run.
func (s *Source) LifetimePostMetrics(ctx context.Context) ([]schema.Row, error) {
	extractedAt := s.now()
	var posts []map[string]any
	if err := s.listPosts(ctx, []string{"id", "created_time"}, func(p map[string]any) {
		posts = append(posts, p)
	}); err != nil {
		return nil, fmt.Errorf("failed to list posts for insights: %w", err)
	}

	wanted := make(map[string]bool, len(schema.PostMetrics))
	for _, m := range schema.PostMetrics {
		wanted[m] = true
	}

	rows := make([]schema.Row, 0, len(posts))
	for _, p := range posts {
		postID, _ := p["id"].(string)
		if postID == "" {
			continue
		}
		date := extractedAt.Format(time.DateOnly)
		if created, ok := p["created_time"].(string); ok {
			if t, err := schema.ParseGraphTime(created); err == nil {
				date = t.Format(time.DateOnly)
			}
		}
		row := schema.Row{
			"post_id":                postID,
			"date":                   date,
			schema.ExtractedAtColumn: extractedAt,
		}

		entries, err := s.api.GetData(ctx, postID+"/insights", url.Values{
			"metric": {strings.Join(schema.PostMetrics, ",")},
		})
		var apiErr *graph.APIError
		switch {
		case errors.As(err, &apiErr):
			s.logger.Warn("failed to fetch post insights, keeping null metrics",
				zap.String("post_id", postID), zap.Error(err))
		case err != nil:
			return nil, fmt.Errorf("failed to fetch insights for post %s: %w", postID, err)
		}
		for _, e := range entries {
			name, _ := e["name"].(string)
			values, _ := e["values"].([]any)
			if !wanted[name] || len(values) == 0 {
				continue
			}
			if v, ok := values[0].(map[string]any); ok {
				row[name] = v["value"]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
