// Package schema defines the four output tables and how API values are
// coerced into their columns.
package schema

import "strings"

const (
	PageTable                = "page"
	PostHistoryTable         = "post_history"
	DailyPageMetricsTable    = "daily_page_metrics_total"
	LifetimePostMetricsTable = "lifetime_post_metrics_total"

	ExtractedAtColumn = "_extracted_at"
	LoadIDColumn      = "_load_id"
)

type ColumnType string

const (
	Text      ColumnType = "text"
	BigInt    ColumnType = "bigint"
	Double    ColumnType = "double"
	Bool      ColumnType = "bool"
	Timestamp ColumnType = "timestamp"
	Date      ColumnType = "date"
	JSON      ColumnType = "json"
)

// Row is one record headed for a table, keyed by column name.
type Row map[string]any

type Column struct {
	Name string     `yaml:"name"`
	Type ColumnType `yaml:"data_type"`
}

type Table struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	PrimaryKey  []string `yaml:"primary_key"`
	Columns     []Column `yaml:"columns"`
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsKey reports whether name is part of the primary key.
func (t Table) IsKey(name string) bool {
	for _, k := range t.PrimaryKey {
		if k == name {
			return true
		}
	}
	return false
}

// Key returns the primary key values of r joined into a comparable string.
func (t Table) Key(r Row) string {
	parts := make([]string, len(t.PrimaryKey))
	for i, k := range t.PrimaryKey {
		parts[i] = toText(r[k])
	}
	return strings.Join(parts, "\x1f")
}

// Graph API fields requested for the page object.
var PageFields = []string{
	"id", "name", "category", "fan_count", "about", "phone", "website", "username",
	"description", "is_published", "is_permanently_closed", "is_unclaimed",
	"overall_star_rating", "rating_count", "talking_about_count", "were_here_count",
	"single_line_address", "checkins", "can_checkin", "can_post", "is_always_open",
	"is_chain", "is_community_page", "mission", "general_info", "price_range",
	"founded", "company_overview",
}

// Graph API fields requested for each post.
var PostFields = []string{
	"id", "message", "created_time", "updated_time", "status_type",
	"is_published", "is_hidden", "permalink_url",
}

// Daily page insights requested with period=day.
var DailyPageMetrics = []string{
	"page_impressions", "page_impressions_unique", "page_impressions_nonviral",
	"page_impressions_paid", "page_impressions_viral", "page_fans", "page_fan_adds",
	"page_fan_removes", "page_post_engagements", "page_actions_post_reactions_total",
	"page_actions_post_reactions_anger_total", "page_actions_post_reactions_haha_total",
	"page_actions_post_reactions_like_total", "page_actions_post_reactions_love_total",
	"page_actions_post_reactions_sorry_total", "page_actions_post_reactions_wow_total",
	"page_posts_impressions", "page_posts_impressions_nonviral",
	"page_posts_impressions_organic", "page_posts_impressions_paid",
	"page_posts_impressions_viral", "page_video_views", "page_total_actions",
	"page_views_total",
}

// Daily metrics that API v22.0 no longer serves. They stay as null columns
// so downstream dbt models keep compiling.
var LegacyDailyPageMetrics = []string{
	"page_negative_feedback", "page_impressions_organic", "page_fans_online_per_day",
	"page_places_checkin_total", "page_video_complete_views_30_s",
	"page_video_complete_views_30_s_autoplayed",
	"page_video_complete_views_30_s_click_to_play",
	"page_video_complete_views_30_s_organic", "page_video_complete_views_30_s_paid",
	"page_video_complete_views_30_s_repeat_views", "page_video_repeat_views",
	"page_video_view_time", "page_video_views_10_s", "page_video_views_10_s_autoplayed",
	"page_video_views_10_s_click_to_play", "page_video_views_10_s_organic",
	"page_video_views_10_s_paid", "page_video_views_10_s_repeat",
	"page_video_views_autoplayed", "page_video_views_click_to_play",
	"page_video_views_organic", "page_video_views_paid",
}

// Lifetime post insights that API v22.0 still serves.
var PostMetrics = []string{
	"post_impressions", "post_impressions_unique", "post_clicks",
	"post_reactions_like_total", "post_reactions_love_total", "post_reactions_wow_total",
	"post_reactions_haha_total", "post_reactions_sorry_total", "post_reactions_anger_total",
}

var LegacyPostMetrics = []string{
	"post_engaged_fan", "post_engaged_users", "post_impressions_fan",
	"post_impressions_nonviral", "post_impressions_organic", "post_impressions_paid",
	"post_impressions_viral", "post_negative_feedback", "post_video_avg_time_watched",
	"post_video_complete_views_30_s_autoplayed",
	"post_video_complete_views_30_s_clicked_to_play",
	"post_video_complete_views_30_s_organic", "post_video_complete_views_30_s_paid",
	"post_video_complete_views_organic", "post_video_complete_views_paid",
	"post_video_length", "post_video_view_time", "post_video_view_time_organic",
	"post_video_views", "post_video_views_10_s", "post_video_views_10_s_autoplayed",
	"post_video_views_10_s_clicked_to_play", "post_video_views_10_s_organic",
	"post_video_views_10_s_paid", "post_video_views_10_s_sound_on",
	"post_video_views_15_s", "post_video_views_autoplayed",
	"post_video_views_clicked_to_play", "post_video_views_organic",
	"post_video_views_paid", "post_video_views_sound_on",
}

// jsonMetrics return objects (breakdowns) rather than counts.
var jsonMetrics = map[string]bool{
	"page_actions_post_reactions_total": true,
}

var doubleMetrics = map[string]bool{
	"post_video_avg_time_watched": true,
}

var pageTypes = map[string]ColumnType{
	"fan_count":             BigInt,
	"is_published":          Bool,
	"is_permanently_closed": Bool,
	"is_unclaimed":          Bool,
	"overall_star_rating":   Double,
	"rating_count":          BigInt,
	"talking_about_count":   BigInt,
	"were_here_count":       BigInt,
	"checkins":              BigInt,
	"can_checkin":           Bool,
	"can_post":              Bool,
	"is_always_open":        Bool,
	"is_chain":              Bool,
	"is_community_page":     Bool,
}

var postTypes = map[string]ColumnType{
	"created_time": Timestamp,
	"updated_time": Timestamp,
	"is_published": Bool,
	"is_hidden":    Bool,
}

func bookkeeping() []Column {
	return []Column{
		{Name: ExtractedAtColumn, Type: Timestamp},
		{Name: LoadIDColumn, Type: Text},
	}
}

func typedColumns(names []string, types map[string]ColumnType) []Column {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		t, ok := types[n]
		if !ok {
			t = Text
		}
		cols = append(cols, Column{Name: n, Type: t})
	}
	return cols
}

func metricColumns(names []string) []Column {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		t := BigInt
		if jsonMetrics[n] {
			t = JSON
		} else if doubleMetrics[n] {
			t = Double
		}
		cols = append(cols, Column{Name: n, Type: t})
	}
	return cols
}

func Page() Table {
	cols := typedColumns(PageFields, pageTypes)
	cols = append(cols, Column{Name: "page_id", Type: Text})
	return Table{
		Name:        PageTable,
		Description: "Page information and metadata",
		PrimaryKey:  []string{"id"},
		Columns:     append(cols, bookkeeping()...),
	}
}

func PostHistory() Table {
	cols := typedColumns(PostFields, postTypes)
	cols = append(cols, Column{Name: "page_id", Type: Text})
	return Table{
		Name:        PostHistoryTable,
		Description: "Individual posts and content",
		PrimaryKey:  []string{"id"},
		Columns:     append(cols, bookkeeping()...),
	}
}

func DailyPageMetricsTotal() Table {
	cols := []Column{{Name: "page_id", Type: Text}, {Name: "date", Type: Date}}
	cols = append(cols, metricColumns(DailyPageMetrics)...)
	cols = append(cols, metricColumns(LegacyDailyPageMetrics)...)
	return Table{
		Name:        DailyPageMetricsTable,
		Description: "Daily aggregated page metrics",
		PrimaryKey:  []string{"page_id", "date"},
		Columns:     append(cols, bookkeeping()...),
	}
}

func LifetimePostMetricsTotal() Table {
	cols := []Column{{Name: "post_id", Type: Text}, {Name: "date", Type: Date}}
	cols = append(cols, metricColumns(PostMetrics)...)
	cols = append(cols, metricColumns(LegacyPostMetrics)...)
	return Table{
		Name:        LifetimePostMetricsTable,
		Description: "Post-level lifetime performance data",
		PrimaryKey:  []string{"post_id"},
		Columns:     append(cols, bookkeeping()...),
	}
}

// All returns the four tables in load order.
func All() []Table {
	return []Table{Page(), PostHistory(), DailyPageMetricsTotal(), LifetimePostMetricsTotal()}
}

// Names returns the table names in load order.
func Names() []string {
	all := All()
	out := make([]string, len(all))
	for i, t := range all {
		out[i] = t.Name
	}
	return out
}

func ByName(name string) (Table, bool) {
	for _, t := range All() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
