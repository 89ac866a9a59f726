// Package graphtest serves a small in-memory imitation of the Graph API
// endpoints the pipeline reads. It backs the package tests and
// cmd/demo-server.
package graphtest

import (
	"fmt"
	"time"
)

// Value is one entry of an insights "values" array.
type Value struct {
	EndTime string `json:"end_time,omitempty"`
	Value   any    `json:"value"`
}

// Fixture is the data a fake Graph API serves.
type Fixture struct {
	PageID string
	Token  string

	Page  map[string]any
	Posts []map[string]any

	// DailyMetrics maps a page insight name to its daily values.
	DailyMetrics map[string][]Value
	// PostInsights maps a post id to its lifetime metric values.
	PostInsights map[string]map[string]any
	// FailPostInsights lists post ids whose insights request fails with a
	// Graph error.
	FailPostInsights map[string]bool

	// PageSize caps the posts returned per page when no limit is sent.
	PageSize int
	// MaxWindowDays mirrors the Insights API limit on since/until spans.
	MaxWindowDays int
}

const graphTime = "2006-01-02T15:04:05-0700"

// DefaultFixture returns a page with five posts in March 2025 and daily
// insights from January through March 2025.
func DefaultFixture() *Fixture {
	const pageID = "1122334455"
	f := &Fixture{
		PageID: pageID,
		Token:  "test-token",
		Page: map[string]any{
			"id":                  pageID,
			"name":                "Cafe Example",
			"category":            "Coffee shop",
			"fan_count":           4821,
			"about":               "Specialty coffee since 2012",
			"website":             "https://cafe.example.com",
			"username":            "cafeexample",
			"is_published":        true,
			"overall_star_rating": 4.7,
			"rating_count":        312,
			"talking_about_count": 57,
			"were_here_count":     1890,
			"checkins":            1890,
			"can_post":            true,
		},
		DailyMetrics:     map[string][]Value{},
		PostInsights:     map[string]map[string]any{},
		FailPostInsights: map[string]bool{},
		PageSize:         2,
		MaxWindowDays:    93,
	}

	base := time.Date(2025, time.March, 5, 9, 30, 0, 0, time.UTC)
	messages := []string{
		"New seasonal blend is here",
		"Open late this Friday",
		"Meet our new barista",
		"Latte art workshop recap",
		"Thanks for 4.8k followers",
	}
	for i, msg := range messages {
		id := fmt.Sprintf("%s_%d", pageID, 1001+i)
		created := base.AddDate(0, 0, i*5)
		f.Posts = append(f.Posts, map[string]any{
			"id":            id,
			"message":       msg,
			"created_time":  created.Format(graphTime),
			"updated_time":  created.Add(time.Hour).Format(graphTime),
			"status_type":   "added_photos",
			"is_published":  true,
			"is_hidden":     false,
			"permalink_url": "https://www.facebook.com/" + id,
		})
		f.PostInsights[id] = map[string]any{
			"post_impressions":          1000 + i*100,
			"post_impressions_unique":   800 + i*80,
			"post_clicks":               40 + i,
			"post_reactions_like_total": 25 + i,
			"post_reactions_love_total": 5,
			"post_reactions_wow_total":  1,
			"post_reactions_haha_total": 0,
		}
	}

	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	for d, i := start, 0; d.Before(end); d, i = d.AddDate(0, 0, 1), i+1 {
		// Graph reports a day's value with end_time at the close of the day
		// in Pacific time.
		endTime := d.Add(24*time.Hour + 8*time.Hour).Format(graphTime)
		add := func(name string, v any) {
			f.DailyMetrics[name] = append(f.DailyMetrics[name], Value{EndTime: endTime, Value: v})
		}
		add("page_impressions", 500+i)
		add("page_impressions_unique", 300+i)
		add("page_fan_adds", i%4)
		add("page_fan_removes", i%2)
		add("page_post_engagements", 20+i%7)
		add("page_actions_post_reactions_total", map[string]any{"like": 10 + i%3, "love": 2})
	}
	return f
}

// Post returns the post with id, if present.
func (f *Fixture) Post(id string) (map[string]any, bool) {
	for _, p := range f.Posts {
		if p["id"] == id {
			return p, true
		}
	}
	return nil, false
}
