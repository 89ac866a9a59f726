package graphtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Server is a running fake Graph API.
type Server struct {
	*httptest.Server
	Fixture *Fixture

	requests atomic.Int64
	failNext atomic.Int64
}

// NewServer starts a fake Graph API serving f.
func NewServer(f *Fixture) *Server {
	s := &Server{Fixture: f}
	h := NewHandler(f)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if s.failNext.Load() > 0 {
			s.failNext.Add(-1)
			writeError(w, http.StatusInternalServerError, "An unexpected error has occurred. Please retry your request later.", "OAuthException", 2)
			return
		}
		h.ServeHTTP(w, r)
	}))
	return s
}

// Requests returns how many requests reached the server.
func (s *Server) Requests() int64 { return s.requests.Load() }

// FailNext makes the next n requests fail with HTTP 500.
func (s *Server) FailNext(n int) { s.failNext.Store(int64(n)) }

// NewHandler returns the fake Graph API handler for f. Paths may carry a
// version prefix such as /v22.0.
func NewHandler(f *Fixture) http.Handler {
	return &handler{f: f}
}

type handler struct {
	f *Fixture
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusBadRequest, "Unsupported method", "GraphMethodException", 100)
		return
	}
	if !h.authorized(r) {
		writeError(w, http.StatusBadRequest, "Invalid OAuth access token - Cannot parse access token", "OAuthException", 190)
		return
	}

	parts := splitPath(r.URL.Path)
	q := r.URL.Query()
	switch {
	case len(parts) == 1 && parts[0] == h.f.PageID:
		writeJSON(w, project(h.f.Page, q.Get("fields")))
	case len(parts) == 2 && parts[0] == h.f.PageID && parts[1] == "posts":
		h.posts(w, r, q)
	case len(parts) == 2 && parts[0] == h.f.PageID && parts[1] == "insights":
		h.pageInsights(w, q)
	case len(parts) == 2 && parts[1] == "insights":
		h.postInsights(w, parts[0], q)
	default:
		if p, ok := h.f.Post(parts[0]); ok && len(parts) == 1 {
			writeJSON(w, project(p, q.Get("fields")))
			return
		}
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unsupported get request. Object with ID '%s' does not exist", strings.Join(parts, "/")), "GraphMethodException", 100)
	}
}

func (h *handler) authorized(r *http.Request) bool {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return tok == h.f.Token
	}
	return r.URL.Query().Get("access_token") == h.f.Token
}

func splitPath(p string) []string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) > 0 && strings.HasPrefix(parts[0], "v") && strings.Contains(parts[0], ".") {
		parts = parts[1:]
	}
	return parts
}

func (h *handler) posts(w http.ResponseWriter, r *http.Request, q url.Values) {
	since, until, err := parseRange(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "OAuthException", 100)
		return
	}

	var matched []map[string]any
	for _, p := range h.f.Posts {
		created, err := time.Parse(graphTime, fmt.Sprint(p["created_time"]))
		if err != nil {
			continue
		}
		if (since.IsZero() || !created.Before(since)) && (until.IsZero() || !created.After(until)) {
			matched = append(matched, p)
		}
	}
	// newest first, as the Graph API returns them
	sort.SliceStable(matched, func(i, j int) bool {
		return fmt.Sprint(matched[i]["created_time"]) > fmt.Sprint(matched[j]["created_time"])
	})

	limit := h.f.PageSize
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && (limit <= 0 || v < limit) {
		limit = v
	}
	if limit <= 0 {
		limit = 25
	}
	offset := 0
	if after := q.Get("after"); after != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(after, "cursor-"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid cursor", "OAuthException", 100)
			return
		}
		offset = n
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	fields := q.Get("fields")
	data := make([]map[string]any, 0, end-offset)
	for _, p := range matched[offset:end] {
		data = append(data, project(p, fields))
	}

	resp := map[string]any{"data": data}
	if len(data) > 0 {
		paging := map[string]any{
			"cursors": map[string]any{
				"before": fmt.Sprintf("cursor-%d", offset),
				"after":  fmt.Sprintf("cursor-%d", end),
			},
		}
		if end < len(matched) {
			next := *r.URL
			nq := next.Query()
			nq.Set("after", fmt.Sprintf("cursor-%d", end))
			next.RawQuery = nq.Encode()
			next.Scheme = "http"
			next.Host = r.Host
			paging["next"] = next.String()
		}
		resp["paging"] = paging
	}
	writeJSON(w, resp)
}

func (h *handler) pageInsights(w http.ResponseWriter, q url.Values) {
	since, until, err := parseRange(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "OAuthException", 100)
		return
	}
	if days := h.f.MaxWindowDays; days > 0 && !since.IsZero() && !until.IsZero() && until.Sub(since) > time.Duration(days)*24*time.Hour {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("(#100) The since and until parameters must be no more than %d days apart", days), "OAuthException", 100)
		return
	}
	period := q.Get("period")
	if period == "" {
		period = "day"
	}

	data := []map[string]any{}
	for _, name := range splitList(q.Get("metric")) {
		series, ok := h.f.DailyMetrics[name]
		if !ok {
			continue
		}
		values := []Value{}
		for _, v := range series {
			end, err := time.Parse(graphTime, v.EndTime)
			if err != nil {
				continue
			}
			if (since.IsZero() || !end.Before(since)) && (until.IsZero() || !end.After(until)) {
				values = append(values, v)
			}
		}
		data = append(data, map[string]any{
			"name":   name,
			"period": period,
			"values": values,
			"id":     fmt.Sprintf("%s/insights/%s/%s", h.f.PageID, name, period),
		})
	}
	writeJSON(w, map[string]any{"data": data})
}

func (h *handler) postInsights(w http.ResponseWriter, postID string, q url.Values) {
	if _, ok := h.f.Post(postID); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Object with ID '%s' does not exist", postID), "GraphMethodException", 100)
		return
	}
	if h.f.FailPostInsights[postID] {
		writeError(w, http.StatusBadRequest, "(#100) The value must be a valid insights metric", "OAuthException", 100)
		return
	}
	metrics := h.f.PostInsights[postID]
	data := []map[string]any{}
	for _, name := range splitList(q.Get("metric")) {
		v, ok := metrics[name]
		if !ok {
			continue
		}
		data = append(data, map[string]any{
			"name":   name,
			"period": "lifetime",
			"values": []Value{{Value: v}},
			"id":     fmt.Sprintf("%s/insights/%s/lifetime", postID, name),
		})
	}
	writeJSON(w, map[string]any{"data": data})
}

// parseRange reads since/until as unix seconds or YYYY-MM-DD dates.
func parseRange(q url.Values) (time.Time, time.Time, error) {
	since, err := parseBound(q.Get("since"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("(#100) invalid since: %v", err)
	}
	until, err := parseBound(q.Get("until"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("(#100) invalid until: %v", err)
	}
	return since, until, nil
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func project(obj map[string]any, fields string) map[string]any {
	names := splitList(fields)
	if len(names) == 0 {
		return obj
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := obj[n]; ok {
			out[n] = v
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, typ string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message":    msg,
			"type":       typ,
			"code":       code,
			"fbtrace_id": "graphtest",
		},
	})
}
