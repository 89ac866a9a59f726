package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server, attempts int) *Client {
	return New(Options{
		BaseURL:     srv.URL,
		Version:     "v22.0",
		AccessToken: "secret",
		MaxAttempts: attempts,
		Backoff:     time.Millisecond,
	})
}

func TestGetObjectSendsAuthAndVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v22.0/123" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("unexpected accept header %q", got)
		}
		if got := r.URL.Query().Get("fields"); got != "id,name" {
			t.Errorf("unexpected fields %q", got)
		}
		fmt.Fprint(w, `{"id":"123","name":"Demo","fan_count":12345678901234}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, 1)
	obj, err := c.GetObject(t.Context(), "123", url.Values{"fields": {"id,name"}})
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if obj["name"] != "Demo" {
		t.Errorf("unexpected name %v", obj["name"])
	}
	n, ok := obj["fan_count"].(json.Number)
	if !ok || n.String() != "12345678901234" {
		t.Errorf("expected json.Number fan_count, got %#v", obj["fan_count"])
	}
}

func TestPaginateFollowsCursors(t *testing.T) {
	pages := map[string]string{
		"":   `{"data":[{"id":"1"},{"id":"2"}],"paging":{"cursors":{"after":"c1"},"next":"x"}}`,
		"c1": `{"data":[{"id":"3"}],"paging":{"cursors":{"after":"c2"},"next":"x"}}`,
		"c2": `{"data":[{"id":"4"}],"paging":{"cursors":{"after":"c3"}}}`,
	}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("limit param not forwarded")
		}
		body, ok := pages[r.URL.Query().Get("after")]
		if !ok {
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("after"))
			body = `{"data":[]}`
		}
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	c := newTestClient(srv, 1)
	var ids []string
	err := c.Paginate(t.Context(), "p/posts", url.Values{"limit": {"2"}}, func(recs []map[string]any) error {
		for _, r := range recs {
			ids = append(ids, r["id"].(string))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	if len(ids) != 4 {
		t.Errorf("expected 4 records, got %v", ids)
	}
	if calls != 3 {
		t.Errorf("expected 3 requests, got %d", calls)
	}
}

func TestPaginateStopsOnRepeatedCursor(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"data":[{"id":"1"}],"paging":{"cursors":{"after":"same"},"next":"x"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, 1)
	err := c.Paginate(t.Context(), "p/posts", nil, func([]map[string]any) error { return nil })
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 requests before detecting the loop, got %d", calls)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	var statuses []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"id":"ok"}`)
	}))
	defer srv.Close()

	c := New(Options{
		BaseURL:     srv.URL,
		Version:     "v22.0",
		AccessToken: "secret",
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		OnResponse:  func(status int) { statuses = append(statuses, status) },
	})
	obj, err := c.GetObject(t.Context(), "me", nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if obj["id"] != "ok" {
		t.Errorf("unexpected body %v", obj)
	}
	if len(statuses) != 3 || statuses[0] != 503 || statuses[2] != 200 {
		t.Errorf("unexpected statuses %v", statuses)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"OAuthException","code":4}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, 2)
	_, err := c.GetObject(t.Context(), "me", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 429 || apiErr.Code != 4 {
		t.Errorf("unexpected error fields %+v", apiErr)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190,"error_subcode":463,"fbtrace_id":"AbC"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, 5)
	_, err := c.GetObject(t.Context(), "me", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Temporary() {
		t.Errorf("code 190 must not be temporary")
	}
	if apiErr.Subcode != 463 || apiErr.FBTraceID != "AbC" {
		t.Errorf("unexpected error fields %+v", apiErr)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestNonJSONErrorBodyIsTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		for i := 0; i < 100; i++ {
			fmt.Fprint(w, "not found ")
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, 1)
	_, err := c.GetObject(t.Context(), "missing", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if len(apiErr.Message) > 512 {
		t.Errorf("expected message truncated to 512 bytes, got %d", len(apiErr.Message))
	}
}
