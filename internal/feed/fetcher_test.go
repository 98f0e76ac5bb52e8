package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Poll-Interval", "30")
		w.Header().Set("Link", `<http://`+r.Host+`/events?page=2>; rel="next", <http://`+r.Host+`/events?page=10>; rel="last"`)
		w.Write([]byte(`[{"id":"300","type":"PushEvent"},{"id":"299","type":"WatchEvent"}]`))
	}))
	defer srv.Close()

	f := NewFetcher("tok")
	res, err := f.Fetch(context.Background(), srv.URL+"/events")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NotModified {
		t.Fatal("expected a page, got NotModified")
	}
	if len(res.Page.Events) != 2 || res.Page.Events[0].ID != "300" {
		t.Fatalf("unexpected events: %+v", res.Page.Events)
	}
	if res.Page.PollInterval != 30*time.Second {
		t.Fatalf("PollInterval = %v, want 30s", res.Page.PollInterval)
	}
	if res.Page.NextURL == "" {
		t.Fatal("expected next page URL from Link header")
	}
}

func TestFetchBearerAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := NewFetcher("secret-token-123")
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret-token-123" {
		t.Fatalf("expected 'Bearer secret-token-123', got %q", gotAuth)
	}
}

func TestFetchNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := NewFetcher("tok")
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NotModified {
		t.Fatalf("expected NotModified, got %+v", res)
	}
}

func TestFetchConditionalETag(t *testing.T) {
	var gotIfNoneMatch atomic.Value
	gotIfNoneMatch.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfNoneMatch.Store(r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"abc123"`)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := NewFetcher("tok")
	ctx := context.Background()
	if _, err := f.Fetch(ctx, srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if got := gotIfNoneMatch.Load().(string); got != "" {
		t.Fatalf("first request carried If-None-Match %q", got)
	}
	if _, err := f.Fetch(ctx, srv.URL); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if got := gotIfNoneMatch.Load().(string); got != `"abc123"` {
		t.Fatalf("If-None-Match = %q, want %q", got, `"abc123"`)
	}
}

func TestFetchBackoffDoubles(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	f := NewFetcher("tok", withSleep(func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}))

	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestFetchBackoffCap(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 5 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	f := NewFetcher("tok",
		WithBackoff(time.Second, 3*time.Second),
		withSleep(func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}))

	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range sleeps[2:] {
		if d != 3*time.Second {
			t.Fatalf("capped sleep = %v, want 3s (all: %v)", d, sleeps)
		}
	}
}

func TestFetchBackoffResetsPerCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fail the first attempt of every Fetch call.
		if calls.Add(1)%2 == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	f := NewFetcher("tok", withSleep(func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(ctx, srv.URL); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != time.Second {
		t.Fatalf("expected base backoff on each fresh call, got %v", sleeps)
	}
}

func TestFetchContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := NewFetcher("tok", withSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	if _, err := f.Fetch(ctx, srv.URL); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetchFatalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer srv.Close()

	f := NewFetcher("tok")
	_, err := f.Fetch(context.Background(), srv.URL)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 404 {
		t.Fatalf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func TestNextLink(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{`<https://api.example.com/events?page=2>; rel="next", <https://api.example.com/events?page=10>; rel="last"`, "https://api.example.com/events?page=2"},
		{`<https://api.example.com/events?page=10>; rel="last"`, ""},
		{`<https://api.example.com/events?page=2>; rel=next`, "https://api.example.com/events?page=2"},
		{"", ""},
	}
	for _, c := range cases {
		if got := nextLink(c.header); got != c.want {
			t.Errorf("nextLink(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}

func TestPollIntervalDefault(t *testing.T) {
	if got := pollInterval(""); got != DefaultPollInterval {
		t.Fatalf("pollInterval(\"\") = %v, want %v", got, DefaultPollInterval)
	}
	if got := pollInterval("45"); got != 45*time.Second {
		t.Fatalf("pollInterval(\"45\") = %v, want 45s", got)
	}
}
