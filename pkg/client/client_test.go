package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/swapi-loader/internal/testutil"
	"github.com/Sternrassler/swapi-loader/pkg/cache"
)

const testUserAgent = "swapi-loader-test/1.0"

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// memoryCache is an in-process ResponseCache for tests.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*cache.CacheEntry
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*cache.CacheEntry)}
}

func (m *memoryCache) Get(_ context.Context, key cache.CacheKey) (*cache.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key.String()]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return entry, nil
}

func (m *memoryCache) Set(_ context.Context, key cache.CacheKey, entry *cache.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.String()] = entry
	m.sets++
	return nil
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig(testUserAgent),
			expectError: false,
		},
		{
			name:        "empty user agent",
			config:      Config{RequestTimeout: time.Second},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "negative timeout",
			config:      Config{UserAgent: testUserAgent, RequestTimeout: -time.Second},
			expectError: true,
			errorMsg:    "request_timeout must be >= 0 (got -1s)",
		},
		{
			name:        "zero timeout disables the per-request deadline",
			config:      Config{UserAgent: testUserAgent},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testUserAgent)

	if cfg.UserAgent != testUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, testUserAgent)
	}
	if cfg.RequestTimeout <= 0 {
		t.Errorf("RequestTimeout = %v, should be > 0", cfg.RequestTimeout)
	}
	if cfg.Cache != nil {
		t.Error("Cache should be disabled by default")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   ErrorClass
	}{
		{name: "network error", err: io.EOF, expected: ErrorClassNetwork},
		{name: "timeout", err: context.DeadlineExceeded, expected: ErrorClassNetwork},
		{name: "client error 404", statusCode: 404, expected: ErrorClassClient},
		{name: "client error 429", statusCode: 429, expected: ErrorClassClient},
		{name: "server error 500", statusCode: 500, expected: ErrorClassServer},
		{name: "server error 503", statusCode: 503, expected: ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.err == nil {
				resp = &http.Response{StatusCode: tt.statusCode}
			}
			if got := classifyError(resp, tt.err); got != tt.expected {
				t.Errorf("classifyError() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestResourceKind(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://swapi.py4e.com/api/people/1/", "people"},
		{"https://swapi.py4e.com/api/films/2/", "films"},
		{"https://swapi.py4e.com/api/planets/10", "planets"},
		{"https://swapi.py4e.com/", "unknown"},
		{"://bad", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := resourceKind(tt.url); got != tt.want {
				t.Errorf("resourceKind(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestFetch_Success(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()

	filmURL := mock.AddFilm(1, "A New Hope")
	c := newTestClient(t, DefaultConfig(testUserAgent))

	res := c.Fetch(context.Background(), filmURL)
	if !res.OK() {
		t.Fatalf("Fetch() failed: %v", res.Err)
	}
	if res.URL != filmURL {
		t.Errorf("URL = %q, want %q", res.URL, filmURL)
	}

	var film struct {
		Title string `json:"title"`
	}
	if err := res.Decode(&film); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if film.Title != "A New Hope" {
		t.Errorf("Title = %q, want %q", film.Title, "A New Hope")
	}
}

func TestFetch_FailuresAreAbsent(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()

	mock.SetStatus("/api/films/404/", http.StatusNotFound)
	mock.SetResponse("/api/films/500/", testutil.NewServerErrorResponse())
	mock.SetResponse("/api/films/html/", testutil.NewMalformedResponse())
	mock.SetResponse("/api/films/slow/", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"title": "late"}`,
		Delay:      2 * time.Second,
	})

	cfg := DefaultConfig(testUserAgent)
	cfg.RequestTimeout = 100 * time.Millisecond
	c := newTestClient(t, cfg)

	tests := []struct {
		name       string
		url        string
		wantClass  ErrorClass
		wantStatus int
		wantErr    error
	}{
		{name: "not found", url: mock.URL() + "/api/films/404/", wantClass: ErrorClassClient, wantStatus: 404},
		{name: "server error", url: mock.URL() + "/api/films/500/", wantClass: ErrorClassServer, wantStatus: 500},
		{name: "malformed body", url: mock.URL() + "/api/films/html/", wantClass: ErrorClassDecode, wantStatus: 200, wantErr: ErrNotJSON},
		{name: "timeout", url: mock.URL() + "/api/films/slow/", wantClass: ErrorClassNetwork},
		{name: "empty url", url: "", wantClass: ErrorClassClient, wantErr: ErrEmptyURL},
		{name: "unparseable url", url: "http://[::1", wantClass: ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Fetch(context.Background(), tt.url)
			if res.OK() {
				t.Fatal("Fetch() should resolve to absent")
			}
			if res.Body != nil {
				t.Errorf("Body = %s, want nil", res.Body)
			}

			var fe *FetchError
			if !errors.As(res.Err, &fe) {
				t.Fatalf("Err = %T, want *FetchError", res.Err)
			}
			if fe.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %s, want %s", fe.ErrorClass, tt.wantClass)
			}
			if fe.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.wantStatus)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
		})
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	url := mock.AddFilm(1, "A New Hope")
	mock.Close()

	c := newTestClient(t, DefaultConfig(testUserAgent))
	res := c.Fetch(context.Background(), url)

	var fe *FetchError
	if !errors.As(res.Err, &fe) || fe.ErrorClass != ErrorClassNetwork {
		t.Errorf("Err = %v, want network FetchError", res.Err)
	}
}

func TestFetch_SendsHeaders(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()

	var gotUA, gotAccept string
	mock.SetHandler("/api/planets/1/", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{"name": "Tatooine"}`))
	})

	c := newTestClient(t, DefaultConfig(testUserAgent))
	if res := c.Fetch(context.Background(), mock.ResourceURL("planets", 1)); !res.OK() {
		t.Fatalf("Fetch() failed: %v", res.Err)
	}

	if gotUA != testUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, testUserAgent)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want application/json", gotAccept)
	}
}

func TestFetch_Cache(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()

	url := mock.AddNamed("planets", 1, "Tatooine")
	mock.SetStatus("/api/planets/2/", http.StatusNotFound)

	mc := newMemoryCache()
	cfg := DefaultConfig(testUserAgent)
	cfg.Cache = mc
	c := newTestClient(t, cfg)
	ctx := context.Background()

	first := c.Fetch(ctx, url)
	second := c.Fetch(ctx, url)

	if !first.OK() || !second.OK() {
		t.Fatalf("Fetch() failed: %v / %v", first.Err, second.Err)
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("cached body %s differs from fetched body %s", second.Body, first.Body)
	}
	if got := mock.PathCount("/api/planets/1/"); got != 1 {
		t.Errorf("upstream hit %d times, want 1", got)
	}

	// Failures are never cached.
	c.Fetch(ctx, mock.ResourceURL("planets", 2))
	c.Fetch(ctx, mock.ResourceURL("planets", 2))
	if got := mock.PathCount("/api/planets/2/"); got != 2 {
		t.Errorf("failing path hit %d times, want 2", got)
	}
	if mc.sets != 1 {
		t.Errorf("cache sets = %d, want 1", mc.sets)
	}
}

func TestFetchAll_PositionalAlignment(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()

	urls := []string{
		mock.AddFilm(1, "A New Hope"),
		mock.ResourceURL("films", 99), // 404
		mock.AddFilm(3, "Return of the Jedi"),
		"",
		mock.AddFilm(5, "Attack of the Clones"),
	}

	c := newTestClient(t, DefaultConfig(testUserAgent))
	results := c.FetchAll(context.Background(), urls)

	if len(results) != len(urls) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(urls))
	}

	wantOK := []bool{true, false, true, false, true}
	for i, res := range results {
		if res.URL != urls[i] {
			t.Errorf("results[%d].URL = %q, want %q", i, res.URL, urls[i])
		}
		if res.OK() != wantOK[i] {
			t.Errorf("results[%d].OK() = %v, want %v", i, res.OK(), wantOK[i])
		}
	}
}

func TestFetchAll_Empty(t *testing.T) {
	c := newTestClient(t, DefaultConfig(testUserAgent))

	results := c.FetchAll(context.Background(), nil)
	if results == nil || len(results) != 0 {
		t.Errorf("FetchAll(nil) = %v, want empty non-nil slice", results)
	}
}

func TestFetchAll_Concurrent(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()

	urls := make([]string, 5)
	for i := range urls {
		path := "/api/starships/" + string(rune('1'+i)) + "/"
		mock.SetResponse(path, testutil.MockResponse{
			StatusCode: http.StatusOK,
			Body:       `{"name": "X-wing"}`,
			Delay:      200 * time.Millisecond,
		})
		urls[i] = mock.URL() + path
	}

	c := newTestClient(t, DefaultConfig(testUserAgent))

	start := time.Now()
	results := c.FetchAll(context.Background(), urls)
	elapsed := time.Since(start)

	for i, res := range results {
		if !res.OK() {
			t.Errorf("results[%d] failed: %v", i, res.Err)
		}
	}
	if elapsed > 800*time.Millisecond {
		t.Errorf("FetchAll took %v; fetches do not appear to run concurrently", elapsed)
	}
	if mock.MaxInFlight() < 2 {
		t.Errorf("MaxInFlight = %d, want concurrent requests", mock.MaxInFlight())
	}
}
