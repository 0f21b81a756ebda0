// Package testutil provides testing utilities for the SWAPI loader.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Person is the upstream people resource, as served by the mock.
type Person struct {
	Name      string   `json:"name"`
	BirthYear string   `json:"birth_year"`
	EyeColor  string   `json:"eye_color"`
	Gender    string   `json:"gender"`
	HairColor string   `json:"hair_color"`
	Height    string   `json:"height"`
	Mass      string   `json:"mass"`
	SkinColor string   `json:"skin_color"`
	Homeworld *string  `json:"homeworld"`
	Films     []string `json:"films"`
	Species   []string `json:"species"`
	Starships []string `json:"starships"`
	Vehicles  []string `json:"vehicles"`
	URL       string   `json:"url"`
}

// MockSWAPI is a configurable mock of the SWAPI HTTP API.
// Unconfigured paths answer 404 like the real service does for unknown ids.
type MockSWAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount int
	pathCounts   map[string]int
	inFlight     int
	maxInFlight  int
}

// NewMockSWAPI creates a new mock server.
func NewMockSWAPI() *MockSWAPI {
	mock := &MockSWAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.inFlight++
		if mock.inFlight > mock.maxInFlight {
			mock.maxInFlight = mock.inFlight
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Not found"}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSWAPI) URL() string {
	return m.server.URL
}

// BaseURL returns the API root, equivalent to https://swapi.py4e.com/api.
func (m *MockSWAPI) BaseURL() string {
	return m.server.URL + "/api"
}

// ResourceURL returns the canonical URL of a resource, e.g. ResourceURL("films", 1).
func (m *MockSWAPI) ResourceURL(kind string, id int) string {
	return fmt.Sprintf("%s/api/%s/%d/", m.server.URL, kind, id)
}

// Close shuts down the mock server.
func (m *MockSWAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSWAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.maxInFlight = 0
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSWAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockSWAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON serves v as a 200 JSON document at path.
func (m *MockSWAPI) SetJSON(path string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal fixture for %s: %v", path, err))
	}
	m.SetResponse(path, NewJSONResponse(string(body)))
}

// SetStatus makes path answer with a bare status code.
func (m *MockSWAPI) SetStatus(path string, status int) {
	m.SetResponse(path, MockResponse{StatusCode: status})
}

// AddFilm serves a film with the given title and returns its URL.
func (m *MockSWAPI) AddFilm(id int, title string) string {
	m.SetJSON(fmt.Sprintf("/api/films/%d/", id), map[string]any{"title": title})
	return m.ResourceURL("films", id)
}

// AddNamed serves a planet, species, starship or vehicle and returns its URL.
func (m *MockSWAPI) AddNamed(kind string, id int, name string) string {
	m.SetJSON(fmt.Sprintf("/api/%s/%d/", kind, id), map[string]any{"name": name})
	return m.ResourceURL(kind, id)
}

// AddPerson serves p at /api/people/{id}/, filling in its canonical url.
func (m *MockSWAPI) AddPerson(id int, p Person) string {
	p.URL = m.ResourceURL("people", id)
	if p.Films == nil {
		p.Films = []string{}
	}
	if p.Species == nil {
		p.Species = []string{}
	}
	if p.Starships == nil {
		p.Starships = []string{}
	}
	if p.Vehicles == nil {
		p.Vehicles = []string{}
	}
	m.SetJSON(fmt.Sprintf("/api/people/%d/", id), p)
	return p.URL
}

// RequestCount returns the number of requests made to the server.
func (m *MockSWAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made for one path.
func (m *MockSWAPI) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// MaxInFlight returns the highest number of concurrently served requests.
func (m *MockSWAPI) MaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxInFlight
}

// NewJSONResponse creates a standard 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>upstream proxy error</html>`,
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}

// StrPtr returns a pointer to s, for Person.Homeworld.
func StrPtr(s string) *string {
	return &s
}
