// Package testutil provides testing utilities for mjp-export.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/queue"
)

// Feed paths served by MockMJP.
const (
	OutgoingPath = "/api/v1/public/messages/ebo/outgoing"
	IncomingPath = "/api/v1/public/messages/ebo/incoming"
)

// ListingRequest records the query parameters of one listing call.
type ListingRequest struct {
	Path         string
	Page         string
	ItemsPerPage int
	Ascending    string
	SortBy       string
}

// MockFeed configures the behavior of one feed.
type MockFeed struct {
	Records []queue.Record

	// Total overrides the reported total; 0 reports len(Records).
	Total int

	// StatusCode, when non-zero and not 200, fails every request.
	StatusCode int

	// FailFull fails only the full-listing request with StatusCode 500.
	FailFull bool

	// OmitMessages drops eboMessages from the full response.
	OmitMessages bool

	Delay time.Duration
}

// MockMJP is a configurable mock of the MJP listing API.
type MockMJP struct {
	server *httptest.Server
	mu     sync.RWMutex
	feeds  map[string]MockFeed

	// Tracking
	Requests []ListingRequest
	Cookies  []string
}

// NewMockMJP creates a new mock listing server.
func NewMockMJP() *MockMJP {
	mock := &MockMJP{
		feeds: make(map[string]MockFeed),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockMJP) URL() string {
	return m.server.URL
}

// OutgoingURL returns the outgoing feed URL.
func (m *MockMJP) OutgoingURL() string {
	return m.server.URL + OutgoingPath
}

// IncomingURL returns the incoming feed URL.
func (m *MockMJP) IncomingURL() string {
	return m.server.URL + IncomingPath
}

// Close shuts down the mock server.
func (m *MockMJP) Close() {
	m.server.Close()
}

// SetFeed configures the feed served at path.
func (m *MockMJP) SetFeed(path string, feed MockFeed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeds[path] = feed
}

// GetRequests returns a copy of the recorded listing requests.
func (m *MockMJP) GetRequests() []ListingRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ListingRequest, len(m.Requests))
	copy(out, m.Requests)
	return out
}

// RequestsFor returns the recorded requests for path.
func (m *MockMJP) RequestsFor(path string) []ListingRequest {
	var out []ListingRequest
	for _, r := range m.GetRequests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (m *MockMJP) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, _ := strconv.Atoi(q.Get("itemsPerPage"))
	req := ListingRequest{
		Path:         r.URL.Path,
		Page:         q.Get("page"),
		ItemsPerPage: size,
		Ascending:    q.Get("ascending"),
		SortBy:       q.Get("sortBy"),
	}

	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	if c, err := r.Cookie("SESSION"); err == nil {
		m.Cookies = append(m.Cookies, c.Value)
	}
	feed, ok := m.feeds[r.URL.Path]
	probe := m.countLocked(r.URL.Path) == 1
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if feed.Delay > 0 {
		time.Sleep(feed.Delay)
	}
	if feed.StatusCode != 0 && feed.StatusCode != http.StatusOK {
		w.WriteHeader(feed.StatusCode)
		fmt.Fprintf(w, `{"error": "status %d"}`, feed.StatusCode)
		return
	}
	if feed.FailFull && !probe {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	total := feed.Total
	if total == 0 {
		total = len(feed.Records)
	}

	records := feed.Records
	if size < len(records) {
		records = records[:size]
	}

	body := map[string]any{"total": total}
	if !(feed.OmitMessages && !probe) {
		body["eboMessages"] = records
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

// countLocked counts requests for path; callers must hold m.mu.
func (m *MockMJP) countLocked(path string) int {
	n := 0
	for _, r := range m.Requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Records builds n records with ascending creation times and ids prefix-1..n.
func Records(prefix string, n int) []queue.Record {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	out := make([]queue.Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, queue.Record{
			MessageUUID:  fmt.Sprintf("%s-%d", prefix, i),
			CreationTime: base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
		})
	}
	return out
}
