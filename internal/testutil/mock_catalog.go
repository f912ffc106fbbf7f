// Package testutil provides testing utilities for the catalog fetcher and poller.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// SubjectsPath is the path served by MockCatalog.
const SubjectsPath = "/v0/subjects"

// MockResponse overrides the next response served by the mock.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Subject is one synthetic catalog entry in wire form.
type Subject struct {
	ID      int              `json:"id"`
	Name    string           `json:"name"`
	NameCN  string           `json:"name_cn"`
	Infobox []map[string]any `json:"infobox"`
}

// MockCatalog is a configurable mock of the subjects listing.
type MockCatalog struct {
	server *httptest.Server
	mu     sync.RWMutex

	subjects  []Subject
	overrides []MockResponse

	// Tracking
	RequestCount   int
	RequestOffsets []int
	LastQuery      map[string]string
	LastHeader     http.Header
}

// NewMockCatalog starts a mock serving total generated subjects.
func NewMockCatalog(total int) *MockCatalog {
	mock := &MockCatalog{subjects: GenerateSubjects(total)}

	mux := http.NewServeMux()
	mux.HandleFunc(SubjectsPath, mock.handle)
	mock.server = httptest.NewServer(mux)

	return mock
}

// URL returns the full URL of the subjects endpoint.
func (m *MockCatalog) URL() string {
	return m.server.URL + SubjectsPath
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// SetSubjects replaces the served dataset.
func (m *MockCatalog) SetSubjects(subjects []Subject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = subjects
}

// Enqueue makes the next len(resps) requests return the given responses, in
// order, before falling back to the dataset.
func (m *MockCatalog) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = append(m.overrides, resps...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequestOffsets returns the offsets requested so far, in order.
func (m *MockCatalog) GetRequestOffsets() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.RequestOffsets...)
}

func (m *MockCatalog) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	offset, _ := strconv.Atoi(query.Get("offset"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	m.mu.Lock()
	m.RequestCount++
	m.RequestOffsets = append(m.RequestOffsets, offset)
	m.LastHeader = r.Header.Clone()
	m.LastQuery = map[string]string{}
	for key := range query {
		m.LastQuery[key] = query.Get(key)
	}

	var override *MockResponse
	if len(m.overrides) > 0 {
		next := m.overrides[0]
		m.overrides = m.overrides[1:]
		override = &next
	}
	subjects := m.subjects
	m.mu.Unlock()

	if override != nil {
		writeOverride(w, *override)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(PageBody(subjects, limit, offset))
}

func writeOverride(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// PageBody renders the slice of subjects at [offset, offset+limit) the way
// the real API does, including the total of the whole dataset.
func PageBody(subjects []Subject, limit, offset int) []byte {
	start := min(max(offset, 0), len(subjects))
	end := min(start+max(limit, 0), len(subjects))

	data, err := json.Marshal(map[string]any{
		"data":   subjects[start:end],
		"total":  len(subjects),
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		panic(fmt.Sprintf("marshal mock page: %v", err))
	}
	return data
}

// GenerateSubjects builds n subjects with ids 1..n. Even ids carry a list
// alias, ids divisible by three a scalar alias, the rest none.
func GenerateSubjects(n int) []Subject {
	subjects := make([]Subject, n)
	for i := range subjects {
		id := i + 1
		infobox := []map[string]any{
			{"key": "中文名", "value": fmt.Sprintf("条目%d", id)},
		}
		switch {
		case id%2 == 0:
			infobox = append(infobox, map[string]any{
				"key": "别名",
				"value": []map[string]any{
					{"v": fmt.Sprintf("alias-%d-a", id)},
					{"k": "romaji", "v": fmt.Sprintf("alias-%d-b", id)},
				},
			})
		case id%3 == 0:
			infobox = append(infobox, map[string]any{"key": "别名", "value": fmt.Sprintf("alias-%d", id)})
		}

		subjects[i] = Subject{
			ID:      id,
			Name:    fmt.Sprintf("subject-%d", id),
			NameCN:  fmt.Sprintf("条目%d", id),
			Infobox: infobox,
		}
	}
	return subjects
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"title": "Internal Server Error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"title": "Not Found"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewMissingTotalResponse creates a 200 response whose body lacks "total".
func NewMissingTotalResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data": [], "limit": 100, "offset": 0}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
