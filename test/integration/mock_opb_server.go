// Package integration exercises the service end to end: a mock OpenPlantBook
// API behind the real REST client, the real file store and the wizard flows
// driven over the HTTP API.
package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const (
	testClientID = "integration-client"
	testSecret   = "integration-secret"
	testToken    = "token-abc123"
)

// MockOPBServer imitates the OpenPlantBook API: token exchange, search,
// detail and image download.
type MockOPBServer struct {
	server *httptest.Server

	mu           sync.Mutex
	plants       map[string]map[string]any
	acceptID     string
	acceptSecret string
	token        string
	tokenIssued  int
	searchCalls  int
	detailCalls  int
	imageCalls   int
	rejectTokens bool
}

// NewMockOPBServer starts the mock with the given plant fixtures, keyed by
// pid. Each fixture is served both as a search result and as its detail
// document.
func NewMockOPBServer(plants ...map[string]any) *MockOPBServer {
	m := &MockOPBServer{
		plants:       make(map[string]map[string]any),
		acceptID:     testClientID,
		acceptSecret: testSecret,
		token:        testToken,
	}
	for _, p := range plants {
		if pid, ok := p["pid"].(string); ok {
			m.plants[pid] = p
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/", m.handleToken)
	mux.HandleFunc("GET /plant/search", m.handleSearch)
	mux.HandleFunc("GET /plant/detail/{pid}/", m.handleDetail)
	mux.HandleFunc("GET /img/{name}", m.handleImage)

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock's base URL.
func (m *MockOPBServer) URL() string {
	return m.server.URL
}

// AddPlant registers a fixture after startup, for image URLs that need the
// server's address.
func (m *MockOPBServer) AddPlant(p map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pid, ok := p["pid"].(string); ok {
		m.plants[pid] = p
	}
}

// Close shuts the mock down.
func (m *MockOPBServer) Close() {
	m.server.Close()
}

// RotateCredentials changes which client id and secret the token endpoint
// accepts and invalidates every token issued before the rotation.
func (m *MockOPBServer) RotateCredentials(clientID, secret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acceptID = clientID
	m.acceptSecret = secret
	m.token = "token-" + clientID
}

// RejectTokens makes every subsequent token exchange fail like bad
// credentials would.
func (m *MockOPBServer) RejectTokens(reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectTokens = reject
}

// Calls returns how often each endpoint class was hit.
func (m *MockOPBServer) Calls() (token, search, detail, image int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenIssued, m.searchCalls, m.detailCalls, m.imageCalls
}

func (m *MockOPBServer) handleToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	reject := m.rejectTokens
	acceptID, acceptSecret, token := m.acceptID, m.acceptSecret, m.token
	m.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if reject || r.FormValue("client_id") != acceptID || r.FormValue("client_secret") != acceptSecret {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
		return
	}

	m.mu.Lock()
	m.tokenIssued++
	m.mu.Unlock()
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"expires_in":   3600,
	})
}

func (m *MockOPBServer) authorized(r *http.Request) bool {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	return r.Header.Get("Authorization") == "Bearer "+token
}

func (m *MockOPBServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	m.searchCalls++
	query := strings.ToLower(r.URL.Query().Get("alias"))
	results := make([]map[string]any, 0)
	for pid, p := range m.plants {
		alias, _ := p["alias"].(string)
		if strings.Contains(strings.ToLower(pid), query) || strings.Contains(strings.ToLower(alias), query) {
			// Search results carry identity only; ranges need the
			// detail lookup, like the real API.
			results = append(results, map[string]any{
				"pid":         p["pid"],
				"display_pid": p["display_pid"],
				"alias":       p["alias"],
				"category":    p["category"],
			})
		}
	}
	m.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{"results": results})
}

func (m *MockOPBServer) handleDetail(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	m.detailCalls++
	p, ok := m.plants[r.PathValue("pid")]
	m.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(p)
}

func (m *MockOPBServer) handleImage(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	m.imageCalls++
	m.mu.Unlock()
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write([]byte("fake-jpeg-bytes"))
}
