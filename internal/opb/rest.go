package opb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public OpenPlantBook API root.
	DefaultBaseURL = "https://open.plantbook.io/api/v1"

	requestTimeout = 10 * time.Second
	detailCacheTTL = time.Hour
)

// RESTClient talks to the OpenPlantBook HTTP API. It exchanges the client
// credentials for a bearer token on first use and caches detail lookups,
// which are immutable reference data on the scale of a wizard session.
type RESTClient struct {
	clientID string
	secret   string
	baseURL  string
	http     *http.Client
	details  *cache.Cache
	logger   *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewRESTClient creates a client for the given credentials. An empty baseURL
// selects the public API.
func NewRESTClient(clientID, secret, baseURL string, logger *zap.Logger) *RESTClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &RESTClient{
		clientID: clientID,
		secret:   secret,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: requestTimeout},
		details:  cache.New(detailCacheTTL, 2*detailCacheTTL),
		logger:   logger.Named("opb.rest"),
	}
}

// DefaultFactory returns a Factory producing a RESTClient for the given
// credentials. It is the production counterpart of the test fakes.
func DefaultFactory(clientID, secret, baseURL string, logger *zap.Logger) Factory {
	return func() (API, error) {
		if clientID == "" || secret == "" {
			return nil, fmt.Errorf("wrong client id or secret")
		}
		return NewRESTClient(clientID, secret, baseURL, logger), nil
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// bearerToken returns a valid access token, requesting a new one when the
// cached token is missing or expired.
func (c *RESTClient) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.secret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/token/", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Token request rejected",
			zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("token request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("no token available in response")
	}

	c.token = tok.AccessToken
	// Refresh one minute early to avoid using a token at its expiry edge.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	c.logger.Debug("Obtained API token", zap.Int("expires_in", tok.ExpiresIn))
	return c.token, nil
}

// Verify performs the token exchange once, reporting credential problems as
// AuthError. The setup wizard uses it as its connection test.
func (c *RESTClient) Verify(ctx context.Context) error {
	_, err := c.bearerToken(ctx)
	return classify(err)
}

func (c *RESTClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Search queries plants by alias.
func (c *RESTClient) Search(ctx context.Context, query string) ([]*Plant, error) {
	body, err := c.get(ctx, "/plant/search", url.Values{"alias": {query}})
	if err != nil {
		return nil, err
	}
	return parseSearchResults(body)
}

// Details returns the full record for one plant id.
func (c *RESTClient) Details(ctx context.Context, pid string) (*Plant, error) {
	if cached, found := c.details.Get(pid); found {
		if p, ok := cached.(*Plant); ok {
			c.logger.Debug("Detail cache hit", zap.String("pid", pid))
			return p, nil
		}
	}

	body, err := c.get(ctx, "/plant/detail/"+url.PathEscape(pid)+"/", nil)
	if err != nil {
		return nil, err
	}

	var p Plant
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode plant detail: %w", err)
	}
	c.details.Set(pid, &p, cache.DefaultExpiration)
	return &p, nil
}

// parseSearchResults handles the loosely specified response shape: a bare
// array, or an object nesting the list under "results", "data" or "plants",
// or a single plant object.
func parseSearchResults(body []byte) ([]*Plant, error) {
	var plants []*Plant
	if err := json.Unmarshal(body, &plants); err == nil {
		return plants, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	for _, key := range []string{"results", "data", "plants"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &plants); err != nil {
			return nil, fmt.Errorf("failed to decode search results under %q: %w", key, err)
		}
		return plants, nil
	}

	// An object without a recognized list key is a single result.
	var single Plant
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return []*Plant{&single}, nil
}
