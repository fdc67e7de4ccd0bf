// Package opb wraps the OpenPlantBook plant database API, adding uniform
// authentication-failure detection on top of the search and detail
// operations.
package opb

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// API is the surface of the underlying OpenPlantBook client.
type API interface {
	// Search returns candidate plants matching the query.
	Search(ctx context.Context, query string) ([]*Plant, error)
	// Details returns the full record for one plant id.
	Details(ctx context.Context, pid string) (*Plant, error)
}

// Factory builds the underlying API client. A nil factory means the client
// library is unavailable and every call fails with ErrSDKUnavailable.
type Factory func() (API, error)

// Wrapper lazily constructs the underlying client on first use and
// reclassifies failures so callers can distinguish authentication problems
// from everything else.
type Wrapper struct {
	factory Factory
	logger  *zap.Logger

	mu  sync.Mutex
	api API
}

// NewWrapper creates a wrapper around the given factory.
func NewWrapper(factory Factory, logger *zap.Logger) *Wrapper {
	return &Wrapper{
		factory: factory,
		logger:  logger.Named("opb"),
	}
}

// client returns the cached API, building it on first use.
func (w *Wrapper) client() (API, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.api != nil {
		return w.api, nil
	}
	if w.factory == nil {
		w.logger.Error("OpenPlantBook client unavailable, cannot create API client")
		return nil, ErrSDKUnavailable
	}
	api, err := w.factory()
	if err != nil {
		w.logger.Error("Failed to create OpenPlantBook API client", zap.Error(err))
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	w.logger.Debug("OpenPlantBook API client created")
	w.api = api
	return api, nil
}

// Reset discards the cached client so the next call rebuilds it through the
// factory. Callers invoke it after stored credentials change.
func (w *Wrapper) Reset() {
	w.mu.Lock()
	w.api = nil
	w.mu.Unlock()
	w.logger.Debug("OpenPlantBook API client discarded, will rebuild on next use")
}

// Search looks up candidate plants by name. Failures that look like
// authentication problems come back as *AuthError.
func (w *Wrapper) Search(ctx context.Context, query string) ([]*Plant, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}

	api, err := w.client()
	if err != nil {
		return nil, err
	}

	w.logger.Debug("Searching for plant", zap.String("query", query))
	results, err := api.Search(ctx, query)
	if err != nil {
		classified := classify(err)
		if IsAuthError(classified) {
			w.logger.Warn("Authentication error during plant search",
				zap.String("query", query),
				zap.Error(err))
		} else {
			w.logger.Error("Plant search failed",
				zap.String("query", query),
				zap.Error(err))
		}
		return nil, classified
	}

	w.logger.Info("Plant search completed",
		zap.String("query", query),
		zap.Int("results", len(results)))
	return results, nil
}

// Details fetches the full record for a plant id, with the same
// authentication-failure classification as Search.
func (w *Wrapper) Details(ctx context.Context, pid string) (*Plant, error) {
	api, err := w.client()
	if err != nil {
		return nil, err
	}

	w.logger.Debug("Fetching plant details", zap.String("pid", pid))
	detail, err := api.Details(ctx, pid)
	if err != nil {
		classified := classify(err)
		if IsAuthError(classified) {
			w.logger.Warn("Authentication error during plant detail fetch",
				zap.String("pid", pid),
				zap.Error(err))
		} else {
			w.logger.Error("Plant detail fetch failed",
				zap.String("pid", pid),
				zap.Error(err))
		}
		return nil, classified
	}

	w.logger.Debug("Plant details retrieved", zap.String("pid", pid))
	return detail, nil
}
