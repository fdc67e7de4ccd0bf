package wizard

import (
	"sync"

	"go.uber.org/zap"
)

// ReauthLauncher starts a re-authentication flow for the credential entry.
// It runs on its own goroutine; the wizard that triggered it never waits on
// it.
type ReauthLauncher func(entryID string)

// ReauthScheduler tracks pending re-authentication requests, keyed by
// credential-entry id, so that at most one is ever in flight per entry.
type ReauthScheduler struct {
	launch ReauthLauncher
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewReauthScheduler creates a scheduler around the given launcher.
func NewReauthScheduler(launch ReauthLauncher, logger *zap.Logger) *ReauthScheduler {
	return &ReauthScheduler{
		launch:  launch,
		logger:  logger.Named("reauth"),
		pending: make(map[string]struct{}),
	}
}

// Pending reports whether a re-auth flow is already in progress for the
// entry.
func (s *ReauthScheduler) Pending(entryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[entryID]
	return ok
}

// Schedule fires a re-auth flow for the entry unless one is already pending.
// It returns whether a new flow was started. The launcher runs detached;
// ordering against other operations is not guaranteed beyond this
// de-duplication.
func (s *ReauthScheduler) Schedule(entryID string) bool {
	s.mu.Lock()
	if _, ok := s.pending[entryID]; ok {
		s.mu.Unlock()
		s.logger.Debug("Reauth flow already in progress, not starting another",
			zap.String("entry_id", entryID))
		return false
	}
	s.pending[entryID] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Scheduling reauth flow", zap.String("entry_id", entryID))
	if s.launch != nil {
		go s.launch(entryID)
	}
	return true
}

// Done clears the pending mark once a re-auth flow finished or was
// abandoned.
func (s *ReauthScheduler) Done(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, entryID)
}
