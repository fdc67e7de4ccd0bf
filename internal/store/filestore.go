package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"plantbook/internal/plant"
)

// fileContents is the on-disk shape: the parent credential entry plus all
// plant records keyed by device id.
type fileContents struct {
	Credentials *plant.Credentials       `json:"credentials,omitempty"`
	Plants      map[string]*plant.Record `json:"plants"`
}

// FileStore keeps all records in a single JSON file, loaded at startup and
// rewritten on every mutation. The host serializes wizard sessions, so write
// volume is one file per completed form, not a database workload.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	contents fileContents
}

// OpenFileStore loads the store file, creating an empty store when the file
// does not exist yet.
func OpenFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		logger: logger.Named("store"),
		contents: fileContents{
			Plants: make(map[string]*plant.Record),
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No store file found, starting empty", zap.String("path", path))
			return s, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	if err := json.Unmarshal(data, &s.contents); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	if s.contents.Plants == nil {
		s.contents.Plants = make(map[string]*plant.Record)
	}
	s.logger.Info("Store loaded",
		zap.String("path", path),
		zap.Int("plants", len(s.contents.Plants)))
	return s, nil
}

// save writes the store atomically: temp file in the same directory, then
// rename over the target.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(&s.contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".plantbook-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// Create stores a new record.
func (s *FileStore) Create(rec *plant.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contents.Plants[rec.DeviceID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, rec.DeviceID)
	}
	s.contents.Plants[rec.DeviceID] = rec
	if err := s.save(); err != nil {
		delete(s.contents.Plants, rec.DeviceID)
		return err
	}
	s.logger.Info("Plant record created", zap.String("device_id", rec.DeviceID))
	return nil
}

// Update replaces an existing record in full.
func (s *FileStore) Update(rec *plant.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.contents.Plants[rec.DeviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.DeviceID)
	}
	s.contents.Plants[rec.DeviceID] = rec
	if err := s.save(); err != nil {
		s.contents.Plants[rec.DeviceID] = prev
		return err
	}
	s.logger.Info("Plant record updated", zap.String("device_id", rec.DeviceID))
	return nil
}

// Get returns the record for a device id.
func (s *FileStore) Get(deviceID string) (*plant.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.contents.Plants[deviceID]
	return rec, ok
}

// Delete removes a record; deleting an absent id is a no-op.
func (s *FileStore) Delete(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.contents.Plants[deviceID]
	if !ok {
		return nil
	}
	delete(s.contents.Plants, deviceID)
	if err := s.save(); err != nil {
		s.contents.Plants[deviceID] = prev
		return err
	}
	s.logger.Info("Plant record deleted", zap.String("device_id", deviceID))
	return nil
}

// List returns all records sorted by device id.
func (s *FileStore) List() []*plant.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*plant.Record, 0, len(s.contents.Plants))
	for _, rec := range s.contents.Plants {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Credentials returns the parent credential entry.
func (s *FileStore) Credentials() (*plant.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.contents.Credentials == nil {
		return nil, false
	}
	creds := *s.contents.Credentials
	return &creds, true
}

// SetCredentials creates or replaces the parent credential entry.
func (s *FileStore) SetCredentials(creds *plant.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.contents.Credentials
	copied := *creds
	s.contents.Credentials = &copied
	if err := s.save(); err != nil {
		s.contents.Credentials = prev
		return err
	}
	s.logger.Info("Credentials updated", zap.String("client_id", creds.ClientID))
	return nil
}

// Categories returns the sorted union of category tags across all records.
func (s *FileStore) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range s.contents.Plants {
		for _, cat := range rec.Categories {
			if strings.TrimSpace(cat) == "" {
				continue
			}
			seen[cat] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}
