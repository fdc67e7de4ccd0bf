package ha

import (
	"sync"

	"plantbook/internal/plant"
)

// MockPublisher implements SensorPublisher for testing, recording every
// call.
type MockPublisher struct {
	mu          sync.Mutex
	published   []*plant.Record
	unpublished []string
	err         error
}

// NewMockPublisher creates a mock that succeeds on every call.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// SetError makes subsequent calls fail with err.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockPublisher) PublishPlant(rec *plant.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, rec)
	return nil
}

func (m *MockPublisher) UnpublishPlant(deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.unpublished = append(m.unpublished, deviceID)
	return nil
}

func (m *MockPublisher) PublishAll(recs []*plant.Record) error {
	for _, rec := range recs {
		if err := m.PublishPlant(rec); err != nil {
			return err
		}
	}
	return nil
}

// Published returns the records announced so far.
func (m *MockPublisher) Published() []*plant.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*plant.Record, len(m.published))
	copy(out, m.published)
	return out
}

// Unpublished returns the device ids retracted so far.
func (m *MockPublisher) Unpublished() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.unpublished))
	copy(out, m.unpublished)
	return out
}
