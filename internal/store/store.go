// Package store persists plant records and the parent credential entry. The
// wizard and the sensor publisher depend only on the Store interface, not on
// any particular backing.
package store

import (
	"errors"

	"plantbook/internal/plant"
)

// ErrExists is returned by Create when a record with the same device id is
// already stored.
var ErrExists = errors.New("record already exists")

// ErrNotFound is returned by Update when the record to replace is missing.
var ErrNotFound = errors.New("record not found")

// Store is the persistence surface for plant records. Implementations must
// be safe for concurrent readers; writes happen only from wizard terminal
// transitions.
type Store interface {
	// Create stores a new record, rejecting duplicate device ids.
	Create(rec *plant.Record) error
	// Update replaces an existing record in full. DeviceID selects it.
	Update(rec *plant.Record) error
	// Get returns the record for a device id.
	Get(deviceID string) (*plant.Record, bool)
	// Delete removes a record. Deleting an absent id is not an error.
	Delete(deviceID string) error
	// List returns all records sorted by device id.
	List() []*plant.Record

	// Credentials returns the parent credential entry, if configured.
	Credentials() (*plant.Credentials, bool)
	// SetCredentials creates or replaces the parent credential entry.
	SetCredentials(creds *plant.Credentials) error

	// Categories returns the sorted, deduplicated union of category tags
	// across all stored records, for the wizard's dropdown options.
	Categories() []string
}
