// Package plant holds the persisted plant record model and the pure helpers
// used to derive identifiers and normalize user-entered names.
package plant

// DefaultImagePath is the default download location for plant images,
// relative to the configuration root.
const DefaultImagePath = "www/images/plants/"

// Record is one persisted plant reference. DeviceID uniquely identifies the
// record and never changes once assigned; a reconfigure replaces every other
// field in place.
type Record struct {
	DeviceID string `json:"device_id"`

	// Name is the display name shown for the device. FriendlyName takes
	// precedence when deriving it; ScientificName is the fallback.
	Name           string   `json:"name"`
	PlantID        string   `json:"plant_id,omitempty"`
	ScientificName string   `json:"scientific_name,omitempty"`
	CommonName     string   `json:"common_name,omitempty"`
	FriendlyName   string   `json:"friendly_name,omitempty"`
	Categories     []string `json:"categories,omitempty"`

	MinLight    *float64 `json:"min_light,omitempty"`
	MaxLight    *float64 `json:"max_light,omitempty"`
	MinTemp     *float64 `json:"min_temp,omitempty"`
	MaxTemp     *float64 `json:"max_temp,omitempty"`
	MinHumidity *float64 `json:"min_humidity,omitempty"`
	MaxHumidity *float64 `json:"max_humidity,omitempty"`
	MinMoisture *float64 `json:"min_moisture,omitempty"`
	MaxMoisture *float64 `json:"max_moisture,omitempty"`
	MinSoilEC   *float64 `json:"min_soil_ec,omitempty"`
	MaxSoilEC   *float64 `json:"max_soil_ec,omitempty"`

	// EntityPicture is a web-accessible relative URL to a downloaded image,
	// set only when the image fetch succeeded.
	EntityPicture string `json:"entity_picture,omitempty"`

	// PlantBookData is the raw search/detail payload the record was created
	// from, kept for diagnostics and for back-filling missing defaults
	// during reconfiguration.
	PlantBookData map[string]any `json:"plant_book_data,omitempty"`
}

// DisplayName returns the name the record's sensor should present.
func (r *Record) DisplayName() string {
	if r.FriendlyName != "" {
		return r.FriendlyName
	}
	return r.Name
}

// Credentials is the parent entry owning all plant records: the API
// credentials plus the image download policy.
type Credentials struct {
	ClientID       string `json:"client_id"`
	Secret         string `json:"secret"`
	DownloadImages bool   `json:"download_images"`
	DownloadPath   string `json:"download_path"`
}

// GenerateDeviceID derives the stable slug identifier for a plant record.
// Priority order: plant id, then scientific name, then display name, then a
// literal fallback. Deterministic and total; never fails.
func GenerateDeviceID(plantID, scientificName, name string) string {
	if plantID != "" {
		return Slugify(plantID)
	}
	if scientificName != "" {
		return Slugify(scientificName)
	}
	if name != "" {
		return Slugify(name)
	}
	return "unnamed_plant"
}

// Float returns a pointer to v, for building range fields in literals.
func Float(v float64) *float64 {
	return &v
}
