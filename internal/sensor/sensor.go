// Package sensor materializes persisted plant records into presentable
// sensor objects. The projection is pure: same record in, same sensor out,
// with absent fields omitted rather than emitted as nulls.
package sensor

import "plantbook/internal/plant"

// DeviceInfo groups the metadata the host platform shows for the plant's
// device.
type DeviceInfo struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	ModelID      string `json:"model_id"`
}

// Sensor is one plant's sensor entity: a display value plus the care
// parameters as attributes.
type Sensor struct {
	UniqueID      string
	Value         string
	EntityPicture string
	Attributes    map[string]any
	Device        DeviceInfo
}

// Materialize projects one record into its sensor. Attribute keys use the
// spelled-out minimum_/maximum_ names; fields missing from the record never
// appear in the attribute map.
func Materialize(rec *plant.Record) *Sensor {
	attrs := make(map[string]any)

	if rec.ScientificName != "" {
		attrs["scientific_name"] = rec.ScientificName
	}
	if rec.CommonName != "" {
		attrs["common_name"] = rec.CommonName
	}
	if len(rec.Categories) > 0 {
		attrs["categories"] = rec.Categories
	}
	if rec.PlantID != "" {
		attrs["plant_id"] = rec.PlantID
	}

	putRange(attrs, "minimum_light", rec.MinLight)
	putRange(attrs, "maximum_light", rec.MaxLight)
	putRange(attrs, "minimum_temperature", rec.MinTemp)
	putRange(attrs, "maximum_temperature", rec.MaxTemp)
	putRange(attrs, "minimum_humidity", rec.MinHumidity)
	putRange(attrs, "maximum_humidity", rec.MaxHumidity)
	putRange(attrs, "minimum_moisture", rec.MinMoisture)
	putRange(attrs, "maximum_moisture", rec.MaxMoisture)
	putRange(attrs, "minimum_soil_ec", rec.MinSoilEC)
	putRange(attrs, "maximum_soil_ec", rec.MaxSoilEC)

	model := "Plant Reference"
	if rec.ScientificName != "" {
		model = rec.ScientificName
	}
	modelID := rec.PlantID
	if modelID == "" {
		modelID = rec.DeviceID
	}

	return &Sensor{
		UniqueID:      rec.DeviceID + "_plant",
		Value:         rec.DisplayName(),
		EntityPicture: rec.EntityPicture,
		Attributes:    attrs,
		Device: DeviceInfo{
			Identifier:   rec.DeviceID,
			Name:         rec.Name,
			Manufacturer: "Plant Reference",
			Model:        model,
			ModelID:      modelID,
		},
	}
}

func putRange(attrs map[string]any, key string, v *float64) {
	if v != nil {
		attrs[key] = *v
	}
}
