package opb

import (
	"encoding/json"
	"fmt"
)

// imageFields are the payload keys that may carry a representative photo URL,
// probed in order. The API is not consistent about which one it uses.
var imageFields = []string{
	"image_url",
	"image",
	"image_path",
	"img_url",
	"photo_url",
	"picture_url",
}

// rangeFields maps the external payload keys for the ten care parameters to
// their setters on Plant.
var rangeFields = []string{
	"min_light_lux",
	"max_light_lux",
	"min_temp",
	"max_temp",
	"min_env_humid",
	"max_env_humid",
	"min_soil_moist",
	"max_soil_moist",
	"min_soil_ec",
	"max_soil_ec",
}

// Plant is one plant as returned by the OpenPlantBook API, either a search
// candidate or a full detail record. Search results usually carry only the
// identification fields; the care ranges arrive with the detail lookup.
type Plant struct {
	PID        string
	DisplayPID string
	Alias      string
	Category   string
	ImageURL   string

	MinLightLux  *float64
	MaxLightLux  *float64
	MinTemp      *float64
	MaxTemp      *float64
	MinEnvHumid  *float64
	MaxEnvHumid  *float64
	MinSoilMoist *float64
	MaxSoilMoist *float64
	MinSoilEC    *float64
	MaxSoilEC    *float64

	// raw is the payload as received, retained so records can snapshot it.
	raw map[string]any
}

// UnmarshalJSON keeps the raw payload alongside the typed fields, probing the
// loosely specified image keys.
func (p *Plant) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.raw = raw
	p.PID = stringField(raw, "pid")
	p.DisplayPID = stringField(raw, "display_pid")
	p.Alias = stringField(raw, "alias")
	p.Category = stringField(raw, "category")
	for _, key := range imageFields {
		if v := stringField(raw, key); v != "" {
			p.ImageURL = v
			break
		}
	}
	p.MinLightLux = floatField(raw, "min_light_lux")
	p.MaxLightLux = floatField(raw, "max_light_lux")
	p.MinTemp = floatField(raw, "min_temp")
	p.MaxTemp = floatField(raw, "max_temp")
	p.MinEnvHumid = floatField(raw, "min_env_humid")
	p.MaxEnvHumid = floatField(raw, "max_env_humid")
	p.MinSoilMoist = floatField(raw, "min_soil_moist")
	p.MaxSoilMoist = floatField(raw, "max_soil_moist")
	p.MinSoilEC = floatField(raw, "min_soil_ec")
	p.MaxSoilEC = floatField(raw, "max_soil_ec")
	return nil
}

// HasRanges reports whether the detail lookup already happened, i.e. at least
// the light range is present.
func (p *Plant) HasRanges() bool {
	return p.MinLightLux != nil
}

// DisplayName returns the label shown to the user for this candidate.
func (p *Plant) DisplayName() string {
	if p.DisplayPID != "" {
		return p.DisplayPID
	}
	if p.Alias != "" {
		return p.Alias
	}
	return "Unknown"
}

// Label is the disambiguation label used in multi-result selection.
func (p *Plant) Label() string {
	return fmt.Sprintf("%s (%s)", p.DisplayName(), p.Category)
}

// Merge overlays detail data onto a search candidate, preferring values from
// detail where present.
func (p *Plant) Merge(detail *Plant) {
	if detail == nil {
		return
	}
	if detail.PID != "" {
		p.PID = detail.PID
	}
	if detail.DisplayPID != "" {
		p.DisplayPID = detail.DisplayPID
	}
	if detail.Alias != "" {
		p.Alias = detail.Alias
	}
	if detail.Category != "" {
		p.Category = detail.Category
	}
	if detail.ImageURL != "" {
		p.ImageURL = detail.ImageURL
	}
	mergeFloat(&p.MinLightLux, detail.MinLightLux)
	mergeFloat(&p.MaxLightLux, detail.MaxLightLux)
	mergeFloat(&p.MinTemp, detail.MinTemp)
	mergeFloat(&p.MaxTemp, detail.MaxTemp)
	mergeFloat(&p.MinEnvHumid, detail.MinEnvHumid)
	mergeFloat(&p.MaxEnvHumid, detail.MaxEnvHumid)
	mergeFloat(&p.MinSoilMoist, detail.MinSoilMoist)
	mergeFloat(&p.MaxSoilMoist, detail.MaxSoilMoist)
	mergeFloat(&p.MinSoilEC, detail.MinSoilEC)
	mergeFloat(&p.MaxSoilEC, detail.MaxSoilEC)
	if p.raw == nil {
		p.raw = make(map[string]any, len(detail.raw))
	}
	for k, v := range detail.raw {
		p.raw[k] = v
	}
}

// Raw returns a copy of the payload as received, suitable for persisting as
// the record's plant book snapshot.
func (p *Plant) Raw() map[string]any {
	if p.raw == nil {
		return nil
	}
	out := make(map[string]any, len(p.raw))
	for k, v := range p.raw {
		out[k] = v
	}
	return out
}

func stringField(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func floatField(raw map[string]any, key string) *float64 {
	switch v := raw[key].(type) {
	case float64:
		f := v
		return &f
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		*dst = src
	}
}
