package wizard

import "plantbook/internal/plant"

// Form section keys, matching the grouped layout the configure form renders.
const (
	sectionBase       = "base"
	sectionNames      = "names_section"
	sectionCategories = "categories_section"
	sectionLight      = "light_values_section"
	sectionTemp       = "temperature_values_section"
	sectionHumidity   = "humidity_values_section"
	sectionMoisture   = "moisture_values_section"
	sectionSoilEC     = "soil_ec_values_section"
)

// ConfigInput is one submission of the plant configuration form. Nil range
// pointers mean the field was left empty.
type ConfigInput struct {
	FriendlyName   string   `json:"friendly_name"`
	ScientificName string   `json:"scientific_name"`
	CommonName     string   `json:"common_name"`
	Categories     []string `json:"categories"`

	MinLight    *float64 `json:"min_light"`
	MaxLight    *float64 `json:"max_light"`
	MinTemp     *float64 `json:"min_temp"`
	MaxTemp     *float64 `json:"max_temp"`
	MinHumidity *float64 `json:"min_humidity"`
	MaxHumidity *float64 `json:"max_humidity"`
	MinMoisture *float64 `json:"min_moisture"`
	MaxMoisture *float64 `json:"max_moisture"`
	MinSoilEC   *float64 `json:"min_soil_ec"`
	MaxSoilEC   *float64 `json:"max_soil_ec"`
}

// normalized returns a copy with the names title-cased and blank categories
// dropped.
func (in ConfigInput) normalized() ConfigInput {
	out := in
	out.FriendlyName = plant.ProperCase(in.FriendlyName)
	out.ScientificName = plant.ProperCase(in.ScientificName)
	out.CommonName = plant.ProperCase(in.CommonName)
	out.Categories = plant.ProperCaseAll(in.Categories)
	return out
}

// requiredField pairs a range value with the section and code reported when
// it is missing.
type requiredField struct {
	value   *float64
	section string
	code    string
}

// rangePair is one min/max dimension checked for ordering.
type rangePair struct {
	min, max *float64
	name     string
	section  string
}

// validateConfig checks a normalized submission. The first failure wins:
// names, then categories, then each range field in fixed order, then the
// pairwise ordering checks. At most one error is ever reported.
func validateConfig(in ConfigInput) map[string]string {
	errors := map[string]string{}

	switch {
	case in.FriendlyName == "":
		errors[sectionNames] = "friendly_name_required"
	case in.ScientificName == "":
		errors[sectionNames] = "scientific_name_required"
	case in.CommonName == "":
		errors[sectionNames] = "common_name_required"
	case len(in.Categories) == 0:
		errors[sectionCategories] = "categories_required"
	}
	if len(errors) > 0 {
		return errors
	}

	required := []requiredField{
		{in.MinLight, sectionLight, "min_light_required"},
		{in.MaxLight, sectionLight, "max_light_required"},
		{in.MinTemp, sectionTemp, "min_temp_required"},
		{in.MaxTemp, sectionTemp, "max_temp_required"},
		{in.MinHumidity, sectionHumidity, "min_humidity_required"},
		{in.MaxHumidity, sectionHumidity, "max_humidity_required"},
		{in.MinMoisture, sectionMoisture, "min_moisture_required"},
		{in.MaxMoisture, sectionMoisture, "max_moisture_required"},
		{in.MinSoilEC, sectionSoilEC, "min_soil_ec_required"},
		{in.MaxSoilEC, sectionSoilEC, "max_soil_ec_required"},
	}
	for _, f := range required {
		if f.value == nil {
			errors[f.section] = f.code
			return errors
		}
	}

	pairs := []rangePair{
		{in.MinLight, in.MaxLight, "light", sectionLight},
		{in.MinTemp, in.MaxTemp, "temperature", sectionTemp},
		{in.MinHumidity, in.MaxHumidity, "humidity", sectionHumidity},
		{in.MinMoisture, in.MaxMoisture, "moisture", sectionMoisture},
		{in.MinSoilEC, in.MaxSoilEC, "soil_ec", sectionSoilEC},
	}
	for _, p := range pairs {
		if p.min == nil || p.max == nil {
			continue
		}
		if *p.min > *p.max {
			errors[p.section] = "min_greater_than_max_" + p.name
			return errors
		}
		if *p.min == *p.max {
			// A zero-width range is not a usable tolerance band.
			errors[p.section] = "min_equals_max_" + p.name
			return errors
		}
	}

	return errors
}
