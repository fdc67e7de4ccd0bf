package ha

// DiscoveryPayload is a Home Assistant MQTT discovery config message for one
// sensor entity.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
type DiscoveryPayload struct {
	Name                string          `json:"name"`
	UniqueID            string          `json:"unique_id"`
	StateTopic          string          `json:"state_topic"`
	JSONAttributesTopic string          `json:"json_attributes_topic,omitempty"`
	EntityPicture       string          `json:"entity_picture,omitempty"`
	Icon                string          `json:"icon,omitempty"`
	Device              DiscoveryDevice `json:"device"`
}

// DiscoveryDevice groups entities under one device in the Home Assistant
// registry.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	ModelID      string   `json:"model_id,omitempty"`
}
