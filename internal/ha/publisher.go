// Package ha surfaces plant records to Home Assistant over MQTT discovery.
// Each record becomes one sensor entity: a retained config message under the
// discovery prefix, a retained state message, and a retained attributes
// document.
package ha

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"plantbook/internal/mqtt"
	"plantbook/internal/plant"
	"plantbook/internal/sensor"
)

// DefaultDiscoveryPrefix is Home Assistant's default discovery topic root.
const DefaultDiscoveryPrefix = "homeassistant"

const stateTopicRoot = "plantbook"

// SensorPublisher announces and retracts plant sensors.
type SensorPublisher interface {
	PublishPlant(rec *plant.Record) error
	UnpublishPlant(deviceID string) error
	PublishAll(recs []*plant.Record) error
}

// Publisher implements SensorPublisher over an MQTT connection.
type Publisher struct {
	broker          mqtt.Publisher
	discoveryPrefix string
	logger          *zap.Logger
}

// NewPublisher creates a publisher. An empty discoveryPrefix selects the
// Home Assistant default.
func NewPublisher(broker mqtt.Publisher, discoveryPrefix string, logger *zap.Logger) *Publisher {
	if discoveryPrefix == "" {
		discoveryPrefix = DefaultDiscoveryPrefix
	}
	return &Publisher{
		broker:          broker,
		discoveryPrefix: discoveryPrefix,
		logger:          logger.Named("ha"),
	}
}

func (p *Publisher) configTopic(deviceID string) string {
	return fmt.Sprintf("%s/sensor/plantbook_%s/plant/config", p.discoveryPrefix, deviceID)
}

func (p *Publisher) stateTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", stateTopicRoot, deviceID)
}

func (p *Publisher) attributesTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/attributes", stateTopicRoot, deviceID)
}

// PublishPlant materializes the record and publishes its discovery config,
// state and attributes, all retained so the entity survives Home Assistant
// restarts.
func (p *Publisher) PublishPlant(rec *plant.Record) error {
	if !p.broker.Connected() {
		return fmt.Errorf("mqtt broker not connected, cannot publish %s", rec.DeviceID)
	}
	s := sensor.Materialize(rec)

	config := DiscoveryPayload{
		Name:                s.Device.Name,
		UniqueID:            s.UniqueID,
		StateTopic:          p.stateTopic(rec.DeviceID),
		JSONAttributesTopic: p.attributesTopic(rec.DeviceID),
		EntityPicture:       s.EntityPicture,
		Icon:                "mdi:flower",
		Device: DiscoveryDevice{
			Identifiers:  []string{s.Device.Identifier},
			Name:         s.Device.Name,
			Manufacturer: s.Device.Manufacturer,
			Model:        s.Device.Model,
			ModelID:      s.Device.ModelID,
		},
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling discovery config for %s: %w", rec.DeviceID, err)
	}
	attrsJSON, err := json.Marshal(s.Attributes)
	if err != nil {
		return fmt.Errorf("marshaling attributes for %s: %w", rec.DeviceID, err)
	}

	if err := p.broker.Publish(p.configTopic(rec.DeviceID), true, configJSON); err != nil {
		return err
	}
	if err := p.broker.Publish(p.stateTopic(rec.DeviceID), true, []byte(s.Value)); err != nil {
		return err
	}
	if err := p.broker.Publish(p.attributesTopic(rec.DeviceID), true, attrsJSON); err != nil {
		return err
	}

	p.logger.Info("Published plant sensor",
		zap.String("device_id", rec.DeviceID),
		zap.String("unique_id", s.UniqueID))
	return nil
}

// UnpublishPlant retracts the entity by clearing its retained messages. An
// empty retained config payload removes the entity from Home Assistant.
func (p *Publisher) UnpublishPlant(deviceID string) error {
	if !p.broker.Connected() {
		return fmt.Errorf("mqtt broker not connected, cannot retract %s", deviceID)
	}
	for _, topic := range []string{
		p.configTopic(deviceID),
		p.stateTopic(deviceID),
		p.attributesTopic(deviceID),
	} {
		if err := p.broker.Publish(topic, true, nil); err != nil {
			return err
		}
	}
	p.logger.Info("Retracted plant sensor", zap.String("device_id", deviceID))
	return nil
}

// PublishAll announces every record, continuing past individual failures and
// returning the first error encountered.
func (p *Publisher) PublishAll(recs []*plant.Record) error {
	var firstErr error
	for _, rec := range recs {
		if err := p.PublishPlant(rec); err != nil {
			p.logger.Error("Failed to publish plant sensor",
				zap.String("device_id", rec.DeviceID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
