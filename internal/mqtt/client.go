// Package mqtt wraps the paho client behind the small publish surface the
// discovery publisher needs.
package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 30 * time.Second
)

// Config holds the broker connection settings.
type Config struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// Publisher is the broker surface used by the rest of the service.
type Publisher interface {
	Publish(topic string, retain bool, payload []byte) error
	Connected() bool
	Close()
}

// Client is a paho-backed Publisher.
type Client struct {
	client pahomqtt.Client
	logger *zap.Logger
}

// Connect dials the broker and blocks until the connection is up or the
// timeout elapses.
func Connect(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "plantbook"
	}

	log := logger.Named("mqtt")

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		log.Info("MQTT connected", zap.String("broker", cfg.BrokerURL))
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timeout connecting to mqtt broker %s", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", cfg.BrokerURL, err)
	}

	return &Client{client: client, logger: log}, nil
}

// Publish sends one message at QoS 1 and waits for the broker ack.
func (c *Client) Publish(topic string, retain bool, payload []byte) error {
	token := c.client.Publish(topic, 1, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Connected reports whether the broker connection is currently open.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker, letting in-flight messages drain
// briefly.
func (c *Client) Close() {
	if c.client.IsConnectionOpen() {
		c.client.Disconnect(250)
	}
	c.logger.Info("MQTT disconnected")
}
