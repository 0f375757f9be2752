// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package mqttstatus publishes device connection status to an MQTT broker.
//
// Every state change of a device is published as a retained JSON message
// on <prefix>/device/<id>/status. The connector itself announces
// "online" on <prefix>/connector/status and registers "offline" there as
// its last will.
package mqttstatus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	maxQoS                   = 2
)

var (
	ErrNotConnected     = errors.New("mqttstatus: client not connected")
	ErrConnectionFailed = errors.New("mqttstatus: connection failed")
	ErrPublishFailed    = errors.New("mqttstatus: publish failed")
	ErrInvalidTopic     = errors.New("mqttstatus: topic cannot be empty")
	ErrInvalidQoS       = errors.New("mqttstatus: invalid QoS level (must be 0, 1, or 2)")
)

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ClientConfig configures the broker connection.
type ClientConfig struct {
	// Broker is the broker URL, for example tcp://localhost:1883.
	Broker   string
	ClientID string
	Username string
	Password string
	// TopicPrefix is the first topic level of every message.
	TopicPrefix string
	QoS         byte
	// ConnectTimeout bounds the initial connection (default: 10s).
	ConnectTimeout time.Duration
}

// Client is a Publisher backed by paho.
type Client struct {
	cfg    ClientConfig
	client pahomqtt.Client
}

var _ Publisher = (*Client)(nil)

// Connect connects to the broker. The client reconnects on its own after
// a lost connection.
func Connect(cfg ClientConfig) (*Client, error) {
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	c := &Client{cfg: cfg}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetWill(ConnectorTopic(cfg.TopicPrefix), "offline", cfg.QoS, true)
	// announce on every (re)connect, replacing the last will
	opts.SetOnConnectHandler(func(pc pahomqtt.Client) {
		pc.Publish(ConnectorTopic(cfg.TopicPrefix), cfg.QoS, true, []byte("online"))
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// Publish implements Publisher.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close announces a graceful "offline" and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.client.IsConnectionOpen() {
		token := c.client.Publish(ConnectorTopic(c.cfg.TopicPrefix), c.cfg.QoS, true, []byte("offline"))
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// ConnectorTopic is the topic carrying the connector's own availability.
func ConnectorTopic(prefix string) string {
	return prefix + "/connector/status"
}

var topicLevel = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// DeviceTopic is the status topic of one device. Characters with a meaning
// in topic filters are replaced in the device ID.
func DeviceTopic(prefix, deviceID string) string {
	return prefix + "/device/" + topicLevel.Replace(deviceID) + "/status"
}
