// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/logger"
)

const (
	mqttConnectTimeout    = 10 * time.Second
	mqttPublishTimeout    = 5 * time.Second
	mqttKeepAlive         = 60 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
	mqttMaxQoS            = 2
)

// MQTTOptions configures an MQTTSink
type MQTTOptions struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

// MQTTSink publishes each sample as JSON to "<prefix>/<device_id>"
type MQTTSink struct {
	client pahomqtt.Client
	opts   MQTTOptions
}

// NewMQTTSink connects to the broker. The client reconnects automatically
// after the initial connection succeeds.
func NewMQTTSink(opts MQTTOptions) (*MQTTSink, error) {
	if opts.Broker == "" {
		return nil, errors.NewConfigError("mqtt.broker", "", fmt.Errorf("cannot be empty"))
	}
	if opts.QoS > mqttMaxQoS {
		return nil, errors.NewConfigError("mqtt.qos", fmt.Sprint(opts.QoS), fmt.Errorf("must be 0, 1 or 2"))
	}
	opts.TopicPrefix = strings.TrimSuffix(opts.TopicPrefix, "/")
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "battery"
	}

	clientOpts := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetKeepAlive(mqttKeepAlive).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn().Err(err).Str("broker", opts.Broker).Msg("MQTT connection lost")
		}).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			logger.Info().Str("broker", opts.Broker).Msg("Connected to MQTT broker")
		})
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := pahomqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errors.NewNetworkError("connect", opts.Broker, fmt.Errorf("timeout after %v", mqttConnectTimeout))
	}
	if err := token.Error(); err != nil {
		return nil, errors.NewNetworkError("connect", opts.Broker, err)
	}

	return &MQTTSink{client: client, opts: opts}, nil
}

// Name returns the sink name used in metrics
func (s *MQTTSink) Name() string {
	return "mqtt"
}

// Topic returns the topic a device's samples are published to
func (s *MQTTSink) Topic(deviceID string) string {
	return s.opts.TopicPrefix + "/" + deviceID
}

// WriteSample publishes one sample and waits for the broker to accept it
func (s *MQTTSink) WriteSample(ctx context.Context, sample *monitoring.BatterySample) error {
	if err := sample.Validate(); err != nil {
		return err
	}
	if !s.client.IsConnectionOpen() {
		return errors.NewNetworkError("publish", s.opts.Broker, errors.ErrNotConnected)
	}

	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}

	token := s.client.Publish(s.Topic(sample.DeviceID), s.opts.QoS, s.opts.Retain, payload)

	timer := time.NewTimer(mqttPublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.NewNetworkError("publish", s.opts.Broker, err)
		}
		return nil
	case <-timer.C:
		return errors.NewNetworkError("publish", s.opts.Broker, fmt.Errorf("timeout after %v", mqttPublishTimeout))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports whether the broker connection is up
func (s *MQTTSink) Health(_ context.Context) error {
	if !s.client.IsConnectionOpen() {
		return errors.NewNetworkError("health", s.opts.Broker, errors.ErrNotConnected)
	}
	return nil
}

// Close disconnects from the broker
func (s *MQTTSink) Close() error {
	logger.Info().Str("broker", s.opts.Broker).Msg("Disconnecting from MQTT broker")
	s.client.Disconnect(mqttDisconnectQuiesce)
	return nil
}
