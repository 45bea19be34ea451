package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"canister-transfer-backend/config"
	"canister-transfer-backend/internal/logging"
)

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// NewMQTTClient connects to the configured broker.
func NewMQTTClient(cfg *config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// MQTTSink publishes events to the device consoles.
// Device events go to {prefix}/devices/{id}/events, cycle events to {prefix}/systems/{id}/cycles.
type MQTTSink struct {
	client  Publisher
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *zap.Logger
}

func NewMQTTSink(client Publisher, prefix string, qos byte, logger *zap.Logger) *MQTTSink {
	return &MQTTSink{
		client:  client,
		prefix:  prefix,
		qos:     qos,
		timeout: 5 * time.Second,
		logger:  logging.OrNop(logger),
	}
}

func (s *MQTTSink) deviceTopic(deviceID int64) string {
	return fmt.Sprintf("%s/devices/%d/events", s.prefix, deviceID)
}

func (s *MQTTSink) publish(topic, eventType string, data any) {
	payload, err := json.Marshal(envelope{Type: eventType, Data: data})
	if err != nil {
		s.logger.Error("failed to encode mqtt payload", zap.String("type", eventType), zap.Error(err))
		return
	}
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		s.logger.Warn("mqtt publish timed out", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *MQTTSink) PublishCycleCreated(_ context.Context, ev CycleCreated) {
	s.publish(fmt.Sprintf("%s/systems/%d/cycles", s.prefix, ev.SystemID), TypeCycleCreated, ev)
	for _, id := range ev.DeviceIDs {
		s.publish(s.deviceTopic(id), TypeCycleCreated, ev)
	}
}

func (s *MQTTSink) PublishDrawerScanned(_ context.Context, ev DrawerScanned) {
	s.publish(s.deviceTopic(ev.DeviceID), TypeDrawerScanned, ev)
}

func (s *MQTTSink) PublishPendingTransferFlag(_ context.Context, ev PendingTransferFlag) {
	s.publish(s.deviceTopic(ev.DeviceID), TypePendingTransferFlag, ev)
}
