package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttQoS = 1

// MQTTPublisher publishes JSON events on {topic}/{jobId}/{event}, e.g.
// spinframe/jobs/<id>/progress.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// NewMQTTPublisher connects to broker (host:port) with automatic reconnection.
func NewMQTTPublisher(broker, clientID, topic string, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("mqtt connection established", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return newMQTTPublisher(client, topic, logger), nil
}

func newMQTTPublisher(client mqtt.Client, topic string, logger *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client:  client,
		topic:   strings.TrimSuffix(topic, "/"),
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Topic returns the topic an event is published on.
func (p *MQTTPublisher) Topic(e Event) string {
	return fmt.Sprintf("%s/%s/%s", p.topic, e.JobID, strings.TrimPrefix(string(e.Type), "job."))
}

func (p *MQTTPublisher) Publish(ctx context.Context, e Event) error {
	if !p.client.IsConnected() {
		p.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		p.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := p.Topic(e)
	token := p.client.Publish(topic, mqttQoS, false, payload)
	if !token.WaitTimeout(p.timeout) {
		p.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	p.logger.Debug("event published", "topic", topic, "size", len(payload))
	return nil
}

// Stats returns the number of published events and publish errors.
func (p *MQTTPublisher) Stats() (published, errors uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.errors
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
