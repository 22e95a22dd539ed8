// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/relabs-tech/road_qualifier/internal/quality"
)

// publishTimeout bounds how long Publish waits for the broker.
const publishTimeout = 5 * time.Second

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes records as JSON to one topic.
type MQTTSink struct {
	pub      Publisher
	topic    string
	deviceID string
}

var _ Sink = (*MQTTSink)(nil)

// NewMQTTSink publishes to topic through pub, tagging records with deviceID.
func NewMQTTSink(pub Publisher, topic, deviceID string) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic, deviceID: deviceID}
}

func (s *MQTTSink) Publish(q quality.SegmentQuality, ts time.Time) error {
	payload, err := json.Marshal(NewRecord(q, ts, s.deviceID))
	if err != nil {
		return fmt.Errorf("telemetry: marshal: %w", err)
	}

	// QoS 1, at least once.
	token := s.pub.Publish(s.topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("telemetry: publish to %s timed out", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: publish to %s: %w", s.topic, err)
	}
	return nil
}

// ClientID returns id, or prefix plus a random suffix when id is empty.
func ClientID(id, prefix string) string {
	if id != "" {
		return id
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// Connect dials the broker and waits for the connection.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: connect to %s: %w", broker, token.Error())
	}
	log.Printf("telemetry: connected to MQTT broker at %s as %s", broker, clientID)
	return client, nil
}

// Subscribe calls fn with every record published on topic. Payloads that do
// not decode are logged and dropped.
func Subscribe(client mqtt.Client, topic string, fn func(Record)) error {
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		r, err := DecodeRecord(msg.Payload())
		if err != nil {
			log.Printf("telemetry: dropping message on %s: %v", msg.Topic(), err)
			return
		}
		fn(r)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: subscribe %s: %w", topic, err)
	}
	log.Printf("telemetry: subscribed to %s", topic)
	return nil
}
