package transport

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const publishTimeout = 250 * time.Millisecond

// publisher is the part of mqtt.Client the transport needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each packet as JSON under prefix/<sensor>/<packet>.
// Sensor-less packets go to prefix/<packet>.
type MQTT struct {
	emitter
	client publisher
	prefix string
}

// NewMQTT wraps an already connected client.
func NewMQTT(client publisher, prefix string) *MQTT {
	m := &MQTT{client: client, prefix: prefix}
	m.emitter = emitter{sink: m.publish}
	return m
}

// Topic returns the topic a packet is published on.
func (m *MQTT) Topic(p Packet) string {
	if p.Sensor == nil {
		return fmt.Sprintf("%s/%s", m.prefix, p.Type)
	}
	return fmt.Sprintf("%s/%d/%s", m.prefix, *p.Sensor, p.Type)
}

func (m *MQTT) publish(p Packet) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("mqtt: marshal %s: %w", p.Type, err)
	}
	token := m.client.Publish(m.Topic(p), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish %s: timed out", p.Type)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", p.Type, err)
	}
	return nil
}

// Dial connects to broker with the given client id.
func Dial(broker, clientID string, logger *zap.SugaredLogger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnw("mqtt connection lost", "err", err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", broker, token.Error())
	}
	logger.Infow("connected to MQTT broker", "broker", broker, "client_id", clientID)
	return client, nil
}
