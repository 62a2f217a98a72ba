package host

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/vrcore/internal/timeutil"
)

// Topics names the MQTT topics a bridge uses.
type Topics struct {
	// Commands carries JSON host events into the bridge.
	Commands string
	// State receives periodic device state snapshots.
	State string
}

func DefaultTopics() Topics {
	return Topics{Commands: "vrcore/host/commands", State: "vrcore/host/state"}
}

const subscribeTimeout = 5 * time.Second

// MQTTBridge feeds host events from an MQTT topic into a Bridge and
// publishes the device state back.
type MQTTBridge struct {
	client mqtt.Client
	bridge *Bridge
	topics Topics
	qos    byte
}

func NewMQTTBridge(client mqtt.Client, bridge *Bridge, topics Topics) *MQTTBridge {
	return &MQTTBridge{client: client, bridge: bridge, topics: topics}
}

// Connect dials broker and returns a connected client.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	logf("connected to MQTT broker at %s", broker)
	return client, nil
}

// Start subscribes to the command topic.
func (m *MQTTBridge) Start() error {
	token := m.client.Subscribe(m.topics.Commands, m.qos, m.onMessage)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe %s: timeout", m.topics.Commands)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", m.topics.Commands, err)
	}
	logf("subscribed to %s", m.topics.Commands)
	return nil
}

func (m *MQTTBridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// Post logs decode failures.
	_ = m.bridge.Post(msg.Payload())
}

// PublishState publishes one device state snapshot.
func (m *MQTTBridge) PublishState() error {
	payload, err := json.Marshal(m.bridge.State.Snapshot())
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topics.State, m.qos, true, payload)
	token.Wait()
	return token.Error()
}

// RunPublisher publishes the device state every interval until ctx is done.
func (m *MQTTBridge) RunPublisher(ctx context.Context, interval time.Duration, clock timeutil.Clock) error {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	t := clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			if err := m.PublishState(); err != nil {
				logf("publish state: %v", err)
			}
		}
	}
}

// Stop unsubscribes from the command topic.
func (m *MQTTBridge) Stop() {
	if m.client == nil || !m.client.IsConnected() {
		return
	}
	m.client.Unsubscribe(m.topics.Commands).Wait()
}
