package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/picorelay/relayd/internal/relay"
)

// outboxCapacity bounds how many events are held while disconnected.
// A relay produces events slowly, so a small outbox covers long outages.
const outboxCapacity = 64

// RealPublisher publishes to an actual MQTT broker. While the broker is
// unreachable, events queue in the outbox and flush on reconnect.
type RealPublisher struct {
	client      paho.Client
	eventsTopic string
	systemTopic string

	mu      sync.Mutex
	pending *outbox
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, device string) (*RealPublisher, error) {
	p := &RealPublisher{
		eventsTopic: EventsTopic(device),
		systemTopic: SystemTopic(device),
		pending:     newOutbox(outboxCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("relayd-" + device).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) { p.flushPending() })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// PublishTransition sends a relay transition to the broker, QoS 0.
func (p *RealPublisher) PublishTransition(t relay.Transition) error {
	payload, err := FormatPayload(t)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(p.eventsTopic, payload, 0, false)
}

// PublishSystem sends a system lifecycle event, QoS 1 so shutdown
// notices survive a flaky link.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(p.systemTopic, payload, 1, event.Retained)
}

// send publishes or, when disconnected, queues for the next connect.
func (p *RealPublisher) send(topic string, payload []byte, qos byte, retained bool) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		p.pending.add(outboxEntry{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// flushPending delivers events held during an outage, oldest first.
func (p *RealPublisher) flushPending() {
	p.mu.Lock()
	entries := p.pending.flush()
	p.mu.Unlock()

	for _, e := range entries {
		token := p.client.Publish(e.topic, e.qos, e.retained, e.payload)
		token.WaitTimeout(5 * time.Second)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
