package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/verbot/internal/logic"
)

// pendingCapacity bounds how many messages are held while disconnected.
const pendingCapacity = 100

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are held in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client    paho.Client
	onRequest RequestFunc

	mu        sync.Mutex
	pending   *ringBuffer
	connected bool
	connects  int
}

// NewRealPublisher starts connecting to the given broker in the background.
// onRequest, if non-nil, receives action requests from TopicAction.
func NewRealPublisher(broker string, onRequest RequestFunc) *RealPublisher {
	p := &RealPublisher{
		onRequest: onRequest,
		pending:   newRingBuffer(pendingCapacity),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("verbot-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	msgs := p.pending.drainAll()
	p.mu.Unlock()

	log.Printf("mqtt: connected (replaying %d buffered messages)", len(msgs))

	if token := c.Subscribe(TopicAction, 1, p.onAction); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("mqtt: subscribe %s: %v", TopicAction, token.Error())
	}

	for _, m := range msgs {
		if err := p.send(m); err != nil {
			log.Printf("mqtt: replay to %s: %v", m.topic, err)
		}
	}

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("mqtt: publish reconnected: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

func (p *RealPublisher) onAction(_ paho.Client, m paho.Message) {
	p.handleRequest(m.Payload())
}

func (p *RealPublisher) handleRequest(payload []byte) {
	a, err := ParseRequest(payload)
	if err != nil {
		log.Printf("mqtt: action request: %v", err)
		return
	}
	if p.onRequest == nil {
		return
	}
	if err := p.onRequest(a); err != nil {
		log.Printf("mqtt: action %s: %v", a, err)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Publish sends a state transition to the MQTT broker.
func (p *RealPublisher) Publish(t logic.Transition) error {
	payload, err := FormatPayload(t)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: TopicState, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so lifecycle events survive a flaky link
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// ToggleConversation signals the assistant process.
func (p *RealPublisher) ToggleConversation() error {
	payload, err := FormatAssistantPayload(time.Now())
	if err != nil {
		return fmt.Errorf("format assistant payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicAssistant, payload: payload, qos: 1})
}

// publish sends now when connected, otherwise buffers for replay.
func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.pending.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
