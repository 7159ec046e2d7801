package connect

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken is an already completed mqtt.Token
type MockToken struct {
	err error
}

// NewMockToken creates a completed token carrying err
func NewMockToken(err error) *MockToken {
	return &MockToken{err: err}
}

func (t *MockToken) Wait() bool                     { return true }
func (t *MockToken) WaitTimeout(time.Duration) bool { return true }
func (t *MockToken) Error() error                   { return t.err }

func (t *MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// MockMessage records one publish
type MockMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MockClient is an in-memory mqtt.Client for tests
type MockClient struct {
	mu           sync.RWMutex
	connected    bool
	connectError error
	publishError error
	routes       map[string]mqtt.MessageHandler
	published    []MockMessage
}

// NewMockClient creates a disconnected mock client
func NewMockClient() *MockClient {
	return &MockClient{routes: make(map[string]mqtt.MessageHandler)}
}

// SetConnected sets the connection state
func (c *MockClient) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// SetConnectError makes Connect fail with err
func (c *MockClient) SetConnectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectError = err
}

// SetPublishError makes Publish fail with err
func (c *MockClient) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishError = err
}

// Published returns a copy of every published message
func (c *MockClient) Published() []MockMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]MockMessage(nil), c.published...)
}

// Deliver hands payload to the handler subscribed to topic. It reports
// whether a handler was found.
func (c *MockClient) Deliver(topic string, payload []byte) bool {
	c.mu.RLock()
	handler, ok := c.routes[topic]
	c.mu.RUnlock()
	if !ok || handler == nil {
		return false
	}
	handler(c, &mockMessage{topic: topic, payload: payload})
	return true
}

func (c *MockClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *MockClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *MockClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectError == nil {
		c.connected = true
	}
	return NewMockToken(c.connectError)
}

func (c *MockClient) Disconnect(uint) {
	c.SetConnected(false)
}

func (c *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return NewMockToken(mqtt.ErrNotConnected)
	}
	if c.publishError != nil {
		return NewMockToken(c.publishError)
	}

	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}
	c.published = append(c.published, MockMessage{Topic: topic, Payload: data, QoS: qos, Retain: retained})
	return NewMockToken(nil)
}

func (c *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return c.SubscribeMultiple(map[string]byte{topic: qos}, callback)
}

func (c *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return NewMockToken(mqtt.ErrNotConnected)
	}
	for topic := range filters {
		c.routes[topic] = callback
	}
	return NewMockToken(nil)
}

func (c *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.routes, topic)
	}
	return NewMockToken(nil)
}

func (c *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[topic] = callback
}

func (c *MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockMessage implements mqtt.Message
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
