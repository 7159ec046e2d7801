package connect

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// CommandHandler is called with the metric selection of a remote calculate
// command.
type CommandHandler func(sel Selection)

// MQTTClient owns the broker connection used to publish project events and
// receive calculate commands.
type MQTTClient struct {
	client         mqtt.Client
	prefix         string
	commandHandler CommandHandler
	isConnected    bool
	stop           chan struct{}
	stopOnce       sync.Once
	mu             sync.RWMutex
}

// ResolvePublishPrefix returns the topic prefix: MQTT_PUBLISH_PREFIX, then the
// config value, then "marxanconnect".
func ResolvePublishPrefix(config *Config) string {
	if prefix := os.Getenv("MQTT_PUBLISH_PREFIX"); prefix != "" {
		return prefix
	}
	if config != nil && config.MQTT.PublishPrefix != "" {
		return config.MQTT.PublishPrefix
	}
	return "marxanconnect"
}

// CommandTopic is the topic calculate commands arrive on
func CommandTopic(prefix string) string {
	return prefix + "/command/calculate"
}

// EventsTopic is the topic project events are published to
func EventsTopic(prefix string) string {
	return prefix + "/events"
}

// InitMQTT connects to the broker named by MQTT_BROKER or the config. With
// neither set MQTT is disabled and InitMQTT returns nil, nil.
func InitMQTT(config *Config, handler CommandHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}
	if broker == "" {
		log.Println("[MQTT] disabled: no broker configured")
		return nil, nil
	}

	c := &MQTTClient{
		prefix:         ResolvePublishPrefix(config),
		commandHandler: handler,
		stop:           make(chan struct{}),
	}
	opts := newClientOptions(broker, config)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	go c.connectWithRetry()

	return c, nil
}

// newClientOptions builds the paho options for broker, reading credentials
// from the environment first and then the config.
func newClientOptions(broker string, config *Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config != nil {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "marxanconnect"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config != nil {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config != nil {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep the command subscription across reconnects
	// Commands run for as long as a metric calculation takes; let paho
	// deliver them on their own goroutines instead of its router.
	opts.SetOrderMatters(false)
	return opts
}

// newMQTTClientWithMock wraps an existing client, for tests
func newMQTTClientWithMock(client mqtt.Client, prefix string, handler CommandHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		prefix:         prefix,
		commandHandler: handler,
		stop:           make(chan struct{}),
	}
}

// connectWithRetry connects with exponential backoff until it succeeds or
// Disconnect is called.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")
		token := c.client.Connect()
		if token.WaitTimeout(10*time.Second) && token.Error() == nil {
			log.Println("[MQTT] connected")
			c.setConnected(true)
			return
		}
		if token.Error() != nil {
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying in %v", retryDelay)
		select {
		case <-c.stop:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the command topic
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := CommandTopic(c.prefix)
	token := client.Subscribe(topic, 1, c.handleCommand)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] error subscribing to %s: %v", topic, token.Error())
		return
	}
	log.Printf("[MQTT] subscribed to %s", topic)
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// handleCommand decodes a calculate command payload
func (c *MQTTClient) handleCommand(client mqtt.Client, msg mqtt.Message) {
	var sel Selection
	if err := json.Unmarshal(msg.Payload(), &sel); err != nil {
		log.Printf("[MQTT] ignoring malformed command on %s: %v", msg.Topic(), err)
		return
	}
	if sel.Space != "" && !sel.Space.Valid() {
		log.Printf("[MQTT] ignoring command with unknown space %q", sel.Space)
		return
	}
	if sel.Empty() {
		log.Printf("[MQTT] ignoring command with nothing selected")
		return
	}

	if c.commandHandler != nil {
		c.commandHandler(sel)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Prefix returns the topic prefix
func (c *MQTTClient) Prefix() string {
	return c.prefix
}

// GetClient returns the underlying client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// Disconnect stops reconnect attempts and closes the connection
func (c *MQTTClient) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting...")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

// String describes the client for startup output
func (c *MQTTClient) String() string {
	return fmt.Sprintf("commands on %s, events on %s", CommandTopic(c.prefix), EventsTopic(c.prefix))
}
