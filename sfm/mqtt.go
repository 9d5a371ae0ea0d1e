package sfm

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// SceneHandler is called when a scene payload arrives on a source topic.
// scene is nil when the payload could not be decoded; err says why.
type SceneHandler func(sourceID string, scene *Scene, err error)

// MQTTClient manages the MQTT connection and the scene source subscriptions
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	handler     SceneHandler
	isConnected bool
	mu          sync.RWMutex
}

// envOr returns the environment variable key, or fallback when it is unset
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// InitMQTT creates an MQTT client for the configured sources and starts
// connecting in the background. MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME
// and MQTT_PASSWORD override the config. With no broker at all MQTT is
// disabled and InitMQTT returns nil, nil.
func InitMQTT(config *Config, handler SceneHandler) (*MQTTClient, error) {
	var mc MQTTConfig
	if config != nil {
		mc = config.MQTT
	}

	broker := envOr("MQTT_BROKER", mc.Broker)
	if broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Sources) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no source configuration provided")
	}

	client := &MQTTClient{
		config:  config,
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	clientID := envOr("MQTT_CLIENT_ID", mc.ClientID)
	if clientID == "" {
		clientID = "sfmclean"
	}
	opts.SetClientID(clientID)

	if username := envOr("MQTT_USERNAME", mc.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", mc.Password))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep subscriptions across reconnects
	// Scenes are independent, so they may be handled concurrently.
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// connectWithRetry attempts to connect to the broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay = min(retryDelay*2, maxRetryDelay)
	}
}

// onConnect subscribes to every source topic
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("[MQTT] connected, subscribing to scene topics...")
	c.setConnected(true)

	for _, src := range c.config.Sources {
		if src.Topic == "" {
			continue
		}

		log.Printf("[MQTT] subscribing to %s for source %s", src.Topic, src.ID)
		token := client.Subscribe(src.Topic, 1, c.createMessageHandler(src.ID))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] error subscribing to %s: %v", src.Topic, token.Error())
		}
	}
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

// createMessageHandler decodes scene payloads for one source. A scene
// without its own id takes the source id.
func (c *MQTTClient) createMessageHandler(sourceID string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("[MQTT] received scene for %s (topic: %s, size: %d bytes)",
			sourceID, msg.Topic(), len(payload))

		if c.handler == nil {
			return
		}

		scene, err := DecodeScenePayload(payload)
		if err != nil {
			log.Printf("[MQTT] error decoding scene for %s: %v", sourceID, err)
			c.handler(sourceID, nil, err)
			return
		}
		if scene.ID == "" {
			scene.ID = sourceID
		}
		c.handler(sourceID, scene, nil)
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

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetSourceByTopic returns the source id subscribed to topic
func (c *MQTTClient) GetSourceByTopic(topic string) (string, bool) {
	for _, src := range c.config.Sources {
		if src.Topic == topic {
			return src.ID, true
		}
	}
	return "", false
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// NewMQTTClientWithMock wraps an existing mqtt.Client, typically a
// MockClient, and subscribes immediately if it is already connected.
func NewMQTTClientWithMock(client mqtt.Client, config *Config, handler SceneHandler) *MQTTClient {
	c := &MQTTClient{
		client:  client,
		config:  config,
		handler: handler,
	}
	if client.IsConnected() {
		c.onConnect(client)
	}
	return c
}
