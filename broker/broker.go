package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"modelmap/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Config holds the MQTT connection settings.
type Config struct {
	URL         string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Message is the envelope published for every event.
type Message struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewMessage wraps data in an envelope stamped with now.
func NewMessage(eventType string, data interface{}, now time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Event:     eventType,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// BuildTopic returns "<prefix>/events/<eventType>". Dots in the event type become slashes so
// subscribers can filter with MQTT wildcards.
func BuildTopic(prefix, eventType string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "modelmap"
	}
	return fmt.Sprintf("%s/events/%s", prefix, strings.ReplaceAll(eventType, ".", "/"))
}

// Publisher handles publishing messages to broker
type Publisher struct {
	client mqtt.Client
	prefix string
}

// NewPublisher creates a new MQTT publisher
func NewPublisher(cfg Config) (*Publisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "modelmap"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("[broker] Connected to message broker %s", cfg.URL)
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Warn("[broker] Connection lost: %v", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if token.WaitTimeout(10 * time.Second) {
		if token.Error() != nil {
			return nil, fmt.Errorf("failed to connect to broker: %w", token.Error())
		}
	} else {
		// Stop the background connect retries.
		client.Disconnect(0)
		return nil, fmt.Errorf("broker connection timeout")
	}

	return &Publisher{client: client, prefix: cfg.TopicPrefix}, nil
}

// Publish sends data as a JSON envelope to the event's topic.
func (p *Publisher) Publish(eventType string, data interface{}) error {
	topic := BuildTopic(p.prefix, eventType)
	payload, err := json.Marshal(NewMessage(eventType, data, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	token := p.client.Publish(topic, 1, false, payload)
	if token.WaitTimeout(5 * time.Second) {
		if token.Error() != nil {
			return fmt.Errorf("failed to publish: %w", token.Error())
		}
	} else {
		return fmt.Errorf("publish timeout")
	}

	logger.Debug("[broker] Published to %s", topic)
	return nil
}

// Close closes the broker connection
func (p *Publisher) Close() {
	p.client.Disconnect(1000)
	logger.Info("[broker] Disconnected from message broker")
}
