// Package mqtt wraps paho.mqtt.golang for lightlink: host-side message
// channels and the remote-service link both ride on it.
package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
)

// ErrNotConnected is returned when an operation requires a live broker
// connection.
var ErrNotConnected = errors.New("mqtt: not connected")

// Config are the broker connection settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Handler is the callback signature for received messages. Handlers run
// on paho goroutines and should not block.
type Handler func(topic string, payload []byte)

type subscription struct {
	topic   string
	handler Handler
}

// Client is a thin connection wrapper with automatic reconnection and
// re-subscription. All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    Config

	subs  map[string]subscription
	subMu sync.RWMutex

	onConnect func()
	cbMu      sync.RWMutex
}

// Connect establishes a connection to the broker and blocks until the
// initial attempt succeeds or times out. Later disconnects are retried
// by paho with backoff.
func Connect(cfg Config) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]subscription),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultConnectTimeout)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Str("client_id", cfg.ClientID).Msg("MQTT connected")
		c.restoreSubscriptions()
		c.cbMu.RLock()
		cb := c.onConnect
		c.cbMu.RUnlock()
		if cb != nil {
			cb()
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out after %v", cfg.Broker, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}

	return c, nil
}

// SetOnConnect registers a callback invoked on the initial connection
// and on every reconnect, after subscriptions are restored.
func (c *Client) SetOnConnect(cb func()) {
	c.cbMu.Lock()
	c.onConnect = cb
	c.cbMu.Unlock()

	if c.IsConnected() && cb != nil {
		cb()
	}
}

// IsConnected reports the current connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Publish sends a message. Fire-and-forget beyond the publish timeout.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return errors.New("mqtt: empty topic")
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.cfg.QoS, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out after %v", topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler; the subscription survives reconnects.
func (c *Client) Subscribe(topic string, handler Handler) error {
	if topic == "" {
		return errors.New("mqtt: empty topic")
	}
	if handler == nil {
		return errors.New("mqtt: nil handler")
	}

	c.subMu.Lock()
	c.subs[topic] = subscription{topic: topic, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, c.cfg.QoS, wrap(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("mqtt: subscribe to %s timed out after %v", topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe to %s: %w", topic, err)
	}
	return nil
}

// restoreSubscriptions re-subscribes to all tracked topics after a
// reconnect. Errors here are retried by the next reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subs {
		c.client.Subscribe(sub.topic, c.cfg.QoS, wrap(sub.handler))
	}
}

// Close disconnects from the broker with a short quiesce for pending
// publishes.
func (c *Client) Close() {
	if c.client == nil {
		return
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
}

// wrap adds panic recovery around a handler.
func wrap(handler Handler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("topic", msg.Topic()).Msg("MQTT handler panicked")
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}
