package mqtt

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightlink/internal/config"
	"github.com/dokzlo13/lightlink/internal/instance"
	"github.com/dokzlo13/lightlink/internal/message"
)

// Bridge wires a device instance to the host-side broker: the command
// topic feeds ingestion, and the instance's produced channels are
// published back out. It implements the instance sink interfaces.
type Bridge struct {
	client *Client
	cfg    config.MQTTConfig
	inst   *instance.Instance
}

// NewBridge creates a bridge over an already-connected client. Bind the
// instance before Start.
func NewBridge(client *Client, cfg config.MQTTConfig) *Bridge {
	return &Bridge{client: client, cfg: cfg}
}

// Bind attaches the instance whose messages this bridge carries.
func (b *Bridge) Bind(inst *instance.Instance) {
	b.inst = inst
}

// Start subscribes to the command topic.
func (b *Bridge) Start() error {
	return b.client.Subscribe(b.cfg.CommandTopic, func(topic string, payload []byte) {
		b.inst.HandleMessage(message.Message{
			Topic:   topic,
			Payload: decodePayload(payload),
		})
	})
}

// decodePayload turns raw bytes into the loosely-typed payload shape
// ingestion expects. Non-JSON bytes pass through as a string.
func decodePayload(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// Emit publishes an outbound message. String payloads go out raw, all
// other shapes as JSON.
func (b *Bridge) Emit(msg message.Message) {
	topic := msg.Topic
	if topic == "" {
		topic = b.cfg.OutputTopic
	}

	var raw []byte
	if s, ok := msg.Payload.(string); ok {
		raw = []byte(s)
	} else {
		encoded, err := json.Marshal(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Failed to encode outbound payload")
			return
		}
		raw = encoded
	}

	if err := b.client.Publish(topic, raw, false); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to publish outbound message")
	}
}

// SetStatus publishes the status string, retained so dashboards pick up
// the latest state immediately.
func (b *Bridge) SetStatus(text string) {
	if err := b.client.Publish(b.cfg.StatusTopic, []byte(text), true); err != nil {
		log.Warn().Err(err).Msg("Failed to publish status")
	}
}

// Warn forwards a warning to the warning topic.
func (b *Bridge) Warn(err error) {
	if perr := b.client.Publish(b.cfg.WarningTopic, []byte(err.Error()), false); perr != nil {
		log.Warn().Err(perr).Msg("Failed to publish warning")
	}
}
