// Package message defines the shape shared by the inbound command
// channel and the outbound notification channel.
package message

// Message is a loosely-typed message with a routing topic. Payload is
// whatever the transport decoded, typically the result of a JSON
// unmarshal into any (map[string]any, []any, float64, string, bool).
type Message struct {
	Topic   string
	Payload any
}
