package instance

import (
	"encoding/json"
	"fmt"

	"github.com/dokzlo13/lightlink/internal/light"
	"github.com/dokzlo13/lightlink/internal/message"
	"github.com/dokzlo13/lightlink/internal/payload"
)

// HandleMessage ingests one inbound external message. The mode is fixed
// by static configuration: simple on/off when brightness control is
// disabled, structured object payloads when enabled and configured, raw
// numeric brightness otherwise.
func (i *Instance) HandleMessage(msg message.Message) {
	if i.closed() {
		return
	}

	if i.opts.Passthrough {
		// Forward on the output channel, never the inbound topic: the
		// bridge subscribes to the command topic, and republishing there
		// would feed the message straight back in.
		i.emit(message.Message{Topic: i.opts.OutTopic, Payload: msg.Payload})
	}

	switch {
	case !i.opts.Caps.Brightness:
		i.ingestSimple(msg.Payload)
	case i.opts.Structured:
		i.ingestStructured(msg.Payload)
	default:
		i.ingestRawBrightness(msg.Payload)
	}
}

// ingestSimple compares the payload against the resolved on/off values.
// A payload matching neither is a silent no-op.
func (i *Instance) ingestSimple(p any) {
	var on bool
	switch {
	case payload.Equal(p, i.opts.OnValue):
		on = true
	case payload.Equal(p, i.opts.OffValue):
		on = false
	default:
		return
	}

	i.store.Update(func(cur light.State) light.State {
		cur.On = on
		return cur
	})
	i.record("command_accepted", map[string]any{"mode": "simple", "on": on})
}

// ingestStructured validates and applies up to three independent fields
// from an object payload. Zero accepted fields is not an error; a
// non-object payload is.
func (i *Instance) ingestStructured(p any) {
	obj, ok := p.(map[string]any)
	if !ok || obj == nil {
		i.reject(fmt.Errorf("expected object payload like {on, brightness, color: {spectrumHSV: {hue, saturation, value}}}, got %s", describePayload(p)))
		return
	}

	var (
		on    *bool
		bri   *int
		color *light.HSV
	)

	// A color field on a device without color control is ignored, not
	// accepted: a color-only payload stays a silent no-op.
	if i.opts.Caps.Color {
		if c, ok := obj["color"].(map[string]any); ok {
			if sp, ok := c["spectrumHSV"].(map[string]any); ok {
				hue, hok := finiteNumber(sp["hue"])
				sat, sok := finiteNumber(sp["saturation"])
				val, vok := finiteNumber(sp["value"])
				// All three components or the color field is ignored.
				if hok && sok && vok {
					clamped := light.ClampColor(light.HSV{Hue: hue, Saturation: sat, Value: val})
					color = &clamped
				}
			}
		}
	}

	if b, ok := finiteNumber(obj["brightness"]); ok {
		v := light.ClampBrightness(b)
		bri = &v
	}

	if o, ok := obj["on"].(bool); ok {
		on = &o
	}

	if on == nil && bri == nil && color == nil {
		return
	}

	i.store.Update(func(cur light.State) light.State {
		if on != nil {
			cur.On = *on
		}
		if bri != nil {
			cur.Brightness = *bri
		}
		if color != nil {
			cur.Color = *color
		}
		return cur
	})
	i.record("command_accepted", map[string]any{"mode": "structured"})
}

// ingestRawBrightness interprets a bare number: 0 powers off (restoring
// the configured override brightness when set), anything else powers on
// at the clamped brightness.
func (i *Instance) ingestRawBrightness(p any) {
	v, ok := finiteNumber(p)
	if !ok {
		i.reject(fmt.Errorf("expected numeric brightness in range 0-100, got %s", describePayload(p)))
		return
	}

	n := light.ClampBrightness(v)
	off := v < 0.5 // rounds to 0

	i.store.Update(func(cur light.State) light.State {
		if off {
			cur.On = false
			if i.opts.BrightnessOverride != 0 {
				cur.Brightness = i.opts.BrightnessOverride
			}
			return cur
		}
		cur.On = true
		cur.Brightness = n
		return cur
	})
	i.record("command_accepted", map[string]any{"mode": "raw", "value": v})
}

func (i *Instance) reject(err error) {
	i.warn(err)
	i.record("command_rejected", map[string]any{"error": err.Error()})
}

// finiteNumber extracts a usable number from a decoded payload value.
// NaN and infinities fail the check: they are rejected, not clamped.
func finiteNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if !light.Finite(f) {
		return 0, false
	}
	return f, true
}

func describePayload(p any) string {
	if p == nil {
		return "null"
	}
	return fmt.Sprintf("%T", p)
}
