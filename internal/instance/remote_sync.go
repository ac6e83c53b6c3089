package instance

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightlink/internal/conn"
	"github.com/dokzlo13/lightlink/internal/light"
	"github.com/dokzlo13/lightlink/internal/message"
)

// runRemoteSync consumes remote-originated state events from the
// current handle, switching to each replacement handle as it appears.
func (i *Instance) runRemoteSync() {
	i.switchHandles(func(ctx context.Context, h conn.Handle) {
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-h.State():
				if !ok {
					return
				}
				i.applyRemote(s)
			}
		}
	})
}

// runErrorForward surfaces every remote-reported error on the warning
// sink, verbatim. No retry, no state mutation.
func (i *Instance) runErrorForward() {
	i.switchHandles(func(ctx context.Context, h conn.Handle) {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-h.Errors():
				if !ok {
					return
				}
				i.warn(err)
				i.record("remote_error", map[string]any{"error": err.Error()})
			}
		}
	})
}

// switchHandles runs consume against the current handle, cancelling it
// whenever the multiplexer produces a replacement.
func (i *Instance) switchHandles(consume func(ctx context.Context, h conn.Handle)) {
	handles := i.mux.Observe(i.ctx)

	var cancel context.CancelFunc
	defer func() {
		if cancel != nil {
			cancel()
		}
	}()

	for {
		select {
		case <-i.ctx.Done():
			return
		case h, ok := <-handles:
			if !ok {
				return
			}
			if cancel != nil {
				cancel()
			}
			var hctx context.Context
			hctx, cancel = context.WithCancel(i.ctx)
			go consume(hctx, h)
		}
	}
}

// applyRemote handles one remote state event: status notification from
// the incoming event as-is, merge of the accepted fields into the
// store, and exactly one outbound message. The remote is the source of
// truth for these fields, so all three happen even when the merge
// changes nothing.
func (i *Instance) applyRemote(incoming light.State) {
	if i.closed() {
		return
	}
	log.Debug().Str("device", i.opts.ID).Bool("on", incoming.On).Msg("Remote state event")

	i.status(incoming)

	merged := i.store.Update(func(cur light.State) light.State {
		cur.On = incoming.On
		if i.opts.Caps.Brightness {
			cur.Brightness = incoming.Brightness
		}
		if i.opts.Caps.Color {
			cur.Color = incoming.Color
		}
		return cur
	})

	i.emit(message.Message{
		Topic:   i.opts.OutTopic,
		Payload: i.outboundPayload(merged),
	})
	i.record("remote_update", map[string]any{"on": merged.On, "brightness": merged.Brightness})
}

// outboundPayload shapes the message emitted for a state, depending on
// the configured capability set and payload mode.
func (i *Instance) outboundPayload(s light.State) any {
	if !i.opts.Caps.Brightness {
		if s.On {
			return i.opts.OnValue
		}
		return i.opts.OffValue
	}

	if i.opts.Structured {
		obj := map[string]any{
			"on":         s.On,
			"brightness": s.Brightness,
		}
		if i.opts.Caps.Color {
			obj["color"] = map[string]any{
				"spectrumHSV": map[string]any{
					"hue":        s.Color.Hue,
					"saturation": s.Color.Saturation,
					"value":      s.Color.Value,
				},
			}
		}
		return obj
	}

	if s.On {
		return s.Brightness
	}
	return 0
}
