// Package remote implements the connection provider against the
// remote-service broker. Every broker (re)connect registers the device
// with its current snapshot and yields a fresh connection handle;
// retry and backoff policy stay with the MQTT layer.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightlink/internal/config"
	"github.com/dokzlo13/lightlink/internal/conn"
	"github.com/dokzlo13/lightlink/internal/light"
	"github.com/dokzlo13/lightlink/internal/mqtt"
)

// registration is the payload announcing the device to the service.
type registration struct {
	RegistrationID string     `json:"registrationId"`
	Token          string     `json:"token,omitempty"`
	Device         deviceInfo `json:"device"`
	Online         bool       `json:"online"`
	State          wireState  `json:"state"`
}

type deviceInfo struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	Room       string `json:"room,omitempty"`
	Brightness bool   `json:"brightnessControl"`
	Color      bool   `json:"colorControl"`
}

// Provider produces connection handles over the remote-service broker.
type Provider struct {
	client *mqtt.Client
	cfg    config.RemoteConfig

	mu       sync.Mutex
	current  *handle
	snapshot func() light.State
}

// NewProvider creates a provider over an already-connected client.
func NewProvider(client *mqtt.Client, cfg config.RemoteConfig) *Provider {
	return &Provider{client: client, cfg: cfg}
}

// Register announces the device and returns the handle stream. A fresh
// handle is emitted for the current connection and for every reconnect;
// the stream closes when ctx is cancelled.
func (p *Provider) Register(ctx context.Context, desc conn.Descriptor) (<-chan conn.Handle, error) {
	if desc.ID == "" {
		return nil, errors.New("remote: descriptor needs a device ID")
	}
	if desc.Snapshot == nil {
		return nil, errors.New("remote: descriptor needs a snapshot source")
	}

	p.mu.Lock()
	p.snapshot = desc.Snapshot
	p.mu.Unlock()

	stateTopic := p.topic(desc.ID, "state")
	errorTopic := p.topic(desc.ID, "error")

	// One subscription per topic; events are routed to whichever handle
	// is current, so reconnect handles do not stack subscriptions.
	err := p.client.Subscribe(stateTopic, func(_ string, raw []byte) {
		p.deliverState(raw)
	})
	if err != nil {
		return nil, err
	}
	err = p.client.Subscribe(errorTopic, func(_ string, raw []byte) {
		p.deliverError(errors.New(string(raw)))
	})
	if err != nil {
		return nil, err
	}

	out := make(chan conn.Handle, 1)

	p.client.SetOnConnect(func() {
		if ctx.Err() != nil {
			return
		}
		h, err := p.register(desc)
		if err != nil {
			log.Warn().Err(err).Str("device", desc.ID).Msg("Device registration publish failed")
			return
		}
		select {
		case out <- h:
		case <-ctx.Done():
		default:
			log.Warn().Str("device", desc.ID).Msg("Handle not consumed, dropping")
		}
	})

	// Handle channel stays open; consumers stop via ctx.
	go func() {
		<-ctx.Done()
		p.goOffline(desc)
	}()

	return out, nil
}

// register publishes the registration payload and swaps in a fresh
// handle seeded with the current snapshot.
func (p *Provider) register(desc conn.Descriptor) (*handle, error) {
	snapshot := desc.Snapshot()

	reg := registration{
		RegistrationID: uuid.NewString(),
		Token:          p.cfg.Token,
		Device: deviceInfo{
			ID:         desc.ID,
			Type:       desc.Type,
			Name:       desc.Name,
			Room:       desc.Room,
			Brightness: desc.Caps.Brightness,
			Color:      desc.Caps.Color,
		},
		Online: true,
		State:  encodeState(snapshot, desc.Caps),
	}
	raw, err := json.Marshal(reg)
	if err != nil {
		return nil, err
	}
	if err := p.client.Publish(p.topic(desc.ID, "register"), raw, true); err != nil {
		return nil, err
	}

	h := newHandle(p.client, p.topic(desc.ID, "set"), desc.Caps)

	p.mu.Lock()
	old := p.current
	p.current = h
	p.mu.Unlock()
	if old != nil {
		old.close()
	}

	log.Info().Str("device", desc.ID).Str("registration", reg.RegistrationID).Msg("Device registered with remote service")
	return h, nil
}

// goOffline tells the service the device is gone. Best effort.
func (p *Provider) goOffline(desc conn.Descriptor) {
	raw, err := json.Marshal(registration{
		Device: deviceInfo{ID: desc.ID, Type: desc.Type, Name: desc.Name},
		Online: false,
	})
	if err != nil {
		return
	}
	if err := p.client.Publish(p.topic(desc.ID, "register"), raw, true); err != nil {
		log.Debug().Err(err).Str("device", desc.ID).Msg("Offline publish failed")
	}
}

func (p *Provider) deliverState(raw []byte) {
	p.mu.Lock()
	h := p.current
	snap := p.snapshot
	p.mu.Unlock()
	if h == nil {
		return
	}

	// Omitted fields fill from the live snapshot, not the one the handle
	// was registered with, so a partial event long after registration
	// cannot resurrect stale brightness or color.
	s, err := decodeState(raw, snap())
	if err != nil {
		h.deliverError(fmt.Errorf("remote: bad state event: %w", err))
		return
	}
	h.deliverState(s)
}

func (p *Provider) deliverError(err error) {
	p.mu.Lock()
	h := p.current
	p.mu.Unlock()
	if h != nil {
		h.deliverError(err)
	}
}

func (p *Provider) topic(deviceID, leaf string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, deviceID, leaf)
}

// handle is one live registration with the remote service.
type handle struct {
	client   *mqtt.Client
	setTopic string
	caps     light.Caps

	state chan light.State
	errs  chan error

	closeOnce sync.Once
	closed    chan struct{}
}

func newHandle(client *mqtt.Client, setTopic string, caps light.Caps) *handle {
	return &handle{
		client:   client,
		setTopic: setTopic,
		caps:     caps,
		state:    make(chan light.State, 16),
		errs:     make(chan error, 16),
		closed:   make(chan struct{}),
	}
}

func (h *handle) State() <-chan light.State { return h.state }
func (h *handle) Errors() <-chan error      { return h.errs }

// PushUpdate publishes a snapshot to the device's set topic.
// Fire-and-forget: failures are logged, not returned.
func (h *handle) PushUpdate(s light.State) {
	raw, err := json.Marshal(encodeState(s, h.caps))
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode state update")
		return
	}
	if err := h.client.Publish(h.setTopic, raw, false); err != nil {
		log.Warn().Err(err).Str("topic", h.setTopic).Msg("State push failed")
	}
}

func (h *handle) deliverState(s light.State) {
	select {
	case <-h.closed:
		return
	default:
	}
	select {
	case h.state <- s:
	default:
		log.Warn().Msg("Remote state feed full, dropping event")
	}
}

func (h *handle) deliverError(err error) {
	select {
	case <-h.closed:
		return
	default:
	}
	select {
	case h.errs <- err:
	default:
		log.Warn().Err(err).Msg("Remote error feed full, dropping")
	}
}

// close marks the handle replaced. The feed channels stay open: their
// consumers are cancelled by the handle switch, so stray buffered
// events are simply never read.
func (h *handle) close() {
	h.closeOnce.Do(func() {
		close(h.closed)
	})
}
