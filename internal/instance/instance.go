// Package instance implements the state-synchronization core for a
// single light device: command ingestion, local/remote synchronizers,
// error forwarding and one-shot teardown, all around the canonical
// state store and a shared remote connection handle.
package instance

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightlink/internal/conn"
	"github.com/dokzlo13/lightlink/internal/light"
	"github.com/dokzlo13/lightlink/internal/message"
)

// Emitter receives outbound messages derived from remote state events
// (and passthrough copies of inbound messages when enabled).
type Emitter interface {
	Emit(msg message.Message)
}

// StatusSink receives short human-readable status strings.
type StatusSink interface {
	SetStatus(text string)
}

// WarnSink receives validation errors and forwarded remote errors.
type WarnSink interface {
	Warn(err error)
}

// Recorder receives instance activity for the diagnostics ledger.
type Recorder interface {
	Record(event string, payload map[string]any)
}

// Sinks bundles the produced channels of an instance. Emitter, Status
// and Warn are required; Recorder may be nil.
type Sinks struct {
	Emitter  Emitter
	Status   StatusSink
	Warn     WarnSink
	Recorder Recorder
}

// Options is the static per-instance configuration. Capability flags
// and mode selection never change after construction.
type Options struct {
	ID   string
	Name string
	Room string

	Caps light.Caps

	// Structured selects object-shaped payloads; only meaningful when
	// Caps.Brightness is set.
	Structured bool

	// BrightnessOverride is applied when a raw-numeric 0 powers the
	// device off, so it remembers a usable brightness to return to.
	// Zero means leave brightness unchanged.
	BrightnessOverride int

	// OnValue/OffValue are the resolved payloads used by simple on/off
	// ingestion and by outbound messages when brightness is disabled.
	OnValue  any
	OffValue any

	// Passthrough re-emits every raw inbound message before processing.
	Passthrough bool

	// OutTopic is stamped on every outbound message.
	OutTopic string
}

// Instance is the synchronization core for exactly one device.
type Instance struct {
	opts  Options
	store *light.Store
	mux   *conn.Mux
	sinks Sinks

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New wires a core around the given provider and sinks. Nothing runs
// until Start.
func New(opts Options, provider conn.Provider, sinks Sinks) *Instance {
	ctx, cancel := context.WithCancel(context.Background())

	store := light.NewStore(opts.Caps)
	desc := conn.Descriptor{
		ID:       opts.ID,
		Type:     "light",
		Name:     opts.Name,
		Room:     opts.Room,
		Caps:     opts.Caps,
		Snapshot: store.Current,
	}

	return &Instance{
		opts:   opts,
		store:  store,
		mux:    conn.NewMux(provider, desc),
		sinks:  sinks,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the reactive pipelines. The remote connection itself
// is still established lazily by the multiplexer.
func (i *Instance) Start() {
	i.wg.Add(3)
	go func() { defer i.wg.Done(); i.runLocalSync() }()
	go func() { defer i.wg.Done(); i.runRemoteSync() }()
	go func() { defer i.wg.Done(); i.runErrorForward() }()
}

// State returns the current canonical snapshot.
func (i *Instance) State() light.State {
	return i.store.Current()
}

// Close tears the instance down: all pipelines stop, the provider
// registration is cancelled and the state feed completes. Idempotent;
// events arriving afterwards are ignored.
func (i *Instance) Close() {
	i.closeOnce.Do(func() {
		log.Debug().Str("device", i.opts.ID).Msg("Closing device instance")
		i.cancel()
		i.mux.Close()
		i.store.Close()
		i.wg.Wait()
	})
}

func (i *Instance) closed() bool {
	return i.ctx.Err() != nil
}

// emit forwards a message to the outbound channel unless closed.
func (i *Instance) emit(msg message.Message) {
	if i.closed() {
		return
	}
	i.sinks.Emitter.Emit(msg)
}

// status publishes the formatted snapshot to the display channel.
func (i *Instance) status(s light.State) {
	if i.closed() {
		return
	}
	i.sinks.Status.SetStatus(light.Format(s, i.opts.Caps))
}

func (i *Instance) warn(err error) {
	if i.closed() {
		return
	}
	log.Warn().Err(err).Str("device", i.opts.ID).Msg("Device warning")
	i.sinks.Warn.Warn(err)
}

func (i *Instance) record(event string, payload map[string]any) {
	if i.sinks.Recorder == nil || i.closed() {
		return
	}
	i.sinks.Recorder.Record(event, payload)
}
