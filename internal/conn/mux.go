package conn

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightlink/internal/pubsub"
)

// Mux turns the provider's handle stream into a shared, cached "current
// handle". Registration happens lazily on the first observer; every
// later observer receives the most recent handle immediately and then
// switches along with everyone else whenever the provider emits a new
// one. Closing the mux cancels the registration; observers simply see
// no further handles.
type Mux struct {
	provider Provider
	desc     Descriptor

	feed *pubsub.Feed[Handle]

	startOnce sync.Once
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewMux creates a multiplexer for one device registration. Nothing is
// registered until the first Observe call.
func NewMux(provider Provider, desc Descriptor) *Mux {
	ctx, cancel := context.WithCancel(context.Background())
	return &Mux{
		provider: provider,
		desc:     desc,
		feed:     pubsub.NewFeed[Handle](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Observe returns a feed of current handles: the cached one first (if
// any), then each replacement. The first call triggers registration.
func (m *Mux) Observe(ctx context.Context) <-chan Handle {
	m.startOnce.Do(m.start)
	return m.feed.Subscribe(ctx)
}

func (m *Mux) start() {
	handles, err := m.provider.Register(m.ctx, m.desc)
	if err != nil {
		// Dependent pipelines stall without a handle; the instance
		// itself keeps running.
		log.Warn().Err(err).Str("device", m.desc.ID).Msg("Device registration failed, no remote link")
		m.feed.Close()
		return
	}

	go func() {
		defer m.feed.Close()
		for {
			select {
			case <-m.ctx.Done():
				return
			case h, ok := <-handles:
				if !ok {
					log.Debug().Str("device", m.desc.ID).Msg("Provider handle stream ended")
					return
				}
				log.Info().Str("device", m.desc.ID).Msg("Remote connection handle available")
				m.feed.Publish(h)
			}
		}
	}()
}

// Close cancels the provider registration and completes all observers.
// Idempotent.
func (m *Mux) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.feed.Close()
	})
}
