package instance

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightlink/internal/conn"
	"github.com/dokzlo13/lightlink/internal/light"
)

// runLocalSync pushes every local state change to the current remote
// handle and mirrors it on the status display.
//
// The first (handle, state) pair after each new handle is suppressed:
// the handle was constructed around that snapshot, so pushing it back
// would echo state the remote already has. Only strictly later local
// changes are communicated.
func (i *Instance) runLocalSync() {
	handles := i.mux.Observe(i.ctx)
	states := i.store.Changes(i.ctx)

	var handle conn.Handle
	var current light.State
	hasState := false
	skipNext := false

	for {
		select {
		case <-i.ctx.Done():
			return

		case h, ok := <-handles:
			if !ok {
				// No further handles; nothing left to push to.
				handles = nil
				continue
			}
			handle = h
			if hasState {
				// The pair (h, current) fires now and is the
				// construction-time echo: suppress it.
				skipNext = false
			} else {
				// The first incoming state completes the pair.
				skipNext = true
			}

		case s, ok := <-states:
			if !ok {
				return
			}
			current = s
			hasState = true
			if handle == nil {
				continue
			}
			if skipNext {
				skipNext = false
				continue
			}
			i.pushLocal(handle, current)
		}
	}
}

func (i *Instance) pushLocal(handle conn.Handle, s light.State) {
	if i.closed() {
		return
	}
	log.Debug().Str("device", i.opts.ID).Bool("on", s.On).Msg("Pushing local state to remote")
	handle.PushUpdate(s)
	i.status(s)
	i.record("state_pushed", map[string]any{"on": s.On, "brightness": s.Brightness})
}
