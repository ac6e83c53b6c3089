// Package conn defines the remote connection contract and the handle
// multiplexer that shares one lazily-established connection across all
// instance pipelines.
package conn

import (
	"context"

	"github.com/dokzlo13/lightlink/internal/light"
)

// Handle is an active link to the remote representation of the device.
// Its lifetime is owned by the provider; this package only shares it.
type Handle interface {
	// State yields remote-originated state updates.
	State() <-chan light.State
	// Errors yields remote-reported errors.
	Errors() <-chan error
	// PushUpdate sends a local snapshot to the remote. Fire-and-forget:
	// delivery failures surface on Errors, not here.
	PushUpdate(state light.State)
}

// Descriptor is the static identity a device registers with.
//
// Snapshot is read at every (re)registration so each produced handle is
// constructed around the then-current canonical snapshot.
type Descriptor struct {
	ID       string
	Type     string
	Name     string
	Room     string
	Caps     light.Caps
	Snapshot func() light.State
}

// Provider produces connection handles for a registered device. A new
// handle on the stream replaces the previous one (e.g. after a
// reconnect). The stream ends when registration is cancelled or the
// provider gives up; retry policy belongs to the provider.
type Provider interface {
	Register(ctx context.Context, desc Descriptor) (<-chan Handle, error)
}
