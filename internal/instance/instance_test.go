package instance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/lightlink/internal/conn"
	"github.com/dokzlo13/lightlink/internal/light"
	"github.com/dokzlo13/lightlink/internal/message"
)

// fakeHandle is an in-memory remote connection for pipeline tests.
type fakeHandle struct {
	state  chan light.State
	errs   chan error
	pushed chan light.State
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		state:  make(chan light.State, 16),
		errs:   make(chan error, 16),
		pushed: make(chan light.State, 16),
	}
}

func (f *fakeHandle) State() <-chan light.State    { return f.state }
func (f *fakeHandle) Errors() <-chan error         { return f.errs }
func (f *fakeHandle) PushUpdate(state light.State) { f.pushed <- state }

// fakeProvider hands out a pre-arranged handle stream.
type fakeProvider struct {
	handles chan conn.Handle
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{handles: make(chan conn.Handle, 4)}
}

func (p *fakeProvider) Register(ctx context.Context, desc conn.Descriptor) (<-chan conn.Handle, error) {
	return p.handles, nil
}

// recordingSinks captures everything the instance produces.
type recordingSinks struct {
	mu       sync.Mutex
	messages []message.Message
	statuses []string
	warnings []error

	emitted chan message.Message
	warned  chan error
}

func newRecordingSinks() *recordingSinks {
	return &recordingSinks{
		emitted: make(chan message.Message, 16),
		warned:  make(chan error, 16),
	}
}

func (r *recordingSinks) Emit(msg message.Message) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.emitted <- msg
}

func (r *recordingSinks) SetStatus(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, text)
}

func (r *recordingSinks) Warn(err error) {
	r.mu.Lock()
	r.warnings = append(r.warnings, err)
	r.mu.Unlock()
	r.warned <- err
}

func (r *recordingSinks) sinks() Sinks {
	return Sinks{Emitter: r, Status: r, Warn: r}
}

func (r *recordingSinks) warningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

func (r *recordingSinks) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func newTestInstance(t *testing.T, opts Options) (*Instance, *fakeProvider, *recordingSinks) {
	t.Helper()
	if opts.ID == "" {
		opts.ID = "dev-test"
	}
	p := newFakeProvider()
	s := newRecordingSinks()
	inst := New(opts, p, s.sinks())
	inst.Start()
	t.Cleanup(inst.Close)
	return inst, p, s
}

func waitPush(t *testing.T, h *fakeHandle) light.State {
	t.Helper()
	select {
	case s := <-h.pushed:
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for push-update")
		return light.State{}
	}
}

func waitEmit(t *testing.T, s *recordingSinks) message.Message {
	t.Helper()
	select {
	case m := <-s.emitted:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound message")
		return message.Message{}
	}
}

func waitWarn(t *testing.T, s *recordingSinks) error {
	t.Helper()
	select {
	case err := <-s.warned:
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for warning")
		return nil
	}
}

func expectNoPush(t *testing.T, h *fakeHandle, d time.Duration) {
	t.Helper()
	select {
	case s := <-h.pushed:
		t.Fatalf("unexpected push-update: %+v", s)
	case <-time.After(d):
	}
}

func TestErrorForwarder_ForwardsRemoteErrorsVerbatim(t *testing.T) {
	_, p, s := newTestInstance(t, Options{})

	h := newFakeHandle()
	p.handles <- h

	want := errors.New("device unreachable")
	h.errs <- want

	if got := waitWarn(t, s); !errors.Is(got, want) {
		t.Errorf("forwarded %v, want %v", got, want)
	}
}

func TestClose_StopsAllOutput(t *testing.T) {
	inst, p, s := newTestInstance(t, Options{Caps: light.Caps{Brightness: true}})

	h := newFakeHandle()
	p.handles <- h
	expectNoPush(t, h, 100*time.Millisecond) // handle observed, echo suppressed

	// Drive one command through to prove the instance was live.
	inst.HandleMessage(message.Message{Payload: float64(50)})
	waitPush(t, h)

	inst.Close()
	inst.Close() // idempotent

	warnsBefore := s.warningCount()
	msgsBefore := s.messageCount()

	// Events on every consumed stream after close must be ignored.
	inst.HandleMessage(message.Message{Payload: "garbage"})
	inst.HandleMessage(message.Message{Payload: float64(75)})
	h.errs <- errors.New("late remote error")
	h.state <- light.State{On: true, Brightness: 10}

	time.Sleep(100 * time.Millisecond)

	expectNoPush(t, h, 50*time.Millisecond)
	if got := s.warningCount(); got != warnsBefore {
		t.Errorf("warnings after close: %d, want %d", got, warnsBefore)
	}
	if got := s.messageCount(); got != msgsBefore {
		t.Errorf("messages after close: %d, want %d", got, msgsBefore)
	}
}

func TestPassthrough_ForwardsOnOutputTopic(t *testing.T) {
	inst, _, s := newTestInstance(t, Options{
		Caps:        light.Caps{Brightness: true},
		Passthrough: true,
		OutTopic:    "lights/kitchen/out",
	})

	// Forwarding must move the payload off the inbound topic: the
	// transport subscribes there, and a same-topic republish would be
	// consumed again as a fresh command.
	in := message.Message{Topic: "lights/kitchen/command", Payload: float64(30)}
	inst.HandleMessage(in)

	got := waitEmit(t, s)
	if got.Topic != "lights/kitchen/out" {
		t.Errorf("passthrough topic = %q, want %q", got.Topic, "lights/kitchen/out")
	}
	if got.Topic == in.Topic {
		t.Errorf("passthrough kept inbound topic %q", in.Topic)
	}
	if got.Payload != in.Payload {
		t.Errorf("passthrough payload = %v, want %v", got.Payload, in.Payload)
	}
}
