package instance

import (
	"testing"
	"time"

	"github.com/dokzlo13/lightlink/internal/light"
	"github.com/dokzlo13/lightlink/internal/message"
	"github.com/dokzlo13/lightlink/internal/payload"
)

func TestLocalSync_SuppressesConstructionTimeState(t *testing.T) {
	inst, p, _ := newTestInstance(t, Options{Caps: light.Caps{Brightness: true}})

	h := newFakeHandle()
	p.handles <- h

	// The snapshot the handle was built around must never be echoed.
	expectNoPush(t, h, 150*time.Millisecond)

	// A strictly later local change is pushed.
	inst.HandleMessage(message.Message{Payload: float64(60)})
	got := waitPush(t, h)
	if !got.On || got.Brightness != 60 {
		t.Errorf("pushed %+v, want on with brightness 60", got)
	}
}

func TestLocalSync_SuppressesOncePerHandle(t *testing.T) {
	inst, p, _ := newTestInstance(t, Options{Caps: light.Caps{Brightness: true}})

	h1 := newFakeHandle()
	p.handles <- h1
	expectNoPush(t, h1, 100*time.Millisecond)

	inst.HandleMessage(message.Message{Payload: float64(60)})
	waitPush(t, h1)

	// A replacement handle is registered with the current snapshot, so
	// its first combined pair is suppressed as well.
	h2 := newFakeHandle()
	p.handles <- h2
	expectNoPush(t, h2, 150*time.Millisecond)

	inst.HandleMessage(message.Message{Payload: float64(20)})
	got := waitPush(t, h2)
	if got.Brightness != 20 {
		t.Errorf("pushed %+v to replacement handle, want brightness 20", got)
	}
}

func TestRemoteSync_MergesAcceptedFieldsOnly(t *testing.T) {
	inst, p, s := newTestInstance(t, Options{
		Caps:     light.Caps{}, // brightness and color disabled
		OnValue:  "ON",
		OffValue: "OFF",
	})

	h := newFakeHandle()
	p.handles <- h

	h.state <- light.State{On: true, Brightness: 55, Color: light.HSV{Hue: 10}}
	waitEmit(t, s)

	got := inst.State()
	if !got.On {
		t.Error("on must always be merged")
	}
	if got.Brightness != 0 || got.Color != (light.HSV{}) {
		t.Errorf("disallowed fields merged: %+v", got)
	}
}

func TestRemoteSync_SimpleModeEmitsConfiguredValue(t *testing.T) {
	_, p, s := newTestInstance(t, Options{
		OnValue:  "ON",
		OffValue: "OFF",
		OutTopic: "lights/kitchen/state",
	})

	h := newFakeHandle()
	p.handles <- h

	h.state <- light.State{On: true}
	msg := waitEmit(t, s)
	if msg.Payload != "ON" || msg.Topic != "lights/kitchen/state" {
		t.Errorf("emitted %+v, want ON on lights/kitchen/state", msg)
	}

	h.state <- light.State{On: false}
	msg = waitEmit(t, s)
	if msg.Payload != "OFF" {
		t.Errorf("emitted payload %v, want OFF", msg.Payload)
	}
}

func TestRemoteSync_StructuredModeEmitsObject(t *testing.T) {
	_, p, s := newTestInstance(t, Options{
		Caps:       light.Caps{Brightness: true, Color: true},
		Structured: true,
	})

	h := newFakeHandle()
	p.handles <- h

	h.state <- light.State{On: true, Brightness: 40, Color: light.HSV{Hue: 120, Saturation: 0.5, Value: 1}}
	msg := waitEmit(t, s)

	want := map[string]any{
		"on":         true,
		"brightness": 40,
		"color": map[string]any{
			"spectrumHSV": map[string]any{
				"hue":        float64(120),
				"saturation": 0.5,
				"value":      float64(1),
			},
		},
	}
	if !payload.Equal(msg.Payload, want) {
		t.Errorf("emitted %#v, want %#v", msg.Payload, want)
	}
}

func TestRemoteSync_NumericModeEmitsBrightnessOrZero(t *testing.T) {
	_, p, s := newTestInstance(t, Options{
		Caps: light.Caps{Brightness: true},
	})

	h := newFakeHandle()
	p.handles <- h

	h.state <- light.State{On: true, Brightness: 70}
	if msg := waitEmit(t, s); !payload.Equal(msg.Payload, 70) {
		t.Errorf("emitted %v, want 70", msg.Payload)
	}

	h.state <- light.State{On: false, Brightness: 70}
	if msg := waitEmit(t, s); !payload.Equal(msg.Payload, 0) {
		t.Errorf("emitted %v, want 0", msg.Payload)
	}
}

func TestRemoteSync_EmitsEvenWhenMergeChangesNothing(t *testing.T) {
	_, p, s := newTestInstance(t, Options{
		OnValue:  "ON",
		OffValue: "OFF",
	})

	h := newFakeHandle()
	p.handles <- h

	// Initial state is already off; the remote event must still
	// produce exactly one message per event.
	h.state <- light.State{On: false}
	h.state <- light.State{On: false}

	waitEmit(t, s)
	waitEmit(t, s)
}

func TestRemoteSync_SwitchesToReplacementHandle(t *testing.T) {
	inst, p, s := newTestInstance(t, Options{
		Caps: light.Caps{Brightness: true},
	})

	h1 := newFakeHandle()
	p.handles <- h1
	h1.state <- light.State{On: true, Brightness: 10}
	waitEmit(t, s)

	h2 := newFakeHandle()
	p.handles <- h2
	h2.state <- light.State{On: true, Brightness: 90}
	waitEmit(t, s)

	if got := inst.State().Brightness; got != 90 {
		t.Errorf("brightness = %d, want 90 from replacement handle", got)
	}
}
