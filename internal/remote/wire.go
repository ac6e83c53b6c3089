package remote

import (
	"encoding/json"

	"github.com/dokzlo13/lightlink/internal/light"
)

// wireState is the JSON state shape exchanged with the remote service.
// Optional fields are omitted for capabilities the device lacks.
type wireState struct {
	On         bool       `json:"on"`
	Brightness *int       `json:"brightness,omitempty"`
	Color      *wireColor `json:"color,omitempty"`
}

type wireColor struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Value      float64 `json:"value"`
}

// encodeState serializes a snapshot according to the capability set.
func encodeState(s light.State, caps light.Caps) wireState {
	w := wireState{On: s.On}
	if caps.Brightness {
		b := s.Brightness
		w.Brightness = &b
	}
	if caps.Color {
		w.Color = &wireColor{Hue: s.Color.Hue, Saturation: s.Color.Saturation, Value: s.Color.Value}
	}
	return w
}

// decodeState parses a remote state event. Fields the event omits are
// taken from base, so partial remote updates still yield a full
// snapshot.
func decodeState(raw []byte, base light.State) (light.State, error) {
	var w wireState
	if err := json.Unmarshal(raw, &w); err != nil {
		return light.State{}, err
	}

	s := base
	s.On = w.On
	if w.Brightness != nil {
		s.Brightness = *w.Brightness
	}
	if w.Color != nil {
		s.Color = light.HSV{Hue: w.Color.Hue, Saturation: w.Color.Saturation, Value: w.Color.Value}
	}
	return s, nil
}
