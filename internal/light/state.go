// Package light defines the canonical device state model, the single
// authoritative state store and the human-readable status formatter.
package light

import "math"

// Caps fixes which optional state fields exist for the lifetime of a
// device instance. It is derived from static configuration and never
// changes after construction.
type Caps struct {
	Brightness bool
	Color      bool
}

// HSV is a color in hue/saturation/value space.
// Hue is in degrees [0,360], saturation and value in [0,1].
type HSV struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Value      float64 `json:"value"`
}

// State is the canonical device snapshot. Brightness and Color carry
// meaning only when the corresponding capability is enabled; disabled
// fields keep their initial values and are never serialized outward.
type State struct {
	On         bool
	Brightness int
	Color      HSV
}

// Initial returns the state a fresh instance starts from: powered off,
// full brightness and white (value 1) for the enabled capabilities.
func Initial(caps Caps) State {
	s := State{}
	if caps.Brightness {
		s.Brightness = 100
	}
	if caps.Color {
		s.Color = HSV{Hue: 0, Saturation: 0, Value: 1}
	}
	return s
}

// ClampBrightness clamps a rounded brightness into the storable 1-100
// range. Zero is a power command, not a brightness, so it never comes
// through here.
func ClampBrightness(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}

// ClampColor clamps each HSV component into its valid range.
func ClampColor(c HSV) HSV {
	return HSV{
		Hue:        clampFloat(c.Hue, 0, 360),
		Saturation: clampFloat(c.Saturation, 0, 1),
		Value:      clampFloat(c.Value, 0, 1),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Finite reports whether v is a usable number (not NaN or Inf).
// Inputs failing this check are rejected at the ingestion boundary
// rather than clamped.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
