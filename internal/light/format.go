package light

import (
	"fmt"
	"strings"
)

// Format renders a snapshot as a short status string for host-side
// display: "on"/"off", with brightness and color details in parentheses
// for the enabled capabilities, e.g.
//
//	on (75% hue: 120.00° sat: 50.00% val: 100.00%)
func Format(s State, caps Caps) string {
	base := "off"
	if s.On {
		base = "on"
	}

	var details []string
	if caps.Brightness {
		details = append(details, fmt.Sprintf("%d%%", s.Brightness))
	}
	if caps.Color {
		details = append(details, fmt.Sprintf("hue: %.2f° sat: %.2f%% val: %.2f%%",
			s.Color.Hue, s.Color.Saturation*100, s.Color.Value*100))
	}
	if len(details) == 0 {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(details, " "))
}
