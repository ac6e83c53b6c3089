package light

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		state State
		caps  Caps
		want  string
	}{
		{
			name:  "off_no_capabilities",
			state: State{},
			caps:  Caps{},
			want:  "off",
		},
		{
			name:  "on_no_capabilities",
			state: State{On: true},
			caps:  Caps{},
			want:  "on",
		},
		{
			name:  "on_with_brightness",
			state: State{On: true, Brightness: 75},
			caps:  Caps{Brightness: true},
			want:  "on (75%)",
		},
		{
			name:  "off_with_brightness_and_color",
			state: State{Brightness: 100, Color: HSV{Hue: 120, Saturation: 0.5, Value: 1}},
			caps:  Caps{Brightness: true, Color: true},
			want:  "off (100% hue: 120.00° sat: 50.00% val: 100.00%)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.state, tt.caps); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}
