package logger

import "testing"

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"nigerian e164", "+2348012345678", "+23480*****678"},
		{"bare digits", "2348012345678", "234801*****678"},
		{"short", "12345", "***"},
		{"empty", "", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactPhone(tt.input); got != tt.want {
				t.Errorf("RedactPhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
