package agent

import (
	"testing"

	"github.com/matzehuels/stackscan/pkg/errors"
)

func TestParseFocus(t *testing.T) {
	tests := []struct {
		in      string
		want    Focus
		wantErr bool
	}{
		{"security", FocusSecurity, false},
		{" Quality ", FocusQuality, false},
		{"", FocusAll, false},
		{"structure", FocusStructure, false},
		{"speed", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFocus(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFocus(%q) = %q, %v", tt.in, got, err)
		}
		if tt.wantErr && !errors.Is(err, errors.ErrCodeInvalidFocus) {
			t.Errorf("ParseFocus(%q) code = %q", tt.in, errors.GetCode(err))
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusTimedOut:  true,
		StatusCancelled: true,
	}
	for s, want := range terminal {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, !want, want)
		}
	}
}

func TestNewID(t *testing.T) {
	id := NewID("my service@2", FocusSecurity)
	if err := errors.ValidateAgentID(id); err != nil {
		t.Errorf("NewID() = %q is not a valid id: %v", id, err)
	}
	if NewID("api", FocusAll) == NewID("api", FocusAll) {
		t.Error("NewID() should not repeat")
	}
}
