package document

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"queued to processing", StatusQueued, StatusProcessing, true},
		{"queued to processed", StatusQueued, StatusProcessed, true},
		{"queued to failed", StatusQueued, StatusFailed, true},
		{"processing to processed", StatusProcessing, StatusProcessed, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"same status is no-op", StatusProcessing, StatusProcessing, false},
		{"processed cannot regress", StatusProcessed, StatusProcessing, false},
		{"processed cannot fail", StatusProcessed, StatusFailed, false},
		{"failed cannot succeed", StatusFailed, StatusProcessed, false},
		{"processing cannot regress", StatusProcessing, StatusQueued, false},
		{"unknown status", Status("unknown"), StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if StatusQueued.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Error("queued and processing must not be terminal")
	}
	if !StatusProcessed.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("processed and failed must be terminal")
	}
}
