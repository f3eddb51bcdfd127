package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"json info", LogConfig{Level: "info", Format: "json"}, false},
		{"console debug", LogConfig{Level: "debug", Format: "console"}, false},
		{"default format", LogConfig{Level: "warn"}, false},
		{"upper-case level", LogConfig{Level: "ERROR"}, false},
		{"bad level", LogConfig{Level: "loud"}, true},
		{"bad format", LogConfig{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if l != nil {
				l.Sync()
			}
		})
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) returned nil")
	}
}

func TestMessagesHandled_Increments(t *testing.T) {
	before := testutil.ToFloat64(MessagesHandled.WithLabelValues("processed"))
	MessagesHandled.WithLabelValues("processed").Inc()
	after := testutil.ToFloat64(MessagesHandled.WithLabelValues("processed"))

	if after-before != 1 {
		t.Errorf("processed counter delta = %v, want 1", after-before)
	}
}
