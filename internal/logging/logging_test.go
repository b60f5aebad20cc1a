package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_JSONFieldMap(t *testing.T) {
	logger, closer, err := New(Options{Level: "debug"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer closer.Close()

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	WithRequestID(logger, "req-1").WithField("op", "create_task").Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	for _, key := range []string{"ts", "level", "message", "request_id", "op"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("log entry missing %q: %v", key, entry)
		}
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "bad level", opts: Options{Level: "loud"}},
		{name: "bad format", opts: Options{Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := New(tt.opts); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tl.log")
	logger, closer, err := New(Options{Format: "text", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	logger.Info("to file")
	if err := closer.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}
