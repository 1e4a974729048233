package shared

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestLogger(t *testing.T) {
	t.Run("WithLogger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLogger(NewLogger(&buf), "component", "mixer")
		logger.Info("drift corrected")

		out := buf.String()
		if !strings.Contains(out, "component=mixer") {
			t.Errorf("expected context key in output, got %q", out)
		}
		if !strings.Contains(out, "drift corrected") {
			t.Errorf("expected message in output, got %q", out)
		}
	})

	t.Run("NewFileLogger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "tui.log")
		logger, closer, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		logger.Warn("stem failed", "stem", "piano")
		closer.Close()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), "stem=piano") {
			t.Errorf("expected log line in file, got %q", data)
		}
	})
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected unique IDs")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("expected valid uuid, got %v", err)
	}
}

func TestOpenerCommand(t *testing.T) {
	original := getRuntime
	defer func() { getRuntime = original }()

	tc := []struct {
		goos string
		bin  string
	}{
		{"darwin", "open"},
		{"linux", "xdg-open"},
		{"windows", "rundll32"},
	}
	for _, tt := range tc {
		t.Run(tt.goos, func(t *testing.T) {
			getRuntime = func() string { return tt.goos }
			cmd, err := openerCommand("http://localhost:8000/audio/a.mp3")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if filepath.Base(cmd.Args[0]) != tt.bin {
				t.Errorf("expected %s, got %s", tt.bin, cmd.Args[0])
			}
		})
	}

	getRuntime = func() string { return "plan9" }
	if _, err := openerCommand("x"); err == nil {
		t.Error("expected unsupported platform error")
	}
}
