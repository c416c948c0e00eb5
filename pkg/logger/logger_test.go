package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize text logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	err = Init(WithFormat("json"))
	if err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerUnknownFormat(t *testing.T) {
	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat("json"), WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("quota").Info(context.Background(), "consumed",
		Int("remaining", 7),
		Error(errors.New("boom")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "consumed" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["component"] != "quota" {
		t.Errorf("unexpected component: %v", entry["component"])
	}
	if entry["remaining"] != float64(7) {
		t.Errorf("unexpected remaining: %v", entry["remaining"])
	}
	if entry["error"] != "boom" {
		t.Errorf("unexpected error field: %v", entry["error"])
	}
	if src, _ := entry["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer SetLevel(slog.LevelInfo)

	ctx := context.Background()
	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Debug(ctx, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug should be logged at debug level, got %q", buf.String())
	}
}

func TestSetLevelString(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "", "warn", "warning", "error", " INFO "} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q should be accepted: %v", lvl, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
	SetLevel(slog.LevelInfo)
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Get().With(String("run_id", "r-1")).Warn(context.Background(), "quota low")
	if !strings.Contains(buf.String(), "run_id=r-1") {
		t.Fatalf("expected bound field in output, got %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error(context.Background(), "discarded")
	if l.Named("x") == nil {
		t.Fatal("named nop logger is nil")
	}
}
