package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize text logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("json")); err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat("json"), WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("pipeline").Info(context.Background(), "frame processed",
		String("identity", "S1"),
		Int("faces", 3),
		Bool("known", true),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "frame processed" {
		t.Errorf("unexpected msg: %v", rec["msg"])
	}
	if rec["component"] != "pipeline" {
		t.Errorf("unexpected component: %v", rec["component"])
	}
	if rec["identity"] != "S1" {
		t.Errorf("unexpected identity: %v", rec["identity"])
	}
	src, _ := rec["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf), WithLevel("warn")); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "hidden")
	Get().Warn(ctx, "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn should be logged: %q", out)
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := SetLevelString("debug"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoggerFileDir(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf), WithFileDir(dir)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Close(); err != nil {
			t.Errorf("failed to close log file: %v", err)
		}
	}()

	Get().Info(context.Background(), "to file")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	name := filepath.Join(dir, "presence_"+time.Now().Format("20060102")+".log")
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing message: %q", data)
	}
	if !strings.Contains(buf.String(), "to file") {
		t.Errorf("primary output missing message: %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error(context.Background(), "discarded")
	if l.Named("x") == nil {
		t.Fatal("named nop logger is nil")
	}
}
