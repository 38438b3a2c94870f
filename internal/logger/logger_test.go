package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathEnv(t *testing.T) {
	t.Setenv("QEX_LOG_FILE", "/tmp/qex-test.log")
	p, err := Path()
	if err != nil {
		t.Fatalf("Path error: %v", err)
	}
	if p != "/tmp/qex-test.log" {
		t.Fatalf("Path = %q, want %q", p, "/tmp/qex-test.log")
	}

	t.Setenv("QEX_LOG_FILE", "")
	t.Setenv("QEX_CONFIG_HOME", "/tmp/qex-home")
	p, _ = Path()
	if p != filepath.Join("/tmp/qex-home", "qex.log") {
		t.Fatalf("Path = %q, want config home log", p)
	}
}

func TestPathConfigDir(t *testing.T) {
	t.Setenv("QEX_LOG_FILE", "")
	t.Setenv("QEX_CONFIG_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	p, err := Path()
	if err != nil {
		t.Fatalf("Path error: %v", err)
	}
	if want := filepath.Join("/tmp/xdg", "qex", "qex.log"); p != want {
		t.Fatalf("Path = %q, want %q", p, want)
	}
}

func TestInitTruncates(t *testing.T) {
	defer func() { L, S = nil, nil }()

	path := filepath.Join(t.TempDir(), "logs", "qex.log")
	t.Setenv("QEX_LOG_FILE", path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := Init(true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debug("undo", "cur", 4)
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "previous run") {
		t.Fatalf("old log kept: %q", out)
	}
	if !strings.Contains(out, "DEBUG") || !strings.Contains(out, "undo") {
		t.Fatalf("debug record missing: %q", out)
	}
	// The caller column names the code that logged, not this package's helpers.
	if !strings.Contains(out, "logger_test.go") {
		t.Fatalf("caller not reported: %q", out)
	}
}

func TestInitWriterLevels(t *testing.T) {
	defer func() { L, S = nil, nil }()

	var buf bytes.Buffer
	InitWriter(&buf, false)
	Debug("hidden", "k", 1)
	Warn("log restarted", "cur", 3)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug message written at info level: %q", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "log restarted") {
		t.Fatalf("warn message missing: %q", out)
	}
}

func TestHelpersNilSafe(t *testing.T) {
	L, S = nil, nil
	Debug("x")
	Info("x")
	Warn("x")
	Error("x")
}
