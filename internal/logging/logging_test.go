package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"Warning", LevelWarn, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"chatty", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want Level
	}{
		{"[sync] 2026/01/02 15:04:05 Pushed 3 files\n", LevelInfo},
		{"[sync] 2026/01/02 15:04:05 WARN could not load snapshot\n", LevelWarn},
		{"[daemon] 2026/01/02 15:04:05 ERROR sync (poll): boom\n", LevelError},
		{"[remote] 2026/01/02 15:04:05 DEBUG fetched 12 blobs\n", LevelDebug},
		{"[sync] 2026/01/02 15:04:05 Commit failed, retrying\n", LevelInfo},
		{"[sync] 2026/01/02 15:04:05 Warning: wording alone sets no level\n", LevelInfo},
		{"WARN no prefix\n", LevelWarn},
		{"plain message\n", LevelInfo},
	}
	for _, tt := range tests {
		if got := Classify([]byte(tt.line)); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestFilterDropsBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := &Logging{level: LevelWarn, out: &buf}
	logger := l.New("test")

	logger.Println("routine progress that failed to mention a level")
	Debugf(logger, "internals")
	Warnf(logger, "something odd")
	Errorf(logger, "commit: %v", "nff")

	out := buf.String()
	if strings.Contains(out, "routine progress") || strings.Contains(out, "internals") {
		t.Errorf("lines below warn were written:\n%s", out)
	}
	for _, want := range []string{"[test] ", "WARN something odd", "ERROR commit: nff"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestSetupFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gitmarks.log")

	l, err := Setup(Options{Level: "debug", Output: path, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	Debugf(l.New("sync"), "written to file")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("unexpected log file content: %q", data)
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if _, err := Setup(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestStandardStreamsNotClosed(t *testing.T) {
	l, err := Setup(Options{Output: "stdout"})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() on stdout returned %v", err)
	}
	if l.Level() != LevelInfo {
		t.Errorf("default level = %v, want info", l.Level())
	}
}
