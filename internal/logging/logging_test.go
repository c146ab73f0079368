package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tmdbhelper/config"
)

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tmdbhelper.log")
	closer, err := Setup(config.LoggingSettings{File: path, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	log.Printf("[test] hello key=%d", 1)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "[test] hello key=1") {
		t.Errorf("log line missing from file: %q", data)
	}
}

func TestSetupWithoutFile(t *testing.T) {
	closer, err := Setup(config.LoggingSettings{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/logs/tmdbhelper.log")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "logs", "tmdbhelper.log"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got, _ := ExpandPath("/var/log/x.log"); got != "/var/log/x.log" {
		t.Errorf("absolute path changed: %q", got)
	}
}
