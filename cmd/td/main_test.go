package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSweepWindowFromConfig(t *testing.T) {
	dir := t.TempDir()
	yml := "notifications:\n  reminder_window_days: 7\n"
	if err := os.WriteFile(filepath.Join(dir, "taskdesk.yml"), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cmd := notifySweepCmd()
	got, err := sweepWindow(cmd, dir, 1)
	if err != nil {
		t.Fatalf("sweep window: %v", err)
	}
	if got != 7 {
		t.Fatalf("window = %d, want 7 from config", got)
	}

	// An explicit flag beats the config value.
	if err := cmd.Flags().Set("window-days", "3"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	got, err = sweepWindow(cmd, dir, 3)
	if err != nil {
		t.Fatalf("sweep window: %v", err)
	}
	if got != 3 {
		t.Fatalf("window = %d, want 3 from flag", got)
	}
}

func TestSweepWindowDefaultsWithoutConfig(t *testing.T) {
	cmd := notifySweepCmd()
	got, err := sweepWindow(cmd, t.TempDir(), 1)
	if err != nil {
		t.Fatalf("sweep window: %v", err)
	}
	if got != 1 {
		t.Fatalf("window = %d, want default 1", got)
	}
}
