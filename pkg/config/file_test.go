package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	t.Run("reads yaml and keeps defaults for missing keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "paywall.yaml")
		content := "mode: block\nconfidence_threshold: 0.85\nstorage: file\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() failed: %v", err)
		}
		if cfg.Mode != ModeBlock {
			t.Errorf("Mode = %v, want block", cfg.Mode)
		}
		if cfg.ConfidenceThreshold != 0.85 {
			t.Errorf("ConfidenceThreshold = %v, want 0.85", cfg.ConfidenceThreshold)
		}
		if cfg.Storage != StorageFile {
			t.Errorf("Storage = %v, want file", cfg.Storage)
		}
		if !cfg.HeuristicEnabled {
			t.Error("HeuristicEnabled should default to true")
		}
		if cfg.RecordTimeout != 500*time.Millisecond {
			t.Errorf("RecordTimeout = %v, want default 500ms", cfg.RecordTimeout)
		}
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "paywall.yaml")
		if err := os.WriteFile(path, []byte("storage: file\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		os.Setenv("STORAGE", "redis")
		defer os.Unsetenv("STORAGE")

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() failed: %v", err)
		}
		if cfg.Storage != StorageRedis {
			t.Errorf("Storage = %v, want env value redis", cfg.Storage)
		}
	})

	t.Run("missing file fails", func(t *testing.T) {
		if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("LoadFile() should fail for a missing file")
		}
	})
}
