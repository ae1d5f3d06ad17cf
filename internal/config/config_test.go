package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port=%d, want 8080", cfg.Server.Port)
	}
	if cfg.Training.Epochs != 30 || cfg.Training.BatchSize != 64 {
		t.Fatalf("training defaults=%+v", cfg.Training)
	}
	if cfg.Artifacts.Backend != "local" {
		t.Fatalf("artifact backend=%q, want local", cfg.Artifacts.Backend)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("TRAIN_EPOCHS", "5")
	t.Setenv("TRAIN_LEARNING_RATE", "0.05")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port=%d, want 9090", cfg.Server.Port)
	}
	if cfg.DB.Driver != "sqlite" {
		t.Fatalf("driver=%q, want sqlite", cfg.DB.Driver)
	}
	if cfg.Training.Epochs != 5 || cfg.Training.LearningRate != 0.05 {
		t.Fatalf("training=%+v", cfg.Training)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "server:\n  port: 7070\ntraining:\n  epochs: 12\nartifacts:\n  backend: gcs\n  bucket: bench-models\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port=%d, want 7070 from yaml", cfg.Server.Port)
	}
	if cfg.Training.Epochs != 12 {
		t.Fatalf("epochs=%d, want 12", cfg.Training.Epochs)
	}
	if cfg.Artifacts.Backend != "gcs" || cfg.Artifacts.Bucket != "bench-models" {
		t.Fatalf("artifacts=%+v", cfg.Artifacts)
	}
}

func TestLoadClampsInvalidTraining(t *testing.T) {
	t.Setenv("TRAIN_EPOCHS", "-3")
	t.Setenv("TRAIN_BATCH_SIZE", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Training.Epochs != 1 || cfg.Training.BatchSize != 1 {
		t.Fatalf("training=%+v, want clamped floors", cfg.Training)
	}
}
