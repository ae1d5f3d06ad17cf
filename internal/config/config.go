package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/benchwatch-backend/internal/platform/envutil"
)

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	GinMode     string   `yaml:"gin_mode"`
}

type DBConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "sqlite"
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	// SQLitePath is used when Driver is "sqlite".
	SQLitePath string `yaml:"sqlite_path"`
}

type TrainingConfig struct {
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Seed         int64   `yaml:"seed"`
}

type ArtifactConfig struct {
	// Backend selects "local" or "gcs".
	Backend string `yaml:"backend"`
	Root    string `yaml:"root"`
	Bucket  string `yaml:"bucket"`
}

type Config struct {
	Server    ServerConfig   `yaml:"server"`
	DB        DBConfig       `yaml:"db"`
	Training  TrainingConfig `yaml:"training"`
	Artifacts ArtifactConfig `yaml:"artifacts"`
	RedisAddr string         `yaml:"redis_addr"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5174"},
			GinMode:     "debug",
		},
		DB: DBConfig{
			Driver:     "postgres",
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			Name:       "benchwatch",
			SQLitePath: "benchwatch.db",
		},
		Training: TrainingConfig{
			Epochs:       30,
			BatchSize:    64,
			LearningRate: 0.001,
			Seed:         42,
		},
		Artifacts: ArtifactConfig{
			Backend: "local",
			Root:    "artifacts",
		},
	}
}

// Load builds the config from defaults, an optional YAML file pointed at
// by CONFIG_PATH, and finally env var overrides.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Server.Port = envutil.Int("SERVER_PORT", cfg.Server.Port)
	cfg.Server.GinMode = envutil.String("GIN_MODE", cfg.Server.GinMode)

	cfg.DB.Driver = envutil.String("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Host = envutil.String("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = envutil.String("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = envutil.String("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Password = envutil.String("POSTGRES_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = envutil.String("POSTGRES_NAME", cfg.DB.Name)
	cfg.DB.SQLitePath = envutil.String("SQLITE_PATH", cfg.DB.SQLitePath)

	cfg.Training.Epochs = envutil.Int("TRAIN_EPOCHS", cfg.Training.Epochs)
	cfg.Training.BatchSize = envutil.Int("TRAIN_BATCH_SIZE", cfg.Training.BatchSize)
	cfg.Training.LearningRate = envutil.Float("TRAIN_LEARNING_RATE", cfg.Training.LearningRate)
	cfg.Training.Seed = int64(envutil.Int("TRAIN_SEED", int(cfg.Training.Seed)))

	cfg.Artifacts.Backend = envutil.String("ARTIFACT_BACKEND", cfg.Artifacts.Backend)
	cfg.Artifacts.Root = envutil.String("ARTIFACT_ROOT", cfg.Artifacts.Root)
	cfg.Artifacts.Bucket = envutil.String("ARTIFACT_GCS_BUCKET_NAME", cfg.Artifacts.Bucket)

	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)

	if cfg.Training.Epochs <= 0 {
		cfg.Training.Epochs = 1
	}
	if cfg.Training.BatchSize <= 0 {
		cfg.Training.BatchSize = 1
	}
	if cfg.Training.LearningRate <= 0 {
		cfg.Training.LearningRate = 0.001
	}
	return cfg, nil
}
