// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all auditflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Ingest     IngestConfig     `yaml:"ingest"`
	Storage    StorageConfig    `yaml:"storage"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Watch      WatchConfig      `yaml:"watch"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// IngestConfig controls the split/repair/project pipeline.
type IngestConfig struct {
	InputDir     string `yaml:"input_dir"`
	Workers      int    `yaml:"workers"`       // concurrent files, 0 = NumCPU
	BatchSize    int    `yaml:"batch_size"`    // records per store batch
	MaxLineBytes int    `yaml:"max_line_bytes"`
}

// StorageConfig for the event store.
type StorageConfig struct {
	Database string `yaml:"database"` // DuckDB file path, "" = in-memory
}

// CheckpointConfig selects the processed-file ledger backend.
type CheckpointConfig struct {
	Backend   string        `yaml:"backend"` // file | redis
	Path      string        `yaml:"path"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	TTL       time.Duration `yaml:"ttl"` // redis entry lifetime, 0 = keep
}

// ArchiveConfig for post-ingest file movement.
type ArchiveConfig struct {
	Dir      string   `yaml:"dir"`
	ErrorDir string   `yaml:"error_dir"`
	LogsDir  string   `yaml:"logs_dir"`
	S3       S3Config `yaml:"s3"`
}

// S3Config for optional off-host backup of archived originals.
type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // for S3-compatible stores
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// WatchConfig for continuous input-directory ingestion.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".auditflow")

	return &Config{
		Version: 1,
		Ingest: IngestConfig{
			InputDir:     filepath.Join(baseDir, "inputs"),
			Workers:      0, // auto
			BatchSize:    500,
			MaxLineBytes: 4 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Database: filepath.Join(baseDir, "auditflow.db"),
		},
		Checkpoint: CheckpointConfig{
			Backend: "file",
			Path:    filepath.Join(baseDir, "checkpoint.json"),
		},
		Archive: ArchiveConfig{
			Dir:      filepath.Join(baseDir, "archive"),
			ErrorDir: filepath.Join(baseDir, "archive", "errors"),
			LogsDir:  filepath.Join(baseDir, "archive", "logs"),
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 2 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	m.ensureDirs()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/auditflow/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".auditflow", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".auditflow.yaml"))
	}
	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Ingest.InputDir != "" {
		m.config.Ingest.InputDir = src.Ingest.InputDir
	}
	if src.Ingest.Workers != 0 {
		m.config.Ingest.Workers = src.Ingest.Workers
	}
	if src.Ingest.BatchSize != 0 {
		m.config.Ingest.BatchSize = src.Ingest.BatchSize
	}
	if src.Ingest.MaxLineBytes != 0 {
		m.config.Ingest.MaxLineBytes = src.Ingest.MaxLineBytes
	}

	if src.Storage.Database != "" {
		m.config.Storage.Database = src.Storage.Database
	}

	if src.Checkpoint.Backend != "" {
		m.config.Checkpoint.Backend = src.Checkpoint.Backend
	}
	if src.Checkpoint.Path != "" {
		m.config.Checkpoint.Path = src.Checkpoint.Path
	}
	if src.Checkpoint.RedisAddr != "" {
		m.config.Checkpoint.RedisAddr = src.Checkpoint.RedisAddr
	}
	if src.Checkpoint.RedisDB != 0 {
		m.config.Checkpoint.RedisDB = src.Checkpoint.RedisDB
	}
	if src.Checkpoint.TTL != 0 {
		m.config.Checkpoint.TTL = src.Checkpoint.TTL
	}

	if src.Archive.Dir != "" {
		m.config.Archive.Dir = src.Archive.Dir
		m.config.Archive.ErrorDir = filepath.Join(src.Archive.Dir, "errors")
		m.config.Archive.LogsDir = filepath.Join(src.Archive.Dir, "logs")
	}
	if src.Archive.ErrorDir != "" {
		m.config.Archive.ErrorDir = src.Archive.ErrorDir
	}
	if src.Archive.LogsDir != "" {
		m.config.Archive.LogsDir = src.Archive.LogsDir
	}
	if src.Archive.S3.Bucket != "" {
		m.config.Archive.S3 = src.Archive.S3
	}

	if src.Watch.Enabled {
		m.config.Watch.Enabled = true
	}
	if src.Watch.Debounce != 0 {
		m.config.Watch.Debounce = src.Watch.Debounce
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("AUDITFLOW_INPUT_DIR"); v != "" {
		m.config.Ingest.InputDir = v
	}
	if v := os.Getenv("AUDITFLOW_DATABASE"); v != "" {
		m.config.Storage.Database = v
	}
	if v := os.Getenv("AUDITFLOW_ARCHIVE_DIR"); v != "" {
		m.config.Archive.Dir = v
		m.config.Archive.ErrorDir = filepath.Join(v, "errors")
		m.config.Archive.LogsDir = filepath.Join(v, "logs")
	}
	if v := os.Getenv("AUDITFLOW_REDIS_ADDR"); v != "" {
		m.config.Checkpoint.Backend = "redis"
		m.config.Checkpoint.RedisAddr = v
	}
	if v := os.Getenv("AUDITFLOW_WORKERS"); v != "" {
		var workers int
		if _, err := fmt.Sscanf(v, "%d", &workers); err == nil {
			m.config.Ingest.Workers = workers
		}
	}
	if v := os.Getenv("AUDITFLOW_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
}

// ensureDirs creates necessary directories.
func (m *Manager) ensureDirs() {
	dirs := []string{
		m.config.Ingest.InputDir,
		filepath.Dir(m.config.Storage.Database),
		filepath.Dir(m.config.Checkpoint.Path),
		m.config.Archive.Dir,
		m.config.Archive.ErrorDir,
		m.config.Archive.LogsDir,
	}
	for _, dir := range dirs {
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0755)
		}
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".auditflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
