package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store loads and persists the configuration file. A missing or corrupt file
// degrades to defaults instead of refusing to start: an operator fixes a bad
// file through the running service, not by hand-editing before boot.
type Store struct {
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	cfg *Config
}

// NewStore creates a store over the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger.With("component", "config"),
	}
}

// Load reads the configuration file. The fallback ladder is: missing file →
// defaults, unparseable file → defaults (the broken file stays on disk for
// inspection), parseable but invalid → error, since silently dropping an
// explicit configuration would be worse than refusing it.
func (s *Store) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("no configuration file, using defaults", "path", s.path)
		s.cfg = Default()
		return s.cfg.Clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", s.path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		s.logger.Error("configuration file unparseable, using defaults",
			"path", s.path, "error", err)
		s.cfg = Default()
		return s.cfg.Clone(), nil
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", s.path, err)
	}

	s.cfg = cfg
	return cfg.Clone(), nil
}

// Save validates and persists a configuration atomically (temp file plus
// rename) so a crash mid-write cannot corrupt the previous file.
func (s *Store) Save(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace config %s: %w", s.path, err)
	}

	s.cfg = cfg.Clone()
	return nil
}

// Current returns a deep copy of the last loaded or saved configuration, or
// defaults when the store has not been used yet.
func (s *Store) Current() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return Default()
	}
	return s.cfg.Clone()
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }
