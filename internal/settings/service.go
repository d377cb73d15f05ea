// Package settings provides a runtime settings storage service.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/searcheval/search-eval/internal/bus"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// maxVersions is the number of versioned settings snapshots kept on disk.
const maxVersions = 10

// RuntimeConfig represents all configurable runtime settings.
type RuntimeConfig struct {
	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`

	// Evaluation settings
	DefaultKs   []int `json:"default_ks" yaml:"default_ks"`
	DefaultSize int   `json:"default_size" yaml:"default_size"`
	MaxSize     int   `json:"max_size" yaml:"max_size"`

	// Dashboard settings
	DashboardEnabled bool `json:"dashboard_enabled" yaml:"dashboard_enabled"`

	// Backend settings
	QdrantURL     string `json:"qdrant_url" yaml:"qdrant_url"`
	QdrantTimeout int    `json:"qdrant_timeout" yaml:"qdrant_timeout"`

	// Query set settings
	DefaultSampling string `json:"default_sampling" yaml:"default_sampling"`
	MaxQuerySetSize int    `json:"max_query_set_size" yaml:"max_query_set_size"`

	// Metadata
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Version   int       `json:"version" yaml:"version"`
}

// DefaultConfig returns sensible defaults for all settings.
func DefaultConfig() RuntimeConfig {
	return RuntimeConfig{
		LogLevel:  "info",
		LogFormat: "text",

		DefaultKs:   []int{5, 10},
		DefaultSize: 10,
		MaxSize:     100,

		DashboardEnabled: true,

		QdrantURL:     "http://localhost:6333",
		QdrantTimeout: 30000,

		DefaultSampling: "none",
		MaxQuerySetSize: 10000,

		UpdatedAt: time.Now(),
		Version:   1,
	}
}

// ChangedEvent is published when settings are updated.
type ChangedEvent struct {
	OldConfig RuntimeConfig `json:"old_config"`
	NewConfig RuntimeConfig `json:"new_config"`
	ChangedBy string        `json:"changed_by"`
}

// Service manages runtime settings with persistence and event publishing.
type Service struct {
	mu          sync.RWMutex
	config      RuntimeConfig
	storagePath string
	eventBus    bus.Bus
	audit       *AuditLogger
	log         *logger.Logger
}

// ServiceConfig configures the settings service.
type ServiceConfig struct {
	// StoragePath is the directory where settings are persisted.
	StoragePath string

	// LoadDefaults determines whether to populate with defaults if no file exists.
	LoadDefaults bool

	// AuditLog enables change auditing when set to a file path.
	AuditLog string
}

// NewService creates a new settings service.
func NewService(cfg ServiceConfig, eventBus bus.Bus, log *logger.Logger) (*Service, error) {
	audit, err := NewAuditLogger(AuditLoggerConfig{
		LogPath: cfg.AuditLog,
		Enabled: cfg.AuditLog != "",
	})
	if err != nil {
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	s := &Service{
		storagePath: cfg.StoragePath,
		eventBus:    eventBus,
		audit:       audit,
		log:         log,
	}

	if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading settings: %w", err)
		}
		if cfg.LoadDefaults {
			s.config = DefaultConfig()
			if err := s.saveUnlocked(s.config); err != nil {
				s.log.Warn("Failed to save default settings", "error", err)
			}
		}
	}

	return s, nil
}

// Get returns the current runtime configuration.
func (s *Service) Get(ctx context.Context) RuntimeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// EvaluationDefaults reports the operator-tuned metric cutoffs and result
// size cap consulted by the experiment service on every create.
func (s *Service) EvaluationDefaults() (ks []int, maxSize int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.DefaultKs, s.config.MaxSize
}

// Update updates the runtime configuration and persists it.
func (s *Service) Update(ctx context.Context, cfg RuntimeConfig, changedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldConfig := s.config

	cfg.UpdatedAt = time.Now()
	cfg.Version = oldConfig.Version + 1

	if err := s.saveUnlocked(cfg); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	s.config = cfg

	if s.eventBus != nil {
		event := bus.NewEvent(bus.TopicSettingsChanged, ChangedEvent{
			OldConfig: oldConfig,
			NewConfig: cfg,
			ChangedBy: changedBy,
		})
		if err := s.eventBus.Publish(ctx, bus.TopicSettingsChanged, event); err != nil {
			s.log.Warn("Failed to publish settings changed event", "error", err)
		}
	}

	if err := s.audit.Log(AuditEntry{
		Version:   cfg.Version,
		ChangedBy: changedBy,
		Changes:   Diff(oldConfig, cfg),
	}); err != nil {
		s.log.Warn("Failed to write settings audit entry", "error", err)
	}

	s.log.Info("Settings updated",
		"version", cfg.Version,
		"changed_by", changedBy,
	)

	return nil
}

// UpdateField updates a single field in the configuration by its JSON name.
func (s *Service) UpdateField(ctx context.Context, field string, value any, changedBy string) error {
	s.mu.RLock()
	cfg := s.config
	s.mu.RUnlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	var cfgMap map[string]any
	if err := json.Unmarshal(data, &cfgMap); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}

	if _, known := cfgMap[field]; !known {
		return fmt.Errorf("unknown settings field %q", field)
	}
	cfgMap[field] = value

	data, err = json.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling updated config: %w", err)
	}

	var newCfg RuntimeConfig
	if err := json.Unmarshal(data, &newCfg); err != nil {
		return fmt.Errorf("unmarshaling updated config: %w", err)
	}

	return s.Update(ctx, newCfg, changedBy)
}

// Reset resets the configuration to defaults.
func (s *Service) Reset(ctx context.Context, changedBy string) error {
	return s.Update(ctx, DefaultConfig(), changedBy)
}

// GetVersion returns the current settings version.
func (s *Service) GetVersion(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Version
}

// GetUpdatedAt returns when settings were last updated.
func (s *Service) GetUpdatedAt(ctx context.Context) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.UpdatedAt
}

// GetHistory returns up to limit prior configuration versions, newest first.
func (s *Service) GetHistory(ctx context.Context, limit int) ([]RuntimeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.storagePath)
	if err != nil {
		return nil, fmt.Errorf("reading settings directory: %w", err)
	}

	var history []RuntimeConfig
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == "settings.yaml" || filepath.Ext(name) != ".yaml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.storagePath, name))
		if err != nil {
			continue
		}
		var cfg RuntimeConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			continue
		}
		history = append(history, cfg)
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i].Version > history[j].Version
	})

	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

// Rollback restores the configuration stored for the given version. The
// restored state is written as a new version so history stays linear.
func (s *Service) Rollback(ctx context.Context, version int, changedBy string) error {
	s.mu.RLock()
	path := s.versionFile(version)
	s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("settings version %d not found", version)
		}
		return fmt.Errorf("reading settings version %d: %w", version, err)
	}

	var cfg RuntimeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing settings version %d: %w", version, err)
	}

	return s.Update(ctx, cfg, changedBy)
}

// settingsFile returns the path to the current settings file.
func (s *Service) settingsFile() string {
	return filepath.Join(s.storagePath, "settings.yaml")
}

// versionFile returns the path of a versioned settings snapshot.
func (s *Service) versionFile(version int) string {
	return filepath.Join(s.storagePath, fmt.Sprintf("settings.v%d.yaml", version))
}

// load loads settings from disk.
func (s *Service) load() error {
	data, err := os.ReadFile(s.settingsFile())
	if err != nil {
		return err
	}

	var cfg RuntimeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing settings: %w", err)
	}

	s.config = cfg
	return nil
}

// saveUnlocked saves settings without acquiring the lock (caller must hold it).
// The current file is always overwritten and a versioned snapshot is kept.
func (s *Service) saveUnlocked(cfg RuntimeConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	if err := os.WriteFile(s.settingsFile(), data, 0644); err != nil {
		return err
	}
	if err := os.WriteFile(s.versionFile(cfg.Version), data, 0644); err != nil {
		return err
	}

	s.cleanupOldVersions(cfg.Version)
	return nil
}

// cleanupOldVersions removes snapshots older than the retention window.
func (s *Service) cleanupOldVersions(currentVersion int) {
	for v := currentVersion - maxVersions; v > 0; v-- {
		path := s.versionFile(v)
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				return
			}
		}
	}
}

// ExportYAML exports settings as YAML bytes.
func (s *Service) ExportYAML(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return yaml.Marshal(s.config)
}

// ExportJSON exports settings as JSON bytes.
func (s *Service) ExportJSON(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.config, "", "  ")
}

// ImportYAML imports settings from YAML bytes.
func (s *Service) ImportYAML(ctx context.Context, data []byte, changedBy string) error {
	var cfg RuntimeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return s.Update(ctx, cfg, changedBy)
}

// ImportJSON imports settings from JSON bytes.
func (s *Service) ImportJSON(ctx context.Context, data []byte, changedBy string) error {
	var cfg RuntimeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return s.Update(ctx, cfg, changedBy)
}

// Close releases the audit log file.
func (s *Service) Close() error {
	return s.audit.Close()
}

// ValidationError represents a settings validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of settings validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate validates the runtime configuration and returns any errors.
func (cfg *RuntimeConfig) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.LogLevel != "" && !validLogLevels[cfg.LogLevel] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log_level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if cfg.LogFormat != "" && !validLogFormats[cfg.LogFormat] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log_format",
			Message: "must be one of: text, json",
		})
	}

	if cfg.MaxSize < 1 || cfg.MaxSize > 1000 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "max_size",
			Message: "must be between 1 and 1000",
		})
	}

	if cfg.DefaultSize < 1 || cfg.DefaultSize > cfg.MaxSize {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "default_size",
			Message: "must be between 1 and max_size",
		})
	}

	if len(cfg.DefaultKs) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "default_ks",
			Message: "must list at least one cutoff",
		})
	}
	for _, k := range cfg.DefaultKs {
		if k < 1 || k > 1000 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "default_ks",
				Message: "cutoffs must be between 1 and 1000",
			})
			break
		}
	}

	if cfg.QdrantTimeout < 1000 || cfg.QdrantTimeout > 300000 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "qdrant_timeout",
			Message: "must be between 1000 and 300000 (1s to 5min)",
		})
	}

	validSampling := map[string]bool{"none": true, "random": true, "topn": true}
	if cfg.DefaultSampling != "" && !validSampling[cfg.DefaultSampling] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "default_sampling",
			Message: "must be one of: none, random, topn",
		})
	}

	if cfg.MaxQuerySetSize < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "max_query_set_size",
			Message: "must be at least 1",
		})
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateAndUpdate validates and updates settings. Returns validation errors if any.
func (s *Service) ValidateAndUpdate(ctx context.Context, cfg RuntimeConfig, changedBy string) (ValidationResult, error) {
	result := cfg.Validate()
	if !result.Valid {
		return result, fmt.Errorf("validation failed with %d errors", len(result.Errors))
	}
	return result, s.Update(ctx, cfg, changedBy)
}
