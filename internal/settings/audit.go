package settings

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"
)

// AuditEntry represents a single settings change audit log entry.
type AuditEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Version   int           `json:"version"`
	ChangedBy string        `json:"changed_by"` // "admin", "api", "import", "rollback"
	Changes   []FieldChange `json:"changes"`
}

// FieldChange represents a single field modification.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// AuditLogger writes settings changes to a JSON lines log file.
type AuditLogger struct {
	logPath string
	mu      sync.Mutex
	file    *os.File
	enabled bool
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	LogPath string
	Enabled bool
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) (*AuditLogger, error) {
	if !cfg.Enabled {
		return &AuditLogger{enabled: false}, nil
	}

	dir := filepath.Dir(cfg.LogPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}

	file, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}

	return &AuditLogger{
		logPath: cfg.LogPath,
		file:    file,
		enabled: true,
	}, nil
}

// Log writes an audit entry to the log file.
func (a *AuditLogger) Log(entry AuditEntry) error {
	if !a.enabled {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}

	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("syncing audit log: %w", err)
	}

	return nil
}

// GetEntries returns the last N audit entries from the log file, newest first.
func (a *AuditLogger) GetEntries(limit int) ([]AuditEntry, error) {
	if !a.enabled {
		return []AuditEntry{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []AuditEntry{}, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer file.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// Skip malformed lines
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	for i := 0; i < len(entries)/2; i++ {
		j := len(entries) - i - 1
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// Close closes the audit log file.
func (a *AuditLogger) Close() error {
	if !a.enabled || a.file == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.file.Close()
}

// Diff compares two configurations and returns the list of changed fields.
// Metadata fields are skipped since they change on every update.
func Diff(old, new RuntimeConfig) []FieldChange {
	var changes []FieldChange

	oldVal := reflect.ValueOf(old)
	newVal := reflect.ValueOf(new)
	typ := oldVal.Type()

	for i := 0; i < typ.NumField(); i++ {
		fieldName := typ.Field(i).Name
		if fieldName == "UpdatedAt" || fieldName == "Version" {
			continue
		}

		oldFieldVal := oldVal.Field(i).Interface()
		newFieldVal := newVal.Field(i).Interface()

		if !reflect.DeepEqual(oldFieldVal, newFieldVal) {
			changes = append(changes, FieldChange{
				Field:    fieldName,
				OldValue: oldFieldVal,
				NewValue: newFieldVal,
			})
		}
	}

	return changes
}
