package docstore

import (
	"fmt"
	"strings"

	"github.com/searcheval/search-eval/internal/config"
	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// NewStore creates a Store instance based on the configuration.
func NewStore(cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryStore(), nil

	case "file":
		if cfg.Path == "" {
			return nil, errors.New(errors.CodeValidation, "file store path not configured")
		}
		return NewFileStore(cfg.Path), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, errors.New(errors.CodeValidation, "redis store URL not configured")
		}
		return NewRedisStore(cfg.RedisURL)

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown store type: %s", cfg.Type))
	}
}
