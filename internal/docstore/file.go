package docstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/hash"
)

// FileStore persists documents as JSON files, one directory per index.
// Suitable for single-node deployments without external infrastructure.
type FileStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStore creates a new file-based document store rooted at basePath.
func NewFileStore(basePath string) *FileStore {
	return &FileStore{basePath: basePath}
}

func (f *FileStore) indexPath(index string) string {
	return filepath.Join(f.basePath, index)
}

// docPath maps a document ID to a file name. IDs that are not filesystem-safe
// are hashed.
func (f *FileStore) docPath(index, docID string) string {
	name := docID
	if strings.ContainsAny(docID, `/\:*?"<>|`) || docID == "" {
		name = hash.SHA256Short([]byte(docID), 32)
	}
	return filepath.Join(f.indexPath(index), name+".json")
}

func (f *FileStore) CreateIndexIfAbsent(ctx context.Context, index string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.indexPath(index), 0755); err != nil {
		return errors.StorageError("creating index directory", err)
	}
	return nil
}

func (f *FileStore) Put(ctx context.Context, index, docID string, doc Document, createOnly bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.indexPath(index)); os.IsNotExist(err) {
		return errIndexNotFound(index)
	}

	path := f.docPath(index, docID)
	if createOnly {
		if _, err := os.Stat(path); err == nil {
			return errors.AlreadyExistsError("document " + docID)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.StorageError("encoding document", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.StorageError("writing document", err)
	}

	return nil
}

func (f *FileStore) Get(ctx context.Context, index, docID string) (Document, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.docPath(index, docID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errDocNotFound(docID)
		}
		return nil, errors.StorageError("reading document", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.StorageError("decoding document", err)
	}

	return doc, nil
}

func (f *FileStore) Search(ctx context.Context, index string, q Query) ([]Document, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.indexPath(index))
	if err != nil {
		if os.IsNotExist(err) {
			return []Document{}, nil
		}
		return nil, errors.StorageError("reading index directory", err)
	}

	results := []Document{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(f.indexPath(index), entry.Name()))
		if err != nil {
			continue // Skip files we can't read
		}

		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			continue // Skip invalid files
		}

		if !q.matches(doc) {
			continue
		}

		results = append(results, doc)
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}

	return results, nil
}

func (f *FileStore) Delete(ctx context.Context, index, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.docPath(index, docID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errDocNotFound(docID)
	}

	if err := os.Remove(path); err != nil {
		return errors.StorageError("deleting document", err)
	}

	return nil
}

func (f *FileStore) Close() error {
	return nil
}
