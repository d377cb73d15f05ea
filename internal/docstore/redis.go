package docstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

const (
	redisKeyPrefix   = "seval:docs:"
	redisIndicesKey  = "seval:docs:indices"
	redisPingTimeout = 5 * time.Second
)

// RedisStore is a Redis-backed document store. Each index maps to a hash
// keyed by document ID, with JSON-encoded values.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed document store.
// Returns an error if the connection cannot be established.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.StorageError("parsing redis URL", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.StorageError("connecting to redis", err)
	}

	return &RedisStore{client: client}, nil
}

func indexKey(index string) string {
	return redisKeyPrefix + index
}

func (r *RedisStore) CreateIndexIfAbsent(ctx context.Context, index string) error {
	// SADD is idempotent, which gives the already-exists-is-ok semantics.
	if err := r.client.SAdd(ctx, redisIndicesKey, index).Err(); err != nil {
		return errors.StorageError("registering index", err)
	}
	return nil
}

func (r *RedisStore) indexExists(ctx context.Context, index string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, redisIndicesKey, index).Result()
	if err != nil {
		return false, errors.StorageError("checking index", err)
	}
	return ok, nil
}

func (r *RedisStore) Put(ctx context.Context, index, docID string, doc Document, createOnly bool) error {
	exists, err := r.indexExists(ctx, index)
	if err != nil {
		return err
	}
	if !exists {
		return errIndexNotFound(index)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.StorageError("encoding document", err)
	}

	if createOnly {
		set, err := r.client.HSetNX(ctx, indexKey(index), docID, data).Result()
		if err != nil {
			return errors.StorageError("writing document", err)
		}
		if !set {
			return errors.AlreadyExistsError("document " + docID)
		}
		return nil
	}

	if err := r.client.HSet(ctx, indexKey(index), docID, data).Err(); err != nil {
		return errors.StorageError("writing document", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, index, docID string) (Document, error) {
	data, err := r.client.HGet(ctx, indexKey(index), docID).Result()
	if err == redis.Nil {
		return nil, errDocNotFound(docID)
	}
	if err != nil {
		return nil, errors.StorageError("reading document", err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, errors.StorageError("decoding document", err)
	}
	return doc, nil
}

func (r *RedisStore) Search(ctx context.Context, index string, q Query) ([]Document, error) {
	values, err := r.client.HGetAll(ctx, indexKey(index)).Result()
	if err != nil {
		return nil, errors.StorageError("scanning index", err)
	}

	results := []Document{}
	for _, raw := range values {
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue // Skip corrupt entries
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

func (r *RedisStore) Delete(ctx context.Context, index, docID string) error {
	removed, err := r.client.HDel(ctx, indexKey(index), docID).Result()
	if err != nil {
		return errors.StorageError("deleting document", err)
	}
	if removed == 0 {
		return errDocNotFound(docID)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
