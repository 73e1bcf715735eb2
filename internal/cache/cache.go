/**
 * Redis-backed result and feature caches for the ZakPOS OCR Worker
 *
 * Two key families:
 *   ocr:result:<jobID>     serialized ProcessResult, short TTL
 *   ocr:features:<sha256>  recognized-text features keyed by image
 *                          content hash, long TTL
 *
 * A Store with no Redis client is a valid no-op cache: every Get
 * misses and every Put is dropped. Cache errors are logged and
 * swallowed; the pipeline must work without a backing store.
 */

package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zakpos/ocr-worker/internal/logging"
)

const (
	resultKeyPrefix  = "ocr:result:"
	featureKeyPrefix = "ocr:features:"
)

// Store is a keyed cache over Redis with per-family TTLs.
type Store struct {
	client     *redis.Client
	resultTTL  time.Duration
	featureTTL time.Duration
	logger     *logging.Logger
}

// New creates a cache store. A nil client degrades the store to a no-op.
func New(client *redis.Client, resultTTL, featureTTL time.Duration, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewLogger("cache")
	}
	return &Store{
		client:     client,
		resultTTL:  resultTTL,
		featureTTL: featureTTL,
		logger:     logger,
	}
}

// Connect dials Redis and verifies the connection with a short ping.
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// GetResult returns the cached result payload for a job id, if present.
func (s *Store) GetResult(ctx context.Context, jobID string) ([]byte, bool) {
	return s.get(ctx, resultKeyPrefix+jobID)
}

// PutResult stores a result payload under the job id.
func (s *Store) PutResult(ctx context.Context, jobID string, payload []byte) {
	if s == nil {
		return
	}
	s.put(ctx, resultKeyPrefix+jobID, payload, s.resultTTL)
}

// GetFeatures returns cached image features for a content hash, if present.
func (s *Store) GetFeatures(ctx context.Context, imageHash string) ([]byte, bool) {
	return s.get(ctx, featureKeyPrefix+imageHash)
}

// PutFeatures stores image features under a content hash.
func (s *Store) PutFeatures(ctx context.Context, imageHash string, payload []byte) {
	if s == nil {
		return
	}
	s.put(ctx, featureKeyPrefix+imageHash, payload, s.featureTTL)
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool) {
	if s == nil || s.client == nil {
		return nil, false
	}

	payload, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("Cache read failed", "key", key, "error", err)
		return nil, false
	}
	return payload, true
}

func (s *Store) put(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if s == nil || s.client == nil {
		return
	}

	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		s.logger.Warn("Cache write failed", "key", key, "error", err)
	}
}
