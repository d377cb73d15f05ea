package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/searcheval/search-eval/internal/pkg/logger"
)

const (
	// DefaultGRPCPort is the default Qdrant gRPC port.
	DefaultGRPCPort = 6334

	// DefaultTimeout bounds each backend call.
	DefaultTimeout = 30 * time.Second

	// maxRecvMsgSize caps gRPC responses; large result pages with payloads
	// can exceed the 4MB default.
	maxRecvMsgSize = 32 * 1024 * 1024
)

// Embedder turns query text into a dense vector for the collection being
// searched. The evaluation core treats it as an opaque collaborator.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QdrantConfig holds connection settings for the Qdrant searcher.
type QdrantConfig struct {
	Host             string
	Port             int
	APIKey           string
	UseTLS           bool
	CollectionPrefix string
	Timeout          time.Duration
}

// DefaultQdrantConfig returns sensible defaults for local development.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:    "localhost",
		Port:    DefaultGRPCPort,
		Timeout: DefaultTimeout,
	}
}

// ParseQdrantURL extracts host and gRPC port from an HTTP-style Qdrant URL.
// Example: http://localhost:6333 -> localhost, 6334 (gRPC port).
func ParseQdrantURL(rawURL string) (string, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, err
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}

	portStr := u.Port()
	httpPort := 6333
	if portStr != "" {
		httpPort, err = strconv.Atoi(portStr)
		if err != nil {
			return "", 0, fmt.Errorf("invalid port: %s", portStr)
		}
	}

	// Qdrant gRPC port is typically HTTP port + 1
	return host, httpPort + 1, nil
}

// QdrantSearcher runs dense searches against Qdrant collections.
type QdrantSearcher struct {
	client *qdrant.Client
	config QdrantConfig
	embed  Embedder
	log    *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewQdrantSearcher creates a Qdrant-backed searcher.
func NewQdrantSearcher(cfg QdrantConfig, embed Embedder, log *logger.Logger) (*QdrantSearcher, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultGRPCPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
			grpc.WithUserAgent("search-eval"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantSearcher{
		client: client,
		config: cfg,
		embed:  embed,
		log:    log,
	}, nil
}

// Search embeds the query text and runs a dense search against the
// configuration's collection, returning ranked point IDs. With hybrid
// parameters it instead runs the dense and lexical branches separately and
// fuses their scores per the requested techniques.
func (s *QdrantSearcher) Search(ctx context.Context, cfg *SearchConfiguration, queryText string, size int, hybrid *HybridParams) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("searcher is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	vector, err := s.embed.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	if hybrid != nil {
		return s.hybridSearch(ctx, cfg, queryText, vector, size, hybrid)
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: s.config.CollectionPrefix + cfg.Collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(size)),
	}
	if cfg.ScoreThreshold > 0 {
		queryPoints.ScoreThreshold = qdrant.PtrOf(float32(cfg.ScoreThreshold))
	}

	points, err := s.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	docIDs := make([]string, 0, len(points))
	for _, p := range points {
		docIDs = append(docIDs, pointIDString(p.GetId()))
	}
	return docIDs, nil
}

// hybridTextField is the payload field the lexical branch matches against.
const hybridTextField = "text"

// hybridSearch runs the dense branch and a text-filtered branch against the
// same collection, then fuses the two score lists client-side. Each branch
// fetches a deeper candidate pool than the final size so fusion has overlap
// to work with.
func (s *QdrantSearcher) hybridSearch(ctx context.Context, cfg *SearchConfiguration, queryText string, vector []float32, size int, hybrid *HybridParams) ([]string, error) {
	collection := s.config.CollectionPrefix + cfg.Collection
	depth := qdrant.PtrOf(uint64(size * 2))

	dense, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          depth,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant dense branch failed: %w", err)
	}

	lexical, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchText(hybridTextField, queryText)},
		},
		Limit: depth,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant lexical branch failed: %w", err)
	}

	ids := FuseScores([][]ScoredDoc{scoredDocs(dense), scoredDocs(lexical)}, hybrid)
	if len(ids) > size {
		ids = ids[:size]
	}
	return ids, nil
}

func scoredDocs(points []*qdrant.ScoredPoint) []ScoredDoc {
	docs := make([]ScoredDoc, 0, len(points))
	for _, p := range points {
		docs = append(docs, ScoredDoc{ID: pointIDString(p.GetId()), Score: float64(p.GetScore())})
	}
	return docs
}

// HealthCheck verifies the Qdrant server is reachable.
func (s *QdrantSearcher) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("searcher is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying client connection.
func (s *QdrantSearcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
