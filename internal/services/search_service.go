package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"shopsense/internal/config"
	"shopsense/internal/models"
)

// SearchService wraps the Elasticsearch client behind the two query shapes
// the retrieval flow needs: a kNN vector query and a multi-field fuzzy text
// query. Every call carries a bounded timeout; an unreachable engine degrades
// to empty results at the orchestrator, never to a propagated error.
type SearchService struct {
	client   *elasticsearch.Client
	enabled  bool
	disabled bool // set by configuration; no request ever leaves the process
	timeout  time.Duration

	knowledgeIndex     string
	conversationsIndex string
	vectorDims         int
}

// ErrSearchDisabled is returned by every operation when the engine is turned
// off by configuration. Callers treat it like any other backend failure.
var ErrSearchDisabled = errors.New("search is disabled by configuration")

type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Score  float64         `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// NewSearchService connects to Elasticsearch and pings it once. A failed ping
// disables the service rather than failing startup; retrieval then runs in
// degraded mode until the engine comes back.
func NewSearchService(cfg *config.Config) (*SearchService, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.ESAddresses,
		Username:  cfg.ESUsername,
		Password:  cfg.ESPassword,
	}
	if cfg.ESInsecureSkipTLS {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	s := &SearchService{
		client:             client,
		disabled:           !cfg.ESEnabled,
		timeout:            cfg.SearchTimeout,
		knowledgeIndex:     cfg.KnowledgeIndex,
		conversationsIndex: cfg.ConversationsIndex,
		vectorDims:         cfg.VectorDims,
	}
	if s.disabled {
		log.Println("⚠️ Elasticsearch disabled by configuration, retrieval runs in degraded mode")
		return s, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SearchTimeout)
	defer cancel()
	if s.ping(ctx) {
		s.enabled = true
		log.Println("✅ Elasticsearch connection established")
	} else {
		log.Println("⚠️ Elasticsearch unreachable, search disabled until it recovers")
	}

	return s, nil
}

// KnowledgeIndex returns the name of the product-knowledge index.
func (s *SearchService) KnowledgeIndex() string { return s.knowledgeIndex }

// ConversationsIndex returns the name of the conversations index.
func (s *SearchService) ConversationsIndex() string { return s.conversationsIndex }

func (s *SearchService) ping(ctx context.Context) bool {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// IsAvailable reports whether the engine currently answers pings. A service
// disabled by configuration never pings and is never available.
func (s *SearchService) IsAvailable(ctx context.Context) bool {
	if s.disabled {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	s.enabled = s.ping(ctx)
	return s.enabled
}

// SemanticSearch runs a k-nearest-neighbor query against a dense-vector field.
func (s *SearchService) SemanticSearch(ctx context.Context, index string, vector []float32, field string, size int) ([]models.SearchHit, error) {
	body := map[string]any{
		"knn": map[string]any{
			"field":          field,
			"query_vector":   vector,
			"k":              size,
			"num_candidates": size * 2,
		},
		"size": size,
	}
	return s.search(ctx, index, body, models.OriginSemantic)
}

// MultiMatchSearch runs a fuzzy best-fields query across the given fields
// (use the "name^2" syntax to weight a field).
func (s *SearchService) MultiMatchSearch(ctx context.Context, index, query string, fields []string, size int) ([]models.SearchHit, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    fields,
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		},
		"min_score": 0.1,
		"size":      size,
	}
	return s.search(ctx, index, body, models.OriginLexical)
}

// TermQuery runs an exact-match query on one field.
func (s *SearchService) TermQuery(ctx context.Context, index, field string, value any, size int) ([]models.SearchHit, error) {
	body := map[string]any{
		"query": map[string]any{
			"term": map[string]any{field: value},
		},
		"size": size,
	}
	return s.search(ctx, index, body, models.OriginLexical)
}

func (s *SearchService) search(ctx context.Context, index string, body map[string]any, origin string) ([]models.SearchHit, error) {
	if s.disabled {
		return nil, ErrSearchDisabled
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search returned %s", res.Status())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, models.SearchHit{
			DocID:  h.ID,
			Score:  h.Score,
			Source: h.Source,
			Origin: origin,
		})
	}
	return hits, nil
}

// IndexDocument writes one document, stamping indexed_at.
func (s *SearchService) IndexDocument(ctx context.Context, index, docID string, doc map[string]any) error {
	if s.disabled {
		return ErrSearchDisabled
	}
	doc["indexed_at"] = time.Now().Format(time.RFC3339)

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.client.Index(
		index,
		bytes.NewReader(payload),
		s.client.Index.WithDocumentID(docID),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index returned %s", res.Status())
	}
	return nil
}

// DeleteDocument removes one document. A missing document is not an error.
func (s *SearchService) DeleteDocument(ctx context.Context, index, docID string) error {
	if s.disabled {
		return ErrSearchDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.client.Delete(index, docID, s.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete returned %s", res.Status())
	}
	return nil
}

// CountDocuments returns the document count for an index, 0 when unavailable.
func (s *SearchService) CountDocuments(ctx context.Context, index string) (int64, error) {
	if s.disabled {
		return 0, ErrSearchDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(index),
	)
	if err != nil {
		return 0, fmt.Errorf("count request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count returned %s", res.Status())
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return parsed.Count, nil
}

// EnsureIndices creates the knowledge and conversations indices with their
// dense-vector mappings if they do not exist yet.
func (s *SearchService) EnsureIndices(ctx context.Context) error {
	if s.disabled {
		return ErrSearchDisabled
	}
	knowledgeMapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"knowledge_id": map[string]any{"type": "keyword"},
				"product_id":   map[string]any{"type": "keyword"},
				"product_name": map[string]any{"type": "text"},
				"brand":        map[string]any{"type": "keyword"},
				"category":     map[string]any{"type": "keyword"},
				"attribute":    map[string]any{"type": "text"},
				"value":        map[string]any{"type": "text"},
				"source_text":  map[string]any{"type": "text"},
				"content_vector": map[string]any{
					"type": "dense_vector", "dims": s.vectorDims,
					"index": true, "similarity": "cosine",
				},
			},
		},
	}
	conversationsMapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"conversation_id": map[string]any{"type": "keyword"},
				"subject":         map[string]any{"type": "keyword"},
				"question":        map[string]any{"type": "text"},
				"answer":          map[string]any{"type": "text"},
				"question_vector": map[string]any{
					"type": "dense_vector", "dims": s.vectorDims,
					"index": true, "similarity": "cosine",
				},
			},
		},
	}

	if err := s.ensureIndex(ctx, s.knowledgeIndex, knowledgeMapping); err != nil {
		return err
	}
	return s.ensureIndex(ctx, s.conversationsIndex, conversationsMapping)
}

func (s *SearchService) ensureIndex(ctx context.Context, index string, mapping map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index existence check failed: %w", err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	payload, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}

	res, err := s.client.Indices.Create(
		index,
		s.client.Indices.Create.WithBody(bytes.NewReader(payload)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index create failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index create returned %s", res.Status())
	}
	log.Printf("✅ [SEARCH] Created index %s", index)
	return nil
}
