package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/voicerag/internal/domain"
)

const searchAPIVersion = "2024-07-01"

// Fields maps index fields onto document attributes.
type Fields struct {
	Identifier string
	Content    string
	Embedding  string
	Title      string
}

// AzureConfig configures an AzureSearcher.
type AzureConfig struct {
	Endpoint              string
	Index                 string
	SemanticConfiguration string
	Fields                Fields
	// VectorK is the number of nearest neighbours requested by the vector query.
	VectorK int
	Timeout time.Duration
}

// AzureSearcher queries an Azure AI Search index over REST.
type AzureSearcher struct {
	cfg        AzureConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAzureSearcher creates a searcher. httpClient must carry the search credential.
func NewAzureSearcher(cfg AzureConfig, httpClient *http.Client, logger *slog.Logger) (*AzureSearcher, error) {
	if cfg.Endpoint == "" || cfg.Index == "" {
		return nil, fmt.Errorf("search endpoint and index are required")
	}
	if cfg.Fields.Identifier == "" || cfg.Fields.Content == "" {
		return nil, fmt.Errorf("identifier and content fields are required")
	}
	if cfg.VectorK <= 0 {
		cfg.VectorK = 50
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &AzureSearcher{cfg: cfg, httpClient: httpClient, logger: logger}, nil
}

type vectorQuery struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	K      int    `json:"k"`
	Fields string `json:"fields"`
}

type searchRequest struct {
	Search                string        `json:"search"`
	QueryType             string        `json:"queryType,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
	Filter                string        `json:"filter,omitempty"`
	Select                string        `json:"select"`
	Top                   int           `json:"top,omitempty"`
	VectorQueries         []vectorQuery `json:"vectorQueries,omitempty"`
}

type searchResponse struct {
	Value []map[string]any `json:"value"`
}

// Search runs a semantic query, hybrid with a vector query when q.Vector is set.
func (s *AzureSearcher) Search(ctx context.Context, q Query) ([]domain.Document, error) {
	req := searchRequest{
		Search:                q.Text,
		QueryType:             "semantic",
		SemanticConfiguration: s.cfg.SemanticConfiguration,
		Select:                s.cfg.Fields.Identifier + "," + s.cfg.Fields.Content,
		Top:                   q.Top,
	}
	if q.Vector && s.cfg.Fields.Embedding != "" {
		req.VectorQueries = []vectorQuery{{
			Kind:   "text",
			Text:   q.Text,
			K:      s.cfg.VectorK,
			Fields: s.cfg.Fields.Embedding,
		}}
	}
	rows, err := s.do(ctx, req)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, domain.Document{
			ID:      stringField(row, s.cfg.Fields.Identifier),
			Content: stringField(row, s.cfg.Fields.Content),
		})
	}
	return docs, nil
}

// Lookup fetches documents by identifier.
func (s *AzureSearcher) Lookup(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	selectFields := []string{s.cfg.Fields.Identifier, s.cfg.Fields.Content}
	if s.cfg.Fields.Title != "" {
		selectFields = append(selectFields, s.cfg.Fields.Title)
	}
	req := searchRequest{
		Search:    "*",
		QueryType: "full",
		Filter:    fmt.Sprintf("search.in(%s, '%s', ',')", s.cfg.Fields.Identifier, strings.Join(ids, ",")),
		Select:    strings.Join(selectFields, ","),
		Top:       len(ids),
	}
	rows, err := s.do(ctx, req)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, domain.Document{
			ID:      stringField(row, s.cfg.Fields.Identifier),
			Title:   stringField(row, s.cfg.Fields.Title),
			Content: stringField(row, s.cfg.Fields.Content),
		})
	}
	return docs, nil
}

func (s *AzureSearcher) do(ctx context.Context, body searchRequest) ([]map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		strings.TrimRight(s.cfg.Endpoint, "/"), url.PathEscape(s.cfg.Index), searchAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("search completed",
			"index", s.cfg.Index,
			"query_type", body.QueryType,
			"vector", len(body.VectorQueries) > 0,
			"hits", len(out.Value),
			"duration_ms", time.Since(start).Milliseconds())
	}
	return out.Value, nil
}

func stringField(row map[string]any, field string) string {
	if field == "" {
		return ""
	}
	switch v := row[field].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
