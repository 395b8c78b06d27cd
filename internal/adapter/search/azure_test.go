package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAzure(t *testing.T, handler http.HandlerFunc) *AzureSearcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewAzureSearcher(AzureConfig{
		Endpoint:              srv.URL,
		Index:                 "detran-index",
		SemanticConfiguration: "default",
		Fields: Fields{
			Identifier: "chunk_id",
			Content:    "chunk",
			Embedding:  "text_vector",
			Title:      "title",
		},
	}, srv.Client(), nil)
	require.NoError(t, err)
	return s
}

func TestAzureSearchHybrid(t *testing.T) {
	var body map[string]any
	s := newTestAzure(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/indexes/detran-index/docs/search", r.URL.Path)
		assert.Equal(t, searchAPIVersion, r.URL.Query().Get("api-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"chunk_id": "doc_1", "chunk": "Renovação da CNH", "text_vector": []float64{0.1, 0.2}, "@search.score": 1.2},
			},
		})
	})

	docs, err := s.Search(context.Background(), Query{Text: "renovação CNH", Top: 5, Vector: true})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc_1", docs[0].ID)
	assert.Equal(t, "Renovação da CNH", docs[0].Content)
	assert.Empty(t, docs[0].Title)

	assert.Equal(t, "semantic", body["queryType"])
	assert.Equal(t, "default", body["semanticConfiguration"])
	assert.Equal(t, "chunk_id,chunk", body["select"])
	assert.EqualValues(t, 5, body["top"])
	vq := body["vectorQueries"].([]any)
	require.Len(t, vq, 1)
	assert.Equal(t, map[string]any{"kind": "text", "text": "renovação CNH", "k": float64(50), "fields": "text_vector"}, vq[0])
}

func TestAzureSearchTextOnlyWhenVectorDisabled(t *testing.T) {
	var body map[string]any
	s := newTestAzure(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"value":[]}`))
	})

	docs, err := s.Search(context.Background(), Query{Text: "multas", Top: 3})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NotContains(t, body, "vectorQueries")
}

func TestAzureLookup(t *testing.T) {
	var body map[string]any
	s := newTestAzure(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"value":[{"chunk_id":"doc_1","title":"renovacao.pdf","chunk":"Texto"}]}`))
	})

	docs, err := s.Lookup(context.Background(), []string{"doc_1", "doc_2"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "renovacao.pdf", docs[0].Title)
	assert.Equal(t, "search.in(chunk_id, 'doc_1,doc_2', ',')", body["filter"])
	assert.Equal(t, "chunk_id,chunk,title", body["select"])
}

func TestAzureSearchErrorStatus(t *testing.T) {
	s := newTestAzure(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index unavailable", http.StatusServiceUnavailable)
	})

	_, err := s.Search(context.Background(), Query{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
