package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/voicerag/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteSearcher {
	t.Helper()
	s, err := NewSQLiteSearcher(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Seed(context.Background(), []domain.Document{
		{ID: "renovacao_1", Title: "renovacao.pdf", Content: "A renovação da CNH pode ser feita pelo portal. Renovação exige exame médico."},
		{ID: "multas_1", Title: "multas.pdf", Content: "Consulta de multas pelo número do Renavam."},
		{ID: "cnh_2", Title: "digital.pdf", Content: "A CNH digital tem a mesma validade da renovação impressa."},
	}))
	return s
}

func TestSQLiteSearchRanksByTermHits(t *testing.T) {
	s := newTestSQLite(t)

	docs, err := s.Search(context.Background(), Query{Text: "renovação CNH", Top: 5})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "renovacao_1", docs[0].ID)
	assert.Equal(t, "cnh_2", docs[1].ID)
	for _, d := range docs {
		assert.Empty(t, d.Title)
	}
}

func TestSQLiteSearchHonoursTop(t *testing.T) {
	s := newTestSQLite(t)

	docs, err := s.Search(context.Background(), Query{Text: "renovação CNH multas", Top: 1})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSQLiteLookup(t *testing.T) {
	s := newTestSQLite(t)

	docs, err := s.Lookup(context.Background(), []string{"multas_1", "unknown"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "multas.pdf", docs[0].Title)
}

func TestSQLiteSeedFile(t *testing.T) {
	s, err := NewSQLiteSearcher(":memory:")
	require.NoError(t, err)
	defer s.Close()

	path := filepath.Join(t.TempDir(), "kb.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"chunk_id":"a_1","title":"a.pdf","chunk":"Agendamento de vistoria"}]`), 0o600))

	n, err := s.SeedFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := s.Search(context.Background(), Query{Text: "vistoria"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a_1", docs[0].ID)
}
