// Package helpers provides shared fixtures for package tests.
package helpers

import (
	"context"
	"testing"

	"github.com/xiaot623/voicerag/internal/adapter/search"
	"github.com/xiaot623/voicerag/internal/domain"
)

// KnowledgeBase is the fixture loaded by NewTestKnowledgeBase.
var KnowledgeBase = []domain.Document{
	{ID: "renovacao_cnh_1", Title: "renovacao-cnh.pdf", Content: "A renovação da CNH pode ser solicitada pelo portal do Detran SP após o exame médico."},
	{ID: "renovacao_cnh_2", Title: "renovacao-cnh.pdf", Content: "O prazo de renovação da CNH é de 10 anos para condutores com menos de 50 anos."},
	{ID: "multas_1", Title: "multas.pdf", Content: "Multas podem ser consultadas com o número do Renavam."},
}

// NewTestKnowledgeBase returns an in-memory SQLite knowledge base seeded with KnowledgeBase.
func NewTestKnowledgeBase(t *testing.T) *search.SQLiteSearcher {
	t.Helper()

	s, err := search.NewSQLiteSearcher(":memory:")
	if err != nil {
		t.Fatalf("failed to create knowledge base: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	if err := s.Seed(context.Background(), KnowledgeBase); err != nil {
		t.Fatalf("failed to seed knowledge base: %v", err)
	}
	return s
}
