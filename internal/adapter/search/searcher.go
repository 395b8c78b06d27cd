// Package search contains the knowledge-base backends used by the RAG tools.
package search

import (
	"context"

	"github.com/xiaot623/voicerag/internal/domain"
)

// Query is a retrieval request.
type Query struct {
	Text string
	Top  int
	// Vector adds a vector query next to the text query when the backend supports it.
	Vector bool
}

// Searcher is the knowledge-base collaborator.
type Searcher interface {
	// Search returns at most q.Top documents carrying only ID and Content.
	Search(ctx context.Context, q Query) ([]domain.Document, error)
	// Lookup returns the documents for the given identifiers with their titles.
	Lookup(ctx context.Context, ids []string) ([]domain.Document, error)
}
