// Package rag registers the knowledge-base tools: search and report_grounding.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/xiaot623/voicerag/internal/adapter/search"
	"github.com/xiaot623/voicerag/internal/domain"
	"github.com/xiaot623/voicerag/internal/tools"
)

// Tool names.
const (
	ToolSearch          = "search"
	ToolReportGrounding = "report_grounding"
)

var sourceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_=\-]+$`)

// Options tunes the RAG tools.
type Options struct {
	Top    int
	Vector bool
	Logger *slog.Logger
}

var searchSchema = tools.Schema{Fields: []tools.Field{
	{Name: "query", Type: tools.TypeString, Description: "Search query", Required: true},
}}

var groundingSchema = tools.Schema{Fields: []tools.Field{
	{
		Name:        "sources",
		Type:        tools.TypeArray,
		Items:       tools.TypeString,
		Description: "List of source names from the last search that were used to answer",
		Required:    true,
	},
}}

const searchDescription = "Search the knowledge base. Results are formatted as a source name in square brackets, " +
	"followed by the text content, and a line with '-----' at the end of each result."

const groundingDescription = "Report the knowledge base sources used in an answer (cite them). " +
	"Sources appear in square brackets before each passage returned by search. " +
	"Always use this tool when answering with information from the knowledge base."

type handlers struct {
	searcher search.Searcher
	ledger   *Ledger
	opts     Options
	logger   *slog.Logger
}

// Attach registers search and report_grounding on reg.
func Attach(reg *tools.Registry, searcher search.Searcher, ledger *Ledger, opts Options) error {
	if searcher == nil {
		return fmt.Errorf("searcher is required")
	}
	if ledger == nil {
		return fmt.Errorf("ledger is required")
	}
	if opts.Top <= 0 {
		opts.Top = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{searcher: searcher, ledger: ledger, opts: opts, logger: logger}
	if err := reg.Register(ToolSearch, searchDescription, searchSchema, h.search); err != nil {
		return err
	}
	return reg.Register(ToolReportGrounding, groundingDescription, groundingSchema, h.reportGrounding)
}

func (h *handlers) search(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	query := args["query"].(string)
	docs, err := h.searcher.Search(ctx, search.Query{Text: query, Top: h.opts.Top, Vector: h.opts.Vector})
	if err != nil {
		return domain.ToolResult{}, err
	}

	var b strings.Builder
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			continue
		}
		ids = append(ids, d.ID)
		fmt.Fprintf(&b, "[%s]: %s\n-----\n", d.ID, d.Content)
	}
	h.ledger.Issue(ids...)
	h.logger.Debug("search tool", "hits", len(ids))
	return domain.TextResult(b.String()), nil
}

type groundingPayload struct {
	Sources []domain.Document `json:"sources"`
}

func (h *handlers) reportGrounding(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	raw, _ := args["sources"].([]any)
	ids := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, v := range raw {
		id, _ := v.(string)
		if !sourceIDPattern.MatchString(id) || seen[id] || !h.ledger.Issued(id) {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	payload := groundingPayload{Sources: []domain.Document{}}
	if len(ids) > 0 {
		docs, err := h.searcher.Lookup(ctx, ids)
		if err != nil {
			h.logger.Warn("grounding lookup failed", "error", err, "sources", len(ids))
			docs = make([]domain.Document, 0, len(ids))
			for _, id := range ids {
				docs = append(docs, domain.Document{ID: id})
			}
		}
		now := time.Now()
		records := make([]domain.GroundingRecord, 0, len(docs))
		for _, d := range docs {
			payload.Sources = append(payload.Sources, d)
			records = append(records, domain.GroundingRecord{
				SourceID:   d.ID,
				Title:      d.Title,
				Passage:    d.Content,
				ReportedAt: now,
			})
		}
		h.ledger.Report(records...)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.ClientResult(`{"sources":[]}`), nil
	}
	return domain.ClientResult(string(data)), nil
}
