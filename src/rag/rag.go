// Package rag retrieves FAQ entries relevant to a customer message and
// formats them as context for the conversational gateway.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"freeda-support/src/logger"
)

const (
	// DefaultResults is how many documents GetContext asks for.
	DefaultResults = 3
	// MaxContextLength caps the context block, header included.
	MaxContextLength = 1000

	contextHeader   = "Informations pertinentes de la base de connaissances:\n"
	defaultCategory = "general"
	defaultSource   = "unknown"
)

// Embedder turns text into a vector. A zero vector means "no embedding".
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) []float64
}

// Document is one knowledge base entry.
type Document struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Result is a document matched by Search.
type Result struct {
	Document
	Score float64 `json:"relevance_score"`
}

// Stats summarizes the knowledge base.
type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	Categories     map[string]int `json:"categories"`
}

type entry struct {
	doc    Document
	vector []float64
	norm   float64
}

// KnowledgeBase is an in-process vector index over FAQ documents.
type KnowledgeBase struct {
	embedder Embedder
	logger   logger.Logger

	mu      sync.RWMutex
	entries []entry
}

// New creates an empty knowledge base.
func New(embedder Embedder, log logger.Logger) *KnowledgeBase {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &KnowledgeBase{embedder: embedder, logger: log}
}

// Load reads a JSON array of documents from path and indexes them.
func (kb *KnowledgeBase) Load(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return 0, fmt.Errorf("failed to parse knowledge base %s: %w", path, err)
	}
	added := kb.Add(ctx, docs)
	kb.logger.Info("[RAG] Loaded %d/%d documents from %s", added, len(docs), path)
	return added, nil
}

// Add embeds and indexes docs. Documents whose embedding fails (zero
// vector) are skipped. It returns how many were indexed.
func (kb *KnowledgeBase) Add(ctx context.Context, docs []Document) int {
	fresh := make([]entry, 0, len(docs))
	for i, d := range docs {
		if strings.TrimSpace(d.Question) == "" && strings.TrimSpace(d.Answer) == "" {
			continue
		}
		if d.Category == "" {
			d.Category = defaultCategory
		}
		if d.Source == "" {
			d.Source = defaultSource
		}

		vec := kb.embedder.GetEmbedding(ctx, "Question: "+d.Question+"\nRéponse: "+d.Answer)
		n := norm(vec)
		if n == 0 {
			kb.logger.Warn("[RAG] Skipping document %d: no embedding", i)
			continue
		}
		fresh = append(fresh, entry{doc: d, vector: vec, norm: n})
	}

	kb.mu.Lock()
	kb.entries = append(kb.entries, fresh...)
	kb.mu.Unlock()
	return len(fresh)
}

// Search returns up to n documents ranked by cosine similarity to query,
// optionally restricted to category. A failed query embedding yields no
// results.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, n int, category string) []Result {
	if n <= 0 {
		n = DefaultResults
	}

	kb.mu.RLock()
	entries := kb.entries
	kb.mu.RUnlock()
	if len(entries) == 0 {
		return nil
	}

	q := kb.embedder.GetEmbedding(ctx, query)
	qn := norm(q)
	if qn == 0 {
		return nil
	}

	candidates := lo.Filter(entries, func(e entry, _ int) bool {
		return category == "" || e.doc.Category == category
	})
	results := lo.Map(candidates, func(e entry, _ int) Result {
		return Result{Document: e.doc, Score: dot(q, e.vector) / (qn * e.norm)}
	})
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > n {
		results = results[:n]
	}
	return results
}

// GetContext formats the best matches for query as a context block no longer
// than MaxContextLength characters. It returns "" when nothing matches.
func (kb *KnowledgeBase) GetContext(ctx context.Context, query string) string {
	results := kb.Search(ctx, query, DefaultResults, "")
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	length := len([]rune(contextHeader))
	for _, r := range results {
		block := "\nQ: " + r.Question + "\nR: " + r.Answer + "\n"
		size := len([]rune(block))
		if length+size > MaxContextLength {
			break
		}
		b.WriteString(block)
		length += size
	}
	return b.String()
}

// Stats counts indexed documents per category.
func (kb *KnowledgeBase) Stats() Stats {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	return Stats{
		TotalDocuments: len(kb.entries),
		Categories: lo.CountValuesBy(kb.entries, func(e entry) string {
			return e.doc.Category
		}),
	}
}

func dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
