package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// keywordEmbedder maps text onto fixed axes so similarity is predictable.
type keywordEmbedder struct {
	axes []string
	fail map[string]bool
}

func (k keywordEmbedder) GetEmbedding(ctx context.Context, text string) []float64 {
	vec := make([]float64, len(k.axes))
	if k.fail[text] {
		return vec
	}
	lower := strings.ToLower(text)
	for i, a := range k.axes {
		if strings.Contains(lower, a) {
			vec[i] = 1
		}
	}
	return vec
}

var axes = []string{"facture", "fibre", "box", "mobile"}

var faq = []Document{
	{Question: "Comment lire ma facture ?", Answer: "Depuis votre espace abonné.", Category: "facturation"},
	{Question: "Ma fibre ne marche plus", Answer: "Redémarrez la box puis testez la ligne.", Category: "technique"},
	{Question: "Mon mobile ne capte pas", Answer: "Vérifiez le mode avion.", Category: "technique"},
}

func newKB(t *testing.T) *KnowledgeBase {
	t.Helper()
	kb := New(keywordEmbedder{axes: axes}, nil)
	if n := kb.Add(context.Background(), faq); n != len(faq) {
		t.Fatalf("Add() indexed %d, want %d", n, len(faq))
	}
	return kb
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	kb := newKB(t)

	results := kb.Search(context.Background(), "problème de fibre", 3, "")
	if len(results) == 0 {
		t.Fatal("Search() returned nothing")
	}
	if results[0].Question != "Ma fibre ne marche plus" {
		t.Errorf("top result = %q", results[0].Question)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by score: %v", results)
		}
	}
}

func TestSearch_Category(t *testing.T) {
	kb := newKB(t)

	results := kb.Search(context.Background(), "fibre", 3, "facturation")
	if len(results) != 1 || results[0].Category != "facturation" {
		t.Errorf("Search(category) = %+v", results)
	}
}

func TestSearch_Limit(t *testing.T) {
	kb := newKB(t)
	if got := kb.Search(context.Background(), "box mobile facture fibre", 2, ""); len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestSearch_ZeroQueryVector(t *testing.T) {
	kb := newKB(t)
	if got := kb.Search(context.Background(), "bonjour", 3, ""); got != nil {
		t.Errorf("Search() = %v, want nil for an unembeddable query", got)
	}
}

func TestAdd_SkipsFailedEmbeddings(t *testing.T) {
	doc := faq[0]
	emb := keywordEmbedder{axes: axes, fail: map[string]bool{"Question: " + doc.Question + "\nRéponse: " + doc.Answer: true}}
	kb := New(emb, nil)

	if n := kb.Add(context.Background(), faq); n != len(faq)-1 {
		t.Errorf("Add() = %d, want %d", n, len(faq)-1)
	}
}

func TestGetContext(t *testing.T) {
	kb := newKB(t)

	got := kb.GetContext(context.Background(), "ma fibre et ma box")
	if !strings.HasPrefix(got, contextHeader) {
		t.Fatalf("context missing header: %q", got)
	}
	if !strings.Contains(got, "\nQ: Ma fibre ne marche plus\nR: Redémarrez la box puis testez la ligne.\n") {
		t.Errorf("context missing best block: %q", got)
	}

	if got := kb.GetContext(context.Background(), "rien à voir"); got != "" {
		t.Errorf("GetContext() = %q, want empty", got)
	}
}

func TestGetContext_Capped(t *testing.T) {
	long := strings.Repeat("x", 400)
	kb := New(keywordEmbedder{axes: axes}, nil)
	kb.Add(context.Background(), []Document{
		{Question: "facture 1", Answer: long},
		{Question: "facture 2", Answer: long},
		{Question: "facture 3", Answer: long},
	})

	got := kb.GetContext(context.Background(), "facture")
	if n := len([]rune(got)); n > MaxContextLength {
		t.Errorf("context length = %d, want <= %d", n, MaxContextLength)
	}
	if c := strings.Count(got, "\nQ: "); c != 2 {
		t.Errorf("blocks = %d, want 2", c)
	}
}

func TestLoadAndStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	data := `[
		{"question": "Comment lire ma facture ?", "answer": "Espace abonné", "category": "facturation"},
		{"question": "Ma box clignote", "answer": "Redémarrez-la", "category": "technique"},
		{"question": "Ma fibre est lente", "answer": "Testez en filaire"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	kb := New(keywordEmbedder{axes: axes}, nil)
	n, err := kb.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Load() = %d, want 3", n)
	}

	stats := kb.Stats()
	if stats.TotalDocuments != 3 {
		t.Errorf("TotalDocuments = %d", stats.TotalDocuments)
	}
	want := map[string]int{"facturation": 1, "technique": 1, "general": 1}
	for cat, c := range want {
		if stats.Categories[cat] != c {
			t.Errorf("Categories[%s] = %d, want %d", cat, stats.Categories[cat], c)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	kb := New(keywordEmbedder{axes: axes}, nil)
	if _, err := kb.Load(context.Background(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := kb.Load(context.Background(), path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
