package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/libris-ai/libris/internal/log"
	"github.com/libris-ai/libris/internal/rag"
	"github.com/libris-ai/libris/internal/store"
	"github.com/libris-ai/libris/internal/testutil"
)

const chromemTestDim = 8

func TestChromemContract(t *testing.T) {
	testStoreContract(t, func(t *testing.T) (store.Store, int) {
		s, err := store.NewChromem("", chromemTestDim, log.NewNop())
		if err != nil {
			t.Fatalf("NewChromem() = %v", err)
		}
		return s, chromemTestDim
	})
}

func TestChromemRejectsBadConfig(t *testing.T) {
	if _, err := store.NewChromem("", 0, log.NewNop()); err == nil {
		t.Error("NewChromem(dim=0) = nil, want error")
	}
}

func TestChromemPersistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chromem")
	ctx := context.Background()

	s, err := store.NewChromem(dir, chromemTestDim, log.NewNop())
	if err != nil {
		t.Fatalf("NewChromem() = %v", err)
	}

	meta := rag.SourceMetadata{
		SourceID:      "field-guide",
		DisplayName:   "Field Guide",
		Type:          rag.SourceTypeBook,
		ReferenceLink: "https://example.com/field-guide",
	}
	if err := s.RegisterSource(ctx, meta); err != nil {
		t.Fatalf("RegisterSource() = %v", err)
	}
	chunks := []rag.Chunk{
		makeChunk("field-guide", 0, "chapter one", testutil.Basis(chromemTestDim, 0)),
		makeChunk("field-guide", 1, "chapter two", testutil.Basis(chromemTestDim, 1)),
	}
	if err := s.UpsertChunks(ctx, "field-guide", chunks); err != nil {
		t.Fatalf("UpsertChunks() = %v", err)
	}

	// A fresh handle on the same directory sees both the chunks and
	// the source catalog.
	reopened, err := store.NewChromem(dir, chromemTestDim, log.NewNop())
	if err != nil {
		t.Fatalf("NewChromem(reopen) = %v", err)
	}

	n, err := reopened.Count(ctx)
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() after reopen = %d, want 2", n)
	}

	got, err := reopened.Source(ctx, "field-guide")
	if err != nil {
		t.Fatalf("Source() after reopen = %v", err)
	}
	if got.DisplayName != meta.DisplayName || got.Type != meta.Type || got.ReferenceLink != meta.ReferenceLink {
		t.Errorf("Source() after reopen = %+v, want %+v", got, meta)
	}

	results, err := reopened.Search(ctx, testutil.Basis(chromemTestDim, 0), store.SearchOptions{K: 1})
	if err != nil {
		t.Fatalf("Search() after reopen = %v", err)
	}
	if len(results) != 1 || results[0].Content != "chapter one" {
		t.Errorf("Search() after reopen = %+v, want chapter one", results)
	}
	if results[0].SourceName != "Field Guide" {
		t.Errorf("SourceName = %q, want Field Guide", results[0].SourceName)
	}
}
