package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/libris-ai/libris/internal/rag"
	"github.com/libris-ai/libris/internal/store"
	"github.com/libris-ai/libris/internal/testutil"
)

// storeFactory returns a fresh, empty store and its embedding
// dimension. Both backends run the same contract suite so their search
// semantics cannot drift apart.
type storeFactory func(t *testing.T) (store.Store, int)

func testStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("source lifecycle", func(t *testing.T) { testSourceLifecycle(t, newStore) })
	t.Run("register rejects invalid metadata", func(t *testing.T) { testRegisterInvalid(t, newStore) })
	t.Run("upsert requires registered source", func(t *testing.T) { testUpsertUnknownSource(t, newStore) })
	t.Run("dimension mismatch", func(t *testing.T) { testDimensionMismatch(t, newStore) })
	t.Run("reingest replaces chunk set", func(t *testing.T) { testReingestReplaces(t, newStore) })
	t.Run("search ranking", func(t *testing.T) { testSearchRanking(t, newStore) })
	t.Run("search filters", func(t *testing.T) { testSearchFilters(t, newStore) })
	t.Run("search empty store", func(t *testing.T) { testSearchEmpty(t, newStore) })
	t.Run("delete cascades to chunks", func(t *testing.T) { testDeleteCascades(t, newStore) })
}

func registerSource(t *testing.T, s store.Store, id, name string, typ rag.SourceType) {
	t.Helper()
	err := s.RegisterSource(context.Background(), rag.SourceMetadata{
		SourceID:    id,
		DisplayName: name,
		Type:        typ,
	})
	if err != nil {
		t.Fatalf("RegisterSource(%q) = %v", id, err)
	}
}

func makeChunk(sourceID string, ordinal int, content string, embedding []float32) rag.Chunk {
	return rag.Chunk{
		ID:         uuid.NewString(),
		SourceID:   sourceID,
		Ordinal:    ordinal,
		Content:    content,
		Embedding:  embedding,
		TokenCount: rag.EstimateTokens(content),
	}
}

func testSourceLifecycle(t *testing.T, newStore storeFactory) {
	s, _ := newStore(t)
	ctx := context.Background()

	registerSource(t, s, "gardening-101", "Gardening 101", rag.SourceTypeBook)
	registerSource(t, s, "compost-blog", "Compost Monthly", rag.SourceTypeArticle)

	got, err := s.Source(ctx, "gardening-101")
	if err != nil {
		t.Fatalf("Source() = %v", err)
	}
	if got.DisplayName != "Gardening 101" || got.Type != rag.SourceTypeBook {
		t.Errorf("Source() = %+v, want Gardening 101/book", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set: %+v", got)
	}

	// Re-registering updates metadata but keeps the creation time.
	err = s.RegisterSource(ctx, rag.SourceMetadata{
		SourceID:    "gardening-101",
		DisplayName: "Gardening 101, 2nd Edition",
		Type:        rag.SourceTypeBook,
	})
	if err != nil {
		t.Fatalf("RegisterSource(update) = %v", err)
	}
	updated, err := s.Source(ctx, "gardening-101")
	if err != nil {
		t.Fatalf("Source() after update = %v", err)
	}
	if updated.DisplayName != "Gardening 101, 2nd Edition" {
		t.Errorf("DisplayName = %q, want updated name", updated.DisplayName)
	}
	if !updated.CreatedAt.Equal(got.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", got.CreatedAt, updated.CreatedAt)
	}

	list, err := s.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources() = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Sources() len = %d, want 2", len(list))
	}
	if list[0].SourceID != "compost-blog" || list[1].SourceID != "gardening-101" {
		t.Errorf("Sources() not ordered by id: %q, %q", list[0].SourceID, list[1].SourceID)
	}

	if _, err := s.Source(ctx, "missing"); !errors.Is(err, rag.ErrSourceNotFound) {
		t.Errorf("Source(missing) = %v, want ErrSourceNotFound", err)
	}
}

func testRegisterInvalid(t *testing.T, newStore storeFactory) {
	s, _ := newStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		meta rag.SourceMetadata
	}{
		{"empty id", rag.SourceMetadata{DisplayName: "x", Type: rag.SourceTypeBook}},
		{"empty name", rag.SourceMetadata{SourceID: "x", Type: rag.SourceTypeBook}},
		{"bad type", rag.SourceMetadata{SourceID: "x", DisplayName: "x", Type: "podcast"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.RegisterSource(ctx, tc.meta); err == nil {
				t.Errorf("RegisterSource(%+v) = nil, want error", tc.meta)
			}
		})
	}
}

func testUpsertUnknownSource(t *testing.T, newStore storeFactory) {
	s, dim := newStore(t)

	err := s.UpsertChunks(context.Background(), "ghost",
		[]rag.Chunk{makeChunk("ghost", 0, "text", testutil.Basis(dim, 0))})
	if !errors.Is(err, rag.ErrSourceNotFound) {
		t.Errorf("UpsertChunks(unknown source) = %v, want ErrSourceNotFound", err)
	}
}

func testDimensionMismatch(t *testing.T, newStore storeFactory) {
	s, dim := newStore(t)
	ctx := context.Background()

	registerSource(t, s, "src", "Source", rag.SourceTypeBook)

	bad := make([]float32, dim+1)
	bad[0] = 1

	err := s.UpsertChunks(ctx, "src", []rag.Chunk{makeChunk("src", 0, "text", bad)})
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Errorf("UpsertChunks(wrong dim) = %v, want ErrDimensionMismatch", err)
	}

	_, err = s.Search(ctx, bad, store.SearchOptions{K: 5})
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Errorf("Search(wrong dim) = %v, want ErrDimensionMismatch", err)
	}
}

func testReingestReplaces(t *testing.T, newStore storeFactory) {
	s, dim := newStore(t)
	ctx := context.Background()

	registerSource(t, s, "src", "Source", rag.SourceTypeBook)

	first := []rag.Chunk{
		makeChunk("src", 0, "old chunk zero", testutil.Basis(dim, 0)),
		makeChunk("src", 1, "old chunk one", testutil.Basis(dim, 1)),
		makeChunk("src", 2, "old chunk two", testutil.Basis(dim, 2)),
	}
	if err := s.UpsertChunks(ctx, "src", first); err != nil {
		t.Fatalf("UpsertChunks(first) = %v", err)
	}

	second := []rag.Chunk{
		makeChunk("src", 0, "new chunk zero", testutil.Basis(dim, 0)),
		makeChunk("src", 1, "new chunk one", testutil.Basis(dim, 1)),
	}
	if err := s.UpsertChunks(ctx, "src", second); err != nil {
		t.Fatalf("UpsertChunks(second) = %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() after re-ingest = %d, want 2", n)
	}

	results, err := s.Search(ctx, testutil.Basis(dim, 0), store.SearchOptions{K: 10})
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	for _, c := range results {
		if c.ChunkID == first[0].ID || c.ChunkID == first[1].ID || c.ChunkID == first[2].ID {
			t.Errorf("search returned replaced chunk %q", c.ChunkID)
		}
	}
	if len(results) == 0 || results[0].Content != "new chunk zero" {
		t.Errorf("top result = %+v, want new chunk zero", results)
	}
}

func testSearchRanking(t *testing.T, newStore storeFactory) {
	s, dim := newStore(t)
	ctx := context.Background()

	registerSource(t, s, "alpha", "Alpha Book", rag.SourceTypeBook)
	registerSource(t, s, "beta", "Beta Notes", rag.SourceTypeArticle)

	query := testutil.Basis(dim, 0)
	near := testutil.Blend(testutil.Basis(dim, 0), testutil.Basis(dim, 1), 0.8)
	tied := testutil.Blend(testutil.Basis(dim, 0), testutil.Basis(dim, 2), 0.6)

	exact := makeChunk("alpha", 0, "exact match", query)
	high := makeChunk("alpha", 1, "close match", near)
	// Identical embeddings: similarity ties resolve by ordinal, then
	// source id.
	tieBetaOrd1 := makeChunk("beta", 1, "tie, beta ordinal one", tied)
	tieAlphaOrd3 := makeChunk("alpha", 3, "tie, alpha ordinal three", tied)
	tieBetaOrd3 := makeChunk("beta", 3, "tie, beta ordinal three", tied)

	if err := s.UpsertChunks(ctx, "alpha", []rag.Chunk{exact, high, tieAlphaOrd3}); err != nil {
		t.Fatalf("UpsertChunks(alpha) = %v", err)
	}
	if err := s.UpsertChunks(ctx, "beta", []rag.Chunk{tieBetaOrd1, tieBetaOrd3}); err != nil {
		t.Fatalf("UpsertChunks(beta) = %v", err)
	}

	results, err := s.Search(ctx, query, store.SearchOptions{K: 10})
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}

	wantOrder := []string{
		exact.ID,        // similarity 1.0
		high.ID,         // next highest similarity
		tieBetaOrd1.ID,  // tie: lowest ordinal wins
		tieAlphaOrd3.ID, // tie at ordinal 3: alpha < beta
		tieBetaOrd3.ID,
	}
	if len(results) != len(wantOrder) {
		t.Fatalf("Search() len = %d, want %d: %+v", len(results), len(wantOrder), results)
	}
	for i, want := range wantOrder {
		if results[i].ChunkID != want {
			t.Errorf("results[%d].ChunkID = %q (%q), want %q",
				i, results[i].ChunkID, results[i].Content, want)
		}
	}

	// Candidates are fully hydrated with source metadata.
	if results[0].SourceName != "Alpha Book" || results[0].SourceType != rag.SourceTypeBook {
		t.Errorf("results[0] source = %q/%q, want Alpha Book/book",
			results[0].SourceName, results[0].SourceType)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Errorf("similarities not descending: %v then %v",
			results[0].Similarity, results[1].Similarity)
	}

	// K caps the result count after ordering.
	capped, err := s.Search(ctx, query, store.SearchOptions{K: 2})
	if err != nil {
		t.Fatalf("Search(K=2) = %v", err)
	}
	if len(capped) != 2 || capped[0].ChunkID != exact.ID || capped[1].ChunkID != high.ID {
		t.Errorf("Search(K=2) = %+v, want top two", capped)
	}
}

func testSearchFilters(t *testing.T, newStore storeFactory) {
	s, dim := newStore(t)
	ctx := context.Background()

	registerSource(t, s, "alpha", "Alpha", rag.SourceTypeBook)
	registerSource(t, s, "beta", "Beta", rag.SourceTypeForum)

	query := testutil.Basis(dim, 0)
	if err := s.UpsertChunks(ctx, "alpha", []rag.Chunk{
		makeChunk("alpha", 0, "on topic", query),
		makeChunk("alpha", 1, "off topic", testutil.Basis(dim, 1)),
	}); err != nil {
		t.Fatalf("UpsertChunks(alpha) = %v", err)
	}
	if err := s.UpsertChunks(ctx, "beta", []rag.Chunk{
		makeChunk("beta", 0, "also on topic", testutil.Blend(query, testutil.Basis(dim, 1), 0.7)),
	}); err != nil {
		t.Fatalf("UpsertChunks(beta) = %v", err)
	}

	// Source filter restricts candidates to the named sources.
	results, err := s.Search(ctx, query, store.SearchOptions{K: 10, Sources: []string{"beta"}})
	if err != nil {
		t.Fatalf("Search(sources=beta) = %v", err)
	}
	if len(results) != 1 || results[0].SourceID != "beta" {
		t.Errorf("Search(sources=beta) = %+v, want one beta chunk", results)
	}

	// A filter naming only unknown sources yields an empty result,
	// not an error.
	results, err = s.Search(ctx, query, store.SearchOptions{K: 10, Sources: []string{"ghost"}})
	if err != nil {
		t.Fatalf("Search(sources=ghost) = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search(sources=ghost) = %+v, want no results", results)
	}

	// The similarity floor is inclusive: an exact match survives a
	// floor of 1.0, orthogonal chunks do not survive a floor above 0.
	results, err = s.Search(ctx, query, store.SearchOptions{K: 10, MinSimilarity: 1.0})
	if err != nil {
		t.Fatalf("Search(min=1.0) = %v", err)
	}
	if len(results) != 1 || results[0].Content != "on topic" {
		t.Errorf("Search(min=1.0) = %+v, want only the exact match", results)
	}

	results, err = s.Search(ctx, query, store.SearchOptions{K: 10, MinSimilarity: 0.5})
	if err != nil {
		t.Fatalf("Search(min=0.5) = %v", err)
	}
	for _, c := range results {
		if c.Similarity < 0.5 {
			t.Errorf("result below floor: %+v", c)
		}
		if c.Content == "off topic" {
			t.Errorf("orthogonal chunk passed 0.5 floor: %+v", c)
		}
	}
}

func testSearchEmpty(t *testing.T, newStore storeFactory) {
	s, dim := newStore(t)

	results, err := s.Search(context.Background(), testutil.Basis(dim, 0), store.SearchOptions{K: 5})
	if err != nil {
		t.Fatalf("Search(empty store) = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search(empty store) = %+v, want none", results)
	}
}

func testDeleteCascades(t *testing.T, newStore storeFactory) {
	s, dim := newStore(t)
	ctx := context.Background()

	registerSource(t, s, "keep", "Keep", rag.SourceTypeBook)
	registerSource(t, s, "drop", "Drop", rag.SourceTypeBook)

	for i, id := range []string{"keep", "drop"} {
		chunks := []rag.Chunk{
			makeChunk(id, 0, fmt.Sprintf("%s zero", id), testutil.Basis(dim, i)),
			makeChunk(id, 1, fmt.Sprintf("%s one", id), testutil.Basis(dim, i+2)),
		}
		if err := s.UpsertChunks(ctx, id, chunks); err != nil {
			t.Fatalf("UpsertChunks(%q) = %v", id, err)
		}
	}

	if err := s.DeleteSource(ctx, "drop"); err != nil {
		t.Fatalf("DeleteSource() = %v", err)
	}

	if _, err := s.Source(ctx, "drop"); !errors.Is(err, rag.ErrSourceNotFound) {
		t.Errorf("Source(deleted) = %v, want ErrSourceNotFound", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() after delete = %d, want 2", n)
	}

	results, err := s.Search(ctx, testutil.Basis(dim, 1), store.SearchOptions{K: 10})
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	for _, c := range results {
		if c.SourceID == "drop" {
			t.Errorf("search returned chunk from deleted source: %+v", c)
		}
	}

	if err := s.DeleteSource(ctx, "drop"); !errors.Is(err, rag.ErrSourceNotFound) {
		t.Errorf("DeleteSource(again) = %v, want ErrSourceNotFound", err)
	}
}
