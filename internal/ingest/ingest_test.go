package ingest_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/libris-ai/libris/internal/chunk"
	"github.com/libris-ai/libris/internal/ingest"
	"github.com/libris-ai/libris/internal/log"
	"github.com/libris-ai/libris/internal/rag"
	"github.com/libris-ai/libris/internal/store"
)

// memStore is a minimal in-memory Store for exercising the ingestion
// flow without a backend.
type memStore struct {
	mu      sync.Mutex
	sources map[string]rag.SourceMetadata
	chunks  map[string][]rag.Chunk
	upserts int
}

func newMemStore() *memStore {
	return &memStore{
		sources: make(map[string]rag.SourceMetadata),
		chunks:  make(map[string][]rag.Chunk),
	}
}

func (m *memStore) RegisterSource(_ context.Context, meta rag.SourceMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[meta.SourceID] = meta
	return nil
}

func (m *memStore) Source(_ context.Context, id string) (rag.SourceMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.sources[id]
	if !ok {
		return rag.SourceMetadata{}, rag.ErrSourceNotFound
	}
	return meta, nil
}

func (m *memStore) Sources(context.Context) ([]rag.SourceMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rag.SourceMetadata, 0, len(m.sources))
	for _, meta := range m.sources {
		out = append(out, meta)
	}
	return out, nil
}

func (m *memStore) UpsertChunks(_ context.Context, sourceID string, chunks []rag.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[sourceID]; !ok {
		return rag.ErrSourceNotFound
	}
	m.chunks[sourceID] = chunks
	m.upserts++
	return nil
}

func (m *memStore) DeleteSource(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[sourceID]; !ok {
		return rag.ErrSourceNotFound
	}
	delete(m.sources, sourceID)
	delete(m.chunks, sourceID)
	return nil
}

func (m *memStore) Search(context.Context, []float32, store.SearchOptions) ([]rag.Candidate, error) {
	return nil, nil
}

func (m *memStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, cs := range m.chunks {
		n += len(cs)
	}
	return n, nil
}

type stubEmbedder struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (e *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func newService(t *testing.T, st store.Store, emb chunk.Embedder, workers int) *ingest.Service {
	t.Helper()
	splitter, err := chunk.NewSplitter(50, 10)
	if err != nil {
		t.Fatalf("NewSplitter() = %v", err)
	}
	return ingest.New(st, emb, splitter, workers, log.NewNop())
}

func TestIngestStoresChunks(t *testing.T) {
	st := newMemStore()
	svc := newService(t, st, &stubEmbedder{}, 1)

	text := strings.Repeat("tomatoes need full sun and steady watering. ", 5)
	res, err := svc.Ingest(context.Background(), ingest.Source{
		ID:          "garden-book",
		DisplayName: "The Garden Book",
		Type:        rag.SourceTypeBook,
		Text:        text,
	})
	if err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	if res.SourceID != "garden-book" || res.Chunks == 0 {
		t.Errorf("Result = %+v, want chunks for garden-book", res)
	}

	stored := st.chunks["garden-book"]
	if len(stored) != res.Chunks {
		t.Fatalf("stored %d chunks, result says %d", len(stored), res.Chunks)
	}
	for i, c := range stored {
		if c.Ordinal != i {
			t.Errorf("chunk %d has ordinal %d", i, c.Ordinal)
		}
		if c.SourceID != "garden-book" {
			t.Errorf("chunk %d has source %q", i, c.SourceID)
		}
	}

	meta := st.sources["garden-book"]
	if meta.DisplayName != "The Garden Book" || meta.Type != rag.SourceTypeBook {
		t.Errorf("registered metadata = %+v", meta)
	}
}

func TestIngestDefaults(t *testing.T) {
	st := newMemStore()
	svc := newService(t, st, &stubEmbedder{}, 1)

	_, err := svc.Ingest(context.Background(), ingest.Source{ID: "notes", Text: "some text"})
	if err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	meta := st.sources["notes"]
	if meta.DisplayName != "notes" {
		t.Errorf("DisplayName = %q, want source id fallback", meta.DisplayName)
	}
	if meta.Type != rag.SourceTypeOther {
		t.Errorf("Type = %q, want other", meta.Type)
	}
}

func TestIngestValidation(t *testing.T) {
	svc := newService(t, newMemStore(), &stubEmbedder{}, 1)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, ingest.Source{Text: "text"}); err == nil {
		t.Error("Ingest(no id) = nil, want error")
	}
	if _, err := svc.Ingest(ctx, ingest.Source{ID: "x", Text: "   "}); err == nil {
		t.Error("Ingest(blank text) = nil, want error")
	}
}

func TestIngestEmbedderFailure(t *testing.T) {
	st := newMemStore()
	wantErr := errors.New("provider down")
	svc := newService(t, st, &stubEmbedder{err: wantErr}, 1)

	_, err := svc.Ingest(context.Background(), ingest.Source{ID: "x", Text: "some text"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Ingest() = %v, want wrapped provider error", err)
	}
	if st.upserts != 0 {
		t.Errorf("upserts = %d, want 0 after embed failure", st.upserts)
	}
}

func TestReingestReplacesNotDuplicates(t *testing.T) {
	st := newMemStore()
	svc := newService(t, st, &stubEmbedder{}, 1)
	ctx := context.Background()

	src := ingest.Source{ID: "book", Text: strings.Repeat("first version text. ", 10)}
	if _, err := svc.Ingest(ctx, src); err != nil {
		t.Fatalf("Ingest(first) = %v", err)
	}

	src.Text = "second version, much shorter."
	res, err := svc.Ingest(ctx, src)
	if err != nil {
		t.Fatalf("Ingest(second) = %v", err)
	}

	n, _ := st.Count(ctx)
	if n != res.Chunks {
		t.Errorf("Count() = %d, want %d (replaced, not appended)", n, res.Chunks)
	}
}

func TestIngestBatch(t *testing.T) {
	st := newMemStore()
	svc := newService(t, st, &stubEmbedder{}, 3)

	sources := []ingest.Source{
		{ID: "a", Text: "text for source a"},
		{ID: "b", Text: "text for source b"},
		{ID: "c", Text: "text for source c"},
		{ID: "d", Text: "text for source d"},
	}
	results, err := svc.IngestBatch(context.Background(), sources)
	if err != nil {
		t.Fatalf("IngestBatch() = %v", err)
	}
	if len(results) != len(sources) {
		t.Fatalf("results len = %d, want %d", len(results), len(sources))
	}
	for i, res := range results {
		if res.SourceID != sources[i].ID {
			t.Errorf("results[%d].SourceID = %q, want %q", i, res.SourceID, sources[i].ID)
		}
	}
}

func TestIngestBatchPartialFailure(t *testing.T) {
	st := newMemStore()
	svc := newService(t, st, &stubEmbedder{}, 1)

	sources := []ingest.Source{
		{ID: "ok", Text: "fine text"},
		{ID: "bad"}, // no text
	}
	results, err := svc.IngestBatch(context.Background(), sources)
	if err == nil {
		t.Fatal("IngestBatch() = nil, want error")
	}
	for _, res := range results {
		if res.SourceID == "bad" {
			t.Errorf("failed source appeared in results: %+v", res)
		}
	}
}

func TestDelete(t *testing.T) {
	st := newMemStore()
	svc := newService(t, st, &stubEmbedder{}, 1)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, ingest.Source{ID: "x", Text: "text"}); err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	if err := svc.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if err := svc.Delete(ctx, "x"); !errors.Is(err, rag.ErrSourceNotFound) {
		t.Errorf("Delete(missing) = %v, want ErrSourceNotFound", err)
	}
}
