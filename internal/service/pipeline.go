package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"askmydocs/internal/domain"
	"askmydocs/internal/extract"
	"askmydocs/internal/retriever"
	"askmydocs/internal/synthesizer"
)

// DocumentStore is the persistence surface the pipeline needs: a registry of
// document metadata plus the chunks required to rebuild the index.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	DeleteDocument(ctx context.Context, id string) (bool, error)
	LoadChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// Pipeline coordinates ingestion (extract, chunk, embed, index) and query
// (embed, retrieve, synthesize). It is the sole writer of the document→index
// mapping; ingest and delete are serialized per document id.
type Pipeline struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	store      domain.VectorStore
	retriever  *retriever.Retriever
	synth      *synthesizer.Synthesizer
	summarizer domain.Summarizer
	docs       DocumentStore
	logger     *slog.Logger

	maxResults   int
	summarySents int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options bundles the pipeline's collaborators and tuning knobs.
type Options struct {
	Chunker          domain.Chunker
	Embedder         domain.Embedder
	Store            domain.VectorStore
	Generator        domain.Generator
	Summarizer       domain.Summarizer
	Docs             DocumentStore
	Logger           *slog.Logger
	MinScore         float64
	MaxResults       int
	SummarySentences int
}

// New assembles a pipeline from the given options.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 4
	}
	return &Pipeline{
		chunker:      opts.Chunker,
		embedder:     opts.Embedder,
		store:        opts.Store,
		retriever:    retriever.New(opts.Store, opts.MinScore),
		synth:        synthesizer.New(opts.Generator),
		summarizer:   opts.Summarizer,
		docs:         opts.Docs,
		logger:       logger,
		maxResults:   maxResults,
		summarySents: opts.SummarySentences,
	}
}

// Ingest runs the full ingestion pipeline for one uploaded file. It is
// all-or-nothing: any failure leaves no trace in the index or the registry.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte) (*domain.Document, error) {
	text, err := extract.Text(filename, data)
	if err != nil {
		return nil, err
	}
	chunkTexts, err := p.chunker.Chunk(text)
	if err != nil {
		return nil, err
	}

	vectors, err := p.embedder.EmbedBatch(ctx, chunkTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunkTexts) {
		return nil, &domain.ConsistencyError{Reason: fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunkTexts))}
	}

	id := uuid.NewString()
	chunks := make([]domain.Chunk, len(chunkTexts))
	for i, t := range chunkTexts {
		chunks[i] = domain.Chunk{
			DocumentID:  id,
			Ordinal:     i,
			Text:        t,
			Embedding:   vectors[i],
			SourceLabel: fmt.Sprintf("%s (section %d)", filename, i+1),
		}
	}

	summary := ""
	if p.summarizer != nil {
		if summary, err = p.summarizer.Summarize(text, p.summarySents); err != nil {
			return nil, err
		}
	}
	doc := domain.Document{
		ID:         id,
		Filename:   filename,
		CreatedAt:  time.Now().UTC(),
		ChunkCount: len(chunks),
		Summary:    summary,
	}

	unlock := p.lock(id)
	defer unlock()

	if err := p.store.Upsert(ctx, id, chunks); err != nil {
		return nil, err
	}
	if err := p.docs.SaveDocument(ctx, doc, chunks); err != nil {
		// Roll the index back so a failed ingestion leaves nothing behind.
		if rbErr := p.store.Remove(ctx, id); rbErr != nil {
			p.logger.Error("index rollback failed", "document_id", id, "error", rbErr)
		}
		return nil, err
	}

	p.logger.Info("document ingested", "document_id", id, "filename", filename, "chunks", len(chunks))
	return &doc, nil
}

// Query answers a question from the indexed corpus, scoped to one document
// when documentID is non-empty. Queries never mutate the index.
func (p *Pipeline) Query(ctx context.Context, question, documentID string, maxResults int) (*domain.QueryResult, error) {
	start := time.Now()
	if maxResults <= 0 {
		maxResults = p.maxResults
	}
	vec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	sources, err := p.retriever.Retrieve(ctx, vec, documentID, maxResults)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Caller gave up; skip the generation call entirely.
		return nil, err
	}
	answer, confidence, err := p.synth.Synthesize(ctx, question, sources)
	if err != nil {
		return nil, err
	}
	result := &domain.QueryResult{
		Answer:           answer,
		Sources:          sources,
		Confidence:       confidence,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	p.logger.Info("query answered",
		"document_id", documentID, "sources", len(sources),
		"confidence", confidence, "elapsed_ms", result.ProcessingTimeMs)
	return result, nil
}

// List returns all ingested documents, most recent first.
func (p *Pipeline) List(ctx context.Context) ([]domain.Document, error) {
	return p.docs.ListDocuments(ctx)
}

// Get returns one ingested document's metadata or domain.ErrNotFound.
func (p *Pipeline) Get(ctx context.Context, id string) (*domain.Document, error) {
	return p.docs.GetDocument(ctx, id)
}

// Delete removes a document from the registry and the index. Deleting an
// unknown id fails with domain.ErrNotFound. A query running concurrently
// sees the document either fully present or fully absent.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	unlock := p.lock(id)
	defer unlock()

	existed, err := p.docs.DeleteDocument(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return domain.ErrNotFound
	}
	if err := p.store.Remove(ctx, id); err != nil {
		return err
	}
	p.logger.Info("document deleted", "document_id", id)
	return nil
}

// Restore rebuilds the index from persisted chunks, typically at startup.
func (p *Pipeline) Restore(ctx context.Context) error {
	docs, err := p.docs.ListDocuments(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		chunks, err := p.docs.LoadChunks(ctx, doc.ID)
		if err != nil {
			return err
		}
		if err := p.store.Upsert(ctx, doc.ID, chunks); err != nil {
			return err
		}
	}
	if len(docs) > 0 {
		p.logger.Info("index restored", "documents", len(docs))
	}
	return nil
}

// lock acquires the per-document mutex and returns its release func.
func (p *Pipeline) lock(id string) func() {
	p.mu.Lock()
	m, ok := p.locks[id]
	if !ok {
		if p.locks == nil {
			p.locks = make(map[string]*sync.Mutex)
		}
		m = &sync.Mutex{}
		p.locks[id] = m
	}
	p.mu.Unlock()
	m.Lock()
	return m.Unlock
}
