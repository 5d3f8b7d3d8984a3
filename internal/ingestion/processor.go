// Package ingestion turns extracted document text into committed,
// retrievable chunks. Embedding batches are staged in memory and the
// document is only made visible once every batch has succeeded and the
// full chunk set is committed in one transaction.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sales-trainer/backend/internal/chunker"
	"github.com/sales-trainer/backend/internal/metrics"
	"github.com/sales-trainer/backend/internal/storage/models"
	"github.com/sales-trainer/backend/internal/vector/milvus"
	"github.com/sales-trainer/backend/pkg/logger"
)

// ErrEmbeddingProvider is returned when the embedding provider keeps
// failing after bounded retries; no document data is persisted.
var ErrEmbeddingProvider = errors.New("embedding provider failure")

// Embedder produces one fixed-dimension vector per input text, in input
// order, with one provider call per invocation.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists chunk vectors and supports per-document cleanup.
type VectorStore interface {
	Insert(ctx context.Context, vectors []milvus.ChunkVector) error
	DeleteByDocument(ctx context.Context, docID string) error
}

// DocumentStore commits a document together with its full chunk set.
type DocumentStore interface {
	CreateDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error
}

// Metadata carries the attribution fields supplied with an upload.
type Metadata struct {
	Title       string
	TrainerName string
	MediaType   string
	SourceURL   string
	ProvideLink bool
}

type Processor struct {
	db           DocumentStore
	vectorDB     VectorStore
	embedder     Embedder
	chunker      *chunker.Chunker
	maxBatchSize int
}

func NewProcessor(db DocumentStore, vectorDB VectorStore, embedder Embedder, c *chunker.Chunker, maxBatchSize int) *Processor {
	return &Processor{
		db:           db,
		vectorDB:     vectorDB,
		embedder:     embedder,
		chunker:      c,
		maxBatchSize: maxBatchSize,
	}
}

// IngestDocument chunks text, embeds every chunk in provider-sized
// batches, and commits the document atomically. It returns the created
// document and the number of committed chunks. On any failure nothing
// is visible to retrieval.
func (p *Processor) IngestDocument(ctx context.Context, text string, meta Metadata) (*models.Document, int, error) {
	start := time.Now()

	now := time.Now()
	doc := &models.Document{
		ID:          uuid.New().String(),
		Title:       meta.Title,
		Text:        text,
		TrainerName: meta.TrainerName,
		MediaType:   meta.MediaType,
		SourceURL:   meta.SourceURL,
		ProvideLink: meta.ProvideLink,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	pieces := p.chunker.Split(text)
	logger.Info("Document chunked",
		zap.String("doc_id", doc.ID),
		zap.Int("chunks", len(pieces)),
	)

	vectors, err := p.embedAll(ctx, pieces)
	if err != nil {
		return nil, 0, err
	}

	chunks := make([]models.Chunk, len(pieces))
	chunkVectors := make([]milvus.ChunkVector, len(pieces))
	for i, piece := range pieces {
		chunkID := fmt.Sprintf("%s_chunk_%d", doc.ID, piece.Position)
		chunks[i] = models.Chunk{
			ID:          chunkID,
			DocID:       doc.ID,
			Position:    piece.Position,
			Text:        piece.Text,
			EmbeddingID: chunkID,
			CreatedAt:   now,
		}
		chunkVectors[i] = milvus.ChunkVector{
			ChunkID:   chunkID,
			DocID:     doc.ID,
			Position:  piece.Position,
			Text:      piece.Text,
			Embedding: vectors[i],
		}
	}

	// Vectors go in first; they stay invisible to retrieval until the
	// relational commit below, which is what gates visibility.
	if err := p.vectorDB.Insert(ctx, chunkVectors); err != nil {
		return nil, 0, fmt.Errorf("failed to insert chunk vectors: %w", err)
	}

	if err := p.db.CreateDocumentWithChunks(ctx, doc, chunks); err != nil {
		p.cleanupVectors(doc.ID)
		return nil, 0, fmt.Errorf("failed to commit document: %w", err)
	}

	metrics.DocumentsIngested.Inc()
	metrics.ChunksPerDocument.Observe(float64(len(chunks)))
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	logger.Info("Document ingested",
		zap.String("doc_id", doc.ID),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return doc, len(chunks), nil
}

// embedAll dispatches the batches concurrently and stages every vector
// in memory. Any batch failure cancels the siblings and fails the whole
// document.
func (p *Processor) embedAll(ctx context.Context, pieces []chunker.Piece) ([][]float32, error) {
	if len(pieces) == 0 {
		return nil, nil
	}

	batches := packBatches(pieces, p.maxBatchSize)
	vectors := make([][]float32, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	offset := 0
	for batchNum, batch := range batches {
		batchNum, batch, offset := batchNum, batch, offset
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, piece := range batch {
				texts[i] = piece.Text
			}

			embeddings, err := p.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return fmt.Errorf("%w: batch %d: %v", ErrEmbeddingProvider, batchNum, err)
			}
			if len(embeddings) != len(batch) {
				return fmt.Errorf("%w: batch %d returned %d vectors for %d chunks",
					ErrEmbeddingProvider, batchNum, len(embeddings), len(batch))
			}

			for i, embedding := range embeddings {
				vectors[offset+i] = embedding
			}
			return nil
		})
		offset += len(batch)
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	metrics.EmbeddingBatches.Add(float64(len(batches)))
	return vectors, nil
}

// packBatches groups consecutive pieces so each batch's combined
// character count stays within maxSize. Chunk order is preserved and a
// chunk is never split; a lone oversized chunk still forms its own
// batch.
func packBatches(pieces []chunker.Piece, maxSize int) [][]chunker.Piece {
	var batches [][]chunker.Piece
	var current []chunker.Piece
	currentSize := 0

	for _, piece := range pieces {
		if len(current) > 0 && currentSize+len(piece.Text) > maxSize {
			batches = append(batches, current)
			current = nil
			currentSize = 0
		}
		current = append(current, piece)
		currentSize += len(piece.Text)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

// cleanupVectors removes staged vectors after a failed relational
// commit. Runs detached from the request context, which may already be
// cancelled.
func (p *Processor) cleanupVectors(docID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), 10*time.Second)
	defer cancel()

	if err := p.vectorDB.DeleteByDocument(ctx, docID); err != nil {
		logger.Warn("Failed to clean up vectors after aborted commit",
			zap.String("doc_id", docID),
			zap.Error(err),
		)
	}
}
