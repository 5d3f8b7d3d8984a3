package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sales-trainer/backend/internal/chunker"
	"github.com/sales-trainer/backend/internal/storage/models"
	"github.com/sales-trainer/backend/internal/vector/milvus"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, texts)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = embeddingFor(text)
	}
	return vectors, nil
}

// embeddingFor gives each text a recognizable vector so tests can check
// that vectors map back to their chunks after concurrent batching.
func embeddingFor(text string) []float32 {
	var sum float32
	for _, b := range []byte(text) {
		sum += float32(b)
	}
	return []float32{sum, float32(len(text))}
}

type fakeVectorStore struct {
	mu        sync.Mutex
	inserted  []milvus.ChunkVector
	deleted   []string
	insertErr error
}

func (f *fakeVectorStore) Insert(ctx context.Context, vectors []milvus.ChunkVector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, vectors...)
	return nil
}

func (f *fakeVectorStore) DeleteByDocument(ctx context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, docID)
	return nil
}

type fakeDocStore struct {
	doc       *models.Document
	chunks    []models.Chunk
	commits   int
	commitErr error
}

func (f *fakeDocStore) CreateDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits++
	f.doc = doc
	f.chunks = chunks
	return nil
}

func newTestProcessor(t *testing.T, db *fakeDocStore, vdb *fakeVectorStore, emb *fakeEmbedder, size, overlap, maxBatch int) *Processor {
	t.Helper()
	c, err := chunker.New(size, overlap)
	require.NoError(t, err)
	return NewProcessor(db, vdb, emb, c, maxBatch)
}

func TestPackBatches(t *testing.T) {
	pieces := []chunker.Piece{
		{Position: 0, Text: strings.Repeat("a", 40)},
		{Position: 1, Text: strings.Repeat("b", 40)},
		{Position: 2, Text: strings.Repeat("c", 40)},
		{Position: 3, Text: strings.Repeat("d", 40)},
	}

	t.Run("respects size cap", func(t *testing.T) {
		batches := packBatches(pieces, 100)
		require.Len(t, batches, 2)
		assert.Len(t, batches[0], 2)
		assert.Len(t, batches[1], 2)
	})

	t.Run("preserves order", func(t *testing.T) {
		batches := packBatches(pieces, 100)
		position := 0
		for _, batch := range batches {
			for _, piece := range batch {
				assert.Equal(t, position, piece.Position)
				position++
			}
		}
	})

	t.Run("everything fits in one batch", func(t *testing.T) {
		batches := packBatches(pieces, 1000)
		require.Len(t, batches, 1)
		assert.Len(t, batches[0], 4)
	})

	t.Run("oversized chunk gets its own batch", func(t *testing.T) {
		oversized := []chunker.Piece{
			{Position: 0, Text: strings.Repeat("x", 500)},
			{Position: 1, Text: "small"},
		}
		batches := packBatches(oversized, 100)
		require.Len(t, batches, 2)
		assert.Len(t, batches[0], 1)
		assert.Equal(t, 500, len(batches[0][0].Text))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, packBatches(nil, 100))
	})
}

func TestIngestDocument(t *testing.T) {
	t.Run("commits chunks with ordered positions", func(t *testing.T) {
		db := &fakeDocStore{}
		vdb := &fakeVectorStore{}
		emb := &fakeEmbedder{}
		p := newTestProcessor(t, db, vdb, emb, 10, 2, 1000)

		doc, count, err := p.IngestDocument(context.Background(), "Alpha Bravo Charlie Delta", Metadata{
			Title:       "intro",
			TrainerName: "Jordan",
		})
		require.NoError(t, err)
		assert.Equal(t, 4, count)
		require.NotNil(t, db.doc)
		assert.True(t, db.doc.Active)
		assert.Equal(t, "Jordan", db.doc.TrainerName)

		require.Len(t, db.chunks, 4)
		for i, chunk := range db.chunks {
			assert.Equal(t, i, chunk.Position)
			assert.Equal(t, doc.ID, chunk.DocID)
			assert.Contains(t, chunk.ID, doc.ID)
		}
	})

	t.Run("vectors map back to their chunks across batches", func(t *testing.T) {
		db := &fakeDocStore{}
		vdb := &fakeVectorStore{}
		emb := &fakeEmbedder{}
		// maxBatch of 12 forces one batch per 10-char chunk.
		p := newTestProcessor(t, db, vdb, emb, 10, 2, 12)

		text := strings.Repeat("abcdefgh", 10)
		_, _, err := p.IngestDocument(context.Background(), text, Metadata{})
		require.NoError(t, err)

		require.Greater(t, len(emb.batches), 1)
		require.NotEmpty(t, vdb.inserted)
		for _, v := range vdb.inserted {
			assert.Equal(t, embeddingFor(v.Text), v.Embedding,
				"vector for chunk %d must come from its own text", v.Position)
		}
	})

	t.Run("provider failure persists nothing", func(t *testing.T) {
		db := &fakeDocStore{}
		vdb := &fakeVectorStore{}
		emb := &fakeEmbedder{err: errors.New("quota exceeded")}
		p := newTestProcessor(t, db, vdb, emb, 10, 2, 1000)

		_, _, err := p.IngestDocument(context.Background(), "Alpha Bravo Charlie Delta", Metadata{})
		assert.ErrorIs(t, err, ErrEmbeddingProvider)
		assert.Zero(t, db.commits)
		assert.Empty(t, vdb.inserted)
	})

	t.Run("commit failure cleans up staged vectors", func(t *testing.T) {
		db := &fakeDocStore{commitErr: errors.New("disk full")}
		vdb := &fakeVectorStore{}
		emb := &fakeEmbedder{}
		p := newTestProcessor(t, db, vdb, emb, 10, 2, 1000)

		doc, _, err := p.IngestDocument(context.Background(), "Alpha Bravo Charlie Delta", Metadata{})
		require.Error(t, err)
		assert.Nil(t, doc)
		require.Len(t, vdb.deleted, 1)
	})

	t.Run("cancelled context aborts before persistence", func(t *testing.T) {
		db := &fakeDocStore{}
		vdb := &fakeVectorStore{}
		emb := &fakeEmbedder{}
		p := newTestProcessor(t, db, vdb, emb, 10, 2, 12)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := p.IngestDocument(ctx, strings.Repeat("abcdefgh", 10), Metadata{})
		require.Error(t, err)
		assert.Zero(t, db.commits)
	})

	t.Run("empty text commits a document with zero chunks", func(t *testing.T) {
		db := &fakeDocStore{}
		vdb := &fakeVectorStore{}
		emb := &fakeEmbedder{}
		p := newTestProcessor(t, db, vdb, emb, 10, 2, 1000)

		_, count, err := p.IngestDocument(context.Background(), "", Metadata{Title: "empty"})
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Empty(t, emb.batches)
		require.NotNil(t, db.doc)
		assert.Empty(t, db.chunks)
	})
}
