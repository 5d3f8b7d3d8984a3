// Package query answers questions over the ingested transcript corpus:
// embed the question, retrieve the nearest chunks from active documents,
// and synthesize a grounded answer with trainer attribution.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sales-trainer/backend/internal/metrics"
	"github.com/sales-trainer/backend/internal/storage/models"
	"github.com/sales-trainer/backend/internal/vector/milvus"
	"github.com/sales-trainer/backend/pkg/logger"
	"github.com/sales-trainer/backend/pkg/utils"
)

// ErrAnswerGeneration is returned when the generative model fails after
// bounded retries even though retrieval succeeded.
var ErrAnswerGeneration = errors.New("answer generation failure")

// FallbackAnswer is returned verbatim when retrieval yields nothing; the
// generative model is not invoked in that case.
const FallbackAnswer = "I could not find any relevant training material to answer that question. " +
	"Try rephrasing it, or upload more transcripts that cover this topic."

const (
	StatusAnswered = "answered"
	StatusFallback = "fallback"
)

type DocumentStore interface {
	ActiveDocuments(ctx context.Context) (map[string]models.DocumentMetadata, error)
	InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error
}

type VectorStore interface {
	Search(ctx context.Context, embedding []float32, topK int, docIDs []string) ([]milvus.SearchResult, error)
}

type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	GenerateAnswer(ctx context.Context, prompt string) (string, error)
}

// Cache is optional; a nil cache disables question and answer caching.
type Cache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
	GetAnswer(ctx context.Context, questionHash string) (string, bool, error)
	SetAnswer(ctx context.Context, questionHash, answer string, ttl time.Duration) error
}

// Source describes one retrieved chunk backing an answer.
type Source struct {
	DocID       string  `json:"doc_id"`
	Title       string  `json:"title,omitempty"`
	TrainerName string  `json:"trainer_name,omitempty"`
	SourceURL   string  `json:"source_url,omitempty"`
	Position    int     `json:"position"`
	Distance    float32 `json:"distance"`
}

type Response struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Status   string   `json:"status"`
}

type Engine struct {
	store    DocumentStore
	vectorDB VectorStore
	embedder Embedder
	gen      Generator
	cache    Cache
	topK     int
	cacheTTL time.Duration
}

func NewEngine(store DocumentStore, vectorDB VectorStore, embedder Embedder, gen Generator, cache Cache, topK int, cacheTTL time.Duration) *Engine {
	return &Engine{
		store:    store,
		vectorDB: vectorDB,
		embedder: embedder,
		gen:      gen,
		cache:    cache,
		topK:     topK,
		cacheTTL: cacheTTL,
	}
}

// Process answers one question. Retrieval only sees documents that are
// active at this moment; an empty retrieval list yields the fixed
// fallback answer without touching the generative model.
func (e *Engine) Process(ctx context.Context, question string) (*Response, error) {
	start := time.Now()
	questionHash := utils.HashString(question)

	if cached, ok := e.cachedAnswer(ctx, questionHash); ok {
		metrics.CacheHits.WithLabelValues("answer").Inc()
		return &Response{Question: question, Answer: cached, Status: StatusAnswered}, nil
	}

	embedding, err := e.questionEmbedding(ctx, question, questionHash)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	activeDocs, err := e.store.ActiveDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active documents: %w", err)
	}

	results, err := e.retrieve(ctx, embedding, activeDocs)
	if err != nil {
		return nil, err
	}
	metrics.RetrievalResults.Observe(float64(len(results)))

	resp := &Response{Question: question}
	if len(results) == 0 {
		resp.Answer = FallbackAnswer
		resp.Status = StatusFallback
		metrics.FallbackAnswers.Inc()
	} else {
		resp.Sources = buildSources(results, activeDocs)

		prompt := buildPrompt(question, results, activeDocs)
		answer, err := e.gen.GenerateAnswer(ctx, prompt)
		if err != nil {
			e.recordQuery(question, "", len(results), start)
			metrics.QueriesTotal.WithLabelValues("error").Inc()
			// Sources stay in the response so the caller can still
			// show what was retrieved.
			return resp, fmt.Errorf("%w: %v", ErrAnswerGeneration, err)
		}
		resp.Answer = answer
		resp.Status = StatusAnswered

		if e.cache != nil {
			if err := e.cache.SetAnswer(ctx, questionHash, answer, e.cacheTTL); err != nil {
				logger.Warn("Failed to cache answer", zap.Error(err))
			}
		}
	}

	e.recordQuery(question, resp.Answer, len(results), start)
	metrics.QueriesTotal.WithLabelValues(resp.Status).Inc()
	metrics.QueryDuration.Observe(time.Since(start).Seconds())

	logger.Info("Query processed",
		zap.String("status", resp.Status),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// retrieve searches the vector store restricted to active documents and
// re-sorts the hits deterministically: ascending distance, then document
// id, then chunk position.
func (e *Engine) retrieve(ctx context.Context, embedding []float32, activeDocs map[string]models.DocumentMetadata) ([]milvus.SearchResult, error) {
	if len(activeDocs) == 0 {
		return nil, nil
	}

	docIDs := make([]string, 0, len(activeDocs))
	for id := range activeDocs {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	results, err := e.vectorDB.Search(ctx, embedding, e.topK, docIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		if results[i].DocID != results[j].DocID {
			return results[i].DocID < results[j].DocID
		}
		return results[i].Position < results[j].Position
	})
	return results, nil
}

func (e *Engine) questionEmbedding(ctx context.Context, question, questionHash string) ([]float32, error) {
	if e.cache != nil {
		embedding, ok, err := e.cache.GetEmbedding(ctx, questionHash)
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		} else if ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return embedding, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embedding, err := e.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetEmbedding(ctx, questionHash, embedding, e.cacheTTL); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}
	return embedding, nil
}

func (e *Engine) cachedAnswer(ctx context.Context, questionHash string) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	answer, ok, err := e.cache.GetAnswer(ctx, questionHash)
	if err != nil {
		logger.Warn("Answer cache read failed", zap.Error(err))
		return "", false
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues("answer").Inc()
	}
	return answer, ok
}

func buildSources(results []milvus.SearchResult, docs map[string]models.DocumentMetadata) []Source {
	sources := make([]Source, len(results))
	for i, result := range results {
		source := Source{
			DocID:    result.DocID,
			Position: result.Position,
			Distance: result.Distance,
		}
		if meta, ok := docs[result.DocID]; ok {
			source.Title = meta.Title
			source.TrainerName = meta.TrainerName
			if meta.ProvideLink {
				source.SourceURL = meta.SourceURL
			}
		}
		sources[i] = source
	}
	return sources
}

// recordQuery appends to the audit log; failures are logged and
// swallowed since history must never fail a query.
func (e *Engine) recordQuery(question, answer string, resultCount int, start time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), 5*time.Second)
	defer cancel()

	record := &models.QueryRecord{
		ID:          uuid.New().String(),
		Question:    question,
		Answer:      answer,
		ResultCount: resultCount,
		LatencyMS:   time.Since(start).Milliseconds(),
		CreatedAt:   time.Now(),
	}
	if err := e.store.InsertQueryRecord(ctx, record); err != nil {
		logger.Warn("Failed to record query history", zap.Error(err))
	}
}
