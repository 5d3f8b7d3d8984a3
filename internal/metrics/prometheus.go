package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_trainer_documents_ingested_total",
			Help: "Total documents successfully ingested",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sales_trainer_ingest_duration_seconds",
			Help:    "Document ingestion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	ChunksPerDocument = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sales_trainer_chunks_per_document",
			Help:    "Number of chunks produced per document",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	EmbeddingBatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_trainer_embedding_batches_total",
			Help: "Total embedding batches dispatched",
		},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sales_trainer_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_trainer_queries_total",
			Help: "Total queries processed",
		},
		[]string{"status"},
	)

	RetrievalResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sales_trainer_retrieval_results_count",
			Help:    "Number of retrieved chunks per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	FallbackAnswers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_trainer_fallback_answers_total",
			Help: "Total queries answered with the fixed fallback",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_trainer_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_trainer_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(ChunksPerDocument)
	prometheus.MustRegister(EmbeddingBatches)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(RetrievalResults)
	prometheus.MustRegister(FallbackAnswers)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
