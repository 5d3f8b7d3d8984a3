package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sales-trainer/backend/internal/extract"
	"github.com/sales-trainer/backend/internal/ingestion"
	"github.com/sales-trainer/backend/internal/storage/models"
	"github.com/sales-trainer/backend/internal/storage/sqlite"
	"github.com/sales-trainer/backend/pkg/logger"
)

// Ingestor runs the full ingest pipeline for one extracted document.
type Ingestor interface {
	IngestDocument(ctx context.Context, text string, meta ingestion.Metadata) (*models.Document, int, error)
}

// DocumentStore exposes the metadata operations the handlers need.
type DocumentStore interface {
	ListMetadata(ctx context.Context) ([]models.DocumentMetadata, error)
	SetActive(ctx context.Context, id string, active bool) (*models.DocumentMetadata, error)
	DeleteDocument(ctx context.Context, id string) (int, error)
}

// VectorStore removes a document's vectors when the document is deleted.
type VectorStore interface {
	DeleteByDocument(ctx context.Context, docID string) error
}

// AnswerCache is optional; corpus changes invalidate cached answers.
type AnswerCache interface {
	InvalidateAnswers(ctx context.Context) error
}

type DocumentHandler struct {
	extractor *extract.Extractor
	ingestor  Ingestor
	store     DocumentStore
	vectorDB  VectorStore
	cache     AnswerCache
}

func NewDocumentHandler(extractor *extract.Extractor, ingestor Ingestor, store DocumentStore, vectorDB VectorStore, cache AnswerCache) *DocumentHandler {
	return &DocumentHandler{
		extractor: extractor,
		ingestor:  ingestor,
		store:     store,
		vectorDB:  vectorDB,
		cache:     cache,
	}
}

type uploadMetadata struct {
	Title       string `json:"title"`
	TrainerName string `json:"trainer_name"`
	MediaType   string `json:"media_type"`
	SourceURL   string `json:"source_url"`
	ProvideLink bool   `json:"provide_link"`
}

// Upload accepts a multipart form with a "file" part and an optional
// "metadata" part holding a JSON object with attribution fields.
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	var meta uploadMetadata
	if raw := c.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid metadata JSON",
			})
		}
	}
	if meta.Title == "" {
		meta.Title = fileHeader.Filename
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	contentType := uploadContentType(fileHeader.Header.Get("Content-Type"), fileHeader.Filename)

	text, err := h.extractor.Extract(data, contentType)
	if err != nil {
		return extractErrorResponse(c, err)
	}

	doc, chunkCount, err := h.ingestor.IngestDocument(c.Context(), text, ingestion.Metadata{
		Title:       meta.Title,
		TrainerName: meta.TrainerName,
		MediaType:   meta.MediaType,
		SourceURL:   meta.SourceURL,
		ProvideLink: meta.ProvideLink,
	})
	if err != nil {
		if errors.Is(err, ingestion.ErrEmbeddingProvider) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Embedding provider is unavailable, please retry",
			})
		}
		logger.Error("Document ingestion failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document",
		})
	}

	h.invalidateAnswers(c.Context())

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"doc_id":       doc.ID,
		"title":        doc.Title,
		"trainer_name": doc.TrainerName,
		"media_type":   doc.MediaType,
		"text_length":  len(text),
		"chunk_count":  chunkCount,
		"active":       doc.Active,
	})
}

func (h *DocumentHandler) ListMetadata(c *fiber.Ctx) error {
	metadata, err := h.store.ListMetadata(c.Context())
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}
	if metadata == nil {
		metadata = []models.DocumentMetadata{}
	}

	return c.JSON(fiber.Map{
		"documents": metadata,
		"count":     len(metadata),
	})
}

type toggleActiveRequest struct {
	Active *bool `json:"active"`
}

// ToggleActive flips a document's retrieval visibility. The flag takes
// effect on the next query; nothing is re-embedded.
func (h *DocumentHandler) ToggleActive(c *fiber.Ctx) error {
	id := c.Params("id")

	var req toggleActiveRequest
	if err := c.BodyParser(&req); err != nil || req.Active == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Body must contain a boolean \"active\" field",
		})
	}

	meta, err := h.store.SetActive(c.Context(), id, *req.Active)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to update active flag", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update document",
		})
	}

	h.invalidateAnswers(c.Context())

	return c.JSON(meta)
}

// Delete removes the document, its chunk rows, and its vectors.
func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	chunkCount, err := h.store.DeleteDocument(c.Context(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to delete document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	if err := h.vectorDB.DeleteByDocument(c.Context(), id); err != nil {
		// Rows are gone so retrieval can no longer surface these
		// vectors; log the orphan cleanup failure and move on.
		logger.Warn("Failed to delete document vectors",
			zap.String("doc_id", id),
			zap.Error(err),
		)
	}

	h.invalidateAnswers(c.Context())

	return c.JSON(fiber.Map{
		"doc_id":         id,
		"chunks_deleted": chunkCount,
	})
}

func (h *DocumentHandler) invalidateAnswers(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateAnswers(ctx); err != nil {
		logger.Warn("Failed to invalidate answer cache", zap.Error(err))
	}
}

func extractErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFileType):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported file type; accepted: txt, pdf, docx, doc",
		})
	case errors.Is(err, extract.ErrUnsupportedEncoding):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File encoding could not be decoded",
		})
	case errors.Is(err, extract.ErrExtractionFailed):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "No text could be extracted from the file",
		})
	default:
		logger.Error("Text extraction failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process file",
		})
	}
}

// uploadContentType prefers the declared part header and falls back to
// the filename extension for clients that send octet-stream.
func uploadContentType(declared, filename string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	}

	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}
	return declared
}
