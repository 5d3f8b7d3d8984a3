package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sales-trainer/backend/internal/extract"
	"github.com/sales-trainer/backend/internal/ingestion"
	"github.com/sales-trainer/backend/internal/query"
	"github.com/sales-trainer/backend/internal/storage/models"
	"github.com/sales-trainer/backend/internal/storage/sqlite"
)

type fakeIngestor struct {
	meta ingestion.Metadata
	text string
	err  error
}

func (f *fakeIngestor) IngestDocument(ctx context.Context, text string, meta ingestion.Metadata) (*models.Document, int, error) {
	f.text = text
	f.meta = meta
	if f.err != nil {
		return nil, 0, f.err
	}
	return &models.Document{ID: "doc-1", Title: meta.Title, Active: true}, 3, nil
}

type fakeDocStore struct {
	metadata  []models.DocumentMetadata
	activeErr error
	deleteErr error
}

func (f *fakeDocStore) ListMetadata(ctx context.Context) ([]models.DocumentMetadata, error) {
	return f.metadata, nil
}

func (f *fakeDocStore) SetActive(ctx context.Context, id string, active bool) (*models.DocumentMetadata, error) {
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	return &models.DocumentMetadata{ID: id, Active: active}, nil
}

func (f *fakeDocStore) DeleteDocument(ctx context.Context, id string) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return 2, nil
}

type fakeVectorStore struct {
	deleted []string
}

func (f *fakeVectorStore) DeleteByDocument(ctx context.Context, docID string) error {
	f.deleted = append(f.deleted, docID)
	return nil
}

type fakeEngine struct {
	resp *query.Response
	err  error
}

func (f *fakeEngine) Process(ctx context.Context, question string) (*query.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newDocumentApp(ingestor *fakeIngestor, store *fakeDocStore, vdb *fakeVectorStore) *fiber.App {
	app := fiber.New()
	h := NewDocumentHandler(extract.New(), ingestor, store, vdb, nil)
	app.Post("/documents/upload", h.Upload)
	app.Get("/documents/metadata", h.ListMetadata)
	app.Patch("/documents/:id/active", h.ToggleActive)
	app.Delete("/documents/:id", h.Delete)
	return app
}

func uploadRequest(t *testing.T, filename, contentType, content, metadata string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
	header["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)

	if metadata != "" {
		require.NoError(t, w.WriteField("metadata", metadata))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	t.Run("plain text with metadata", func(t *testing.T) {
		ingestor := &fakeIngestor{}
		app := newDocumentApp(ingestor, &fakeDocStore{}, &fakeVectorStore{})

		req := uploadRequest(t, "session.txt", "text/plain", "transcript body",
			`{"title":"Cold Calls","trainer_name":"Jordan","provide_link":true}`)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "doc-1", body["doc_id"])
		assert.Equal(t, float64(3), body["chunk_count"])

		assert.Equal(t, "transcript body", ingestor.text)
		assert.Equal(t, "Cold Calls", ingestor.meta.Title)
		assert.Equal(t, "Jordan", ingestor.meta.TrainerName)
		assert.True(t, ingestor.meta.ProvideLink)
	})

	t.Run("filename fallback title", func(t *testing.T) {
		ingestor := &fakeIngestor{}
		app := newDocumentApp(ingestor, &fakeDocStore{}, &fakeVectorStore{})

		resp, err := app.Test(uploadRequest(t, "notes.txt", "text/plain", "body", ""))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, "notes.txt", ingestor.meta.Title)
	})

	t.Run("unsupported file type", func(t *testing.T) {
		app := newDocumentApp(&fakeIngestor{}, &fakeDocStore{}, &fakeVectorStore{})

		resp, err := app.Test(uploadRequest(t, "image.png", "image/png", "bytes", ""))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("extraction failure", func(t *testing.T) {
		app := newDocumentApp(&fakeIngestor{}, &fakeDocStore{}, &fakeVectorStore{})

		// A docx content type over non-zip bytes cannot be parsed.
		resp, err := app.Test(uploadRequest(t, "broken.docx",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "not a zip", ""))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("embedding provider down", func(t *testing.T) {
		ingestor := &fakeIngestor{err: fmt.Errorf("wrapped: %w", ingestion.ErrEmbeddingProvider)}
		app := newDocumentApp(ingestor, &fakeDocStore{}, &fakeVectorStore{})

		resp, err := app.Test(uploadRequest(t, "session.txt", "text/plain", "body", ""))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	})

	t.Run("missing file", func(t *testing.T) {
		app := newDocumentApp(&fakeIngestor{}, &fakeDocStore{}, &fakeVectorStore{})

		req := httptest.NewRequest(http.MethodPost, "/documents/upload", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestToggleActive(t *testing.T) {
	t.Run("deactivates", func(t *testing.T) {
		app := newDocumentApp(&fakeIngestor{}, &fakeDocStore{}, &fakeVectorStore{})

		req := httptest.NewRequest(http.MethodPatch, "/documents/doc-1/active", strings.NewReader(`{"active":false}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var meta models.DocumentMetadata
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
		assert.False(t, meta.Active)
	})

	t.Run("missing field", func(t *testing.T) {
		app := newDocumentApp(&fakeIngestor{}, &fakeDocStore{}, &fakeVectorStore{})

		req := httptest.NewRequest(http.MethodPatch, "/documents/doc-1/active", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		app := newDocumentApp(&fakeIngestor{}, &fakeDocStore{activeErr: sqlite.ErrNotFound}, &fakeVectorStore{})

		req := httptest.NewRequest(http.MethodPatch, "/documents/missing/active", strings.NewReader(`{"active":true}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestDelete(t *testing.T) {
	t.Run("removes rows and vectors", func(t *testing.T) {
		vdb := &fakeVectorStore{}
		app := newDocumentApp(&fakeIngestor{}, &fakeDocStore{}, vdb)

		req := httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"doc-1"}, vdb.deleted)
	})

	t.Run("not found", func(t *testing.T) {
		app := newDocumentApp(&fakeIngestor{}, &fakeDocStore{deleteErr: sqlite.ErrNotFound}, &fakeVectorStore{})

		req := httptest.NewRequest(http.MethodDelete, "/documents/missing", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestQueryHandler(t *testing.T) {
	newApp := func(engine QueryEngine) *fiber.App {
		app := fiber.New()
		app.Post("/query", NewQueryHandler(engine).Query)
		return app
	}

	postQuery := func(t *testing.T, app *fiber.App, body string) *http.Response {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("answered", func(t *testing.T) {
		app := newApp(&fakeEngine{resp: &query.Response{
			Question: "q",
			Answer:   "a",
			Status:   query.StatusAnswered,
		}})

		resp := postQuery(t, app, `{"question":"q"}`)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body query.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "a", body.Answer)
	})

	t.Run("empty question", func(t *testing.T) {
		app := newApp(&fakeEngine{})
		resp := postQuery(t, app, `{"question":"  "}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid json", func(t *testing.T) {
		app := newApp(&fakeEngine{})
		resp := postQuery(t, app, `{`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("generation unavailable", func(t *testing.T) {
		app := newApp(&fakeEngine{err: fmt.Errorf("wrapped: %w", query.ErrAnswerGeneration)})
		resp := postQuery(t, app, `{"question":"q"}`)
		assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	})
}
