package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sales-trainer/backend/internal/storage/models"
	"github.com/sales-trainer/backend/pkg/logger"
)

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("document not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	// DSN parameters apply to every pooled connection; PRAGMA statements
	// would only reach the connection that happened to run them.
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+"_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		text TEXT NOT NULL,
		trainer_name TEXT,
		media_type TEXT,
		source_url TEXT,
		provide_link INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_active ON documents(active);
	CREATE INDEX IF NOT EXISTS idx_documents_trainer ON documents(trainer_name);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc_position ON chunks(doc_id, position);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT,
		result_count INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// CreateDocumentWithChunks commits a document and its full chunk set in
// one transaction. Either every row lands or none do; readers never see a
// partial chunk set.
func (c *Client) CreateDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, text, trainer_name, media_type, source_url, provide_link, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID,
		doc.Title,
		doc.Text,
		doc.TrainerName,
		doc.MediaType,
		doc.SourceURL,
		boolToInt(doc.ProvideLink),
		boolToInt(doc.Active),
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, doc_id, position, text, embedding_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err = stmt.ExecContext(ctx,
			chunk.ID,
			chunk.DocID,
			chunk.Position,
			chunk.Text,
			chunk.EmbeddingID,
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	logger.Debug("Document committed",
		zap.String("doc_id", doc.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, title, text, trainer_name, media_type, source_url, provide_link, active, created_at, updated_at
		FROM documents WHERE id = ?`, id)

	var doc models.Document
	var provideLink, active int
	var createdAt, updatedAt int64

	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Text,
		&doc.TrainerName,
		&doc.MediaType,
		&doc.SourceURL,
		&provideLink,
		&active,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.ProvideLink = provideLink == 1
	doc.Active = active == 1
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

// ActiveDocuments returns metadata for every document visible to
// retrieval, keyed by id.
func (c *Client) ActiveDocuments(ctx context.Context) (map[string]models.DocumentMetadata, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, trainer_name, media_type, source_url, provide_link, active, created_at, updated_at
		FROM documents WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active documents: %w", err)
	}
	defer rows.Close()

	docs := make(map[string]models.DocumentMetadata)
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		docs[meta.ID] = meta
	}
	return docs, rows.Err()
}

func (c *Client) ListMetadata(ctx context.Context) ([]models.DocumentMetadata, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, trainer_name, media_type, source_url, provide_link, active, created_at, updated_at
		FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list document metadata: %w", err)
	}
	defer rows.Close()

	var metadata []models.DocumentMetadata
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		metadata = append(metadata, meta)
	}
	return metadata, rows.Err()
}

// SetActive flips retrieval visibility for one document. Single-row
// update, no coordination with in-flight ingestion required.
func (c *Client) SetActive(ctx context.Context, id string, active bool) (*models.DocumentMetadata, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE documents SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update active flag: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	logger.Info("Document active flag updated",
		zap.String("doc_id", id),
		zap.Bool("active", active),
	)

	row := c.db.QueryRowContext(ctx, `
		SELECT id, title, trainer_name, media_type, source_url, provide_link, active, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	meta, err := scanMetadata(row)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// DeleteDocument removes a document; chunk rows cascade via the foreign
// key. Returns the number of chunks that were deleted with it.
func (c *Client) DeleteDocument(ctx context.Context, id string) (int, error) {
	var chunkCount int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE doc_id = ?`, id).Scan(&chunkCount)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}

	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrNotFound
	}

	logger.Info("Document deleted",
		zap.String("doc_id", id),
		zap.Int("chunks_deleted", chunkCount),
	)
	return chunkCount, nil
}

func (c *Client) GetChunks(ctx context.Context, docID string) ([]models.Chunk, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, doc_id, position, text, embedding_id, created_at
		FROM chunks WHERE doc_id = ? ORDER BY position`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var createdAt int64
		err := rows.Scan(&chunk.ID, &chunk.DocID, &chunk.Position, &chunk.Text, &chunk.EmbeddingID, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (c *Client) CountChunks(ctx context.Context, docID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE doc_id = ?`, docID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (c *Client) InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO query_history (id, question, answer, result_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Question,
		record.Answer,
		record.ResultCount,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row rowScanner) (models.DocumentMetadata, error) {
	var meta models.DocumentMetadata
	var provideLink, active int
	var createdAt, updatedAt int64

	err := row.Scan(
		&meta.ID,
		&meta.Title,
		&meta.TrainerName,
		&meta.MediaType,
		&meta.SourceURL,
		&provideLink,
		&active,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return meta, ErrNotFound
	}
	if err != nil {
		return meta, fmt.Errorf("failed to scan document metadata: %w", err)
	}

	meta.ProvideLink = provideLink == 1
	meta.Active = active == 1
	meta.CreatedAt = time.Unix(createdAt, 0)
	meta.UpdatedAt = time.Unix(updatedAt, 0)
	return meta, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
