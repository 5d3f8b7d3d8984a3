package models

import "time"

// Document is one ingested piece of training material. Text is immutable
// after creation; re-uploading the same material creates a new Document.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Text        string    `json:"-"`
	TrainerName string    `json:"trainer_name,omitempty"`
	MediaType   string    `json:"media_type,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	ProvideLink bool      `json:"provide_link"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chunk is one embedded span of a document's text. Position is dense and
// 0-based within the owning document. The embedding itself lives in the
// vector store under EmbeddingID.
type Chunk struct {
	ID          string    `json:"id"`
	DocID       string    `json:"doc_id"`
	Position    int       `json:"position"`
	Text        string    `json:"text"`
	EmbeddingID string    `json:"embedding_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentMetadata is the attribution view returned by the listing
// endpoint; it deliberately excludes the full text.
type DocumentMetadata struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	TrainerName string    `json:"trainer_name,omitempty"`
	MediaType   string    `json:"media_type,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	ProvideLink bool      `json:"provide_link"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QueryRecord is the audit row written after each answered question.
type QueryRecord struct {
	ID          string    `json:"id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	ResultCount int       `json:"result_count"`
	LatencyMS   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
