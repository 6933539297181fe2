// Package ingestion defines the request/response types and Kafka event
// schemas for adding passages to the Postgres-backed corpus.
package ingestion

import "time"

// PassageInput is one passage in an ingest request. An empty ID is derived
// from the document name and a content hash.
type PassageInput struct {
	ID          string `json:"id"`
	Document    string `json:"document"`
	Competition string `json:"competition"`
	Page        int    `json:"page"`
	Text        string `json:"text"`
}

// IngestRequest is the JSON body accepted by POST /api/v1/passages.
type IngestRequest struct {
	Passages []PassageInput `json:"passages"`
}

// IngestResponse is returned once the passages are stored. The index picks
// them up on the next rebuild.
type IngestResponse struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

const (
	StatusQueued = "QUEUED"
	StatusStored = "STORED"
)

// CorpusUpdatedEvent is published to the corpus-updated topic after a
// write so that every replica rebuilds.
type CorpusUpdatedEvent struct {
	Reason     string    `json:"reason"`
	PassageIDs []string  `json:"passage_ids,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
