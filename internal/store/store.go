// Package store persists transcript records. The engine behind the Store
// interface is deliberately simple: a JSON file with an in-memory index,
// enough for a single-node deployment and trivially replaceable.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a transcript does not exist or belongs to a
// different owner.
var ErrNotFound = errors.New("store: transcript not found")

// Transcript is one durable transcription record, created exactly once per
// completed session or batch upload.
type Transcript struct {
	ID          string    `json:"id"`
	SourceLabel string    `json:"source_label"`
	MimeType    string    `json:"mime_type"`
	Text        string    `json:"text"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the document-store collaborator: create, find by owner, delete.
type Store interface {
	Save(ctx context.Context, t *Transcript) error
	List(ctx context.Context, ownerID string) ([]Transcript, error)
	Delete(ctx context.Context, id, ownerID string) error
}
