// Package cloudsync mirrors local survey data into a per-user remote document store.
package cloudsync

import (
	"context"
	"time"
)

// Write is one document upsert or delete inside an atomic commit.
type Write struct {
	Collection string
	DocID      string
	Data       map[string]any
	Delete     bool
}

// Document is a stored remote document.
type Document struct {
	ID        string         `json:"id"`
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Filter narrows a collection query. Equals matches top-level fields exactly.
type Filter struct {
	Equals map[string]any
	Limit  int
}

// DocumentStore is a per-user document database laid out as
// users/{userID}/{collection}/{docID}. All methods reject an empty user id.
type DocumentStore interface {
	// Commit applies every write atomically.
	Commit(ctx context.Context, userID string, writes []Write) error
	Get(ctx context.Context, userID, collection, docID string) (*Document, error)
	Query(ctx context.Context, userID, collection string, filter Filter) ([]Document, error)
	DeleteByPrefix(ctx context.Context, userID, collection, docIDPrefix string) (int64, error)
	DeleteCollection(ctx context.Context, userID, collection string) (int64, error)
	DeleteUser(ctx context.Context, userID string) (int64, error)
	Ping(ctx context.Context) error
}
