// Package store provides document storage for forgeline. The pipeline needs
// only key-addressed single-document operations: insert, find, update. Two
// implementations exist: a NATS KV backed store for environments with a
// durable bus, and an in-process store for everything else.
package store

import (
	"context"
	"errors"
)

// Collection names used by the pipeline.
const (
	CollectionTasks = "tasks"
	CollectionPlans = "plans"
	CollectionLogs  = "logs"
)

// Common storage errors.
var (
	// ErrNotFound is returned when a document is not found.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists is returned when inserting over an existing document.
	ErrAlreadyExists = errors.New("document already exists")
)

// Store is the document-store capability the pipeline consumes. Documents
// are keyed by id within a collection; each update is a single-document
// atomic replace. No cross-document transactions.
type Store interface {
	// InsertOne stores a new document. Fails with ErrAlreadyExists when the
	// id is taken.
	InsertOne(ctx context.Context, collection, id string, doc any) error

	// FindOne loads the document with the given id into out. Fails with
	// ErrNotFound when absent.
	FindOne(ctx context.Context, collection, id string, out any) error

	// UpdateOne replaces the document with the given id. Fails with
	// ErrNotFound when absent.
	UpdateOne(ctx context.Context, collection, id string, doc any) error
}
