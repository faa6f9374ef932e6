package store

import (
	"context"
	"errors"
	"fmt"
)

// Collections used by the application.
const (
	Turmas           = "turmas"
	Alunos           = "alunos"
	FrequenciaDiaria = "frequencia_diaria"
)

// Document is one record in a collection. Fields carry the document body
// as stored; the identifier lives outside the body.
type Document struct {
	ID     string
	Fields map[string]any
}

var (
	ErrNotFound  = errors.New("document_not_found")
	ErrDuplicate = errors.New("duplicate_document")
)

// OperationError wraps a failed remote read or write.
type OperationError struct {
	Op         string
	Collection string
	Err        error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Store is the collection/query contract of the document service backing
// all persistent state. Implementations must keep a stable fetch order
// per collection so reports render identically across reloads.
type Store interface {
	QueryByEquality(ctx context.Context, collection, field, value string) ([]Document, error)
	ListDocuments(ctx context.Context, collection string) ([]Document, error)
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	AddDocument(ctx context.Context, collection string, fields map[string]any) (string, error)
	UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) error
	DeleteDocument(ctx context.Context, collection, id string) error
}
