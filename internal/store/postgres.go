package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection text NOT NULL,
	id uuid NOT NULL,
	fields jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE UNIQUE INDEX IF NOT EXISTS frequencia_diaria_turma_data_key
	ON documents ((fields->>'turmaId'), (fields->>'data'))
	WHERE collection = 'frequencia_diaria';
`

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Postgres keeps every collection in a single documents table, one jsonb
// body per document. One (turmaId, data) pair is allowed per attendance
// record; the partial index backs the upsert in the report package.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, &OperationError{Op: "migrate", Collection: "documents", Err: err}
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) QueryByEquality(ctx context.Context, collection, field, value string) ([]Document, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, fields
		FROM documents
		WHERE collection = $1 AND fields->>$2 = $3
		ORDER BY created_at ASC, id ASC
	`, collection, field, value)
	if err != nil {
		return nil, &OperationError{Op: "query", Collection: collection, Err: err}
	}
	defer rows.Close()
	return scanDocuments(rows, collection, "query")
}

func (p *Postgres) ListDocuments(ctx context.Context, collection string) ([]Document, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, fields
		FROM documents
		WHERE collection = $1
		ORDER BY created_at ASC, id ASC
	`, collection)
	if err != nil {
		return nil, &OperationError{Op: "list", Collection: collection, Err: err}
	}
	defer rows.Close()
	return scanDocuments(rows, collection, "list")
}

func (p *Postgres) GetDocument(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	row := p.pool.QueryRow(ctx, `
		SELECT fields
		FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, id)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, &OperationError{Op: "get", Collection: collection, Err: err}
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return Document{}, &OperationError{Op: "get", Collection: collection, Err: err}
	}
	return Document{ID: id, Fields: fields}, nil
}

func (p *Postgres) AddDocument(ctx context.Context, collection string, fields map[string]any) (string, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", &OperationError{Op: "add", Collection: collection, Err: err}
	}
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, collection, id, raw, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrDuplicate
		}
		return "", &OperationError{Op: "add", Collection: collection, Err: err}
	}
	return id, nil
}

func (p *Postgres) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return &OperationError{Op: "update", Collection: collection, Err: err}
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE documents
		SET fields = fields || $3::jsonb, updated_at = $4
		WHERE collection = $1 AND id = $2
	`, collection, id, raw, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return &OperationError{Op: "update", Collection: collection, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteDocument(ctx context.Context, collection, id string) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return &OperationError{Op: "delete", Collection: collection, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocuments(rows pgx.Rows, collection, op string) ([]Document, error) {
	docs := []Document{}
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, &OperationError{Op: op, Collection: collection, Err: err}
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, &OperationError{Op: op, Collection: collection, Err: err}
		}
		docs = append(docs, Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, &OperationError{Op: op, Collection: collection, Err: err}
	}
	return docs, nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
