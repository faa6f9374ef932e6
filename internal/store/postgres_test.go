package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// Needs a reachable Postgres; exercises the real jsonb store including the
// partial unique index.
func TestPostgresDocumentStore(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DATABASE_URL to run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	pg, err := NewPostgres(ctx, pool)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}

	id, err := pg.AddDocument(ctx, Turmas, map[string]any{
		"nomeEscola":  "Escola Integração",
		"anoTurma":    "5º ano",
		"alunosCount": 0,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	defer func() {
		if err := pg.DeleteDocument(ctx, Turmas, id); err != nil && !errors.Is(err, ErrNotFound) {
			t.Errorf("cleanup turma: %v", err)
		}
	}()

	doc, err := pg.GetDocument(ctx, Turmas, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Fields["nomeEscola"] != "Escola Integração" {
		t.Fatalf("unexpected fields: %v", doc.Fields)
	}

	if err := pg.UpdateDocument(ctx, Turmas, id, map[string]any{"alunosCount": 3}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, err = pg.GetDocument(ctx, Turmas, id)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if count, _ := doc.Fields["alunosCount"].(float64); int(count) != 3 {
		t.Fatalf("expected merged count 3, got %v", doc.Fields["alunosCount"])
	}
	if doc.Fields["anoTurma"] != "5º ano" {
		t.Fatalf("update dropped untouched field: %v", doc.Fields)
	}

	docs, err := pg.QueryByEquality(ctx, Turmas, "nomeEscola", "Escola Integração")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	found := false
	for _, d := range docs {
		if d.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("query missed document %s", id)
	}

	if _, err := pg.GetDocument(ctx, Turmas, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresFrequenciaUniqueIndex(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DATABASE_URL to run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	pg, err := NewPostgres(ctx, pool)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}

	turmaID := "turma-unique-" + time.Now().UTC().Format("20060102150405")
	fields := map[string]any{
		"turmaId": turmaID,
		"data":    "2026-08-31",
		"alunos":  []map[string]any{{"nome": "Ana Silva", "presenca": "V"}},
	}
	id, err := pg.AddDocument(ctx, FrequenciaDiaria, fields)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	defer func() {
		if err := pg.DeleteDocument(ctx, FrequenciaDiaria, id); err != nil && !errors.Is(err, ErrNotFound) {
			t.Errorf("cleanup frequencia: %v", err)
		}
	}()

	if _, err := pg.AddDocument(ctx, FrequenciaDiaria, fields); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
