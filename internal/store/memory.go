package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests. Documents pass through a
// JSON round trip on write so values come back with the same shapes the
// Postgres store produces, and insertion order is the fetch order.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string]map[string]map[string]any
	order map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		docs:  map[string]map[string]map[string]any{},
		order: map[string][]string{},
	}
}

func (m *Memory) QueryByEquality(_ context.Context, collection, field, value string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := []Document{}
	for _, id := range m.order[collection] {
		fields := m.docs[collection][id]
		if stringField(fields, field) != value {
			continue
		}
		docs = append(docs, Document{ID: id, Fields: cloneFields(fields)})
	}
	return docs, nil
}

func (m *Memory) ListDocuments(_ context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := []Document{}
	for _, id := range m.order[collection] {
		docs = append(docs, Document{ID: id, Fields: cloneFields(m.docs[collection][id])})
	}
	return docs, nil
}

func (m *Memory) GetDocument(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: cloneFields(fields)}, nil
}

func (m *Memory) AddDocument(_ context.Context, collection string, fields map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := cloneFields(fields)
	if collection == FrequenciaDiaria && m.frequenciaExists(cloned, "") {
		return "", ErrDuplicate
	}
	id := uuid.New().String()
	if m.docs[collection] == nil {
		m.docs[collection] = map[string]map[string]any{}
	}
	m.docs[collection][id] = cloned
	m.order[collection] = append(m.order[collection], id)
	return id, nil
}

func (m *Memory) UpdateDocument(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	merged := cloneFields(existing)
	for key, value := range cloneFields(fields) {
		merged[key] = value
	}
	if collection == FrequenciaDiaria && m.frequenciaExists(merged, id) {
		return ErrDuplicate
	}
	m.docs[collection][id] = merged
	return nil
}

func (m *Memory) DeleteDocument(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.docs[collection], id)
	order := m.order[collection]
	for i, existing := range order {
		if existing == id {
			m.order[collection] = append(order[:i:i], order[i+1:]...)
			break
		}
	}
	return nil
}

// frequenciaExists mirrors the Postgres partial unique index on
// (turmaId, data). Caller holds the lock.
func (m *Memory) frequenciaExists(fields map[string]any, exceptID string) bool {
	turmaID := stringField(fields, "turmaId")
	data := stringField(fields, "data")
	if turmaID == "" || data == "" {
		return false
	}
	for id, existing := range m.docs[FrequenciaDiaria] {
		if id == exceptID {
			continue
		}
		if stringField(existing, "turmaId") == turmaID && stringField(existing, "data") == data {
			return true
		}
	}
	return false
}

func stringField(fields map[string]any, field string) string {
	value, ok := fields[field]
	if !ok {
		return ""
	}
	if text, ok := value.(string); ok {
		return text
	}
	return fmt.Sprintf("%v", value)
}

func cloneFields(fields map[string]any) map[string]any {
	raw, err := json.Marshal(fields)
	if err != nil {
		return map[string]any{}
	}
	cloned := map[string]any{}
	_ = json.Unmarshal(raw, &cloned)
	return cloned
}
