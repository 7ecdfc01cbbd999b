// Package idempotency guarda recibos de chamadas ao ledger indexados pela
// chave de idempotência do chamador, para que retentativas repitam o
// resultado em vez de submeter uma nova transação.
package idempotency

import (
	"context"
	"sync"
)

// Store persiste recibos já confirmados.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, payload []byte) error
}

// Replay devolve o recibo salvo para a chave. Chave vazia nunca é repetida.
func Replay(ctx context.Context, st Store, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	return st.Get(ctx, key)
}

// Save grava o recibo. Chave vazia é ignorada.
func Save(ctx context.Context, st Store, key string, payload []byte) error {
	if key == "" {
		return nil
	}
	return st.Save(ctx, key, payload)
}

// MemoryStore é um Store em memória, usado em desenvolvimento e testes.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = append([]byte(nil), payload...)
	return nil
}
