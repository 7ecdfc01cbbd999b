package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore guarda recibos no Redis com TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore conecta ao Redis e valida a conexão.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("endereço do redis não pode ser vazio")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("falha ao conectar ao redis: %w", err)
	}
	return &RedisStore{client: client, prefix: "custodia:idem:", ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("falha ao ler recibo %s: %w", key, err)
	}
	return b, true, nil
}

// Save usa SETNX: o primeiro recibo gravado para a chave prevalece.
func (s *RedisStore) Save(ctx context.Context, key string, payload []byte) error {
	if err := s.client.SetNX(ctx, s.prefix+key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("falha ao gravar recibo %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
