//go:build integration

// Package containers starts the infrastructure integration suites run against.
// Each container starts on first use and is shared by every suite in the test
// binary; Ryuk removes it when the process exits.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out the shared containers.
type Manager struct {
	postgres lazy[*PostgresContainer]
	kafka    lazy[*KafkaContainer]
}

var manager Manager

// GetManager returns the process wide manager.
func GetManager() *Manager {
	return &manager
}

// GetPostgres returns a migrated Postgres, starting it on first use.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

// GetKafka returns a Kafka compatible broker, starting it on first use.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}

// lazy starts a container once. A failed start is not retried; start calls
// t.Fatalf, which fails the first suite and leaves later callers a nil value
// they report themselves.
type lazy[T any] struct {
	mu      sync.Mutex
	started bool
	value   T
}

func (l *lazy[T]) get(t *testing.T, start func(*testing.T) T) T {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		l.started = true
		l.value = start(t)
	}
	return l.value
}
