package memory

import (
	"context"
	"sync"

	"github.com/cerberus-gate/cerberus/internal/domain/audit"
)

// defaultAuditCapacity bounds the in-memory audit ring.
const defaultAuditCapacity = 10000

// AuditStore keeps audit records in a bounded in-memory ring. Oldest
// records are discarded once the capacity is reached; durable retention
// needs the sqlite backend.
type AuditStore struct {
	mu       sync.RWMutex
	records  []audit.Record
	capacity int
}

// NewAuditStore creates an audit store holding up to capacity records.
func NewAuditStore(capacity int) *AuditStore {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &AuditStore{capacity: capacity}
}

// Append stores audit records, evicting the oldest beyond capacity.
func (s *AuditStore) Append(_ context.Context, records ...audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	if overflow := len(s.records) - s.capacity; overflow > 0 {
		s.records = append(s.records[:0:0], s.records[overflow:]...)
	}
	return nil
}

// Recent returns up to limit newest records, newest first.
func (s *AuditStore) Recent(limit int) []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]audit.Record, 0, limit)
	for i := len(s.records) - 1; i >= len(s.records)-limit; i-- {
		out = append(out, s.records[i])
	}
	return out
}

// Len returns the number of stored records.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close releases nothing; the ring lives and dies with the process.
func (s *AuditStore) Close() error { return nil }

var _ audit.Store = (*AuditStore)(nil)
