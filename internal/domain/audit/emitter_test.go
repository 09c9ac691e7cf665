package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type captureStore struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (s *captureStore) Append(_ context.Context, records ...Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *captureStore) Close() error { return nil }

func (s *captureStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitterFlushesOnStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &captureStore{}
	e := NewEmitter(store, testLogger(), WithBatchSize(100), WithFlushInterval(time.Hour))
	e.Start(context.Background())

	for i := 0; i < 5; i++ {
		e.Emit(Record{ID: "r", RequestID: "req", Direction: "request", LatencyMS: int64(i)})
	}
	e.Stop()

	if got := store.count(); got != 5 {
		t.Errorf("stored records = %d, want 5 (Stop must flush pending batch)", got)
	}
}

func TestEmitterBatchSizeTriggersFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &captureStore{}
	e := NewEmitter(store, testLogger(), WithBatchSize(2), WithFlushInterval(time.Hour))
	e.Start(context.Background())

	e.Emit(Record{ID: "1"})
	e.Emit(Record{ID: "2"})

	deadline := time.Now().Add(2 * time.Second)
	for store.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := store.count(); got != 2 {
		t.Errorf("stored records = %d, want 2 before Stop", got)
	}
	e.Stop()
}

func TestEmitterDropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &captureStore{}
	e := NewEmitter(store, testLogger(), WithChannelSize(1), WithSendTimeout(0))
	// Worker not started: the buffer fills immediately.

	e.Emit(Record{ID: "1"})
	e.Emit(Record{ID: "2"})
	e.Emit(Record{ID: "3"})

	if got := e.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}

	e.Start(context.Background())
	e.Stop()
}

func TestEmitterSwallowsStoreErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &captureStore{err: errors.New("disk full")}
	e := NewEmitter(store, testLogger(), WithBatchSize(1), WithFlushInterval(10*time.Millisecond))
	e.Start(context.Background())

	e.Emit(Record{ID: "1"})
	time.Sleep(50 * time.Millisecond)
	e.Stop()
	// No panic, no error surfaced: audit failure never alters outcomes.
}
