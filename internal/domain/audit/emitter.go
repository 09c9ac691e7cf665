package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Emitter provides async audit logging with a buffered channel and a
// background worker. Decisions are recorded without blocking the proxy
// hot path; a full buffer drops records rather than stalling requests.
type Emitter struct {
	store         Store
	records       chan Record
	wg            sync.WaitGroup
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	sendTimeout   time.Duration
	dropCount     atomic.Int64
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBatchSize sets the number of records batched before a store write.
func WithBatchSize(size int) EmitterOption {
	return func(e *Emitter) {
		e.batchSize = size
	}
}

// WithFlushInterval sets the periodic flush interval.
func WithFlushInterval(interval time.Duration) EmitterOption {
	return func(e *Emitter) {
		e.flushInterval = interval
	}
}

// WithChannelSize sets the buffer capacity.
func WithChannelSize(size int) EmitterOption {
	return func(e *Emitter) {
		e.records = make(chan Record, size)
	}
}

// WithSendTimeout sets the backpressure timeout.
// 0 drops immediately when the buffer is full; >0 blocks up to the
// timeout before dropping.
func WithSendTimeout(timeout time.Duration) EmitterOption {
	return func(e *Emitter) {
		e.sendTimeout = timeout
	}
}

// NewEmitter creates an Emitter writing to the given store.
func NewEmitter(store Store, logger *slog.Logger, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		store:         store,
		records:       make(chan Record, 1000),
		logger:        logger,
		batchSize:     100,
		flushInterval: time.Second,
		sendTimeout:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins the background worker that batches and writes records.
func (e *Emitter) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.worker(ctx)
}

// Emit queues a record. Fast non-blocking send first; when the buffer
// is full, block up to sendTimeout, then drop and count.
func (e *Emitter) Emit(record Record) {
	select {
	case e.records <- record:
		return
	default:
	}

	if e.sendTimeout <= 0 {
		e.drop(record)
		return
	}

	select {
	case e.records <- record:
	case <-time.After(e.sendTimeout):
		e.drop(record)
	}
}

func (e *Emitter) drop(record Record) {
	drops := e.dropCount.Add(1)
	e.logger.Warn("audit record dropped",
		"request_id", record.RequestID,
		"direction", record.Direction,
		"total_drops", drops,
	)
}

// Dropped returns the total number of dropped records.
func (e *Emitter) Dropped() int64 {
	return e.dropCount.Load()
}

// Depth returns the number of queued records awaiting the worker.
func (e *Emitter) Depth() int {
	return len(e.records)
}

// Capacity returns the queue buffer capacity.
func (e *Emitter) Capacity() int {
	return cap(e.records)
}

// Stop closes the queue and waits for the worker to flush and exit.
func (e *Emitter) Stop() {
	close(e.records)
	e.wg.Wait()
}

func (e *Emitter) worker(ctx context.Context) {
	defer e.wg.Done()

	batch := make([]Record, 0, e.batchSize)
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case record, ok := <-e.records:
			if !ok {
				// Queue closed: final flush with a bounded deadline.
				e.finalFlush(batch)
				return
			}
			batch = append(batch, record)
			if len(batch) >= e.batchSize {
				e.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				e.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain whatever was already queued; decisions that
			// happened get audited even on shutdown.
			for {
				select {
				case record, ok := <-e.records:
					if !ok {
						e.finalFlush(batch)
						return
					}
					batch = append(batch, record)
				default:
					e.finalFlush(batch)
					return
				}
			}
		}
	}
}

func (e *Emitter) finalFlush(batch []Record) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.flush(ctx, batch)
}

// flush writes a batch to the store. Errors are logged, never
// propagated: audit failure must not alter proxy outcomes.
func (e *Emitter) flush(ctx context.Context, batch []Record) {
	if err := e.store.Append(ctx, batch...); err != nil {
		e.logger.Error("failed to write audit batch",
			"error", err,
			"count", len(batch),
		)
	}
}
