package cost

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communityroots/resource-cli/internal/model"
)

// Sink persists batches of cost entries.
type Sink interface {
	InsertCostEntries(ctx context.Context, entries []model.CostEntry) error
}

// LoggerOptions tunes the cost logger's queue and flush behavior.
type LoggerOptions struct {
	QueueSize     int           // bounded queue capacity; default 256
	BatchSize     int           // max entries per flush; default 32
	FlushInterval time.Duration // flush cadence even when the batch is not full; default 5s
}

// Logger is an explicitly constructed, explicitly started/stopped cost log
// writer. Enqueue blocks when the bounded queue is full so producers feel
// backpressure instead of dropping telemetry. One dedicated goroutine drains
// the queue and writes batches through the sink.
type Logger struct {
	sink Sink
	opts LoggerOptions

	ch      chan model.CostEntry
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
	cancel  context.CancelFunc

	// sendMu fences Enqueue against Stop closing the channel: senders hold
	// the read side, Stop takes the write side before close.
	sendMu  sync.RWMutex
	stopped bool
}

// NewLogger creates a stopped Logger.
func NewLogger(sink Sink, opts LoggerOptions) *Logger {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	return &Logger{
		sink: sink,
		opts: opts,
		ch:   make(chan model.CostEntry, opts.QueueSize),
	}
}

// Start launches the flush goroutine. Calling Start twice is an error in the
// caller; the second call is ignored.
func (l *Logger) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true

	flushCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel

	l.wg.Add(1)
	go l.run(flushCtx)
}

// Stop drains the queue, flushes remaining entries, and waits for the flush
// goroutine to exit.
func (l *Logger) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.started = false
	l.mu.Unlock()

	l.sendMu.Lock()
	l.stopped = true
	close(l.ch)
	l.sendMu.Unlock()

	l.wg.Wait()
	if l.cancel != nil {
		l.cancel()
	}
}

// Enqueue adds one entry. Blocks while the queue is full; returns ctx.Err()
// if the caller's context expires first, and an error after Stop so late
// callers do not hit the closed channel.
func (l *Logger) Enqueue(ctx context.Context, provider, modelName, operation string, inputTokens, outputTokens int64, costUSD float64) error {
	l.sendMu.RLock()
	defer l.sendMu.RUnlock()
	if l.stopped {
		return eris.New("cost: logger stopped")
	}
	entry := model.CostEntry{
		ID:           uuid.New().String(),
		Provider:     provider,
		Model:        modelName,
		Operation:    operation,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      costUSD,
		CreatedAt:    time.Now().UTC(),
	}
	select {
	case l.ch <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recorder adapts the logger to the Tracker recorder signature. Entries that
// cannot be enqueued within a second are dropped with a warning rather than
// stalling a verification run indefinitely.
func (l *Logger) Recorder() func(provider, model, operation string, inputTokens, outputTokens int64, costUSD float64) {
	return func(provider, modelName, operation string, inputTokens, outputTokens int64, costUSD float64) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.Enqueue(ctx, provider, modelName, operation, inputTokens, outputTokens, costUSD); err != nil {
			zap.L().Warn("cost logger: entry dropped",
				zap.String("model", modelName),
				zap.String("operation", operation),
				zap.Error(err),
			)
		}
	}
}

func (l *Logger) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]model.CostEntry, 0, l.opts.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.sink.InsertCostEntries(ctx, batch); err != nil {
			zap.L().Error("cost logger: flush failed",
				zap.Int("entries", len(batch)),
				zap.Error(err),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-l.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= l.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
