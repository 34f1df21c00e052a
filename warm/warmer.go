package warm

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonwraymond/hiercache/cache"
	"github.com/jonwraymond/hiercache/key"
	"github.com/jonwraymond/hiercache/observe"
)

// Sentinel errors for warmer operations.
var (
	ErrDuplicateOperation = errors.New("warm: operation already registered")
	ErrInvalidOperation   = errors.New("warm: operation needs a name and a run function")
)

// Target is the write-through contract a warmer fills. A
// cache.TwoLayerCache satisfies it, so warmed data takes the same
// invalidation and TTL paths as any other write.
type Target interface {
	Set(ctx context.Context, k key.Key, value []byte) error
	SetQueryResult(ctx context.Context, fingerprint string, result cache.QueryResult) error
}

// Operation is a named fetch the warmer runs periodically. Higher Priority
// runs first within a cycle.
type Operation struct {
	Name     string
	Priority int
	Run      func(ctx context.Context, target Target) error
}

// Config configures the warmer.
type Config struct {
	// Interval is the period between warming cycles.
	Interval time.Duration

	// Timeout bounds one full cycle. Zero means no bound.
	Timeout time.Duration
}

// Warmer periodically runs registered fetch operations against a cache, in
// priority order, writing through the normal set contract.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Shutdown: Stop is idempotent; the background loop never blocks process
//   shutdown.
// - Errors: one failing operation never stops the cycle; failures are
//   logged and reported by RunAll.
type Warmer struct {
	cfg    Config
	target Target
	logger observe.Logger

	mu  sync.RWMutex
	ops map[string]Operation

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewWarmer builds a warmer writing through target.
func NewWarmer(cfg Config, target Target, logger observe.Logger) (*Warmer, error) {
	if target == nil {
		return nil, errors.New("warm: target is nil")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("warm: interval must be positive")
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Warmer{
		cfg:    cfg,
		target: target,
		logger: logger.WithScope("warmer"),
		ops:    make(map[string]Operation),
		stop:   make(chan struct{}),
	}, nil
}

// Register adds a named operation. Re-registering a name is an error.
func (w *Warmer) Register(op Operation) error {
	if op.Name == "" || op.Run == nil {
		return ErrInvalidOperation
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.ops[op.Name]; exists {
		return ErrDuplicateOperation
	}
	w.ops[op.Name] = op
	return nil
}

// Unregister removes a named operation. Idempotent.
func (w *Warmer) Unregister(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.ops, name)
}

// OperationNames returns the registered names, highest priority first.
func (w *Warmer) OperationNames() []string {
	ops := w.ordered()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	return names
}

// RunAll runs one warming cycle immediately and returns per-operation
// failures.
func (w *Warmer) RunAll(ctx context.Context) map[string]error {
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	failures := make(map[string]error)
	for _, op := range w.ordered() {
		if err := op.Run(ctx, w.target); err != nil {
			failures[op.Name] = err
			w.logger.Warn(ctx, "warming operation failed",
				observe.Field{Key: "operation", Value: op.Name},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}
	return failures
}

// Start launches the periodic warming loop. A second call is a no-op.
func (w *Warmer) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		go w.loop(ctx)
	})
}

func (w *Warmer) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunAll(ctx)
		}
	}
}

// Stop halts the periodic loop. Idempotent; never blocks.
func (w *Warmer) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// ordered snapshots the operations sorted by priority (highest first), name
// as the tie-breaker.
func (w *Warmer) ordered() []Operation {
	w.mu.RLock()
	ops := make([]Operation, 0, len(w.ops))
	for _, op := range w.ops {
		ops = append(ops, op)
	}
	w.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Priority != ops[j].Priority {
			return ops[i].Priority > ops[j].Priority
		}
		return ops[i].Name < ops[j].Name
	})
	return ops
}
