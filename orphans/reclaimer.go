// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package orphans implements deferred deletion of blobs and files that could
// not be removed synchronously.
package orphans

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/jcrstore/private/kvstore"
)

var (
	// Error is the default orphans error class.
	Error = errs.Class("orphans")

	mon = monkit.Package()
)

// FileNamespace is the namespace of local files, such as swap files.
const FileNamespace = "file"

// Config configures the reclaimer.
type Config struct {
	Interval    time.Duration `help:"how frequently orphaned blobs are reclaimed" default:"1m0s"`
	Workers     int           `help:"number of concurrent deletions during a sweep" default:"4"`
	MaxAttempts int           `help:"deletion attempts before an orphan is forgotten" default:"10"`
	Journal     string        `help:"where pending orphans are journaled: memory:// (not durable, lost on restart), bolt://<file>, badger://<dir> or redis://<host>?db=0&prefix=<p>" default:"memory://"`
}

// Handle identifies something to delete. Namespace selects the registered
// DeleteFunc, Key is passed to it.
type Handle struct {
	Namespace string
	Key       string
}

// String implements fmt.Stringer.
func (h Handle) String() string { return h.Namespace + ":" + h.Key }

func (h Handle) journalKey() kvstore.Key {
	return kvstore.Key(h.Namespace + "\x00" + h.Key)
}

func parseJournalKey(key kvstore.Key) (Handle, bool) {
	namespace, k, ok := strings.Cut(string(key), "\x00")
	if !ok || namespace == "" || k == "" {
		return Handle{}, false
	}
	return Handle{Namespace: namespace, Key: k}, true
}

// DeleteFunc physically deletes key. Deleting a missing key must succeed.
type DeleteFunc func(ctx context.Context, key string) error

// Reclaimer is a registry of handles waiting to be deleted. Deletion happens
// in sweeps, either on a timer with Run or explicitly with Sweep.
//
// A handle that is removed with Remove is never deleted by a sweep that
// starts after the removal, and Remove waits for a sweep that is deleting
// the handle at that moment.
//
// architecture: Chore
type Reclaimer struct {
	log     *zap.Logger
	config  Config
	journal kvstore.Store

	// journalMu is held while writing the journal. It is never acquired
	// with mu held.
	journalMu sync.Mutex

	mu       sync.Mutex
	queue    []journalOp
	pending  map[Handle]int
	inflight map[Handle]chan struct{}
	deleters map[string]DeleteFunc

	pool    *ants.Pool
	running atomic.Bool

	Loop *sync2.Cycle
}

// New creates a reclaimer. The reclaimer owns journal and closes it on Close.
func New(log *zap.Logger, journal kvstore.Store, config Config) (*Reclaimer, error) {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}

	pool, err := ants.NewPool(config.Workers)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	reclaimer := &Reclaimer{
		log:      log,
		config:   config,
		journal:  journal,
		pending:  map[Handle]int{},
		inflight: map[Handle]chan struct{}{},
		deleters: map[string]DeleteFunc{},
		pool:     pool,
		Loop:     sync2.NewCycle(config.Interval),
	}
	reclaimer.Register(FileNamespace, removeFile)
	return reclaimer, nil
}

func removeFile(ctx context.Context, path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Register binds namespace to the function deleting its handles.
func (reclaimer *Reclaimer) Register(namespace string, fn DeleteFunc) {
	reclaimer.mu.Lock()
	defer reclaimer.mu.Unlock()
	reclaimer.deleters[namespace] = fn
}

// Load adds every handle found in the journal.
func (reclaimer *Reclaimer) Load(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	var loaded []Handle
	err = reclaimer.journal.Range(ctx, func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		h, ok := parseJournalKey(key)
		if !ok {
			reclaimer.log.Warn("ignoring malformed journal entry", zap.ByteString("key", key))
			return nil
		}
		loaded = append(loaded, h)
		return nil
	})
	if err != nil {
		return Error.Wrap(err)
	}

	reclaimer.mu.Lock()
	defer reclaimer.mu.Unlock()
	for _, h := range loaded {
		if _, ok := reclaimer.pending[h]; !ok {
			reclaimer.pending[h] = 0
		}
	}
	if len(loaded) > 0 {
		reclaimer.log.Info("loaded pending orphans", zap.Int("count", len(loaded)))
	}
	return nil
}

// Add registers h for deferred deletion.
func (reclaimer *Reclaimer) Add(ctx context.Context, h Handle) {
	mon.Counter("orphans_added").Inc(1)

	reclaimer.mu.Lock()
	if _, ok := reclaimer.pending[h]; !ok {
		reclaimer.pending[h] = 0
	}
	reclaimer.queue = append(reclaimer.queue, journalOp{handle: h, added: time.Now()})
	reclaimer.mu.Unlock()

	reclaimer.flushJournal(ctx)
	reclaimer.log.Debug("orphan added", zap.Stringer("handle", h))
}

// journalOp is a journal write queued under mu.
type journalOp struct {
	handle Handle
	// added is zero for removals.
	added time.Time
}

// flushJournal writes the queued operations in the order they were queued.
// When it returns, every operation queued before the call has been written.
func (reclaimer *Reclaimer) flushJournal(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	reclaimer.journalMu.Lock()
	defer reclaimer.journalMu.Unlock()

	for {
		reclaimer.mu.Lock()
		if len(reclaimer.queue) == 0 {
			reclaimer.mu.Unlock()
			return
		}
		op := reclaimer.queue[0]
		reclaimer.queue = reclaimer.queue[1:]
		reclaimer.mu.Unlock()

		if op.added.IsZero() {
			if err := reclaimer.journal.Delete(ctx, op.handle.journalKey()); err != nil {
				reclaimer.log.Warn("unable to remove orphan from journal", zap.Stringer("handle", op.handle), zap.Error(err))
			}
			continue
		}
		value := kvstore.Value(op.added.UTC().Format(time.RFC3339))
		if err := reclaimer.journal.Put(ctx, op.handle.journalKey(), value); err != nil {
			reclaimer.log.Warn("unable to journal orphan", zap.Stringer("handle", op.handle), zap.Error(err))
		}
	}
}

// Remove cancels the deferred deletion of h and reports whether h was
// pending. When a sweep is deleting h, Remove waits until it is done.
func (reclaimer *Reclaimer) Remove(ctx context.Context, h Handle) bool {
	for {
		reclaimer.mu.Lock()
		if done, ok := reclaimer.inflight[h]; ok {
			reclaimer.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return false
			}
		}

		_, ok := reclaimer.pending[h]
		if !ok {
			reclaimer.mu.Unlock()
			return false
		}

		delete(reclaimer.pending, h)
		reclaimer.queue = append(reclaimer.queue, journalOp{handle: h})
		reclaimer.mu.Unlock()

		reclaimer.flushJournal(ctx)
		reclaimer.log.Debug("orphan removed", zap.Stringer("handle", h))
		return true
	}
}

// Len returns the number of pending handles, excluding those being deleted.
func (reclaimer *Reclaimer) Len() int {
	reclaimer.mu.Lock()
	defer reclaimer.mu.Unlock()
	return len(reclaimer.pending)
}

// Pending returns the pending handles in a stable order.
func (reclaimer *Reclaimer) Pending() []Handle {
	reclaimer.mu.Lock()
	handles := make([]Handle, 0, len(reclaimer.pending))
	for h := range reclaimer.pending {
		handles = append(handles, h)
	}
	reclaimer.mu.Unlock()

	sort.Slice(handles, func(i, k int) bool {
		if handles[i].Namespace != handles[k].Namespace {
			return handles[i].Namespace < handles[k].Namespace
		}
		return handles[i].Key < handles[k].Key
	})
	return handles
}

// Run sweeps on every tick of Loop until ctx is canceled or Close is called.
func (reclaimer *Reclaimer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	reclaimer.running.Store(true)
	return reclaimer.Loop.Run(ctx, func(ctx context.Context) error {
		if deleted, err := reclaimer.Sweep(ctx); err != nil {
			reclaimer.log.Error("error during sweeping orphans", zap.Error(err))
		} else if deleted > 0 {
			reclaimer.log.Info("sweep", zap.Int("deleted", deleted))
		}
		return nil
	})
}

type claim struct {
	handle   Handle
	attempts int
	done     chan struct{}
	fn       DeleteFunc
}

// Sweep deletes every handle pending when it starts and returns how many
// were deleted. Handles that fail to delete stay pending until they exceed
// the configured attempts.
func (reclaimer *Reclaimer) Sweep(ctx context.Context) (deleted int, err error) {
	defer mon.Task()(&ctx)(&err)

	reclaimer.mu.Lock()
	claims := make([]*claim, 0, len(reclaimer.pending))
	for h, attempts := range reclaimer.pending {
		if _, busy := reclaimer.inflight[h]; busy {
			continue
		}
		c := &claim{handle: h, attempts: attempts, done: make(chan struct{}), fn: reclaimer.deleters[h.Namespace]}
		delete(reclaimer.pending, h)
		reclaimer.inflight[h] = c.done
		claims = append(claims, c)
	}
	reclaimer.mu.Unlock()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range claims {
		c := c
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if reclaimer.reclaim(ctx, c) {
				mu.Lock()
				deleted++
				mu.Unlock()
			}
		}
		if err := reclaimer.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	mon.IntVal("orphans_pending").Observe(int64(reclaimer.Len()))
	return deleted, ctx.Err()
}

func (reclaimer *Reclaimer) reclaim(ctx context.Context, c *claim) bool {
	var err error
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case c.fn == nil:
		err = Error.New("no deleter registered for namespace %q", c.handle.Namespace)
	default:
		err = c.fn(ctx, c.handle.Key)
	}

	reclaimer.mu.Lock()
	delete(reclaimer.inflight, c.handle)
	close(c.done)

	_, readded := reclaimer.pending[c.handle]

	attempts := c.attempts + 1
	switch {
	case err == nil:
		mon.Counter("orphans_deleted").Inc(1)
		reclaimer.log.Debug("orphan deleted", zap.Stringer("handle", c.handle))
	case attempts >= reclaimer.config.MaxAttempts && ctx.Err() == nil:
		mon.Counter("orphans_abandoned").Inc(1)
		reclaimer.log.Warn("giving up deleting orphan", zap.Stringer("handle", c.handle), zap.Int("attempts", attempts), zap.Error(err))
	default:
		reclaimer.log.Debug("unable to delete orphan", zap.Stringer("handle", c.handle), zap.Error(err))
		if !readded {
			reclaimer.pending[c.handle] = attempts
		}
		reclaimer.mu.Unlock()
		return false
	}

	if !readded {
		reclaimer.queue = append(reclaimer.queue, journalOp{handle: c.handle})
	}
	reclaimer.mu.Unlock()

	reclaimer.flushJournal(ctx)
	return err == nil
}

// Close stops the sweep loop and releases the workers and the journal.
func (reclaimer *Reclaimer) Close() error {
	if reclaimer.running.Load() {
		reclaimer.Loop.Close()
	} else {
		reclaimer.Loop.Stop()
	}
	reclaimer.pool.Release()
	return Error.Wrap(reclaimer.journal.Close())
}
