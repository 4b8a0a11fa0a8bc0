// bounded set of open database handles guarded by a counting semaphore
package sqlpool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	_ "modernc.org/sqlite"
)

// Pool holds a fixed number of *sql.DB handles opened by Open and guarded
// by a counting semaphore initialised to the pool size. Permits + borrowed
// always equals size: a borrowed handle is neither in the queue nor
// counted against the semaphore.
type Pool struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	handles []*sql.DB
	size    int
}

// Config carries the DB connection parameters: a single driver DSN and the
// pool size (conn_pool_num). There are no separate port, user, password or
// database-name fields; anything of that kind goes into the DSN.
type Config struct {
	DSN  string // data source name for the chosen driver
	Size int    // conn_pool_num: number of pre-opened handles
}

// Open initialises a Pool with Config.Size handles, each independently
// opened against Config.DSN.
func Open(cfg Config) (*Pool, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("sqlpool: pool size must be > 0, got %d", cfg.Size)
	}

	p := &Pool{
		sem:     semaphore.NewWeighted(int64(cfg.Size)),
		handles: make([]*sql.DB, 0, cfg.Size),
		size:    cfg.Size,
	}

	for i := 0; i < cfg.Size; i++ {
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			p.ClosePool()
			return nil, fmt.Errorf("sqlpool: open handle %d: %w", i, err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			p.ClosePool()
			return nil, fmt.Errorf("sqlpool: ping handle %d: %w", i, err)
		}
		p.handles = append(p.handles, db)
	}

	return p, nil
}

// Acquire blocks on the semaphore, then pops a handle off the queue.
func (p *Pool) Acquire(ctx context.Context) (*sql.DB, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	last := len(p.handles) - 1
	h := p.handles[last]
	p.handles = p.handles[:last]
	return h, nil
}

// Release returns a handle to the pool and signals the semaphore.
func (p *Pool) Release(h *sql.DB) {
	p.mu.Lock()
	p.handles = append(p.handles, h)
	p.mu.Unlock()

	p.sem.Release(1)
}

// ClosePool closes and discards every pooled handle. Handles currently on
// loan are not tracked here; callers must Release before shutdown or those
// handles simply leak until process exit.
func (p *Pool) ClosePool() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range p.handles {
		h.Close()
	}
	p.handles = nil
}

// Scoped acquires a handle on construction and releases it on every exit
// path (success or failure of the consumer), guaranteeing no handle is
// lost if the caller's query panics or returns early.
func (p *Pool) Scoped(ctx context.Context, fn func(db *sql.DB) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)

	return fn(h)
}
