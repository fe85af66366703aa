package db

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dbbridge/dbbridge/internal/dberr"
	"github.com/dbbridge/dbbridge/internal/logger"
)

const (
	defaultMaxConns        = 10
	defaultMaxIdle         = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultLeaseTimeout    = 30 * time.Second
)

// PoolConfig holds the settings for one bounded pool against one database.
type PoolConfig struct {
	URL             string
	Driver          string
	MaxConns        int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	LeaseTimeout    time.Duration
}

// DriverFromURL guesses the driver name from a connection URL.
func DriverFromURL(url string) string {
	if strings.HasPrefix(strings.ToLower(url), "mysql") {
		return "mysql"
	}
	return "postgres"
}

func (cfg *PoolConfig) applyDefaults() {
	if cfg.Driver == "" {
		cfg.Driver = DriverFromURL(cfg.URL)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = defaultMaxIdle
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = defaultLeaseTimeout
	}
}

// PoolStats is a point-in-time snapshot of pool utilization.
type PoolStats struct {
	Total   int   `json:"total"`
	Active  int   `json:"active"`
	Idle    int   `json:"idle"`
	Waiting int64 `json:"waiting"`
	Queries int64 `json:"queries"`
}

// HealthStatus is the result of a pool round-trip check.
type HealthStatus struct {
	Connected bool   `json:"connected"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Pool owns a bounded set of physical connections to one database. The
// physical pooling is delegated to database/sql; Pool adds lease-scoped
// exclusive ownership, a lease timeout, and utilization counters.
type Pool struct {
	db      *sql.DB
	cfg     PoolConfig
	closed  atomic.Bool
	waiting atomic.Int64
	queries atomic.Int64
}

// NewPool opens and verifies a pool. On any failure no pool is returned.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	cfg.applyDefaults()

	sqlDB, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, dberr.NewConnectionErrorWrapper(err, "open %s pool", cfg.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.LeaseTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, dberr.NewConnectionErrorWrapper(err, "ping %s", cfg.Driver)
	}

	return newPoolFromDB(sqlDB, cfg), nil
}

func newPoolFromDB(sqlDB *sql.DB, cfg PoolConfig) *Pool {
	cfg.applyDefaults()

	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Pool{db: sqlDB, cfg: cfg}
}

// Driver returns the driver name the pool was opened with.
func (p *Pool) Driver() string {
	return p.cfg.Driver
}

// Lease blocks until a connection is available or the lease timeout elapses.
// The returned connection is exclusively owned by the caller until Release.
func (p *Pool) Lease(ctx context.Context) (*PooledConn, error) {
	if p.closed.Load() {
		return nil, dberr.NewConnectionError("pool is shut down")
	}

	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	leaseCtx, cancel := context.WithTimeout(ctx, p.cfg.LeaseTimeout)
	defer cancel()

	conn, err := p.db.Conn(leaseCtx)
	if err != nil {
		return nil, dberr.NewConnectionErrorWrapper(err, "lease connection")
	}

	return &PooledConn{conn: conn, pool: p, leasedAt: time.Now()}, nil
}

// CheckHealth issues a trivial round-trip query and reports latency. It never
// returns an error; failures show up as Connected=false.
func (p *Pool) CheckHealth(ctx context.Context) HealthStatus {
	start := time.Now()

	var one int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return HealthStatus{Connected: false, Error: err.Error()}
	}

	return HealthStatus{Connected: true, LatencyMs: time.Since(start).Milliseconds()}
}

// Stats computes a snapshot on demand.
func (p *Pool) Stats() PoolStats {
	s := p.db.Stats()
	return PoolStats{
		Total:   s.OpenConnections,
		Active:  s.InUse,
		Idle:    s.Idle,
		Waiting: p.waiting.Load(),
		Queries: p.queries.Load(),
	}
}

// Shutdown drains and closes all connections. Subsequent leases fail.
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if err := p.db.Close(); err != nil {
		logger.Warn("error closing connection pool", map[string]interface{}{"error": err.Error()})
	}
}

// PooledConn is a live database session leased from the pool. At most one
// borrower uses it at a time.
type PooledConn struct {
	conn     *sql.Conn
	pool     *Pool
	leasedAt time.Time
	released atomic.Bool
}

// Release returns the connection to the idle set. Safe to call more than
// once; only the first call hands the session back.
func (c *PooledConn) Release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	if err := c.conn.Close(); err != nil && err != sql.ErrConnDone {
		logger.Warn("error releasing pooled connection", map[string]interface{}{"error": err.Error()})
	}
}

// QueryContext runs a row-returning statement on this connection.
func (c *PooledConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.pool.queries.Add(1)
	return c.conn.QueryContext(ctx, query, args...)
}

// ExecContext runs a non-row statement on this connection.
func (c *PooledConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.pool.queries.Add(1)
	return c.conn.ExecContext(ctx, query, args...)
}
