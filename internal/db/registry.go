package db

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbbridge/dbbridge/internal/dberr"
	"github.com/dbbridge/dbbridge/internal/logger"
)

// DefaultIsolationLevel is applied when begin is called without a level.
const DefaultIsolationLevel = "READ COMMITTED"

var isolationLevels = map[string]bool{
	"READ UNCOMMITTED": true,
	"READ COMMITTED":   true,
	"REPEATABLE READ":  true,
	"SERIALIZABLE":     true,
}

// Savepoint names go into SQL verbatim, so only safe identifiers are accepted.
var savepointNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Transaction is one open transaction pinned to a leased connection.
type Transaction struct {
	Handle     string
	Isolation  string
	StartedAt  time.Time
	conn       *PooledConn
	savepoints []string
}

// Savepoints returns the active savepoint names in creation order.
func (t *Transaction) Savepoints() []string {
	out := make([]string, len(t.savepoints))
	copy(out, t.savepoints)
	return out
}

// TxRegistry maps opaque handles to open transactions. Each transaction owns
// its leased connection for its whole lifetime; commit and rollback release
// that connection exactly once, whether or not the SQL statement succeeds.
// Callers are expected to issue statements sequentially per handle.
type TxRegistry struct {
	mu   sync.Mutex
	pool *Pool
	txs  map[string]*Transaction
}

func NewTxRegistry(pool *Pool) *TxRegistry {
	return &TxRegistry{pool: pool, txs: make(map[string]*Transaction)}
}

// Begin leases a connection, starts a transaction on it, and returns a fresh
// opaque handle. A failed BEGIN never leaks the lease.
func (r *TxRegistry) Begin(ctx context.Context, isolation string) (string, error) {
	iso := strings.ToUpper(strings.TrimSpace(isolation))
	if iso == "" {
		iso = DefaultIsolationLevel
	}
	if !isolationLevels[iso] {
		return "", dberr.NewTransactionError("unsupported isolation level %q", isolation)
	}

	conn, err := r.pool.Lease(ctx)
	if err != nil {
		return "", err
	}

	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		conn.Release()
		return "", dberr.NewTransactionErrorWrapper(err, "begin transaction")
	}

	if iso != DefaultIsolationLevel {
		if _, err := conn.ExecContext(ctx, "SET TRANSACTION ISOLATION LEVEL "+iso); err != nil {
			if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
				logger.Warn("rollback after failed isolation setup", map[string]interface{}{"error": rbErr.Error()})
			}
			conn.Release()
			return "", dberr.NewTransactionErrorWrapper(err, "set isolation level %s", iso)
		}
	}

	handle := uuid.NewString()
	tx := &Transaction{
		Handle:    handle,
		Isolation: iso,
		StartedAt: time.Now(),
		conn:      conn,
	}

	r.mu.Lock()
	r.txs[handle] = tx
	r.mu.Unlock()

	logger.LogTransactionEvent("begin", handle, nil)

	return handle, nil
}

// Commit finalizes the transaction and invalidates the handle. The connection
// is released even when COMMIT itself fails; the failure still propagates.
func (r *TxRegistry) Commit(ctx context.Context, handle string) error {
	tx, err := r.take(handle)
	if err != nil {
		return err
	}
	defer tx.conn.Release()

	if _, err := tx.conn.ExecContext(ctx, "COMMIT"); err != nil {
		logger.LogTransactionEvent("commit", handle, err)
		return dberr.NewTransactionErrorWrapper(err, "commit transaction %s", handle)
	}

	logger.LogTransactionEvent("commit", handle, nil)

	return nil
}

// Rollback aborts the transaction and invalidates the handle, releasing the
// connection on every path.
func (r *TxRegistry) Rollback(ctx context.Context, handle string) error {
	tx, err := r.take(handle)
	if err != nil {
		return err
	}
	defer tx.conn.Release()

	if _, err := tx.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		logger.LogTransactionEvent("rollback", handle, err)
		return dberr.NewTransactionErrorWrapper(err, "rollback transaction %s", handle)
	}

	logger.LogTransactionEvent("rollback", handle, nil)

	return nil
}

// CreateSavepoint adds a named rollback point to an active transaction.
func (r *TxRegistry) CreateSavepoint(ctx context.Context, handle, name string) error {
	if !savepointNamePattern.MatchString(name) {
		return dberr.NewTransactionError("invalid savepoint name %q", name)
	}

	tx, err := r.get(handle)
	if err != nil {
		return err
	}

	if _, err := tx.conn.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return dberr.NewTransactionErrorWrapper(err, "create savepoint %s", name)
	}

	r.mu.Lock()
	tx.savepoints = append(tx.savepoints, name)
	r.mu.Unlock()

	return nil
}

// ReleaseSavepoint discards a savepoint without rolling back.
func (r *TxRegistry) ReleaseSavepoint(ctx context.Context, handle, name string) error {
	if !savepointNamePattern.MatchString(name) {
		return dberr.NewTransactionError("invalid savepoint name %q", name)
	}

	tx, err := r.get(handle)
	if err != nil {
		return err
	}

	if _, err := tx.conn.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return dberr.NewTransactionErrorWrapper(err, "release savepoint %s", name)
	}

	r.mu.Lock()
	for i, sp := range tx.savepoints {
		if sp == name {
			tx.savepoints = append(tx.savepoints[:i], tx.savepoints[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	return nil
}

// RollbackToSavepoint rewinds the transaction to a savepoint. Savepoints
// created after it are discarded; the savepoint itself stays active.
func (r *TxRegistry) RollbackToSavepoint(ctx context.Context, handle, name string) error {
	if !savepointNamePattern.MatchString(name) {
		return dberr.NewTransactionError("invalid savepoint name %q", name)
	}

	tx, err := r.get(handle)
	if err != nil {
		return err
	}

	if _, err := tx.conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return dberr.NewTransactionErrorWrapper(err, "rollback to savepoint %s", name)
	}

	r.mu.Lock()
	for i, sp := range tx.savepoints {
		if sp == name {
			tx.savepoints = tx.savepoints[:i+1]
			break
		}
	}
	r.mu.Unlock()

	return nil
}

// Connection looks up the leased connection behind a handle so further
// statements can run inside the open transaction.
func (r *TxRegistry) Connection(handle string) (*PooledConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.txs[handle]
	if !ok {
		return nil, false
	}
	return tx.conn, true
}

// Count returns the number of open transactions.
func (r *TxRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

// RollbackAll aborts every open transaction. Used on disconnect so no handle
// still references a connection the pool is about to close. Rollback failures
// are logged, not returned; shutdown must not block on them.
func (r *TxRegistry) RollbackAll(ctx context.Context) {
	r.mu.Lock()
	open := make([]*Transaction, 0, len(r.txs))
	for _, tx := range r.txs {
		open = append(open, tx)
	}
	r.txs = make(map[string]*Transaction)
	r.mu.Unlock()

	for _, tx := range open {
		if _, err := tx.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
			logger.LogTransactionEvent("rollback on shutdown", tx.Handle, err)
		} else {
			logger.LogTransactionEvent("rollback on shutdown", tx.Handle, nil)
		}
		tx.conn.Release()
	}
}

func (r *TxRegistry) get(handle string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.txs[handle]
	if !ok {
		return nil, dberr.NewTransactionError("transaction not found: %s", handle)
	}
	return tx, nil
}

func (r *TxRegistry) take(handle string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.txs[handle]
	if !ok {
		return nil, dberr.NewTransactionError("transaction not found: %s", handle)
	}
	delete(r.txs, handle)
	return tx, nil
}
