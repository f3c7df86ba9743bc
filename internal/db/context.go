package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	_ "github.com/mattn/go-sqlite3"
	"github.com/nsqlite/nsqlitectx/internal/log"
)

// Config represents the configuration for a ConnContext.
type Config struct {
	// Logger is the shared nsqlitectx logger.
	Logger log.Logger
	// Path is the database file to open on creation. Leave empty to create
	// a closed context and call Open later.
	Path string
	// DisableOptimizations disables the WAL and cache size settings of the
	// connections.
	DisableOptimizations bool
	// AssertOwner makes every single-owner operation verify that the
	// calling worker is the owner of the context.
	AssertOwner bool
}

// Detacher is implemented by registries that keep references to contexts.
// A destroyed context detaches itself from every registry it was added to.
type Detacher interface {
	Remove(c *ConnContext)
}

// ConnContext keeps a read-only and a read-write connection open to a
// database file, since opening a connection is expensive, plus a cache of
// prepared statements bound to those connections.
//
// A ConnContext belongs to the worker that created it and must only be used
// by that worker.
type ConnContext struct {
	Config
	owner WorkerID
	path  string
	roDB  *sql.DB
	rwDB  *sql.DB
	ro    *sql.Conn
	rw    *sql.Conn
	cache *stmtCache
	stats contextStats

	detachersMu sync.Mutex
	detachers   []Detacher
}

// NewConnContext creates a context owned by the worker of ctx. If
// config.Path is set, the connections are opened immediately.
func NewConnContext(ctx context.Context, config Config) (*ConnContext, error) {
	if !config.Logger.IsInitialized() {
		return nil, errors.New("logger is required")
	}

	c := &ConnContext{
		Config: config,
		owner:  WorkerFrom(ctx),
		cache:  newStmtCache(),
	}

	if config.Path != "" {
		if err := c.Open(ctx, config.Path); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Owner returns the worker that owns the context.
func (c *ConnContext) Owner() WorkerID {
	return c.owner
}

// Path returns the database file the context is open against, or an empty
// string when closed.
func (c *ConnContext) Path() string {
	return c.path
}

// IsOpen reports whether both connections are open.
func (c *ConnContext) IsOpen() bool {
	return c.rw != nil && c.ro != nil
}

// IsForCurrentWorker reports whether the worker of ctx owns the context.
func (c *ConnContext) IsForCurrentWorker(ctx context.Context) bool {
	return c.owner == WorkerFrom(ctx)
}

// Rebind hands the context over to the worker of ctx. It is meant for pools
// that recycle contexts between workers; the previous owner must not use
// the context afterwards.
func (c *ConnContext) Rebind(ctx context.Context) {
	c.owner = WorkerFrom(ctx)
}

// ConnectionRO returns the read-only connection, or nil when closed.
func (c *ConnContext) ConnectionRO() *sql.Conn {
	return c.ro
}

// ConnectionRW returns the read-write connection, or nil when closed.
func (c *ConnContext) ConnectionRW() *sql.Conn {
	return c.rw
}

// Stats returns the usage counters of the context.
func (c *ConnContext) Stats() ContextStats {
	stats := c.stats.snapshot()
	stats.CachedStatements = int64(c.cache.len())
	return stats
}

// checkOwner fails with ErrWrongOwner when owner assertions are enabled and
// the worker of ctx does not own the context.
func (c *ConnContext) checkOwner(ctx context.Context, op string) error {
	if !c.AssertOwner {
		return nil
	}

	caller := WorkerFrom(ctx)
	if caller == c.owner {
		return nil
	}

	c.Logger.ErrorNs(log.NsDatabase, "connection context used by a foreign worker", log.KV{
		"operation": op,
		"owner":     string(c.owner),
		"caller":    string(caller),
	})
	return fmt.Errorf("%w: %s called by %s, owned by %s", ErrWrongOwner, op, caller, c.owner)
}

// openConn opens a single pinned connection for the given DSN.
func openConn(ctx context.Context, dsn string) (*sql.DB, *sql.Conn, error) {
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, err
	}
	sqlDB.SetConnMaxIdleTime(0)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	return sqlDB, conn, nil
}

// Open opens connections to the database file at path. Any existing
// connections are closed first; if they can't be closed the error is
// returned and nothing is opened.
func (c *ConnContext) Open(ctx context.Context, path string) error {
	if err := c.checkOwner(ctx, "open"); err != nil {
		return err
	}
	if err := c.Close(ctx); err != nil {
		return err
	}

	rwDB, rw, err := openConn(ctx, createDSN(path, false, c.DisableOptimizations))
	if err != nil {
		return fmt.Errorf("%w: read-write connection to %s: %w", ErrOpenFailed, path, err)
	}

	roDB, ro, err := openConn(ctx, createDSN(path, true, c.DisableOptimizations))
	if err != nil {
		_ = rw.Close()
		_ = rwDB.Close()
		return fmt.Errorf("%w: read-only connection to %s: %w", ErrOpenFailed, path, err)
	}

	c.path = path
	c.rwDB, c.rw = rwDB, rw
	c.roDB, c.ro = roDB, ro

	c.Logger.DebugNs(log.NsDatabase, "opened database connections", log.KV{
		"path":  path,
		"owner": string(c.owner),
	})
	return nil
}

// Close clears the statement cache and closes both connections. It does
// nothing if the context is already closed.
//
// If any resource fails to close the error is logged and returned, and the
// context is left open. Calling Close again releases what is left.
func (c *ConnContext) Close(ctx context.Context) error {
	if !c.IsOpen() {
		return nil
	}
	if err := c.checkOwner(ctx, "close"); err != nil {
		return err
	}

	var errs *multierror.Error
	if err := c.cache.clear(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := releaseConn(c.ro); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("read-only connection: %w", err))
	}
	if err := c.roDB.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("read-only database: %w", err))
	}
	if err := releaseConn(c.rw); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("read-write connection: %w", err))
	}
	if err := c.rwDB.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("read-write database: %w", err))
	}

	if err := errs.ErrorOrNil(); err != nil {
		c.Logger.ErrorNs(log.NsDatabase, "error closing connections for database", log.KV{
			"path":  c.path,
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %s: %w", ErrCloseFailed, c.path, err)
	}

	c.Logger.DebugNs(log.NsDatabase, "closed database connections", log.KV{"path": c.path})
	c.ro, c.roDB = nil, nil
	c.rw, c.rwDB = nil, nil
	c.path = ""
	return nil
}

// closeConn closes a pinned connection. Tests replace it to inject faults.
var closeConn = (*sql.Conn).Close

// releaseConn closes conn, treating a connection released by an earlier
// Close as done.
func releaseConn(conn *sql.Conn) error {
	if err := closeConn(conn); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}

// Attach records a registry the context has been added to.
func (c *ConnContext) Attach(d Detacher) {
	c.detachersMu.Lock()
	defer c.detachersMu.Unlock()

	for _, existing := range c.detachers {
		if existing == d {
			return
		}
	}
	c.detachers = append(c.detachers, d)
}

// Destroy closes the context and removes it from every registry it was
// added to. The context must not be used afterwards.
func (c *ConnContext) Destroy(ctx context.Context) error {
	err := c.Close(ctx)

	c.detachersMu.Lock()
	detachers := c.detachers
	c.detachers = nil
	c.detachersMu.Unlock()

	for _, d := range detachers {
		d.Remove(c)
	}

	return err
}

// CachedQuery returns the statement cached under id, reset for reuse, or
// nil if there is none.
func (c *ConnContext) CachedQuery(ctx context.Context, id string) *Statement {
	if err := c.checkOwner(ctx, "cachedQuery"); err != nil {
		return nil
	}

	stmt, found := c.cache.get(id)
	if !found {
		c.stats.addCacheMiss()
		return nil
	}
	c.stats.addCacheHit()
	return stmt
}

// CacheQuery returns the statement cached under id if there is one,
// otherwise it prepares query and caches it under id. If write is true the
// statement is bound to the read-write connection.
//
// It returns nil without error if the context is not open.
func (c *ConnContext) CacheQuery(
	ctx context.Context, id string, query string, write bool,
) (*Statement, error) {
	if err := c.checkOwner(ctx, "cacheQuery"); err != nil {
		return nil, err
	}

	if stmt, found := c.cache.get(id); found {
		c.stats.addCacheHit()
		return stmt, nil
	}
	c.stats.addCacheMiss()

	if !c.IsOpen() {
		return nil, nil
	}

	conn := c.ro
	if write {
		conn = c.rw
	}

	prepared, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to prepare cached query %q: %w", ErrStatementFault, id, err)
	}
	c.stats.addPrepare()

	stmt := &Statement{
		id:    id,
		query: query,
		write: write,
		owner: c,
		stmt:  prepared,
	}
	c.cache.put(stmt)
	return stmt, nil
}

// Owns reports whether stmt was prepared by this context.
func (c *ConnContext) Owns(stmt *Statement) bool {
	return stmt != nil && stmt.owner == c
}

// Exec executes query on the read-write connection and returns the number
// of rows modified by it. The query may contain several statements.
//
// Returns 0 without error if the context is not open.
func (c *ConnContext) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if err := c.checkOwner(ctx, "exec"); err != nil {
		return 0, err
	}
	if c.rw == nil {
		return 0, nil
	}

	res, err := c.rw.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to execute query: %w", ErrStatementFault, err)
	}
	c.stats.addExec()

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get rows affected: %w", ErrStatementFault, err)
	}
	return rowsAffected, nil
}

// ExecScript executes a script of one or more statements on the read-write
// connection.
func (c *ConnContext) ExecScript(ctx context.Context, script string) error {
	if c.rw == nil {
		return ErrContextClosed
	}
	_, err := c.Exec(ctx, script)
	return err
}

// RowIDExists reports whether a row exists in table where idCol = id.
//
// table and idCol are formatted into the query as is and must be trusted
// identifiers.
func (c *ConnContext) RowIDExists(
	ctx context.Context, table string, id int64, idCol string,
) (bool, error) {
	if err := c.checkOwner(ctx, "rowIdExists"); err != nil {
		return false, err
	}
	if c.ro == nil {
		return false, ErrContextClosed
	}

	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = %d)", table, idCol, id)
	var exists int
	if err := c.ro.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: failed to check row %d in %s: %w", ErrStatementFault, id, table, err)
	}
	c.stats.addExec()
	return exists > 0, nil
}

// TableExists reports whether a table with the given name exists.
func (c *ConnContext) TableExists(ctx context.Context, name string) (bool, error) {
	if err := c.checkOwner(ctx, "tableExists"); err != nil {
		return false, err
	}
	if c.ro == nil {
		return false, ErrContextClosed
	}
	return tableExists(ctx, c.ro, name)
}

// BeginTransaction begins a transaction on the read-write connection if
// write is true, otherwise on the read-only one. If a transaction is
// already active on that connection the returned guard joins it.
func (c *ConnContext) BeginTransaction(ctx context.Context, write bool) (*Transaction, error) {
	if err := c.checkOwner(ctx, "beginTransaction"); err != nil {
		return nil, err
	}

	conn := c.ro
	if write {
		conn = c.rw
	}
	if conn == nil {
		return nil, ErrContextClosed
	}

	tx := newTransaction(c, conn)
	if err := tx.beginIfNoActiveTransaction(ctx); err != nil {
		return nil, err
	}
	return tx, nil
}

// rowQuerier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q rowQuerier, name string) (bool, error) {
	var count int
	err := q.QueryRowContext(
		ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: failed to look up table %s: %w", ErrStatementFault, name, err)
	}
	return count > 0, nil
}
