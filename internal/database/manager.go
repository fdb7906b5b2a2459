package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"querygate/internal/catalog"
	apperrors "querygate/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Manager owns one pooled data source per available database and a failed
// set with the recorded failure reason. available and failed partition the
// configured set at every observable moment.
type Manager struct {
	logger *zap.Logger

	mu         sync.RWMutex
	pools      map[string]*pool
	failed     map[string]string
	configured map[string]catalog.DatabaseSpec
}

type pool struct {
	db   *sqlx.DB
	spec catalog.DatabaseSpec
}

// Conn is a scoped connection checkout. Release must be called on every
// exit path; holding it past the leak detection threshold logs a warning.
type Conn struct {
	*sqlx.Conn
	release func()
	once    sync.Once
}

// Release returns the connection to its pool and disarms leak detection.
func (c *Conn) Release() {
	c.once.Do(c.release)
}

// NewManager creates an empty manager; call Build to construct pools.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:     logger,
		pools:      map[string]*pool{},
		failed:     map[string]string{},
		configured: map[string]catalog.DatabaseSpec{},
	}
}

// Build constructs a pool per configured database. Databases are built
// concurrently and independently; a failing database lands in the failed
// set with its reason, it never aborts startup.
func (m *Manager) Build(ctx context.Context, snap *catalog.Snapshot) {
	pools := make(map[string]*pool, len(snap.Databases))
	failed := map[string]string{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for name, spec := range snap.Databases {
		name, spec := name, spec
		g.Go(func() error {
			p, reason := m.buildOne(gctx, snap, spec)
			mu.Lock()
			defer mu.Unlock()
			if p != nil {
				pools[name] = p
				m.logger.Info("database pool ready", zap.String("database", name))
			} else {
				failed[name] = reason
				m.logger.Warn("database degraded",
					zap.String("database", name),
					zap.String("reason", reason))
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	old := m.pools
	m.pools = pools
	m.failed = failed
	m.configured = snap.Databases
	m.mu.Unlock()

	for _, p := range old {
		p.db.Close()
	}
}

// buildOne runs the per-database startup algorithm: driver resolution,
// probe, required-table checks. Returns the pool or a failure reason.
func (m *Manager) buildOne(ctx context.Context, snap *catalog.Snapshot, spec catalog.DatabaseSpec) (*pool, string) {
	if !slices.Contains(sql.Drivers(), spec.DriverID) {
		return nil, fmt.Sprintf("driver unavailable: %s", spec.DriverID)
	}

	db, err := sqlx.Open(spec.DriverID, dsn(spec))
	if err != nil {
		return nil, err.Error()
	}
	db.SetMaxOpenConns(spec.Pool.MaximumPoolSize)
	db.SetMaxIdleConns(spec.Pool.MinimumIdle)
	db.SetConnMaxIdleTime(time.Duration(spec.Pool.IdleTimeoutMs) * time.Millisecond)
	db.SetConnMaxLifetime(time.Duration(spec.Pool.MaxLifetimeMs) * time.Millisecond)

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(spec.Pool.ConnectionTimeoutMs)*time.Millisecond)
	defer cancel()

	if err := db.PingContext(probeCtx); err != nil {
		db.Close()
		return nil, err.Error()
	}
	if _, err := db.ExecContext(probeCtx, spec.Pool.ConnectionTestQuery); err != nil {
		db.Close()
		return nil, err.Error()
	}

	var tableErrs []string
	for _, table := range TablesForDatabase(snap, spec.Name) {
		probe := fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", table)
		rows, err := db.QueryContext(probeCtx, probe)
		if err != nil {
			tableErrs = append(tableErrs, fmt.Sprintf("%s: %v", table, err))
			continue
		}
		rows.Close()
	}
	if len(tableErrs) > 0 {
		db.Close()
		sort.Strings(tableErrs)
		return nil, "required tables missing: " + strings.Join(tableErrs, "; ")
	}

	return &pool{db: db, spec: spec}, ""
}

// dsn injects credentials into the configured URL. URL-style DSNs get a
// userinfo section; key=value DSNs get user/password pairs appended; DSNs
// without a configured username pass through verbatim.
func dsn(spec catalog.DatabaseSpec) string {
	if spec.Username == "" {
		return spec.URL
	}
	if u, err := url.Parse(spec.URL); err == nil && u.Scheme != "" && u.Host != "" {
		u.User = url.UserPassword(spec.Username, spec.Password)
		return u.String()
	}
	if strings.Contains(spec.URL, "=") {
		return fmt.Sprintf("%s user=%s password=%s", spec.URL, spec.Username, spec.Password)
	}
	return spec.URL
}

// Acquire checks a connection out of the named pool within the pool's
// connection timeout. The caller must Release it on every exit path.
func (m *Manager) Acquire(ctx context.Context, name string) (*Conn, error) {
	m.mu.RLock()
	p, ok := m.pools[name]
	reason, isFailed := m.failed[name]
	_, isConfigured := m.configured[name]
	m.mu.RUnlock()

	if isFailed {
		return nil, apperrors.NewDatabaseUnavailable(name, reason)
	}
	if !ok {
		if !isConfigured {
			return nil, apperrors.NewDatabaseUnknown(name)
		}
		return nil, apperrors.NewDatabaseUnavailable(name, "pool not built")
	}

	acquireCtx, cancel := context.WithTimeout(ctx, time.Duration(p.spec.Pool.ConnectionTimeoutMs)*time.Millisecond)
	conn, err := p.db.Connx(acquireCtx)
	cancel()
	if err != nil {
		return nil, apperrors.NewDatabaseUnavailable(name, err.Error())
	}

	acquired := time.Now()
	leakTimer := time.AfterFunc(time.Duration(p.spec.Pool.LeakDetectionThresholdMs)*time.Millisecond, func() {
		m.logger.Warn("possible connection leak",
			zap.String("database", name),
			zap.Duration("held", time.Since(acquired)))
	})

	return &Conn{
		Conn: conn,
		release: func() {
			leakTimer.Stop()
			if err := conn.Close(); err != nil {
				m.logger.Warn("connection release failed",
					zap.String("database", name), zap.Error(err))
			}
		},
	}, nil
}

// Available reports whether the named database has a live pool.
func (m *Manager) Available(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pools[name]
	return ok
}

// FailureReason returns the recorded reason for a failed database.
func (m *Manager) FailureReason(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.failed[name]
	return r, ok
}

// Healthy reports whether the named database is available and a fresh probe
// succeeds within the pool's connection timeout.
func (m *Manager) Healthy(ctx context.Context, name string) bool {
	m.mu.RLock()
	p, ok := m.pools[name]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(p.spec.Pool.ConnectionTimeoutMs)*time.Millisecond)
	defer cancel()
	_, err := p.db.ExecContext(probeCtx, p.spec.Pool.ConnectionTestQuery)
	return err == nil
}

// AllHealthy is the conjunction of Healthy over the available set.
func (m *Manager) AllHealthy(ctx context.Context) bool {
	for _, name := range m.AvailableNames() {
		if !m.Healthy(ctx, name) {
			return false
		}
	}
	return true
}

// AvailableNames lists the databases with live pools, sorted.
func (m *Manager) AvailableNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FailedNames lists the degraded databases with their reasons.
func (m *Manager) FailedNames() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.failed))
	for k, v := range m.failed {
		out[k] = v
	}
	return out
}

// Rebind rewrites '?' placeholders to the named database's native bind form.
func (m *Manager) Rebind(name, query string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	if !ok {
		if reason, failed := m.failed[name]; failed {
			return "", apperrors.NewDatabaseUnavailable(name, reason)
		}
		return "", apperrors.NewDatabaseUnknown(name)
	}
	return p.db.Rebind(query), nil
}

// Close disposes every pool.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, p := range m.pools {
		if err := p.db.Close(); err != nil {
			m.logger.Warn("pool close failed", zap.String("database", name), zap.Error(err))
		}
	}
	m.pools = map[string]*pool{}
}
