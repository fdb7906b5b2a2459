package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
)

// SQLStore persists the three catalogues in three relational tables.
// Endpoint pagination, parameter lists and response-shape metadata are not
// persisted; endpoints reloaded from this provider have pagination disabled.
type SQLStore struct {
	db       *sqlx.DB
	validate *validator.Validate
}

// Schema for the relational provider. id/created_at/updated_at are
// maintained but are not part of the store contract.
const sqlStoreSchema = `
CREATE TABLE IF NOT EXISTS config_databases (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	url TEXT NOT NULL,
	username TEXT,
	password TEXT,
	driver_id TEXT NOT NULL,
	maximum_pool_size INTEGER NOT NULL,
	minimum_idle INTEGER NOT NULL,
	connection_timeout_ms BIGINT NOT NULL,
	idle_timeout_ms BIGINT NOT NULL,
	max_lifetime_ms BIGINT NOT NULL,
	leak_detection_threshold_ms BIGINT NOT NULL,
	connection_test_query TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS config_queries (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	database_name TEXT NOT NULL,
	sql_text TEXT NOT NULL,
	query_type TEXT NOT NULL,
	timeout_seconds INTEGER NOT NULL,
	parameters_json TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS config_endpoints (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	path TEXT NOT NULL,
	method TEXT NOT NULL,
	query_name TEXT NOT NULL,
	response_format TEXT,
	cache_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	cache_ttl_seconds INTEGER NOT NULL DEFAULT 0,
	rate_limit_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	rate_limit_requests INTEGER NOT NULL DEFAULT 0,
	rate_limit_window_seconds INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// NewSQLStore opens the relational provider and ensures its tables exist.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, NewStoreError(StoreErrIO, "connect catalogue database", err)
	}
	s := &SQLStore{db: db, validate: validator.New()}
	if _, err := db.Exec(sqlStoreSchema); err != nil {
		db.Close()
		return nil, NewStoreError(StoreErrIO, "create catalogue tables", err)
	}
	return s, nil
}

// NewSQLStoreFromDB wraps an existing handle; used by tests.
func NewSQLStoreFromDB(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, validate: validator.New()}
}

type databaseRow struct {
	Name                     string `db:"name"`
	Description              string `db:"description"`
	URL                      string `db:"url"`
	Username                 string `db:"username"`
	Password                 string `db:"password"`
	DriverID                 string `db:"driver_id"`
	MaximumPoolSize          int    `db:"maximum_pool_size"`
	MinimumIdle              int    `db:"minimum_idle"`
	ConnectionTimeoutMs      int64  `db:"connection_timeout_ms"`
	IdleTimeoutMs            int64  `db:"idle_timeout_ms"`
	MaxLifetimeMs            int64  `db:"max_lifetime_ms"`
	LeakDetectionThresholdMs int64  `db:"leak_detection_threshold_ms"`
	ConnectionTestQuery      string `db:"connection_test_query"`
}

func (r databaseRow) spec() DatabaseSpec {
	return DatabaseSpec{
		Name:        r.Name,
		Description: r.Description,
		URL:         r.URL,
		Username:    r.Username,
		Password:    r.Password,
		DriverID:    r.DriverID,
		Pool: PoolSpec{
			MaximumPoolSize:          r.MaximumPoolSize,
			MinimumIdle:              r.MinimumIdle,
			ConnectionTimeoutMs:      r.ConnectionTimeoutMs,
			IdleTimeoutMs:            r.IdleTimeoutMs,
			MaxLifetimeMs:            r.MaxLifetimeMs,
			LeakDetectionThresholdMs: r.LeakDetectionThresholdMs,
			ConnectionTestQuery:      r.ConnectionTestQuery,
		},
	}
}

type queryRow struct {
	Name           string         `db:"name"`
	Description    string         `db:"description"`
	DatabaseName   string         `db:"database_name"`
	SQLText        string         `db:"sql_text"`
	QueryType      string         `db:"query_type"`
	TimeoutSeconds int            `db:"timeout_seconds"`
	ParametersJSON sql.NullString `db:"parameters_json"`
}

func (r queryRow) spec() (QuerySpec, error) {
	q := QuerySpec{
		Name:           r.Name,
		Description:    r.Description,
		DatabaseName:   r.DatabaseName,
		SQL:            r.SQLText,
		QueryType:      QueryType(r.QueryType),
		TimeoutSeconds: r.TimeoutSeconds,
	}
	if r.ParametersJSON.Valid && r.ParametersJSON.String != "" {
		if err := json.Unmarshal([]byte(r.ParametersJSON.String), &q.Parameters); err != nil {
			return q, NewStoreError(StoreErrInvalid, fmt.Sprintf("parameters of query '%s'", r.Name), err)
		}
	}
	return q, nil
}

type endpointRow struct {
	Name                   string `db:"name"`
	Description            string `db:"description"`
	Path                   string `db:"path"`
	Method                 string `db:"method"`
	QueryName              string `db:"query_name"`
	ResponseFormat         string `db:"response_format"`
	CacheEnabled           bool   `db:"cache_enabled"`
	CacheTTLSeconds        int    `db:"cache_ttl_seconds"`
	RateLimitEnabled       bool   `db:"rate_limit_enabled"`
	RateLimitRequests      int    `db:"rate_limit_requests"`
	RateLimitWindowSeconds int    `db:"rate_limit_window_seconds"`
}

func (r endpointRow) spec() EndpointSpec {
	return EndpointSpec{
		Name:                   r.Name,
		Description:            r.Description,
		Path:                   r.Path,
		Method:                 r.Method,
		QueryName:              r.QueryName,
		ResponseFormat:         r.ResponseFormat,
		CacheEnabled:           r.CacheEnabled,
		CacheTTLSeconds:        r.CacheTTLSeconds,
		RateLimitEnabled:       r.RateLimitEnabled,
		RateLimitRequests:      r.RateLimitRequests,
		RateLimitWindowSeconds: r.RateLimitWindowSeconds,
	}
}

// LoadAll materialises the three catalogues in one snapshot.
func (s *SQLStore) LoadAll() (*Snapshot, error) {
	var dbRows []databaseRow
	if err := s.db.Select(&dbRows, s.db.Rebind(
		`SELECT name, description, url, username, password, driver_id,
			maximum_pool_size, minimum_idle, connection_timeout_ms, idle_timeout_ms,
			max_lifetime_ms, leak_detection_threshold_ms, connection_test_query
		FROM config_databases`)); err != nil {
		return nil, NewStoreError(StoreErrIO, "load databases", err)
	}
	databases := make(map[string]DatabaseSpec, len(dbRows))
	for _, r := range dbRows {
		databases[r.Name] = r.spec()
	}

	var qRows []queryRow
	if err := s.db.Select(&qRows, s.db.Rebind(
		`SELECT name, description, database_name, sql_text, query_type, timeout_seconds, parameters_json
		FROM config_queries`)); err != nil {
		return nil, NewStoreError(StoreErrIO, "load queries", err)
	}
	queries := make(map[string]QuerySpec, len(qRows))
	for _, r := range qRows {
		q, err := r.spec()
		if err != nil {
			return nil, err
		}
		queries[q.Name] = q
	}

	var eRows []endpointRow
	if err := s.db.Select(&eRows, s.db.Rebind(
		`SELECT name, description, path, method, query_name, response_format,
			cache_enabled, cache_ttl_seconds, rate_limit_enabled, rate_limit_requests,
			rate_limit_window_seconds
		FROM config_endpoints`)); err != nil {
		return nil, NewStoreError(StoreErrIO, "load endpoints", err)
	}
	endpoints := make(map[string]EndpointSpec, len(eRows))
	for _, r := range eRows {
		endpoints[r.Name] = r.spec()
	}

	return NewSnapshot(databases, queries, endpoints), nil
}

func (s *SQLStore) exists(table, name string) (bool, error) {
	var n int
	err := s.db.Get(&n, s.db.Rebind(
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE name = ?", table)), name)
	if err != nil {
		return false, NewStoreError(StoreErrIO, "existence check", err)
	}
	return n > 0, nil
}

func (s *SQLStore) count(table string) (int, error) {
	var n int
	if err := s.db.Get(&n, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)); err != nil {
		return 0, NewStoreError(StoreErrIO, "count", err)
	}
	return n, nil
}

func (s *SQLStore) delete(table, name string) (bool, error) {
	res, err := s.db.Exec(s.db.Rebind(
		fmt.Sprintf("DELETE FROM %s WHERE name = ?", table)), name)
	if err != nil {
		return false, NewStoreError(StoreErrIO, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, NewStoreError(StoreErrIO, "delete", err)
	}
	return n > 0, nil
}

// Database operations

func (s *SQLStore) Database(name string) (*DatabaseSpec, error) {
	var r databaseRow
	err := s.db.Get(&r, s.db.Rebind(
		`SELECT name, description, url, username, password, driver_id,
			maximum_pool_size, minimum_idle, connection_timeout_ms, idle_timeout_ms,
			max_lifetime_ms, leak_detection_threshold_ms, connection_test_query
		FROM config_databases WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError(StoreErrNotFound, fmt.Sprintf("database '%s'", name), nil)
	}
	if err != nil {
		return nil, NewStoreError(StoreErrIO, "load database", err)
	}
	spec := r.spec()
	return &spec, nil
}

func (s *SQLStore) PutDatabase(spec DatabaseSpec) error {
	if err := s.validate.Struct(spec); err != nil {
		return NewStoreError(StoreErrInvalid, "database spec", err)
	}
	spec.Pool.ApplyDefaults()

	exists, err := s.DatabaseExists(spec.Name)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if exists {
		_, err = s.db.Exec(s.db.Rebind(
			`UPDATE config_databases SET description = ?, url = ?, username = ?, password = ?,
				driver_id = ?, maximum_pool_size = ?, minimum_idle = ?, connection_timeout_ms = ?,
				idle_timeout_ms = ?, max_lifetime_ms = ?, leak_detection_threshold_ms = ?,
				connection_test_query = ?, updated_at = ?
			WHERE name = ?`),
			spec.Description, spec.URL, spec.Username, spec.Password, spec.DriverID,
			spec.Pool.MaximumPoolSize, spec.Pool.MinimumIdle, spec.Pool.ConnectionTimeoutMs,
			spec.Pool.IdleTimeoutMs, spec.Pool.MaxLifetimeMs, spec.Pool.LeakDetectionThresholdMs,
			spec.Pool.ConnectionTestQuery, now, spec.Name)
	} else {
		_, err = s.db.Exec(s.db.Rebind(
			`INSERT INTO config_databases
				(name, description, url, username, password, driver_id, maximum_pool_size,
				minimum_idle, connection_timeout_ms, idle_timeout_ms, max_lifetime_ms,
				leak_detection_threshold_ms, connection_test_query, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			spec.Name, spec.Description, spec.URL, spec.Username, spec.Password, spec.DriverID,
			spec.Pool.MaximumPoolSize, spec.Pool.MinimumIdle, spec.Pool.ConnectionTimeoutMs,
			spec.Pool.IdleTimeoutMs, spec.Pool.MaxLifetimeMs, spec.Pool.LeakDetectionThresholdMs,
			spec.Pool.ConnectionTestQuery, now, now)
	}
	if err != nil {
		return NewStoreError(StoreErrIO, "write database", err)
	}
	return nil
}

func (s *SQLStore) DeleteDatabase(name string) (bool, error) {
	return s.delete("config_databases", name)
}

func (s *SQLStore) DatabaseExists(name string) (bool, error) {
	return s.exists("config_databases", name)
}

func (s *SQLStore) CountDatabases() (int, error) {
	return s.count("config_databases")
}

// Query operations

func (s *SQLStore) Query(name string) (*QuerySpec, error) {
	var r queryRow
	err := s.db.Get(&r, s.db.Rebind(
		`SELECT name, description, database_name, sql_text, query_type, timeout_seconds, parameters_json
		FROM config_queries WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError(StoreErrNotFound, fmt.Sprintf("query '%s'", name), nil)
	}
	if err != nil {
		return nil, NewStoreError(StoreErrIO, "load query", err)
	}
	q, err := r.spec()
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *SQLStore) PutQuery(spec QuerySpec) error {
	if err := s.validate.Struct(spec); err != nil {
		return NewStoreError(StoreErrInvalid, "query spec", err)
	}
	if spec.QueryType == "" {
		spec.QueryType = QuerySelect
	}
	params, err := json.Marshal(spec.Parameters)
	if err != nil {
		return NewStoreError(StoreErrInvalid, "query parameters", err)
	}

	exists, err := s.QueryExists(spec.Name)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if exists {
		_, err = s.db.Exec(s.db.Rebind(
			`UPDATE config_queries SET description = ?, database_name = ?, sql_text = ?,
				query_type = ?, timeout_seconds = ?, parameters_json = ?, updated_at = ?
			WHERE name = ?`),
			spec.Description, spec.DatabaseName, spec.SQL, string(spec.QueryType),
			spec.TimeoutSeconds, string(params), now, spec.Name)
	} else {
		_, err = s.db.Exec(s.db.Rebind(
			`INSERT INTO config_queries
				(name, description, database_name, sql_text, query_type, timeout_seconds,
				parameters_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			spec.Name, spec.Description, spec.DatabaseName, spec.SQL, string(spec.QueryType),
			spec.TimeoutSeconds, string(params), now, now)
	}
	if err != nil {
		return NewStoreError(StoreErrIO, "write query", err)
	}
	return nil
}

func (s *SQLStore) DeleteQuery(name string) (bool, error) {
	return s.delete("config_queries", name)
}

func (s *SQLStore) QueryExists(name string) (bool, error) {
	return s.exists("config_queries", name)
}

func (s *SQLStore) CountQueries() (int, error) {
	return s.count("config_queries")
}

func (s *SQLStore) QueriesByDatabase(database string) ([]QuerySpec, error) {
	var rows []queryRow
	err := s.db.Select(&rows, s.db.Rebind(
		`SELECT name, description, database_name, sql_text, query_type, timeout_seconds, parameters_json
		FROM config_queries WHERE database_name = ?`), database)
	if err != nil {
		return nil, NewStoreError(StoreErrIO, "load queries by database", err)
	}
	out := make([]QuerySpec, 0, len(rows))
	for _, r := range rows {
		q, err := r.spec()
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *SQLStore) CountQueriesByDatabase(database string) (int, error) {
	var n int
	err := s.db.Get(&n, s.db.Rebind(
		`SELECT COUNT(*) FROM config_queries WHERE database_name = ?`), database)
	if err != nil {
		return 0, NewStoreError(StoreErrIO, "count queries by database", err)
	}
	return n, nil
}

// Endpoint operations

func (s *SQLStore) Endpoint(name string) (*EndpointSpec, error) {
	var r endpointRow
	err := s.db.Get(&r, s.db.Rebind(
		`SELECT name, description, path, method, query_name, response_format,
			cache_enabled, cache_ttl_seconds, rate_limit_enabled, rate_limit_requests,
			rate_limit_window_seconds
		FROM config_endpoints WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError(StoreErrNotFound, fmt.Sprintf("endpoint '%s'", name), nil)
	}
	if err != nil {
		return nil, NewStoreError(StoreErrIO, "load endpoint", err)
	}
	spec := r.spec()
	return &spec, nil
}

func (s *SQLStore) PutEndpoint(spec EndpointSpec) error {
	if err := s.validate.Struct(spec); err != nil {
		return NewStoreError(StoreErrInvalid, "endpoint spec", err)
	}

	var clash int
	err := s.db.Get(&clash, s.db.Rebind(
		`SELECT COUNT(*) FROM config_endpoints WHERE method = ? AND path = ? AND name <> ?`),
		spec.Method, spec.Path, spec.Name)
	if err != nil {
		return NewStoreError(StoreErrIO, "route uniqueness check", err)
	}
	if clash > 0 {
		return NewStoreError(StoreErrConflict,
			fmt.Sprintf("another endpoint already binds %s %s", spec.Method, spec.Path), nil)
	}

	exists, err := s.EndpointExists(spec.Name)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if exists {
		_, err = s.db.Exec(s.db.Rebind(
			`UPDATE config_endpoints SET description = ?, path = ?, method = ?, query_name = ?,
				response_format = ?, cache_enabled = ?, cache_ttl_seconds = ?,
				rate_limit_enabled = ?, rate_limit_requests = ?, rate_limit_window_seconds = ?,
				updated_at = ?
			WHERE name = ?`),
			spec.Description, spec.Path, spec.Method, spec.QueryName, spec.ResponseFormat,
			spec.CacheEnabled, spec.CacheTTLSeconds, spec.RateLimitEnabled,
			spec.RateLimitRequests, spec.RateLimitWindowSeconds, now, spec.Name)
	} else {
		_, err = s.db.Exec(s.db.Rebind(
			`INSERT INTO config_endpoints
				(name, description, path, method, query_name, response_format, cache_enabled,
				cache_ttl_seconds, rate_limit_enabled, rate_limit_requests,
				rate_limit_window_seconds, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			spec.Name, spec.Description, spec.Path, spec.Method, spec.QueryName,
			spec.ResponseFormat, spec.CacheEnabled, spec.CacheTTLSeconds,
			spec.RateLimitEnabled, spec.RateLimitRequests, spec.RateLimitWindowSeconds, now, now)
	}
	if err != nil {
		return NewStoreError(StoreErrIO, "write endpoint", err)
	}
	return nil
}

func (s *SQLStore) DeleteEndpoint(name string) (bool, error) {
	return s.delete("config_endpoints", name)
}

func (s *SQLStore) EndpointExists(name string) (bool, error) {
	return s.exists("config_endpoints", name)
}

func (s *SQLStore) CountEndpoints() (int, error) {
	return s.count("config_endpoints")
}

func (s *SQLStore) EndpointsByQuery(query string) ([]EndpointSpec, error) {
	var rows []endpointRow
	err := s.db.Select(&rows, s.db.Rebind(
		`SELECT name, description, path, method, query_name, response_format,
			cache_enabled, cache_ttl_seconds, rate_limit_enabled, rate_limit_requests,
			rate_limit_window_seconds
		FROM config_endpoints WHERE query_name = ?`), query)
	if err != nil {
		return nil, NewStoreError(StoreErrIO, "load endpoints by query", err)
	}
	out := make([]EndpointSpec, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.spec())
	}
	return out, nil
}

func (s *SQLStore) CountEndpointsByQuery(query string) (int, error) {
	var n int
	err := s.db.Get(&n, s.db.Rebind(
		`SELECT COUNT(*) FROM config_endpoints WHERE query_name = ?`), query)
	if err != nil {
		return 0, NewStoreError(StoreErrIO, "count endpoints by query", err)
	}
	return n, nil
}

// Close releases the underlying handle.
func (s *SQLStore) Close() error { return s.db.Close() }
