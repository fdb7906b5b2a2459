package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/internal/database"
	apperrors "querygate/pkg/errors"
)

// defaultQueryTimeout applies when a query declares no timeout.
const defaultQueryTimeout = 30 * time.Second

// Row is one result record with driver column order preserved. It encodes
// to a JSON object whose keys appear in column order; NULL becomes an
// explicit null.
type Row struct {
	Columns []string
	Values  []interface{}
}

// MarshalJSON writes the row as an ordered JSON object.
func (r Row) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, col := range r.Columns {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// Value returns the value of the named column.
func (r Row) Value(column string) (interface{}, bool) {
	for i, col := range r.Columns {
		if col == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Executor runs query specs against the connection manager's pools.
type Executor struct {
	manager *database.Manager
	logger  *zap.Logger
}

// NewExecutor creates an executor backed by the given connection manager.
func NewExecutor(manager *database.Manager, logger *zap.Logger) *Executor {
	return &Executor{manager: manager, logger: logger}
}

// Execute runs the query with the positional binds, materialising rows in
// driver column order. UPDATE-type queries return a single rowsAffected
// record.
func (e *Executor) Execute(ctx context.Context, q catalog.QuerySpec, binds []interface{}) ([]Row, error) {
	conn, err := e.manager.Acquire(ctx, q.DatabaseName)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	sqlText, err := e.manager.Rebind(q.DatabaseName, q.SQL)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout(q))
	defer cancel()

	start := time.Now()
	defer func() {
		e.logger.Debug("query executed",
			zap.String("query", q.Name),
			zap.String("database", q.DatabaseName),
			zap.Duration("duration", time.Since(start)))
	}()

	if q.QueryType == catalog.QueryUpdate {
		res, err := conn.ExecContext(queryCtx, sqlText, binds...)
		if err != nil {
			return nil, apperrors.NewInternal("query execution failed").WithCause(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return []Row{{Columns: []string{"rowsAffected"}, Values: []interface{}{affected}}}, nil
	}

	rows, err := conn.QueryContext(queryCtx, sqlText, binds...)
	if err != nil {
		return nil, apperrors.NewInternal("query execution failed").WithCause(err)
	}
	defer rows.Close()

	return materialize(rows)
}

// ExecuteCount runs the query and reads the first column of the first row
// as a non-negative integer. Any other shape is an internal error.
func (e *Executor) ExecuteCount(ctx context.Context, q catalog.QuerySpec, binds []interface{}) (int64, error) {
	rows, err := e.Execute(ctx, q, binds)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0].Values) == 0 {
		return 0, apperrors.NewInternal("bad count query: empty result")
	}

	n, err := asCount(rows[0].Values[0])
	if err != nil || n < 0 {
		return 0, apperrors.NewInternal("bad count query: first column is not a non-negative integer")
	}
	return n, nil
}

func queryTimeout(q catalog.QuerySpec) time.Duration {
	if q.TimeoutSeconds > 0 {
		return time.Duration(q.TimeoutSeconds) * time.Second
	}
	return defaultQueryTimeout
}

// materialize drains the result set into ordered rows.
func materialize(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewInternal("read result columns").WithCause(err)
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scans := make([]interface{}, len(columns))
		for i := range values {
			scans[i] = &values[i]
		}
		if err := rows.Scan(scans...); err != nil {
			return nil, apperrors.NewInternal("scan result row").WithCause(err)
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		out = append(out, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal("iterate result set").WithCause(err)
	}
	return out, nil
}

// normalize maps driver values onto JSON-friendly Go types. NULL stays nil.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return v
	}
}

func asCount(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	case nil:
		return 0, apperrors.NewInternal("null count")
	default:
		return 0, apperrors.NewInternal("non-numeric count")
	}
}
