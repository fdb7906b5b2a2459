package dispatch

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/internal/database"
	apperrors "querygate/pkg/errors"
)

// newTestManager seeds a sqlite database and builds a manager over it.
func newTestManager(t *testing.T, queries map[string]catalog.QuerySpec) *database.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exec.db")
	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, active BOOLEAN)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (id, name, active) VALUES (1, 'ada', 1), (2, 'grace', 1), (3, NULL, 0)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	snap := catalog.NewSnapshot(
		map[string]catalog.DatabaseSpec{
			"maindb": {Name: "maindb", URL: path, DriverID: "sqlite3"},
		},
		queries,
		nil,
	)

	m := database.NewManager(zap.NewNop())
	t.Cleanup(m.Close)
	m.Build(context.Background(), snap)
	require.True(t, m.Available("maindb"), "test database must build")
	return m
}

func TestExecutorSelectPreservesColumnOrder(t *testing.T) {
	q := catalog.QuerySpec{
		Name: "get-user", DatabaseName: "maindb",
		SQL: "SELECT name, id FROM users WHERE id = ?",
	}
	m := newTestManager(t, map[string]catalog.QuerySpec{"get-user": q})
	ex := NewExecutor(m, zap.NewNop())

	rows, err := ex.Execute(context.Background(), q, []interface{}{int64(1)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"name", "id"}, rows[0].Columns)

	data, err := json.Marshal(rows[0])
	require.NoError(t, err)
	assert.Equal(t, `{"name":"ada","id":1}`, string(data))
}

func TestExecutorNullBecomesJSONNull(t *testing.T) {
	q := catalog.QuerySpec{
		Name: "get-user", DatabaseName: "maindb",
		SQL: "SELECT id, name FROM users WHERE id = ?",
	}
	m := newTestManager(t, map[string]catalog.QuerySpec{"get-user": q})
	ex := NewExecutor(m, zap.NewNop())

	rows, err := ex.Execute(context.Background(), q, []interface{}{int64(3)})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	data, err := json.Marshal(rows[0])
	require.NoError(t, err)
	assert.Equal(t, `{"id":3,"name":null}`, string(data))
}

func TestExecutorUpdateReturnsRowsAffected(t *testing.T) {
	q := catalog.QuerySpec{
		Name: "deactivate", DatabaseName: "maindb",
		SQL: "UPDATE users SET active = 0 WHERE active = 1", QueryType: catalog.QueryUpdate,
	}
	m := newTestManager(t, map[string]catalog.QuerySpec{"deactivate": q})
	ex := NewExecutor(m, zap.NewNop())

	rows, err := ex.Execute(context.Background(), q, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	v, ok := rows[0].Value("rowsAffected")
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
}

func TestExecuteCount(t *testing.T) {
	good := catalog.QuerySpec{
		Name: "count-users", DatabaseName: "maindb",
		SQL: "SELECT COUNT(*) FROM users",
	}
	bad := catalog.QuerySpec{
		Name: "bad-count", DatabaseName: "maindb",
		SQL: "SELECT name FROM users WHERE id = 1",
	}
	m := newTestManager(t, map[string]catalog.QuerySpec{"count-users": good, "bad-count": bad})
	ex := NewExecutor(m, zap.NewNop())

	n, err := ex.ExecuteCount(context.Background(), good, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = ex.ExecuteCount(context.Background(), bad, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
}

func TestExecutorUnavailableDatabase(t *testing.T) {
	q := catalog.QuerySpec{Name: "q", DatabaseName: "ghost", SQL: "SELECT 1"}
	m := database.NewManager(zap.NewNop())
	t.Cleanup(m.Close)
	ex := NewExecutor(m, zap.NewNop())

	_, err := ex.Execute(context.Background(), q, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
}

func TestExecutorSQLErrorIsInternal(t *testing.T) {
	q := catalog.QuerySpec{
		Name: "broken", DatabaseName: "maindb",
		SQL: "SELECT definitely_not_a_column FROM users",
	}
	// Keep the catalogue free of the broken query so table probes pass.
	m := newTestManager(t, map[string]catalog.QuerySpec{
		"list": {Name: "list", DatabaseName: "maindb", SQL: "SELECT id FROM users"},
	})
	ex := NewExecutor(m, zap.NewNop())

	_, err := ex.Execute(context.Background(), q, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
}
