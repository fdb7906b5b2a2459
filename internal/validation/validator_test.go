package validation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/internal/database"

	_ "github.com/mattn/go-sqlite3"
)

func validSnapshot() *catalog.Snapshot {
	return catalog.NewSnapshot(
		map[string]catalog.DatabaseSpec{
			"maindb": {Name: "maindb", URL: "db.sqlite", DriverID: "sqlite3"},
		},
		map[string]catalog.QuerySpec{
			"get-user": {
				Name: "get-user", DatabaseName: "maindb",
				SQL: "SELECT id, name FROM users WHERE id = ?",
				Parameters: []catalog.QueryParamSpec{
					{Name: "id", Type: catalog.ParamLong, Required: true, Position: 1},
				},
			},
		},
		map[string]catalog.EndpointSpec{
			"get-user": {
				Name: "get-user", Path: "/api/users/{id}", Method: "GET", QueryName: "get-user",
			},
		},
	)
}

func TestValidateCataloguePasses(t *testing.T) {
	v := New(nil, zap.NewNop())
	report := v.ValidateCatalogue(validSnapshot())
	assert.True(t, report.OK(), "errors: %v", report.Errors)
	assert.NotEmpty(t, report.Successes)
}

func TestValidatePlaceholderArity(t *testing.T) {
	snap := validSnapshot()
	q := snap.Queries["get-user"]
	q.SQL = "SELECT id FROM users WHERE id = ? AND name = ?"
	snap.Queries["get-user"] = q

	v := New(nil, zap.NewNop())
	report := v.ValidateQueries(snap)
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0], "2 placeholder(s) but 1 parameter(s)")
}

func TestValidateParameterPositions(t *testing.T) {
	snap := validSnapshot()
	q := snap.Queries["get-user"]
	q.SQL = "SELECT id FROM users WHERE id = ? AND name = ?"
	q.Parameters = []catalog.QueryParamSpec{
		{Name: "id", Type: catalog.ParamLong, Position: 1},
		{Name: "name", Type: catalog.ParamString, Position: 1},
	}
	snap.Queries["get-user"] = q

	v := New(nil, zap.NewNop())
	report := v.ValidateQueries(snap)
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0], "position")
}

func TestValidateUnknownReferences(t *testing.T) {
	snap := validSnapshot()
	e := snap.Endpoints["get-user"]
	e.QueryName = "ghost-query"
	e.CountQueryName = "ghost-count"
	snap.Endpoints["get-user"] = e

	q := snap.Queries["get-user"]
	q.DatabaseName = "ghost-db"
	snap.Queries["get-user"] = q

	v := New(nil, zap.NewNop())
	report := v.ValidateRelationships(snap)
	require.Len(t, report.Errors, 3)
	assert.Contains(t, report.Errors[0], "unknown query 'ghost-query'")
	assert.Contains(t, report.Errors[1], "unknown count query 'ghost-count'")
	assert.Contains(t, report.Errors[2], "unknown database 'ghost-db'")
}

func TestValidateDuplicateRoutes(t *testing.T) {
	snap := validSnapshot()
	snap.Endpoints["shadow"] = catalog.EndpointSpec{
		Name: "shadow", Path: "/api/users/{id}", Method: "GET", QueryName: "get-user",
	}

	v := New(nil, zap.NewNop())
	report := v.ValidateEndpoints(snap)
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0], "already bound")
}

func TestValidateDatabasePool(t *testing.T) {
	snap := validSnapshot()
	d := snap.Databases["maindb"]
	d.Pool.MaximumPoolSize = 1
	d.Pool.MinimumIdle = 5
	snap.Databases["maindb"] = d

	v := New(nil, zap.NewNop())
	report := v.ValidateDatabases(snap)
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0], "maximumPoolSize >= minimumIdle")
}

func TestValidatePaginationBounds(t *testing.T) {
	snap := validSnapshot()
	e := snap.Endpoints["get-user"]
	e.Pagination = &catalog.PaginationSpec{Enabled: true, DefaultSize: 50, MaxSize: 20}
	snap.Endpoints["get-user"] = e

	v := New(nil, zap.NewNop())
	report := v.ValidateEndpoints(snap)
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0], "pagination")
}

func TestValidateSchemaAgainstLiveDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.db")
	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	snap := catalog.NewSnapshot(
		map[string]catalog.DatabaseSpec{
			"maindb": {Name: "maindb", URL: path, DriverID: "sqlite3"},
		},
		map[string]catalog.QuerySpec{
			"good": {
				Name: "good", DatabaseName: "maindb",
				SQL: "SELECT id, name FROM users WHERE id = ?",
			},
			"bad-column": {
				Name: "bad-column", DatabaseName: "maindb",
				SQL: "SELECT id, email FROM users",
			},
		},
		nil,
	)

	m := database.NewManager(zap.NewNop())
	t.Cleanup(m.Close)
	m.Build(context.Background(), snap)
	require.True(t, m.Available("maindb"))

	v := New(m, zap.NewNop())
	report := v.ValidateSchema(context.Background(), snap)

	require.False(t, report.OK())
	assert.Contains(t, report.Successes, "database 'maindb': table 'users' exists")
	assert.Contains(t, report.Successes, "query 'good': column 'id' exists")
	assert.Contains(t, report.Errors, "query 'bad-column': column 'email' not found in referenced tables")
}

func TestValidatorStateProgression(t *testing.T) {
	v := New(nil, zap.NewNop())
	assert.Equal(t, StateIdle, v.State())

	phaseA, phaseB := v.Run(context.Background(), validSnapshot())
	assert.True(t, phaseA.OK())
	assert.True(t, phaseB.OK())
	assert.Equal(t, StateDoneOK, v.State())

	broken := validSnapshot()
	q := broken.Queries["get-user"]
	q.DatabaseName = "ghost"
	broken.Queries["get-user"] = q

	_, _ = v.Run(context.Background(), broken)
	assert.Equal(t, StateDoneFail, v.State())
}
