package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalogue = `
databases:
  - name: usersdb
    url: "postgres://localhost:5432/users"
    username: app
    password: secret
    driverId: postgres
queries:
  - name: get-user
    databaseName: usersdb
    sql: "SELECT id, name FROM users WHERE id = ?"
    parameters:
      - name: id
        type: LONG
        required: true
        position: 1
  - name: list-users
    databaseName: usersdb
    sql: "SELECT id, name FROM users"
endpoints:
  - name: get-user
    path: /api/users/{id}
    method: GET
    queryName: get-user
`

func writeCatalogue(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileStoreLoad(t *testing.T) {
	fs, err := NewFileStore(writeCatalogue(t, sampleCatalogue))
	require.NoError(t, err)

	snap, err := fs.LoadAll()
	require.NoError(t, err)
	assert.Len(t, snap.Databases, 1)
	assert.Len(t, snap.Queries, 2)
	assert.Len(t, snap.Endpoints, 1)

	db, ok := snap.Database("usersdb")
	require.True(t, ok)
	// Omitted pool settings pick up defaults.
	assert.Equal(t, 10, db.Pool.MaximumPoolSize)
	assert.Equal(t, "SELECT 1", db.Pool.ConnectionTestQuery)

	q, ok := snap.Query("list-users")
	require.True(t, ok)
	assert.Equal(t, QuerySelect, q.QueryType)
}

func TestFileStoreDuplicateNames(t *testing.T) {
	doc := sampleCatalogue + `
  - name: get-user
    path: /api/other
    method: GET
    queryName: get-user
`
	_, err := NewFileStore(writeCatalogue(t, doc))
	require.Error(t, err)
	assert.True(t, IsStoreErrorKind(err, StoreErrConflict))
}

func TestFileStoreRejectsUnknownKeys(t *testing.T) {
	doc := `
databases:
  - name: maindb
    url: localhost
    driverId: sqlite3
    pool:
      validationTimeoutMs: 60000
`
	_, err := NewFileStore(writeCatalogue(t, doc))
	require.Error(t, err)
	assert.True(t, IsStoreErrorKind(err, StoreErrInvalid))
	assert.Contains(t, err.Error(), "validationTimeoutMs")
}

func TestFileStoreMissingFile(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, IsStoreErrorKind(err, StoreErrIO))
}

func TestFileStoreNotFoundLookups(t *testing.T) {
	fs, err := NewFileStore(writeCatalogue(t, sampleCatalogue))
	require.NoError(t, err)

	_, err = fs.Database("ghost")
	assert.True(t, IsStoreErrorKind(err, StoreErrNotFound))
	_, err = fs.Query("ghost")
	assert.True(t, IsStoreErrorKind(err, StoreErrNotFound))
	_, err = fs.Endpoint("ghost")
	assert.True(t, IsStoreErrorKind(err, StoreErrNotFound))
}

func TestFileStoreRouteConflict(t *testing.T) {
	fs, err := NewFileStore(writeCatalogue(t, sampleCatalogue))
	require.NoError(t, err)

	err = fs.PutEndpoint(EndpointSpec{
		Name:      "shadow",
		Path:      "/api/users/{id}",
		Method:    "GET",
		QueryName: "get-user",
	})
	require.Error(t, err)
	assert.True(t, IsStoreErrorKind(err, StoreErrConflict))

	// Re-saving the same endpoint under its own name is fine.
	err = fs.PutEndpoint(EndpointSpec{
		Name:      "get-user",
		Path:      "/api/users/{id}",
		Method:    "GET",
		QueryName: "get-user",
	})
	assert.NoError(t, err)
}

func TestFileStoreInvalidSpecRejected(t *testing.T) {
	fs, err := NewFileStore(writeCatalogue(t, sampleCatalogue))
	require.NoError(t, err)

	err = fs.PutQuery(QuerySpec{Name: "broken"})
	require.Error(t, err)
	assert.True(t, IsStoreErrorKind(err, StoreErrInvalid))
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := writeCatalogue(t, sampleCatalogue)
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, fs.PutQuery(QuerySpec{
		Name:         "count-users",
		DatabaseName: "usersdb",
		SQL:          "SELECT COUNT(*) FROM users",
	}))
	deleted, err := fs.DeleteEndpoint("get-user")
	require.NoError(t, err)
	assert.True(t, deleted)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	n, err := reopened.CountQueries()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = reopened.CountEndpoints()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFileStoreRelationshipLookups(t *testing.T) {
	fs, err := NewFileStore(writeCatalogue(t, sampleCatalogue))
	require.NoError(t, err)

	qs, err := fs.QueriesByDatabase("usersdb")
	require.NoError(t, err)
	assert.Len(t, qs, 2)

	n, err := fs.CountEndpointsByQuery("get-user")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = fs.CountQueriesByDatabase("ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
