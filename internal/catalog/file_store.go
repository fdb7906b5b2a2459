package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// catalogueDocument is the on-disk YAML layout: one document carrying the
// three catalogues as lists.
type catalogueDocument struct {
	Databases []DatabaseSpec `yaml:"databases"`
	Queries   []QuerySpec    `yaml:"queries"`
	Endpoints []EndpointSpec `yaml:"endpoints"`
}

// FileStore keeps the catalogues in memory, loaded from a YAML document at
// startup. Writes are journalled back to disk with an atomic rename.
type FileStore struct {
	path     string
	validate *validator.Validate

	mu        sync.RWMutex
	databases map[string]DatabaseSpec
	queries   map[string]QuerySpec
	endpoints map[string]EndpointSpec
}

// NewFileStore loads the catalogue document at path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:      path,
		validate:  validator.New(),
		databases: map[string]DatabaseSpec{},
		queries:   map[string]QuerySpec{},
		endpoints: map[string]EndpointSpec{},
	}
	if err := fs.reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) reload() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return NewStoreError(StoreErrIO, fmt.Sprintf("read catalogue file %s", fs.path), err)
	}

	// Strict decoding: a misspelled key is a broken catalogue, not a no-op.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc catalogueDocument
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return NewStoreError(StoreErrInvalid, "parse catalogue file", err)
	}

	databases := make(map[string]DatabaseSpec, len(doc.Databases))
	for _, d := range doc.Databases {
		if _, dup := databases[d.Name]; dup {
			return NewStoreError(StoreErrConflict, fmt.Sprintf("duplicate database '%s'", d.Name), nil)
		}
		d.Pool.ApplyDefaults()
		databases[d.Name] = d
	}

	queries := make(map[string]QuerySpec, len(doc.Queries))
	for _, q := range doc.Queries {
		if _, dup := queries[q.Name]; dup {
			return NewStoreError(StoreErrConflict, fmt.Sprintf("duplicate query '%s'", q.Name), nil)
		}
		if q.QueryType == "" {
			q.QueryType = QuerySelect
		}
		queries[q.Name] = q
	}

	endpoints := make(map[string]EndpointSpec, len(doc.Endpoints))
	for _, e := range doc.Endpoints {
		if _, dup := endpoints[e.Name]; dup {
			return NewStoreError(StoreErrConflict, fmt.Sprintf("duplicate endpoint '%s'", e.Name), nil)
		}
		endpoints[e.Name] = e
	}

	fs.mu.Lock()
	fs.databases = databases
	fs.queries = queries
	fs.endpoints = endpoints
	fs.mu.Unlock()
	return nil
}

// Reload re-reads the catalogue document from disk.
func (fs *FileStore) Reload() error { return fs.reload() }

// Path returns the backing file path.
func (fs *FileStore) Path() string { return fs.path }

// flush journals the in-memory catalogues back to disk. Caller holds the
// write lock.
func (fs *FileStore) flush() error {
	doc := catalogueDocument{}
	for _, d := range fs.databases {
		doc.Databases = append(doc.Databases, d)
	}
	for _, q := range fs.queries {
		doc.Queries = append(doc.Queries, q)
	}
	for _, e := range fs.endpoints {
		doc.Endpoints = append(doc.Endpoints, e)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return NewStoreError(StoreErrIO, "marshal catalogue", err)
	}

	// Atomic save: temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".catalogue-*.yaml")
	if err != nil {
		return NewStoreError(StoreErrIO, "create temp catalogue file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return NewStoreError(StoreErrIO, "write temp catalogue file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return NewStoreError(StoreErrIO, "close temp catalogue file", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		os.Remove(tmpPath)
		return NewStoreError(StoreErrIO, "replace catalogue file", err)
	}
	return nil
}

// LoadAll materialises the three catalogues in one snapshot.
func (fs *FileStore) LoadAll() (*Snapshot, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	databases := make(map[string]DatabaseSpec, len(fs.databases))
	for k, v := range fs.databases {
		databases[k] = v
	}
	queries := make(map[string]QuerySpec, len(fs.queries))
	for k, v := range fs.queries {
		queries[k] = v
	}
	endpoints := make(map[string]EndpointSpec, len(fs.endpoints))
	for k, v := range fs.endpoints {
		endpoints[k] = v
	}
	return NewSnapshot(databases, queries, endpoints), nil
}

// Database operations

func (fs *FileStore) Database(name string) (*DatabaseSpec, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	d, ok := fs.databases[name]
	if !ok {
		return nil, NewStoreError(StoreErrNotFound, fmt.Sprintf("database '%s'", name), nil)
	}
	return &d, nil
}

func (fs *FileStore) PutDatabase(spec DatabaseSpec) error {
	if err := fs.validate.Struct(spec); err != nil {
		return NewStoreError(StoreErrInvalid, "database spec", err)
	}
	spec.Pool.ApplyDefaults()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.databases[spec.Name] = spec
	return fs.flush()
}

func (fs *FileStore) DeleteDatabase(name string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.databases[name]; !ok {
		return false, nil
	}
	delete(fs.databases, name)
	return true, fs.flush()
}

func (fs *FileStore) DatabaseExists(name string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.databases[name]
	return ok, nil
}

func (fs *FileStore) CountDatabases() (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.databases), nil
}

// Query operations

func (fs *FileStore) Query(name string) (*QuerySpec, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	q, ok := fs.queries[name]
	if !ok {
		return nil, NewStoreError(StoreErrNotFound, fmt.Sprintf("query '%s'", name), nil)
	}
	return &q, nil
}

func (fs *FileStore) PutQuery(spec QuerySpec) error {
	if err := fs.validate.Struct(spec); err != nil {
		return NewStoreError(StoreErrInvalid, "query spec", err)
	}
	if spec.QueryType == "" {
		spec.QueryType = QuerySelect
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.queries[spec.Name] = spec
	return fs.flush()
}

func (fs *FileStore) DeleteQuery(name string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.queries[name]; !ok {
		return false, nil
	}
	delete(fs.queries, name)
	return true, fs.flush()
}

func (fs *FileStore) QueryExists(name string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.queries[name]
	return ok, nil
}

func (fs *FileStore) CountQueries() (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.queries), nil
}

func (fs *FileStore) QueriesByDatabase(database string) ([]QuerySpec, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var out []QuerySpec
	for _, q := range fs.queries {
		if q.DatabaseName == database {
			out = append(out, q)
		}
	}
	return out, nil
}

func (fs *FileStore) CountQueriesByDatabase(database string) (int, error) {
	qs, err := fs.QueriesByDatabase(database)
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}

// Endpoint operations

func (fs *FileStore) Endpoint(name string) (*EndpointSpec, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	e, ok := fs.endpoints[name]
	if !ok {
		return nil, NewStoreError(StoreErrNotFound, fmt.Sprintf("endpoint '%s'", name), nil)
	}
	return &e, nil
}

func (fs *FileStore) PutEndpoint(spec EndpointSpec) error {
	if err := fs.validate.Struct(spec); err != nil {
		return NewStoreError(StoreErrInvalid, "endpoint spec", err)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, other := range fs.endpoints {
		if other.Name != spec.Name && other.Method == spec.Method && other.Path == spec.Path {
			return NewStoreError(StoreErrConflict,
				fmt.Sprintf("endpoint '%s' already binds %s %s", other.Name, spec.Method, spec.Path), nil)
		}
	}
	fs.endpoints[spec.Name] = spec
	return fs.flush()
}

func (fs *FileStore) DeleteEndpoint(name string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.endpoints[name]; !ok {
		return false, nil
	}
	delete(fs.endpoints, name)
	return true, fs.flush()
}

func (fs *FileStore) EndpointExists(name string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.endpoints[name]
	return ok, nil
}

func (fs *FileStore) CountEndpoints() (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.endpoints), nil
}

func (fs *FileStore) EndpointsByQuery(query string) ([]EndpointSpec, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var out []EndpointSpec
	for _, e := range fs.endpoints {
		if e.QueryName == query {
			out = append(out, e)
		}
	}
	return out, nil
}

func (fs *FileStore) CountEndpointsByQuery(query string) (int, error) {
	es, err := fs.EndpointsByQuery(query)
	if err != nil {
		return 0, err
	}
	return len(es), nil
}

// Close is a no-op for the file provider.
func (fs *FileStore) Close() error { return nil }
