package catalog

import "sync/atomic"

// Snapshot is an immutable view of the three catalogues. Readers hold a
// snapshot for the lifetime of a request; writers build a new one and swap
// the holder's pointer.
type Snapshot struct {
	Databases map[string]DatabaseSpec `json:"databases"`
	Queries   map[string]QuerySpec    `json:"queries"`
	Endpoints map[string]EndpointSpec `json:"endpoints"`
}

// NewSnapshot builds a snapshot, defaulting any missing maps and filling
// pool defaults on every database.
func NewSnapshot(databases map[string]DatabaseSpec, queries map[string]QuerySpec, endpoints map[string]EndpointSpec) *Snapshot {
	if databases == nil {
		databases = map[string]DatabaseSpec{}
	}
	if queries == nil {
		queries = map[string]QuerySpec{}
	}
	if endpoints == nil {
		endpoints = map[string]EndpointSpec{}
	}
	for name, db := range databases {
		db.Pool.ApplyDefaults()
		databases[name] = db
	}
	return &Snapshot{Databases: databases, Queries: queries, Endpoints: endpoints}
}

// Database looks up a database spec by name.
func (s *Snapshot) Database(name string) (DatabaseSpec, bool) {
	d, ok := s.Databases[name]
	return d, ok
}

// Query looks up a query spec by name.
func (s *Snapshot) Query(name string) (QuerySpec, bool) {
	q, ok := s.Queries[name]
	return q, ok
}

// Endpoint looks up an endpoint spec by name.
func (s *Snapshot) Endpoint(name string) (EndpointSpec, bool) {
	e, ok := s.Endpoints[name]
	return e, ok
}

// QueriesForDatabase returns every query targeting the named database.
func (s *Snapshot) QueriesForDatabase(database string) []QuerySpec {
	var out []QuerySpec
	for _, q := range s.Queries {
		if q.DatabaseName == database {
			out = append(out, q)
		}
	}
	return out
}

// Holder is the atomically replaced pointer to the current snapshot.
type Holder struct {
	v atomic.Pointer[Snapshot]
}

// NewHolder creates a holder seeded with the given snapshot.
func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	h.v.Store(s)
	return h
}

// Current returns the snapshot as of now. Never nil after construction.
func (h *Holder) Current() *Snapshot {
	return h.v.Load()
}

// Swap installs a new snapshot. In-flight requests keep the old one.
func (h *Holder) Swap(s *Snapshot) {
	h.v.Store(s)
}
