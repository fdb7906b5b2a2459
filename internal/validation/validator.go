package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/internal/database"
)

// Report is the outcome of one validation phase.
type Report struct {
	Successes []string `json:"successes"`
	Errors    []string `json:"errors"`
}

// OK reports whether the phase found no errors.
func (r *Report) OK() bool { return len(r.Errors) == 0 }

func (r *Report) successf(format string, args ...interface{}) {
	r.Successes = append(r.Successes, fmt.Sprintf(format, args...))
}

func (r *Report) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Merge appends another report's lines.
func (r *Report) Merge(other *Report) {
	r.Successes = append(r.Successes, other.Successes...)
	r.Errors = append(r.Errors, other.Errors...)
}

// State is the validator's position in its single-pass lifecycle.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunningA State = "RUNNING_A"
	StateRunningB State = "RUNNING_B"
	StateDoneOK   State = "DONE_OK"
	StateDoneFail State = "DONE_FAIL"
)

// Validator checks catalogue integrity against itself (Phase A) and against
// live database schemas (Phase B). A validator runs one pass at a time; no
// internal concurrency.
type Validator struct {
	manager  *database.Manager
	validate *validator.Validate
	logger   *zap.Logger
	state    State
}

// New creates a validator. The manager may be nil when only Phase A runs.
func New(manager *database.Manager, logger *zap.Logger) *Validator {
	return &Validator{
		manager:  manager,
		validate: validator.New(),
		logger:   logger,
		state:    StateIdle,
	}
}

// State returns the validator's current lifecycle state.
func (v *Validator) State() State { return v.state }

// Run executes Phase A then Phase B in fixed order and returns both
// reports. Phase B still runs when Phase A fails so operators see the full
// picture in one pass.
func (v *Validator) Run(ctx context.Context, snap *catalog.Snapshot) (*Report, *Report) {
	v.state = StateRunningA
	phaseA := v.ValidateCatalogue(snap)

	v.state = StateRunningB
	phaseB := v.ValidateSchema(ctx, snap)

	if phaseA.OK() && phaseB.OK() {
		v.state = StateDoneOK
	} else {
		v.state = StateDoneFail
	}

	for _, line := range append(append([]string{}, phaseA.Successes...), phaseB.Successes...) {
		v.logger.Info("validation passed", zap.String("check", line))
	}
	for _, line := range append(append([]string{}, phaseA.Errors...), phaseB.Errors...) {
		v.logger.Error("validation failed", zap.String("check", line))
	}

	return phaseA, phaseB
}

// ValidateCatalogue is Phase A: referential integrity across the three
// catalogues and per-entry structural checks.
func (v *Validator) ValidateCatalogue(snap *catalog.Snapshot) *Report {
	report := &Report{}
	report.Merge(v.ValidateDatabases(snap))
	report.Merge(v.ValidateQueries(snap))
	report.Merge(v.ValidateEndpoints(snap))
	report.Merge(v.ValidateRelationships(snap))
	return report
}

// ValidateDatabases checks each database spec in isolation.
func (v *Validator) ValidateDatabases(snap *catalog.Snapshot) *Report {
	report := &Report{}
	for _, name := range sortedKeys(snap.Databases) {
		d := snap.Databases[name]
		ok := true
		if d.DriverID == "" {
			report.errorf("database '%s': driverId is empty", name)
			ok = false
		}
		if d.URL == "" {
			report.errorf("database '%s': url is empty", name)
			ok = false
		}
		if d.Pool.MaximumPoolSize < d.Pool.MinimumIdle || d.Pool.MinimumIdle < 0 {
			report.errorf("database '%s': pool requires maximumPoolSize >= minimumIdle >= 0 (got %d/%d)",
				name, d.Pool.MaximumPoolSize, d.Pool.MinimumIdle)
			ok = false
		}
		if d.Pool.ConnectionTimeoutMs <= 0 || d.Pool.IdleTimeoutMs <= 0 || d.Pool.MaxLifetimeMs <= 0 {
			report.errorf("database '%s': pool timeouts must be strictly positive", name)
			ok = false
		}
		if d.Pool.ConnectionTestQuery == "" {
			report.errorf("database '%s': connectionTestQuery is empty", name)
			ok = false
		}
		if err := v.validate.Struct(d); err != nil {
			report.errorf("database '%s': %v", name, err)
			ok = false
		}
		if ok {
			report.successf("database '%s' is well-formed", name)
		}
	}
	return report
}

// ValidateQueries checks placeholder arity and parameter positions.
func (v *Validator) ValidateQueries(snap *catalog.Snapshot) *Report {
	report := &Report{}
	for _, name := range sortedKeys(snap.Queries) {
		q := snap.Queries[name]
		ok := true

		placeholders := strings.Count(q.SQL, "?")
		if placeholders != len(q.Parameters) {
			report.errorf("query '%s': %d placeholder(s) but %d parameter(s) declared",
				name, placeholders, len(q.Parameters))
			ok = false
		}

		positions := map[int]string{}
		for i, p := range q.Parameters {
			if p.Position != i+1 {
				report.errorf("query '%s': parameter '%s' declares position %d, expected %d",
					name, p.Name, p.Position, i+1)
				ok = false
			}
			if prev, dup := positions[p.Position]; dup {
				report.errorf("query '%s': parameters '%s' and '%s' share position %d",
					name, prev, p.Name, p.Position)
				ok = false
			}
			positions[p.Position] = p.Name
		}

		if ok {
			report.successf("query '%s' is well-formed", name)
		}
	}
	return report
}

// ValidateEndpoints checks per-endpoint structure and route uniqueness.
func (v *Validator) ValidateEndpoints(snap *catalog.Snapshot) *Report {
	report := &Report{}
	routes := map[string]string{}
	for _, name := range sortedKeys(snap.Endpoints) {
		e := snap.Endpoints[name]
		ok := true
		if e.Path == "" || e.Method == "" {
			report.errorf("endpoint '%s': path and method are required", name)
			ok = false
		}
		route := e.Method + " " + e.Path
		if prev, dup := routes[route]; dup {
			report.errorf("endpoint '%s': route %s already bound by endpoint '%s'", name, route, prev)
			ok = false
		}
		routes[route] = name
		if e.Paginated() {
			p := e.Pagination
			if p.DefaultSize <= 0 || p.DefaultSize > p.MaxSize || p.MaxSize > 10000 {
				report.errorf("endpoint '%s': pagination requires 0 < defaultSize <= maxSize <= 10000 (got %d/%d)",
					name, p.DefaultSize, p.MaxSize)
				ok = false
			}
		}
		if ok {
			report.successf("endpoint '%s' is well-formed", name)
		}
	}
	return report
}

// ValidateRelationships checks referential closure: endpoints resolve their
// queries, queries resolve their databases.
func (v *Validator) ValidateRelationships(snap *catalog.Snapshot) *Report {
	report := &Report{}
	for _, name := range sortedKeys(snap.Endpoints) {
		e := snap.Endpoints[name]
		if _, ok := snap.Query(e.QueryName); !ok {
			report.errorf("endpoint '%s': unknown query '%s'", name, e.QueryName)
		} else {
			report.successf("endpoint '%s' resolves query '%s'", name, e.QueryName)
		}
		if e.CountQueryName != "" {
			if _, ok := snap.Query(e.CountQueryName); !ok {
				report.errorf("endpoint '%s': unknown count query '%s'", name, e.CountQueryName)
			} else {
				report.successf("endpoint '%s' resolves count query '%s'", name, e.CountQueryName)
			}
		}
	}
	for _, name := range sortedKeys(snap.Queries) {
		q := snap.Queries[name]
		if _, ok := snap.Database(q.DatabaseName); !ok {
			report.errorf("query '%s': unknown database '%s'", name, q.DatabaseName)
		} else {
			report.successf("query '%s' resolves database '%s'", name, q.DatabaseName)
		}
	}
	return report
}

// ValidateSchema is Phase B: table existence and column existence against
// the live schemas of every available database. Failed databases are
// skipped; their absence is already recorded by the connection manager.
func (v *Validator) ValidateSchema(ctx context.Context, snap *catalog.Snapshot) *Report {
	report := &Report{}
	if v.manager == nil {
		return report
	}

	for _, dbName := range v.manager.AvailableNames() {
		if _, ok := snap.Database(dbName); !ok {
			continue
		}

		tableColumns := map[string][]string{}
		for _, table := range database.TablesForDatabase(snap, dbName) {
			cols, err := v.probeTable(ctx, dbName, table)
			if err != nil {
				report.errorf("database '%s': table '%s' not found: %v", dbName, table, err)
				continue
			}
			tableColumns[strings.ToLower(table)] = cols
			report.successf("database '%s': table '%s' exists", dbName, table)
		}

		for _, q := range snap.QueriesForDatabase(dbName) {
			known := map[string]struct{}{}
			for _, table := range database.ExtractTables(q.SQL) {
				for _, col := range tableColumns[strings.ToLower(table)] {
					known[strings.ToLower(col)] = struct{}{}
				}
			}
			if len(known) == 0 {
				continue
			}
			for _, col := range ExtractColumns(q.SQL) {
				if _, ok := known[col]; ok {
					report.successf("query '%s': column '%s' exists", q.Name, col)
				} else {
					report.errorf("query '%s': column '%s' not found in referenced tables", q.Name, col)
				}
			}
		}
	}
	return report
}

// probeTable checks table existence case-insensitively (verbatim, then
// upper, then lower) and returns its column set.
func (v *Validator) probeTable(ctx context.Context, dbName, table string) ([]string, error) {
	conn, err := v.manager.Acquire(ctx, dbName)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	variants := []string{table, strings.ToUpper(table), strings.ToLower(table)}
	var lastErr error
	for _, variant := range variants {
		rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", variant))
		if err != nil {
			lastErr = err
			continue
		}
		cols, err := rows.Columns()
		rows.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return cols, nil
	}
	return nil, lastErr
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
