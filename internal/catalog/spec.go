package catalog

// The three catalogues that parameterise the gateway. Field validation tags
// follow go-playground/validator; structural checks that span entries
// (referential integrity, placeholder arity) live in internal/validation.

// ParamType enumerates the coercion targets for query parameters.
type ParamType string

const (
	ParamString    ParamType = "STRING"
	ParamInteger   ParamType = "INTEGER"
	ParamLong      ParamType = "LONG"
	ParamDecimal   ParamType = "DECIMAL"
	ParamBoolean   ParamType = "BOOLEAN"
	ParamTimestamp ParamType = "TIMESTAMP"
)

// QueryType distinguishes row-returning statements from mutations.
type QueryType string

const (
	QuerySelect QueryType = "SELECT"
	QueryUpdate QueryType = "UPDATE"
)

// PoolSpec configures the connection pool of one database.
type PoolSpec struct {
	MaximumPoolSize          int    `yaml:"maximumPoolSize" json:"maximumPoolSize" validate:"gte=0"`
	MinimumIdle              int    `yaml:"minimumIdle" json:"minimumIdle" validate:"gte=0"`
	ConnectionTimeoutMs      int64  `yaml:"connectionTimeoutMs" json:"connectionTimeoutMs" validate:"gte=0"`
	IdleTimeoutMs            int64  `yaml:"idleTimeoutMs" json:"idleTimeoutMs" validate:"gte=0"`
	MaxLifetimeMs            int64  `yaml:"maxLifetimeMs" json:"maxLifetimeMs" validate:"gte=0"`
	LeakDetectionThresholdMs int64  `yaml:"leakDetectionThresholdMs" json:"leakDetectionThresholdMs" validate:"gte=0"`
	ConnectionTestQuery      string `yaml:"connectionTestQuery" json:"connectionTestQuery"`
}

// DefaultPoolSpec returns the pool defaults applied to databases that omit
// pool settings.
func DefaultPoolSpec() PoolSpec {
	return PoolSpec{
		MaximumPoolSize:          10,
		MinimumIdle:              2,
		ConnectionTimeoutMs:      30000,
		IdleTimeoutMs:            600000,
		MaxLifetimeMs:            1800000,
		LeakDetectionThresholdMs: 60000,
		ConnectionTestQuery:      "SELECT 1",
	}
}

// ApplyDefaults fills zero-valued fields from DefaultPoolSpec.
func (p *PoolSpec) ApplyDefaults() {
	def := DefaultPoolSpec()
	if p.MaximumPoolSize == 0 {
		p.MaximumPoolSize = def.MaximumPoolSize
	}
	if p.MinimumIdle == 0 {
		p.MinimumIdle = def.MinimumIdle
	}
	if p.ConnectionTimeoutMs == 0 {
		p.ConnectionTimeoutMs = def.ConnectionTimeoutMs
	}
	if p.IdleTimeoutMs == 0 {
		p.IdleTimeoutMs = def.IdleTimeoutMs
	}
	if p.MaxLifetimeMs == 0 {
		p.MaxLifetimeMs = def.MaxLifetimeMs
	}
	if p.LeakDetectionThresholdMs == 0 {
		p.LeakDetectionThresholdMs = def.LeakDetectionThresholdMs
	}
	if p.ConnectionTestQuery == "" {
		p.ConnectionTestQuery = def.ConnectionTestQuery
	}
}

// DatabaseSpec declares one pooled data source.
type DatabaseSpec struct {
	Name        string   `yaml:"name" json:"name" validate:"required"`
	Description string   `yaml:"description" json:"description"`
	URL         string   `yaml:"url" json:"url" validate:"required"`
	Username    string   `yaml:"username" json:"username"`
	Password    string   `yaml:"password" json:"password"`
	DriverID    string   `yaml:"driverId" json:"driverId" validate:"required"`
	Pool        PoolSpec `yaml:"pool" json:"pool"`
}

// QueryParamSpec declares one positional bind parameter.
type QueryParamSpec struct {
	Name     string    `yaml:"name" json:"name" validate:"required"`
	Type     ParamType `yaml:"type" json:"type" validate:"required,oneof=STRING INTEGER LONG DECIMAL BOOLEAN TIMESTAMP"`
	Required bool      `yaml:"required" json:"required"`
	Position int       `yaml:"position" json:"position" validate:"gte=1"`
}

// QuerySpec declares one parameterised SQL statement bound to a database.
// SQL uses positional '?' placeholders regardless of the target driver;
// the executor rebinds them to the driver's native form.
type QuerySpec struct {
	Name           string           `yaml:"name" json:"name" validate:"required"`
	Description    string           `yaml:"description" json:"description"`
	DatabaseName   string           `yaml:"databaseName" json:"databaseName" validate:"required"`
	SQL            string           `yaml:"sql" json:"sql" validate:"required"`
	Parameters     []QueryParamSpec `yaml:"parameters" json:"parameters" validate:"dive"`
	QueryType      QueryType        `yaml:"queryType" json:"queryType" validate:"omitempty,oneof=SELECT UPDATE"`
	TimeoutSeconds int              `yaml:"timeoutSeconds" json:"timeoutSeconds" validate:"gte=0"`
}

// PaginationSpec enables the paged response envelope on an endpoint.
type PaginationSpec struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	DefaultSize int  `yaml:"defaultSize" json:"defaultSize"`
	MaxSize     int  `yaml:"maxSize" json:"maxSize"`
}

// EndpointSpec binds an HTTP route to a query. Cache and rate-limit fields
// are stored and exposed verbatim; the engine does not honour them.
type EndpointSpec struct {
	Name           string          `yaml:"name" json:"name" validate:"required"`
	Path           string          `yaml:"path" json:"path" validate:"required"`
	Method         string          `yaml:"method" json:"method" validate:"required"`
	QueryName      string          `yaml:"queryName" json:"queryName" validate:"required"`
	Description    string          `yaml:"description" json:"description"`
	CountQueryName string          `yaml:"countQueryName" json:"countQueryName,omitempty"`
	Pagination     *PaginationSpec `yaml:"pagination" json:"pagination,omitempty"`
	ResponseFormat string          `yaml:"responseFormat" json:"responseFormat,omitempty"`

	CacheEnabled           bool `yaml:"cacheEnabled" json:"cacheEnabled"`
	CacheTTLSeconds        int  `yaml:"cacheTtlSeconds" json:"cacheTtlSeconds"`
	RateLimitEnabled       bool `yaml:"rateLimitEnabled" json:"rateLimitEnabled"`
	RateLimitRequests      int  `yaml:"rateLimitRequests" json:"rateLimitRequests"`
	RateLimitWindowSeconds int  `yaml:"rateLimitWindowSeconds" json:"rateLimitWindowSeconds"`
}

// Paginated reports whether the endpoint serves the paged envelope.
func (e *EndpointSpec) Paginated() bool {
	return e.Pagination != nil && e.Pagination.Enabled
}
