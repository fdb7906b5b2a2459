package metrics

import "time"

// RecordKind tags the two performance record variants.
type RecordKind string

const (
	// KindBasic is a plain request measurement.
	KindBasic RecordKind = "basic"
	// KindCache marks a request served by an endpoint with caching
	// configured. The engine stores cache settings verbatim, so the flag
	// reflects configuration, not an actual cache hit.
	KindCache RecordKind = "cache"
)

// PerformanceRecord is one measured request, as persisted by a Sink.
type PerformanceRecord struct {
	ID           string     `db:"id" json:"id"`
	Kind         RecordKind `db:"kind" json:"kind"`
	Endpoint     string     `db:"endpoint" json:"endpoint"`
	Method       string     `db:"method" json:"method"`
	PathTemplate string     `db:"path_template" json:"pathTemplate"`
	StatusCode   int        `db:"status_code" json:"statusCode"`
	DurationMs   float64    `db:"duration_ms" json:"durationMs"`
	HeapBytes    int64      `db:"heap_bytes" json:"heapBytes"`
	Timestamp    time.Time  `db:"recorded_at" json:"timestamp"`
}
