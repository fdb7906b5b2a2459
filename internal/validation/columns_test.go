package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractColumns(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "select list and where",
			sql:  "SELECT id, name FROM users WHERE id = ? AND active = true",
			want: []string{"id", "name", "active"},
		},
		{
			name: "wildcard contributes nothing",
			sql:  "SELECT * FROM users WHERE email = ?",
			want: []string{"email"},
		},
		{
			name: "aliases stripped",
			sql:  "SELECT u.id AS user_id, u.name FROM users u WHERE u.created_at >= ?",
			want: []string{"id", "name", "created_at"},
		},
		{
			name: "expressions skipped",
			sql:  "SELECT COUNT(*), status FROM orders WHERE status IN (?, ?)",
			want: []string{"status"},
		},
		{
			name: "dedup and lower-case",
			sql:  "SELECT Name FROM users WHERE NAME LIKE ?",
			want: []string{"name"},
		},
		{
			name: "where clause stops at order by",
			sql:  "SELECT id FROM users WHERE age > ? ORDER BY created_at LIMIT 10",
			want: []string{"id", "age"},
		},
		{
			name: "no where clause",
			sql:  "SELECT id FROM users",
			want: []string{"id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractColumns(tt.sql))
		})
	}
}
