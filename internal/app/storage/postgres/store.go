// Package postgres implements the storage repository ports against
// PostgreSQL using database/sql and raw SQL, in the style of the wider
// application's other repository implementations.
package postgres

import (
	"database/sql"
	"time"

	"github.com/webpdtool/engine/internal/app/storage"
)

// Store implements PlanRepository, SessionRepository and ResultRepository
// backed by a single PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

var _ storage.PlanRepository = (*Store)(nil)
var _ storage.SessionRepository = (*Store)(nil)
var _ storage.ResultRepository = (*Store)(nil)

// New creates a Store using the provided database handle. The caller owns
// the handle's lifecycle (open/close, migrations).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func toNullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
