// Package journal keeps an append-only audit trail of lease events in
// Postgres. It is never read back into the lease table.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"prsd/pkg/db"
	"prsd/services/prs/internal/events"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type eventModel struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Instance    uuid.UUID         `gorm:"type:uuid;not null"`
	Type        string            `gorm:"type:text;not null"`
	ServiceName string            `gorm:"type:text;not null"`
	Port        int32             `gorm:"type:integer;not null"`
	At          time.Time         `gorm:"type:timestamptz;not null"`
	Details     datatypes.JSONMap `gorm:"type:jsonb"`
}

func (eventModel) TableName() string { return "lease_events" }

// Store writes through gorm and reads through pgx/scany on the same pool.
type Store struct {
	pool    *pgxpool.Pool
	orm     *gorm.DB
	details map[string]any
}

// New builds a Store. details is copied into every row, e.g. the port range.
func New(pool *pgxpool.Pool, orm *gorm.DB, details map[string]any) (*Store, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	return &Store{pool: pool, orm: orm, details: details}, nil
}

func (s *Store) Name() string { return "journal" }

// Deliver appends rec. Replays of the same record ID are ignored.
func (s *Store) Deliver(ctx context.Context, rec events.Record) error {
	row := eventModel{
		ID:          rec.ID,
		Instance:    rec.Instance,
		Type:        string(rec.Type),
		ServiceName: rec.ServiceName,
		Port:        int32(rec.Port),
		At:          rec.At,
		Details:     toJSONMap(s.details),
	}
	return s.orm.WithContext(ctx).
		Where(eventModel{ID: rec.ID}).
		FirstOrCreate(&row).Error
}

// Recent lists the newest events first, optionally filtered by service name.
func (s *Store) Recent(ctx context.Context, service string, limit int) ([]events.Record, error) {
	limit = clampLimit(limit)

	var rows []events.Record
	err := db.Select(ctx, s.pool, &rows, `
SELECT id, instance, type, service_name, port, at
FROM lease_events
WHERE $1 = '' OR service_name = $1
ORDER BY at DESC, id
LIMIT $2
`, service, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func toJSONMap(src map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range src {
		out[k] = v
	}
	return out
}
