package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

// LeaseEvent mirrors the journal row written by the reservation service.
type LeaseEvent struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Instance    uuid.UUID         `gorm:"type:uuid;not null;index"`
	Type        string            `gorm:"type:text;not null"`
	ServiceName string            `gorm:"type:text;not null;index"`
	Port        int32             `gorm:"type:integer;not null"`
	At          time.Time         `gorm:"type:timestamptz;not null;index"`
	Details     datatypes.JSONMap `gorm:"type:jsonb"`
}

func (LeaseEvent) TableName() string { return "lease_events" }

func open(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := open(tx)
	if err != nil {
		return err
	}
	return gormDB.WithContext(ctx).AutoMigrate(&LeaseEvent{})
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := open(tx)
	if err != nil {
		return err
	}
	return gormDB.WithContext(ctx).Migrator().DropTable(&LeaseEvent{})
}
