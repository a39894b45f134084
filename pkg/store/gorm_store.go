package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tobiascms/pkg/channel"
)

const migrateLockID int64 = 52430517

// ErrRecordMissing is returned by Delete when the id does not exist.
var ErrRecordMissing = errors.New("record not found")

// recordRow is the uniform row shape for every content table: opaque
// string id plus a JSONB document holding the snake_case fields.
type recordRow struct {
	ID        string         `gorm:"primaryKey;size:64"`
	Fields    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GormStore implements RecordStore using GORM + Postgres. After every
// successful write it publishes the change on the notification channel,
// which yields the self-echo behavior connected sessions expect.
type GormStore struct {
	db       *gorm.DB
	notifier channel.Channel
}

// NewGormStore opens the DB and migrates the given tables.
func NewGormStore(dsn string, tables []string, notifier channel.Channel) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Table(table).AutoMigrate(&recordRow{}); err != nil {
				return fmt.Errorf("auto migrate %s: %w", table, err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, notifier: notifier}, nil
}

// withMigrationLock serializes schema migration across replicas with a
// Postgres advisory lock.
func withMigrationLock(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", migrateLockID).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		return fn(tx)
	})
}

// List returns all records of a table in insertion order.
func (s *GormStore) List(ctx context.Context, table string) ([]Fields, error) {
	var rows []recordRow
	err := s.db.WithContext(ctx).Table(table).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	out := make([]Fields, 0, len(rows))
	for _, row := range rows {
		record, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", table, row.ID, err)
		}
		out = append(out, record)
	}
	return out, nil
}

// Upsert creates or replaces a record under its client-chosen id and
// returns the authoritative stored value.
func (s *GormStore) Upsert(ctx context.Context, table string, record Fields) (Fields, error) {
	id := recordID(record)
	if id == "" {
		return nil, errors.New("record id required")
	}
	payload, err := encodeFields(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	var existing int64
	if err := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check %s/%s: %w", table, id, err)
	}

	now := time.Now().UTC()
	row := recordRow{ID: id, Fields: payload, CreatedAt: now, UpdatedAt: now}
	err = s.db.WithContext(ctx).Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fields", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert %s/%s: %w", table, id, err)
	}

	var stored recordRow
	if err := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(&stored).Error; err != nil {
		return nil, fmt.Errorf("read back %s/%s: %w", table, id, err)
	}
	authoritative, err := decodeRow(stored)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", table, id, err)
	}

	eventType := channel.EventInsert
	if existing > 0 {
		eventType = channel.EventUpdate
	}
	publish(ctx, s.notifier, channel.Event{Type: eventType, Table: table, New: authoritative})
	return authoritative, nil
}

// Delete removes a record by id.
func (s *GormStore) Delete(ctx context.Context, table, id string) error {
	res := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Delete(&recordRow{})
	if res.Error != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete %s/%s: %w", table, id, ErrRecordMissing)
	}
	publish(ctx, s.notifier, channel.Event{Type: channel.EventDelete, Table: table, Old: &channel.Ref{ID: id}})
	return nil
}

func encodeFields(record Fields) (datatypes.JSON, error) {
	fields := make(Fields, len(record))
	for k, v := range record {
		if k == "id" {
			continue
		}
		fields[k] = v
	}
	raw, err := json.Marshal(SnakeKeys(fields))
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func decodeRow(row recordRow) (Fields, error) {
	fields := Fields{}
	if len(row.Fields) > 0 {
		if err := json.Unmarshal(row.Fields, &fields); err != nil {
			return nil, err
		}
	}
	record := CamelKeys(fields)
	record["id"] = row.ID
	return record, nil
}
