package recordstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row layout for SQLStore.
type StoredRecord struct {
	RecordKey string     `gorm:"column:record_key;primaryKey;size:512"`
	Value     string     `gorm:"type:text;not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (StoredRecord) TableName() string { return "automod_records" }

// Store on top of a relational database (sqlite or postgres), using conditional UPDATE statements for compare-and-swap.
type SQLStore struct {
	Now func() time.Time

	db *gorm.DB
}

var _ RecordStore = (*SQLStore)(nil)

func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&StoredRecord{}); err != nil {
		return nil, err
	}
	return &SQLStore{
		Now: time.Now,
		db:  db,
	}, nil
}

func (s *SQLStore) expiry(ttl time.Duration) *time.Time {
	exp := expiresAt(s.Now(), ttl)
	if exp.IsZero() {
		return nil
	}
	return &exp
}

// scopes a query to live (unexpired) rows for a key
func (s *SQLStore) live(db *gorm.DB, key string) *gorm.DB {
	return db.Where("record_key = ? AND (expires_at IS NULL OR expires_at > ?)", key, s.Now())
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var rec StoredRecord
	err := s.live(s.db.WithContext(ctx), key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	} else if err != nil {
		return "", unavailable("get", key, err)
	}
	return rec.Value, nil
}

func (s *SQLStore) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	if val == "" {
		return s.Delete(ctx, key)
	}
	rec := StoredRecord{
		RecordKey: key,
		Value:     val,
		ExpiresAt: s.expiry(ttl),
		UpdatedAt: s.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("record_key = ?", key).Delete(&StoredRecord{}).Error
	if err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

func (s *SQLStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	db := s.db.WithContext(ctx)

	if old == "" {
		// an expired row still occupies the primary key; clear it so the insert below can win
		err := db.Where("record_key = ? AND expires_at IS NOT NULL AND expires_at <= ?", key, s.Now()).Delete(&StoredRecord{}).Error
		if err != nil {
			return false, unavailable("cas", key, err)
		}
		if new == "" {
			cur, err := s.Get(ctx, key)
			if err != nil {
				return false, err
			}
			return cur == "", nil
		}
		rec := StoredRecord{
			RecordKey: key,
			Value:     new,
			ExpiresAt: s.expiry(ttl),
			UpdatedAt: s.Now(),
		}
		err = db.Create(&rec).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		} else if err != nil {
			// not every driver translates constraint errors; a concurrent insert shows up as a live row
			if cur, gerr := s.Get(ctx, key); gerr == nil && cur != "" {
				return false, nil
			}
			return false, unavailable("cas", key, err)
		}
		return true, nil
	}

	var res *gorm.DB
	if new == "" {
		res = s.live(db, key).Where("value = ?", old).Delete(&StoredRecord{})
	} else {
		res = s.live(db.Model(&StoredRecord{}), key).Where("value = ?", old).Updates(map[string]any{
			"value":      new,
			"expires_at": s.expiry(ttl),
			"updated_at": s.Now(),
		})
	}
	if res.Error != nil {
		return false, unavailable("cas", key, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	out := []string{}
	pattern := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix) + "%"
	err := s.db.WithContext(ctx).Model(&StoredRecord{}).
		Where(`record_key LIKE ? ESCAPE '\'`, pattern).
		Where("expires_at IS NULL OR expires_at > ?", s.Now()).
		Pluck("record_key", &out).Error
	if err != nil {
		return nil, unavailable("list", prefix, err)
	}
	return out, nil
}
