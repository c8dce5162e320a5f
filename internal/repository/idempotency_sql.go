package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/polysession/internal/middleware"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type idempotencyRecord struct {
	Key          string `gorm:"column:idem_key;primaryKey"`
	StatusCode   int    `gorm:"not null;default:0"`
	ResponseBody []byte
	Processing   bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"index"`
}

func (idempotencyRecord) TableName() string { return "idempotency_keys" }

type SQLIdempotencyStore struct {
	db *gorm.DB
}

func NewSQLIdempotencyStore(db *gorm.DB) *SQLIdempotencyStore {
	return &SQLIdempotencyStore{db: db}
}

func (s *SQLIdempotencyStore) GetOrLock(ctx context.Context, key string) (*middleware.IdempotencyRecord, bool) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&idempotencyRecord{Key: key, Processing: true, CreatedAt: time.Now().UTC()})
	if result.Error == nil && result.RowsAffected > 0 {
		return nil, false
	}

	var rec idempotencyRecord
	if err := s.db.WithContext(ctx).Where("idem_key = ?", key).Take(&rec).Error; err != nil {
		return nil, false
	}
	return &middleware.IdempotencyRecord{
		Status:     rec.StatusCode,
		Body:       rec.ResponseBody,
		CreatedAt:  rec.CreatedAt,
		Processing: rec.Processing,
	}, true
}

func (s *SQLIdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) {
	_ = s.db.WithContext(ctx).Model(&idempotencyRecord{}).
		Where("idem_key = ?", key).
		Updates(map[string]interface{}{
			"status_code":   status,
			"response_body": body,
			"processing":    false,
		}).Error
}

func (s *SQLIdempotencyStore) Unlock(ctx context.Context, key string) {
	_ = s.db.WithContext(ctx).Where("idem_key = ?", key).Delete(&idempotencyRecord{}).Error
}

func (s *SQLIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&idempotencyRecord{}).Error
}
