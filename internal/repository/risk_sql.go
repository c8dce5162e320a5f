package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const usageDateLayout = "2006-01-02"

type riskUsageRecord struct {
	Address   string  `gorm:"primaryKey;size:42"`
	Date      string  `gorm:"primaryKey;size:10"`
	Orders    int     `gorm:"not null;default:0"`
	Volume    float64 `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (riskUsageRecord) TableName() string { return "risk_daily_usage" }

// SQLUsageRepo keeps per-address daily order counters for the risk engine.
type SQLUsageRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSQLUsageRepo(db *gorm.DB) *SQLUsageRepo {
	return &SQLUsageRepo{db: db, now: time.Now}
}

func (r *SQLUsageRepo) today() string {
	return r.now().UTC().Format(usageDateLayout)
}

func (r *SQLUsageRepo) GetDailyUsage(ctx context.Context, address string) (int, float64, error) {
	var rec riskUsageRecord
	err := r.db.WithContext(ctx).
		Where("address = ? AND date = ?", strings.ToLower(address), r.today()).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return rec.Orders, rec.Volume, nil
}

func (r *SQLUsageRepo) AddDailyUsage(ctx context.Context, address string, orders int, amount float64) error {
	rec := &riskUsageRecord{
		Address:   strings.ToLower(address),
		Date:      r.today(),
		Orders:    orders,
		Volume:    amount,
		UpdatedAt: r.now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"orders":     gorm.Expr("risk_daily_usage.orders + ?", orders),
			"volume":     gorm.Expr("risk_daily_usage.volume + ?", amount),
			"updated_at": rec.UpdatedAt,
		}),
	}).Create(rec).Error
}

// Cleanup drops counters for days that ended before now-olderThan.
func (r *SQLUsageRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := r.now().UTC().Add(-olderThan).Format(usageDateLayout)
	return r.db.WithContext(ctx).Where("date < ?", cutoff).Delete(&riskUsageRecord{}).Error
}
