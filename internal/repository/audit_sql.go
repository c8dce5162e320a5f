package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/polysession/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type auditRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	Address      string `gorm:"size:42;index:idx_audit_address_created,priority:1"`
	Method       string `gorm:"size:8"`
	Path         string
	IP           string
	UserAgent    string
	RequestBody  string
	StatusCode   int
	ResponseBody string
	LatencyMs    int64
	Context      string
	CreatedAt    time.Time `gorm:"index:idx_audit_address_created,priority:2,sort:desc"`
}

func (auditRecord) TableName() string { return "audit_logs" }

// SQLAuditRepo stores audit entries through gorm.
type SQLAuditRepo struct {
	db *gorm.DB
}

func NewSQLAuditRepo(db *gorm.DB) *SQLAuditRepo {
	return &SQLAuditRepo{db: db}
}

func (r *SQLAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	contextJSON, _ := json.Marshal(entry.Context)
	rec := &auditRecord{
		ID:           entry.ID,
		Address:      entry.Address,
		Method:       entry.Method,
		Path:         entry.Path,
		IP:           entry.IP,
		UserAgent:    entry.UserAgent,
		RequestBody:  entry.RequestBody,
		StatusCode:   entry.StatusCode,
		ResponseBody: entry.ResponseBody,
		LatencyMs:    entry.LatencyMs,
		Context:      string(contextJSON),
		CreatedAt:    entry.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
}

func (r *SQLAuditRepo) List(ctx context.Context, address string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Model(&auditRecord{})
	if address != "" {
		q = q.Where("address = ?", address)
	}
	if from != nil {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("created_at <= ?", to.UTC())
	}

	var rows []auditRecord
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*model.AuditLog, 0, len(rows))
	for _, row := range rows {
		entry := &model.AuditLog{
			ID:           row.ID,
			Address:      row.Address,
			Method:       row.Method,
			Path:         row.Path,
			IP:           row.IP,
			UserAgent:    row.UserAgent,
			RequestBody:  row.RequestBody,
			StatusCode:   row.StatusCode,
			ResponseBody: row.ResponseBody,
			LatencyMs:    row.LatencyMs,
			CreatedAt:    row.CreatedAt,
			Context:      map[string]interface{}{},
		}
		if row.Context != "" {
			_ = json.Unmarshal([]byte(row.Context), &entry.Context)
		}
		records = append(records, entry)
	}
	return records, nil
}

func (r *SQLAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&auditRecord{}).Error
}
