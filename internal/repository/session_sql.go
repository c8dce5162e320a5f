package repository

import (
	"context"
	"errors"
	"time"

	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sessionRecord struct {
	Address           string `gorm:"primaryKey;size:42"`
	EOAAddress        string `gorm:"size:42;not null"`
	ProxyAddress      string `gorm:"size:42;not null"`
	IsProxyDeployed   bool
	HasAPICredentials bool
	HasApprovals      bool
	APIKey            string
	APISecret         string
	APIPassphrase     string
	LastChecked       time.Time
	UpdatedAt         time.Time
}

func (sessionRecord) TableName() string { return "trading_sessions" }

func toSessionRecord(address string, s *session.Session) *sessionRecord {
	rec := &sessionRecord{
		Address:           session.Key(address),
		EOAAddress:        s.EOAAddress,
		ProxyAddress:      s.ProxyAddress,
		IsProxyDeployed:   s.IsProxyDeployed,
		HasAPICredentials: s.HasAPICredentials,
		HasApprovals:      s.HasApprovals,
		LastChecked:       s.LastChecked.UTC(),
	}
	if s.APICredentials != nil {
		rec.APIKey = s.APICredentials.Key
		rec.APISecret = s.APICredentials.Secret
		rec.APIPassphrase = s.APICredentials.Passphrase
	}
	return rec
}

func (r *sessionRecord) toSession() *session.Session {
	s := &session.Session{
		EOAAddress:        r.EOAAddress,
		ProxyAddress:      r.ProxyAddress,
		IsProxyDeployed:   r.IsProxyDeployed,
		HasAPICredentials: r.HasAPICredentials,
		HasApprovals:      r.HasApprovals,
		LastChecked:       r.LastChecked.UTC(),
	}
	if r.APIKey != "" {
		s.APICredentials = &auth.Credentials{
			Key:        r.APIKey,
			Secret:     r.APISecret,
			Passphrase: r.APIPassphrase,
		}
	}
	return s
}

// SQLSessionStore keeps sessions in Postgres or SQLite through gorm.
type SQLSessionStore struct {
	db *gorm.DB
}

func NewSQLSessionStore(db *gorm.DB) *SQLSessionStore {
	return &SQLSessionStore{db: db}
}

func (s *SQLSessionStore) Save(ctx context.Context, address string, sess *session.Session) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(toSessionRecord(address, sess)).Error
}

func (s *SQLSessionStore) Load(ctx context.Context, address string) (*session.Session, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).Where("address = ?", session.Key(address)).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toSession(), nil
}

func (s *SQLSessionStore) Clear(ctx context.Context, address string) error {
	return s.db.WithContext(ctx).Where("address = ?", session.Key(address)).Delete(&sessionRecord{}).Error
}

var _ session.Store = (*SQLSessionStore)(nil)
