package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tsipchain/driver-platform/domain"
)

// SessionRepositoryImpl implements domain.SessionRepository using GORM
type SessionRepositoryImpl struct {
	db *gorm.DB
}

// DBSession is a live session row
type DBSession struct {
	Token      string    `gorm:"primaryKey;size:64"`
	DriverID   uint      `gorm:"index;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	LastSeenAt time.Time
}

// TableName returns the table name for GORM
func (DBSession) TableName() string {
	return "driver_sessions"
}

// DBRevokedToken is a permanent revocation record
type DBRevokedToken struct {
	Token     string    `gorm:"primaryKey;size:64"`
	RevokedAt time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (DBRevokedToken) TableName() string {
	return "revoked_tokens"
}

// NewSessionRepository creates a new SQL-backed session repository
func NewSessionRepository(db *gorm.DB) domain.SessionRepository {
	return &SessionRepositoryImpl{db: db}
}

// Create implements domain.SessionRepository
func (r *SessionRepositoryImpl) Create(ctx context.Context, session *domain.Session) error {
	row := &DBSession{
		Token:      session.Token,
		DriverID:   session.DriverID,
		CreatedAt:  session.CreatedAt.UTC(),
		LastSeenAt: session.LastSeenAt.UTC(),
	}
	if err := conn(ctx, r.db).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrSessionTokenConflict
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Touch implements domain.SessionRepository
func (r *SessionRepositoryImpl) Touch(ctx context.Context, token string, now time.Time) (*domain.Session, error) {
	var row DBSession
	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&DBSession{}).Where("token = ?", token).Update("last_seen_at", now.UTC())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrSessionNotFound
		}
		return tx.Where("token = ?", token).First(&row).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	return &domain.Session{
		Token:      row.Token,
		DriverID:   row.DriverID,
		CreatedAt:  row.CreatedAt,
		LastSeenAt: row.LastSeenAt,
	}, nil
}

// IsRevoked implements domain.SessionRepository
func (r *SessionRepositoryImpl) IsRevoked(ctx context.Context, token string) (bool, error) {
	var count int64
	if err := conn(ctx, r.db).Model(&DBRevokedToken{}).Where("token = ?", token).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return count > 0, nil
}

// Revoke implements domain.SessionRepository. The revocation row and the
// session delete commit together.
func (r *SessionRepositoryImpl) Revoke(ctx context.Context, token string, now time.Time) error {
	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		entry := &DBRevokedToken{Token: token, RevokedAt: now.UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error; err != nil {
			return err
		}
		return tx.Where("token = ?", token).Delete(&DBSession{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
