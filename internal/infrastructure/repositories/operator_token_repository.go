package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Tsipchain/driver-platform/domain"
)

// OperatorTokenRepositoryImpl implements domain.OperatorTokenRepository using GORM
type OperatorTokenRepositoryImpl struct {
	db *gorm.DB
}

// DBOperatorToken stores only the hash of an operator credential
type DBOperatorToken struct {
	ID             uint   `gorm:"primaryKey"`
	TokenHash      string `gorm:"uniqueIndex;size:64;not null"`
	Role           string `gorm:"size:32;not null"`
	GroupTag       string `gorm:"size:64"`
	OrganizationID *uint  `gorm:"index"`
	CreatedAt      time.Time
	LastUsedAt     *time.Time
	ExpiresAt      *time.Time
}

// TableName returns the table name for GORM
func (DBOperatorToken) TableName() string {
	return "operator_tokens"
}

// NewOperatorTokenRepository creates a new operator token repository
func NewOperatorTokenRepository(db *gorm.DB) domain.OperatorTokenRepository {
	return &OperatorTokenRepositoryImpl{db: db}
}

// Create implements domain.OperatorTokenRepository
func (r *OperatorTokenRepositoryImpl) Create(ctx context.Context, token *domain.OperatorToken) error {
	row := &DBOperatorToken{
		TokenHash:      token.TokenHash,
		Role:           token.Role,
		GroupTag:       token.GroupTag,
		OrganizationID: token.OrganizationID,
		CreatedAt:      token.CreatedAt.UTC(),
		ExpiresAt:      token.ExpiresAt,
	}
	if err := conn(ctx, r.db).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create operator token: %w", err)
	}
	token.ID = row.ID
	return nil
}

// FindByHash implements domain.OperatorTokenRepository
func (r *OperatorTokenRepositoryImpl) FindByHash(ctx context.Context, hash string) (*domain.OperatorToken, error) {
	var row DBOperatorToken
	if err := conn(ctx, r.db).Where("token_hash = ?", hash).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOperatorTokenNotFound
		}
		return nil, fmt.Errorf("failed to load operator token: %w", err)
	}
	return &domain.OperatorToken{
		ID:             row.ID,
		TokenHash:      row.TokenHash,
		Role:           row.Role,
		GroupTag:       row.GroupTag,
		OrganizationID: row.OrganizationID,
		CreatedAt:      row.CreatedAt,
		LastUsedAt:     row.LastUsedAt,
		ExpiresAt:      row.ExpiresAt,
	}, nil
}

// TouchLastUsed implements domain.OperatorTokenRepository
func (r *OperatorTokenRepositoryImpl) TouchLastUsed(ctx context.Context, id uint, now time.Time) error {
	err := conn(ctx, r.db).Model(&DBOperatorToken{}).Where("id = ?", id).Update("last_used_at", now.UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to stamp operator token: %w", err)
	}
	return nil
}
