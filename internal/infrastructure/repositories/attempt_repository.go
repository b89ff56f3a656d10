package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/Tsipchain/driver-platform/domain"
)

// AttemptRepositoryImpl implements domain.AttemptRepository using GORM
type AttemptRepositoryImpl struct {
	db *gorm.DB
}

// DBTrialAttempt is one row of the abuse log
type DBTrialAttempt struct {
	ID             uint      `gorm:"primaryKey"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false;index;index:idx_trial_ip_created,priority:3;index:idx_trial_email_created,priority:3;index:idx_trial_phone_created,priority:3"`
	Action         string    `gorm:"size:16;not null;default:trial;index:idx_trial_ip_created,priority:1;index:idx_trial_email_created,priority:1;index:idx_trial_phone_created,priority:1"`
	IPHash         string    `gorm:"size:64;not null;index:idx_trial_ip_created,priority:2"`
	EmailHash      string    `gorm:"size:64;not null;index:idx_trial_email_created,priority:2"`
	PhoneHash      string    `gorm:"size:64;index:idx_trial_phone_created,priority:2"`
	Status         string    `gorm:"size:32;not null;index"`
	RetryAfter     *int
	OrganizationID *uint  `gorm:"index"`
	ErrorCode      string `gorm:"size:64"`
}

// TableName returns the table name for GORM
func (DBTrialAttempt) TableName() string {
	return "trial_attempts"
}

// NewAttemptRepository creates a new attempt log repository
func NewAttemptRepository(db *gorm.DB) domain.AttemptRepository {
	return &AttemptRepositoryImpl{db: db}
}

// Lock implements domain.AttemptRepository with transaction-scoped advisory
// locks, taken in sorted order. sqlite runs on a single connection and
// needs none.
func (r *AttemptRepositoryImpl) Lock(ctx context.Context, keys ...string) error {
	db := conn(ctx, r.db)
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	sorted := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", k).Error; err != nil {
			return fmt.Errorf("failed to lock attempt key: %w", err)
		}
	}
	return nil
}

// Append implements domain.AttemptRepository
func (r *AttemptRepositoryImpl) Append(ctx context.Context, attempt *domain.TrialAttempt) error {
	action := attempt.Action
	if action == "" {
		action = domain.ActionTrial
	}
	row := &DBTrialAttempt{
		CreatedAt:      attempt.CreatedAt.UTC(),
		Action:         string(action),
		IPHash:         attempt.IPHash,
		EmailHash:      attempt.EmailHash,
		PhoneHash:      attempt.PhoneHash,
		Status:         string(attempt.Status),
		RetryAfter:     attempt.RetryAfter,
		OrganizationID: attempt.OrganizationID,
		ErrorCode:      attempt.ErrorCode,
	}
	if err := conn(ctx, r.db).Create(row).Error; err != nil {
		return fmt.Errorf("failed to append trial attempt: %w", err)
	}
	attempt.ID = row.ID
	attempt.Action = action
	return nil
}

// Settle implements domain.AttemptRepository. Only pending rows move.
func (r *AttemptRepositoryImpl) Settle(ctx context.Context, id uint, status domain.AttemptStatus, orgID *uint, errorCode string) error {
	result := conn(ctx, r.db).Model(&DBTrialAttempt{}).
		Where("id = ? AND status = ?", id, string(domain.AttemptPending)).
		Updates(map[string]interface{}{
			"status":          string(status),
			"organization_id": orgID,
			"error_code":      errorCode,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to settle attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

// Count implements domain.AttemptRepository
func (r *AttemptRepositoryImpl) Count(ctx context.Context, q domain.AttemptQuery) (int64, error) {
	var count int64
	if err := r.scope(ctx, q).Model(&DBTrialAttempt{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count trial attempts: %w", err)
	}
	return count, nil
}

// Oldest implements domain.AttemptRepository
func (r *AttemptRepositoryImpl) Oldest(ctx context.Context, q domain.AttemptQuery) (*domain.TrialAttempt, error) {
	var row DBTrialAttempt
	err := r.scope(ctx, q).Order("created_at ASC").Order("id ASC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load oldest trial attempt: %w", err)
	}
	return &domain.TrialAttempt{
		ID:             row.ID,
		CreatedAt:      row.CreatedAt,
		Action:         domain.AttemptAction(row.Action),
		IPHash:         row.IPHash,
		EmailHash:      row.EmailHash,
		PhoneHash:      row.PhoneHash,
		Status:         domain.AttemptStatus(row.Status),
		RetryAfter:     row.RetryAfter,
		OrganizationID: row.OrganizationID,
		ErrorCode:      row.ErrorCode,
	}, nil
}

func (r *AttemptRepositoryImpl) scope(ctx context.Context, q domain.AttemptQuery) *gorm.DB {
	action := q.Action
	if action == "" {
		action = domain.ActionTrial
	}
	db := conn(ctx, r.db).Where("action = ? AND created_at > ?", string(action), q.Since.UTC())
	if q.IPHash != "" {
		db = db.Where("ip_hash = ?", q.IPHash)
	}
	if q.EmailHash != "" {
		db = db.Where("email_hash = ?", q.EmailHash)
	}
	if q.PhoneHash != "" {
		db = db.Where("phone_hash = ?", q.PhoneHash)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		db = db.Where("status IN ?", statuses)
	}
	return db
}
