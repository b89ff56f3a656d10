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

// DriverRepositoryImpl implements domain.DriverRepository using GORM
type DriverRepositoryImpl struct {
	db *gorm.DB
}

// DBDriver represents the database model for Driver (with GORM tags)
type DBDriver struct {
	ID               uint       `gorm:"primaryKey"`
	Phone            string     `gorm:"uniqueIndex;size:32;not null"`
	Email            string     `gorm:"index;size:255"`
	EmailVerified    bool       `gorm:"not null;default:false"`
	PendingPhone     string     `gorm:"column:pending_phone;index;size:32"`
	Name             string     `gorm:"size:255"`
	Role             string     `gorm:"index;size:64"`
	State            string     `gorm:"size:16;not null;default:unverified"`
	VerificationCode *string    `gorm:"column:verification_code;size:16"`
	CodeExpiresAt    *time.Time `gorm:"column:code_expires_at"`
	CodeChannel      string     `gorm:"column:code_channel;size:16"`
	FailedAttempts   int        `gorm:"not null;default:0"`
	LastCodeSentAt   *time.Time
	LastLoginAt      *time.Time
	GroupTag         string `gorm:"index;size:64"`
	OrganizationID   *uint  `gorm:"index"`
	Approved         bool   `gorm:"index;not null;default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (DBDriver) TableName() string {
	return "drivers"
}

// NewDriverRepository creates a new driver repository
func NewDriverRepository(db *gorm.DB) domain.DriverRepository {
	return &DriverRepositoryImpl{db: db}
}

// Create implements domain.DriverRepository
func (r *DriverRepositoryImpl) Create(ctx context.Context, driver *domain.Driver) error {
	dbDriver := r.domainToDB(driver)
	if err := conn(ctx, r.db).Create(dbDriver).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDriverExists
		}
		return fmt.Errorf("failed to create driver: %w", err)
	}
	driver.ID = dbDriver.ID
	driver.CreatedAt = dbDriver.CreatedAt
	driver.UpdatedAt = dbDriver.UpdatedAt
	return nil
}

// FindByID implements domain.DriverRepository
func (r *DriverRepositoryImpl) FindByID(ctx context.Context, id uint) (*domain.Driver, error) {
	return r.first(conn(ctx, r.db).Where("id = ?", id))
}

// FindByPhone implements domain.DriverRepository
func (r *DriverRepositoryImpl) FindByPhone(ctx context.Context, phone string) (*domain.Driver, error) {
	return r.first(conn(ctx, r.db).Where("phone = ?", phone))
}

// FindByEmail implements domain.DriverRepository
func (r *DriverRepositoryImpl) FindByEmail(ctx context.Context, email string) (*domain.Driver, error) {
	return r.first(conn(ctx, r.db).Where("email = ?", email).Order("id"))
}

// FindByPhoneForUpdate implements domain.DriverRepository
func (r *DriverRepositoryImpl) FindByPhoneForUpdate(ctx context.Context, phone string) (*domain.Driver, error) {
	return r.first(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).Where("phone = ?", phone))
}

// FindByPendingPhoneForUpdate implements domain.DriverRepository
func (r *DriverRepositoryImpl) FindByPendingPhoneForUpdate(ctx context.Context, phone string) (*domain.Driver, error) {
	if phone == "" {
		return nil, domain.ErrDriverNotFound
	}
	return r.first(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).Where("pending_phone = ?", phone).Order("id DESC"))
}

// SetPendingPhone implements domain.DriverRepository
func (r *DriverRepositoryImpl) SetPendingPhone(ctx context.Context, driverID uint, phone string) error {
	result := conn(ctx, r.db).Model(&DBDriver{}).Where("id = ?", driverID).Update("pending_phone", phone)
	if result.Error != nil {
		return fmt.Errorf("failed to set pending phone: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrDriverNotFound
	}
	return nil
}

// UpdateProfile implements domain.DriverRepository. Only identity fields are
// written; code state goes through SaveIssuedCode and ConsumeCode.
func (r *DriverRepositoryImpl) UpdateProfile(ctx context.Context, driver *domain.Driver) error {
	result := conn(ctx, r.db).Model(&DBDriver{}).Where("id = ?", driver.ID).Updates(map[string]interface{}{
		"phone":           driver.Phone,
		"email":           driver.Email,
		"email_verified":  driver.EmailVerified,
		"name":            driver.Name,
		"role":            driver.Role,
		"group_tag":       driver.GroupTag,
		"organization_id": driver.OrganizationID,
		"approved":        driver.Approved,
	})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrDriverExists
		}
		return fmt.Errorf("failed to update driver: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrDriverNotFound
	}
	return nil
}

// SaveIssuedCode implements domain.DriverRepository
func (r *DriverRepositoryImpl) SaveIssuedCode(ctx context.Context, driverID uint, code domain.CodeIssued, sentAt, cooldownCutoff time.Time) error {
	result := conn(ctx, r.db).Model(&DBDriver{}).
		Where("id = ?", driverID).
		Where("(last_code_sent_at IS NULL OR last_code_sent_at <= ?)", cooldownCutoff.UTC()).
		Updates(map[string]interface{}{
			"verification_code": code.Code,
			"code_expires_at":   code.ExpiresAt.UTC(),
			"code_channel":      string(code.Channel),
			"failed_attempts":   0,
			"last_code_sent_at": sentAt.UTC(),
			"pending_phone":     "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to store issued code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

// ConsumeCode implements domain.DriverRepository. With adoptPendingPhone
// only an email-delivered code matches, and the pending phone becomes the
// driver's phone unless another driver already holds it. SET expressions
// read the pre-update row.
func (r *DriverRepositoryImpl) ConsumeCode(ctx context.Context, driverID uint, code string, now time.Time, adoptPendingPhone bool) error {
	updates := map[string]interface{}{
		"verification_code": nil,
		"code_expires_at":   nil,
		"code_channel":      "",
		"failed_attempts":   0,
		"state":             string(domain.Verified),
		"last_login_at":     now.UTC(),
		"email_verified":    gorm.Expr("CASE WHEN code_channel = ? THEN ? ELSE email_verified END", string(domain.DeliveryEmail), true),
		"pending_phone":     "",
	}
	q := conn(ctx, r.db).Model(&DBDriver{}).
		Where("id = ? AND verification_code = ? AND code_expires_at > ?", driverID, code, now.UTC())
	if adoptPendingPhone {
		q = q.Where("code_channel = ? AND pending_phone <> ''", string(domain.DeliveryEmail))
		updates["phone"] = gorm.Expr("CASE WHEN NOT EXISTS (SELECT 1 FROM drivers other WHERE other.phone = drivers.pending_phone) THEN pending_phone ELSE phone END")
	}
	result := q.Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to consume code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidOrExpired
	}
	return nil
}

// UpdateCodeChannel implements domain.DriverRepository. A code that was
// already consumed or replaced is left alone.
func (r *DriverRepositoryImpl) UpdateCodeChannel(ctx context.Context, driverID uint, code string, channel domain.DeliveryChannel) error {
	err := conn(ctx, r.db).Model(&DBDriver{}).
		Where("id = ? AND verification_code = ?", driverID, code).
		Update("code_channel", string(channel)).Error
	if err != nil {
		return fmt.Errorf("failed to update code channel: %w", err)
	}
	return nil
}

// IncrementFailedAttempts implements domain.DriverRepository
func (r *DriverRepositoryImpl) IncrementFailedAttempts(ctx context.Context, driverID uint) error {
	err := conn(ctx, r.db).Model(&DBDriver{}).
		Where("id = ?", driverID).
		UpdateColumn("failed_attempts", gorm.Expr("failed_attempts + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("failed to record failed attempt: %w", err)
	}
	return nil
}

// ListPending implements domain.DriverRepository
func (r *DriverRepositoryImpl) ListPending(ctx context.Context, filter domain.DriverFilter) ([]*domain.Driver, error) {
	q := conn(ctx, r.db).Where("approved = ?", false)
	if filter.OrganizationID != nil {
		q = q.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.GroupTag != "" {
		q = q.Where("group_tag = ?", filter.GroupTag)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []DBDriver
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending drivers: %w", err)
	}

	drivers := make([]*domain.Driver, 0, len(rows))
	for i := range rows {
		drivers = append(drivers, r.dbToDomain(&rows[i]))
	}
	return drivers, nil
}

// Approve implements domain.DriverRepository
func (r *DriverRepositoryImpl) Approve(ctx context.Context, driverID uint) error {
	result := conn(ctx, r.db).Model(&DBDriver{}).Where("id = ?", driverID).Update("approved", true)
	if result.Error != nil {
		return fmt.Errorf("failed to approve driver: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrDriverNotFound
	}
	return nil
}

func (r *DriverRepositoryImpl) first(q *gorm.DB) (*domain.Driver, error) {
	var dbDriver DBDriver
	if err := q.First(&dbDriver).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to load driver: %w", err)
	}
	return r.dbToDomain(&dbDriver), nil
}

// domainToDB converts domain driver to database driver
func (r *DriverRepositoryImpl) domainToDB(d *domain.Driver) *DBDriver {
	state := d.State
	if state == "" {
		state = domain.Unverified
	}
	row := &DBDriver{
		ID:             d.ID,
		Phone:          d.Phone,
		Email:          d.Email,
		EmailVerified:  d.EmailVerified,
		PendingPhone:   d.PendingPhone,
		Name:           d.Name,
		Role:           d.Role,
		State:          string(state),
		FailedAttempts: d.FailedAttempts,
		LastCodeSentAt: d.LastCodeSentAt,
		LastLoginAt:    d.LastLoginAt,
		GroupTag:       d.GroupTag,
		OrganizationID: d.OrganizationID,
		Approved:       d.Approved,
	}
	if issued, ok := d.OTP.(domain.CodeIssued); ok {
		code := issued.Code
		expires := issued.ExpiresAt.UTC()
		row.VerificationCode = &code
		row.CodeExpiresAt = &expires
		row.CodeChannel = string(issued.Channel)
	}
	return row
}

// dbToDomain converts database driver to domain driver
func (r *DriverRepositoryImpl) dbToDomain(row *DBDriver) *domain.Driver {
	d := &domain.Driver{
		ID:             row.ID,
		Phone:          row.Phone,
		Email:          row.Email,
		EmailVerified:  row.EmailVerified,
		PendingPhone:   row.PendingPhone,
		Name:           row.Name,
		Role:           row.Role,
		State:          domain.VerificationState(row.State),
		OTP:            domain.NoPendingCode{},
		FailedAttempts: row.FailedAttempts,
		LastCodeSentAt: row.LastCodeSentAt,
		LastLoginAt:    row.LastLoginAt,
		GroupTag:       row.GroupTag,
		OrganizationID: row.OrganizationID,
		Approved:       row.Approved,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.VerificationCode != nil && row.CodeExpiresAt != nil {
		if issued, err := domain.NewCodeIssued(*row.VerificationCode, *row.CodeExpiresAt, domain.DeliveryChannel(row.CodeChannel)); err == nil {
			d.OTP = issued
		}
	}
	return d
}
