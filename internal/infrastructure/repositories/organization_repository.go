package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Tsipchain/driver-platform/domain"
)

// OrganizationRepositoryImpl implements domain.OrganizationRepository using GORM
type OrganizationRepositoryImpl struct {
	db *gorm.DB
}

// DBOrganization is the tenant row created by trial provisioning
type DBOrganization struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"size:255;not null"`
	Slug            string `gorm:"uniqueIndex;size:64;not null"`
	Type            string `gorm:"size:32"`
	Status          string `gorm:"size:32"`
	DefaultGroupTag string `gorm:"size:64"`
	PlanStatus      string `gorm:"size:32"`
	TrialEndsAt     *time.Time
	CreatedAt       time.Time
}

// TableName returns the table name for GORM
func (DBOrganization) TableName() string {
	return "organizations"
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *gorm.DB) domain.OrganizationRepository {
	return &OrganizationRepositoryImpl{db: db}
}

// Create implements domain.OrganizationRepository
func (r *OrganizationRepositoryImpl) Create(ctx context.Context, org *domain.Organization) error {
	row := &DBOrganization{
		Name:            org.Name,
		Slug:            org.Slug,
		Type:            org.Type,
		Status:          org.Status,
		DefaultGroupTag: org.DefaultGroupTag,
		PlanStatus:      org.PlanStatus,
		TrialEndsAt:     org.TrialEndsAt,
		CreatedAt:       org.CreatedAt.UTC(),
	}
	if err := conn(ctx, r.db).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrOrganizationExists
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	org.ID = row.ID
	return nil
}

// FindByID implements domain.OrganizationRepository
func (r *OrganizationRepositoryImpl) FindByID(ctx context.Context, id uint) (*domain.Organization, error) {
	return r.first(conn(ctx, r.db).Where("id = ?", id))
}

// FindBySlug implements domain.OrganizationRepository
func (r *OrganizationRepositoryImpl) FindBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return r.first(conn(ctx, r.db).Where("slug = ?", slug))
}

func (r *OrganizationRepositoryImpl) first(q *gorm.DB) (*domain.Organization, error) {
	var row DBOrganization
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	return &domain.Organization{
		ID:              row.ID,
		Name:            row.Name,
		Slug:            row.Slug,
		Type:            row.Type,
		Status:          row.Status,
		DefaultGroupTag: row.DefaultGroupTag,
		PlanStatus:      row.PlanStatus,
		TrialEndsAt:     row.TrialEndsAt,
		CreatedAt:       row.CreatedAt,
	}, nil
}
