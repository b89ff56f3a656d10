package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/Tsipchain/driver-platform/domain"
)

type txKey struct{}

// GormTxManager implements domain.TxManager by carrying a *gorm.DB transaction on the context
type GormTxManager struct {
	db *gorm.DB
}

// NewTxManager creates a transaction manager over db
func NewTxManager(db *gorm.DB) domain.TxManager {
	return &GormTxManager{db: db}
}

// WithinTransaction implements domain.TxManager. A ctx already carrying a
// transaction joins it instead of opening a new one.
func (m *GormTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction on ctx, or db when there is none
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// Models lists every table owned by this package, in migration order
func Models() []interface{} {
	return []interface{}{
		&DBOrganization{},
		&DBDriver{},
		&DBSession{},
		&DBRevokedToken{},
		&DBTrialAttempt{},
		&DBOperatorToken{},
	}
}
