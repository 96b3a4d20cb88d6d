package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Item is an owned item record.
type Item struct {
	ID      string `gorm:"primaryKey;column:id"`
	OwnerID string `gorm:"index;column:owner_id"`
}

// Account is a participant's currency balance.
type Account struct {
	ParticipantID string          `gorm:"primaryKey;column:participant_id"`
	Balance       decimal.Decimal `gorm:"column:balance;type:numeric"`
}

// GormRepository implements ItemRepository on a gorm database. Atomicity of
// the cross-transfer is delegated to a single database transaction.
type GormRepository struct {
	logger *zap.Logger
	db     *gorm.DB
}

var _ ItemRepository = (*GormRepository)(nil)

// NewGormRepository migrates the schema and returns a repository.
func NewGormRepository(logger *zap.Logger, db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&Item{}, &Account{}); err != nil {
		return nil, fmt.Errorf("failed to migrate item repository schema: %w", err)
	}
	return &GormRepository{logger: logger.Named("repository"), db: db}, nil
}

// IsOwned reports current ownership with a fresh read.
func (r *GormRepository) IsOwned(ctx context.Context, participantID, itemRef string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Item{}).
		Where("id = ? AND owner_id = ?", itemRef, participantID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check item ownership: %w", err)
	}
	return count > 0, nil
}

// CurrencyBalance returns the participant's balance; zero if no account
// exists yet.
func (r *GormRepository) CurrencyBalance(ctx context.Context, participantID string) (decimal.Decimal, error) {
	var account Account
	err := r.db.WithContext(ctx).Where("participant_id = ?", participantID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return account.Balance, nil
}

// AtomicCrossTransfer performs the all-or-nothing exchange in one database
// transaction. Every item move is guarded by the expected current owner and
// every debit by the current balance; any miss rolls the whole transaction
// back with ErrConflict.
func (r *GormRepository) AtomicCrossTransfer(ctx context.Context, partyA, partyB string, giveA, giveB Stake) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := moveItems(tx, partyA, partyB, giveA.Items); err != nil {
			return err
		}
		if err := moveItems(tx, partyB, partyA, giveB.Items); err != nil {
			return err
		}
		if err := moveCurrency(tx, partyA, partyB, giveA.Currency); err != nil {
			return err
		}
		if err := moveCurrency(tx, partyB, partyA, giveB.Currency); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("cross transfer aborted",
			zap.String("party_a", partyA),
			zap.String("party_b", partyB),
			zap.Error(err))
		return err
	}
	return nil
}

// moveItems reassigns each item, guarded by the expected current owner.
func moveItems(tx *gorm.DB, from, to string, items []string) error {
	for _, ref := range items {
		res := tx.Model(&Item{}).
			Where("id = ? AND owner_id = ?", ref, from).
			Update("owner_id", to)
		if res.Error != nil {
			return fmt.Errorf("failed to transfer item %s: %w", ref, res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("item %s no longer owned by %s: %w", ref, from, ErrConflict)
		}
	}
	return nil
}

// moveCurrency debits from and credits to, guarded by the current balance.
// SQLite serializes writers, so read-modify-write inside the transaction is
// safe; other drivers rely on the transaction's isolation.
func moveCurrency(tx *gorm.DB, from, to string, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}

	var src Account
	err := tx.Where("participant_id = ?", from).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && src.Balance.LessThan(amount)) {
		return fmt.Errorf("balance of %s below staked %s: %w", from, amount, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to read account %s: %w", from, err)
	}
	if err := tx.Model(&Account{}).
		Where("participant_id = ?", from).
		Update("balance", src.Balance.Sub(amount)).Error; err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}

	var dst Account
	err = tx.Where("participant_id = ?", to).First(&dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := tx.Create(&Account{ParticipantID: to, Balance: amount}).Error; err != nil {
			return fmt.Errorf("failed to create account %s: %w", to, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read account %s: %w", to, err)
	}
	if err := tx.Model(&Account{}).
		Where("participant_id = ?", to).
		Update("balance", dst.Balance.Add(amount)).Error; err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}
	return nil
}

// CreateItem registers an item under an owner. Used by seeding and tests.
func (r *GormRepository) CreateItem(ctx context.Context, ownerID, itemRef string) error {
	if err := r.db.WithContext(ctx).Create(&Item{ID: itemRef, OwnerID: ownerID}).Error; err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// Deposit adds currency to a participant's account, creating it on first
// use.
func (r *GormRepository) Deposit(ctx context.Context, participantID string, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account Account
		err := tx.Where("participant_id = ?", participantID).First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&Account{ParticipantID: participantID, Balance: amount}).Error
		}
		if err != nil {
			return fmt.Errorf("failed to read account: %w", err)
		}
		return tx.Model(&Account{}).
			Where("participant_id = ?", participantID).
			Update("balance", account.Balance.Add(amount)).Error
	})
}
