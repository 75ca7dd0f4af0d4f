package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Wallet struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID  uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	Balance int64     `gorm:"column:balance;not null;default:0;check:chk_wallets_balance_nonneg,balance >= 0" json:"balance"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// WalletTransaction.reference is unique so a retried credit or debit is a no-op.
type WalletTransaction struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	WalletID    uuid.UUID       `gorm:"column:wallet_id;type:uuid;not null;index" json:"wallet_id"`
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Type        TransactionType `gorm:"column:type;type:varchar(10);not null" json:"type"`
	Amount      int64           `gorm:"column:amount;not null;check:chk_wallet_transactions_amount,amount > 0" json:"amount"`
	Reference   string          `gorm:"column:reference;type:varchar(160);not null;uniqueIndex" json:"reference"`
	Description *string         `gorm:"column:description;type:text" json:"description,omitempty"`

	BalanceBefore int64 `gorm:"column:balance_before;not null" json:"balance_before"`
	BalanceAfter  int64 `gorm:"column:balance_after;not null" json:"balance_after"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
