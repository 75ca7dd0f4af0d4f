package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kvtogether_backend/internals/features/wallets/model"
	"kvtogether_backend/internals/logging"
)

var (
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrInvalidAmount       = errors.New("wallet amount must be positive")
	ErrReferenceRequired   = errors.New("wallet reference is required")
	ErrReferenceMismatch   = errors.New("wallet reference already used for a different movement")
)

type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// Movement describes one credit or debit. Reference makes it idempotent:
// a second movement with the same reference returns the first one.
type Movement struct {
	UserID      uuid.UUID
	Amount      int64
	Reference   string
	Description string
}

// Credit applies a credit in its own transaction.
func (s *WalletService) Credit(ctx context.Context, m Movement) (model.WalletTransaction, bool, error) {
	var (
		out     model.WalletTransaction
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, created, err = s.CreditTx(ctx, tx, m)
		return err
	})
	return out, created, err
}

// CreditTx adds m.Amount to the user's wallet inside tx. created is false
// when the reference was already applied.
func (s *WalletService) CreditTx(ctx context.Context, tx *gorm.DB, m Movement) (model.WalletTransaction, bool, error) {
	return s.apply(ctx, tx, model.TransactionCredit, m)
}

// DebitTx subtracts m.Amount inside tx and fails with ErrInsufficientBalance
// when the wallet cannot cover it; the caller must roll back.
func (s *WalletService) DebitTx(ctx context.Context, tx *gorm.DB, m Movement) (model.WalletTransaction, bool, error) {
	return s.apply(ctx, tx, model.TransactionDebit, m)
}

func (s *WalletService) apply(ctx context.Context, tx *gorm.DB, typ model.TransactionType, m Movement) (model.WalletTransaction, bool, error) {
	if m.Amount <= 0 {
		return model.WalletTransaction{}, false, ErrInvalidAmount
	}
	if m.Reference == "" {
		return model.WalletTransaction{}, false, ErrReferenceRequired
	}
	db := tx.WithContext(ctx)

	if prior, ok, err := findByReference(db, m.Reference); err != nil {
		return prior, false, err
	} else if ok {
		if prior.Type != typ || prior.UserID != m.UserID || prior.Amount != m.Amount {
			return prior, false, ErrReferenceMismatch
		}
		return prior, false, nil
	}

	wallet, err := ensureWallet(db, m.UserID)
	if err != nil {
		return model.WalletTransaction{}, false, err
	}

	delta := m.Amount
	cond := db.Model(&model.Wallet{}).Where("id = ?", wallet.ID)
	if typ == model.TransactionDebit {
		delta = -m.Amount
		cond = cond.Where("balance >= ?", m.Amount)
	}
	res := cond.Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return model.WalletTransaction{}, false, fmt.Errorf("update wallet balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.WalletTransaction{}, false, ErrInsufficientBalance
	}

	var after model.Wallet
	if err := db.Select("balance").Where("id = ?", wallet.ID).Take(&after).Error; err != nil {
		return model.WalletTransaction{}, false, fmt.Errorf("reload wallet: %w", err)
	}

	row := model.WalletTransaction{
		WalletID:      wallet.ID,
		UserID:        m.UserID,
		Type:          typ,
		Amount:        m.Amount,
		Reference:     m.Reference,
		BalanceBefore: after.Balance - delta,
		BalanceAfter:  after.Balance,
	}
	if m.Description != "" {
		d := m.Description
		row.Description = &d
	}
	ins := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reference"}}, DoNothing: true}).Create(&row)
	if ins.Error != nil {
		return model.WalletTransaction{}, false, fmt.Errorf("insert wallet transaction: %w", ins.Error)
	}
	if ins.RowsAffected == 0 {
		// A concurrent writer applied the same reference first; abort so the
		// balance change above is rolled back.
		return model.WalletTransaction{}, false, fmt.Errorf("wallet reference %s: %w", m.Reference, ErrReferenceMismatch)
	}

	logging.Ctx(ctx).Info().
		Str("user_id", m.UserID.String()).
		Str("type", string(typ)).
		Int64("amount", m.Amount).
		Int64("balance_after", row.BalanceAfter).
		Str("reference", m.Reference).
		Msg("wallet movement applied")
	return row, true, nil
}

func findByReference(db *gorm.DB, ref string) (model.WalletTransaction, bool, error) {
	var rows []model.WalletTransaction
	if err := db.Where("reference = ?", ref).Limit(1).Find(&rows).Error; err != nil {
		return model.WalletTransaction{}, false, fmt.Errorf("lookup wallet reference: %w", err)
	}
	if len(rows) == 0 {
		return model.WalletTransaction{}, false, nil
	}
	return rows[0], true, nil
}

func ensureWallet(db *gorm.DB, userID uuid.UUID) (model.Wallet, error) {
	w := model.Wallet{UserID: userID}
	if err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).Create(&w).Error; err != nil {
		return model.Wallet{}, fmt.Errorf("ensure wallet: %w", err)
	}
	var out model.Wallet
	if err := db.Where("user_id = ?", userID).Take(&out).Error; err != nil {
		return model.Wallet{}, fmt.Errorf("load wallet: %w", err)
	}
	return out, nil
}

// Summary is a wallet with its most recent movements.
type Summary struct {
	Wallet       model.Wallet              `json:"wallet"`
	Transactions []model.WalletTransaction `json:"transactions"`
}

func (s *WalletService) Get(ctx context.Context, userID uuid.UUID, limit int) (Summary, error) {
	db := s.DB.WithContext(ctx)
	var w model.Wallet
	err := db.Where("user_id = ?", userID).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Summary{Wallet: model.Wallet{UserID: userID}, Transactions: []model.WalletTransaction{}}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("load wallet: %w", err)
	}
	var txs []model.WalletTransaction
	if err := db.Where("wallet_id = ?", w.ID).Order("created_at desc").Limit(limit).Find(&txs).Error; err != nil {
		return Summary{}, fmt.Errorf("list wallet transactions: %w", err)
	}
	return Summary{Wallet: w, Transactions: txs}, nil
}
