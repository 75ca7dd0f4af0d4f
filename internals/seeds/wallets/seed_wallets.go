package wallets

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/gorm"

	walletsvc "kvtogether_backend/internals/features/wallets/service"
	"kvtogether_backend/internals/logging"
)

type WalletSeed struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// SeedWalletsFromJSON credits each wallet once; the seed reference makes
// reruns no-ops.
func SeedWalletsFromJSON(ctx context.Context, db *gorm.DB, filePath string) (int, error) {
	logging.Info().Str("file", filePath).Msg("📥 reading wallet seeds")

	file, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("read seeds: %w", err)
	}
	var seeds []WalletSeed
	if err := sonic.Unmarshal(file, &seeds); err != nil {
		return 0, fmt.Errorf("decode seeds: %w", err)
	}

	svc := walletsvc.NewWalletService(db)
	credited := 0
	for _, s := range seeds {
		userID, err := uuid.Parse(s.UserID)
		if err != nil {
			return credited, fmt.Errorf("seed user_id %q: %w", s.UserID, err)
		}
		_, created, err := svc.Credit(ctx, walletsvc.Movement{
			UserID:      userID,
			Amount:      s.Balance,
			Reference:   "seed:" + userID.String(),
			Description: "demo balance",
		})
		if err != nil {
			return credited, fmt.Errorf("credit %s: %w", userID, err)
		}
		if created {
			credited++
		}
	}
	logging.Info().Int("credited", credited).Msg("✅ wallet seeds applied")
	return credited, nil
}
