package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	campaignModel "kvtogether_backend/internals/features/campaigns/campaigns/model"
	donationModel "kvtogether_backend/internals/features/donations/donations/model"
	gatewayModel "kvtogether_backend/internals/features/donations/gateway_events/model"
	walletModel "kvtogether_backend/internals/features/wallets/model"
	"kvtogether_backend/internals/logging"
)

// Models lists every table owned by this service, in dependency order.
func Models() []any {
	return []any{
		&campaignModel.Campaign{},
		&campaignModel.CampaignReconciliation{},
		&donationModel.Donation{},
		&gatewayModel.GatewayEvent{},
		&walletModel.Wallet{},
		&walletModel.WalletTransaction{},
	}
}

func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logging.Info().Int("tables", len(Models())).Msg("✅ schema migrated")
	return nil
}
