package seeds

import (
	"context"
	"path/filepath"

	"gorm.io/gorm"

	"kvtogether_backend/internals/seeds/campaigns"
	"kvtogether_backend/internals/seeds/wallets"
)

// RunAllSeeds loads the demo data under dir (normally internals/seeds).
func RunAllSeeds(ctx context.Context, db *gorm.DB, dir string) error {
	//* Campaigns
	if _, err := campaigns.SeedCampaignsFromJSON(db.WithContext(ctx), filepath.Join(dir, "campaigns", "data_campaigns.json")); err != nil {
		return err
	}

	//* Wallets
	if _, err := wallets.SeedWalletsFromJSON(ctx, db, filepath.Join(dir, "wallets", "data_wallets.json")); err != nil {
		return err
	}
	return nil
}
