package seeds

import (
	"context"
	"testing"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	walletmodel "kvtogether_backend/internals/features/wallets/model"
	"kvtogether_backend/internals/testinfra"
)

func TestRunAllSeedsIsRepeatable(t *testing.T) {
	db := testinfra.NewSQLiteDB(t)
	ctx := context.Background()

	for i := range 2 {
		if err := RunAllSeeds(ctx, db, "."); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	var campaigns, wallets, movements int64
	db.Model(&model.Campaign{}).Count(&campaigns)
	db.Model(&walletmodel.Wallet{}).Count(&wallets)
	db.Model(&walletmodel.WalletTransaction{}).Count(&movements)
	if campaigns != 3 || wallets != 2 || movements != 2 {
		t.Errorf("campaigns=%d wallets=%d movements=%d, want 3/2/2", campaigns, wallets, movements)
	}

	var seeded []model.Campaign
	db.Find(&seeded)
	for _, c := range seeded {
		if c.CurrentAmount != 0 {
			t.Errorf("%s seeded with current_amount %d", c.Title, c.CurrentAmount)
		}
	}
}
