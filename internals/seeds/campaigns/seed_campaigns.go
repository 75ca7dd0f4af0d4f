package campaigns

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	"kvtogether_backend/internals/logging"
)

type CampaignSeed struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	OrganizerID  string `json:"organizer_id"`
	TargetAmount int64  `json:"target_amount"`
	Status       string `json:"status"`
	// EndInDays is relative to the seeding time so demo data never starts expired.
	EndInDays int `json:"end_in_days"`
}

// SeedCampaignsFromJSON inserts campaigns whose title is not present yet.
// current_amount always starts at zero; only reconciliation moves it.
func SeedCampaignsFromJSON(db *gorm.DB, filePath string) (int, error) {
	logging.Info().Str("file", filePath).Msg("📥 reading campaign seeds")

	file, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("read seeds: %w", err)
	}
	var seeds []CampaignSeed
	if err := sonic.Unmarshal(file, &seeds); err != nil {
		return 0, fmt.Errorf("decode seeds: %w", err)
	}

	inserted := 0
	for _, s := range seeds {
		var existing model.Campaign
		err := db.Where("title = ?", s.Title).Take(&existing).Error
		if err == nil {
			logging.Info().Str("title", s.Title).Msg("ℹ️ campaign already seeded, skipping")
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return inserted, fmt.Errorf("lookup %q: %w", s.Title, err)
		}

		organizer, err := uuid.Parse(s.OrganizerID)
		if err != nil {
			return inserted, fmt.Errorf("seed %q organizer_id: %w", s.Title, err)
		}
		status := lifecycle.Draft
		if s.Status != "" {
			if status, err = lifecycle.ParseState(s.Status); err != nil {
				return inserted, fmt.Errorf("seed %q: %w", s.Title, err)
			}
		}
		c := model.Campaign{
			OrganizerID:  organizer,
			Title:        s.Title,
			TargetAmount: s.TargetAmount,
			Status:       status,
		}
		if s.Description != "" {
			d := s.Description
			c.Description = &d
		}
		if s.EndInDays > 0 {
			end := time.Now().UTC().AddDate(0, 0, s.EndInDays)
			c.EndDate = &end
		}
		if err := db.Create(&c).Error; err != nil {
			return inserted, fmt.Errorf("insert %q: %w", s.Title, err)
		}
		inserted++
	}
	logging.Info().Int("inserted", inserted).Msg("✅ campaign seeds applied")
	return inserted, nil
}
