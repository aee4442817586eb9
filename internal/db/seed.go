package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/go-ledger/internal/config"
	"github.com/diewo77/go-ledger/internal/models"
	"gorm.io/gorm"
)

// Seed inserts the profile's starting catalog and referral platforms. Rows that
// already exist by name are left untouched, so seeding twice is harmless.
func Seed(ctx context.Context, c *Conn, profile config.BusinessProfile) error {
	return c.WithSession(ctx, func(tx *gorm.DB) error {
		for _, s := range profile.ServiceTypes {
			var existing models.ServiceType
			err := tx.Where("name = ?", s.Name).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup service type %q: %w", s.Name, err)
			}
			price := s.DefaultPrice
			st := models.ServiceType{Name: s.Name, DefaultPrice: &price, Category: s.Category}
			if err := tx.Create(&st).Error; err != nil {
				return fmt.Errorf("seed service type %q: %w", s.Name, err)
			}
		}
		for _, ch := range profile.Channels {
			var existing models.ReferralChannel
			err := tx.Where("name = ?", ch.Name).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup channel %q: %w", ch.Name, err)
			}
			rc := models.ReferralChannel{
				Name:           ch.Name,
				ChannelType:    models.ChannelType(ch.ChannelType),
				CommissionType: models.CommissionPercentage,
				IsActive:       true,
			}
			if err := tx.Create(&rc).Error; err != nil {
				return fmt.Errorf("seed channel %q: %w", ch.Name, err)
			}
		}
		return nil
	})
}
