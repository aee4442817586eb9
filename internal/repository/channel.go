package repository

import (
	"context"
	"fmt"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
	"gorm.io/gorm"
)

// ChannelAttrs seed a referral channel created on first sight. Type defaults to external.
type ChannelAttrs struct {
	Type           models.ChannelType
	ContactInfo    string
	CommissionRate *float64
	CommissionType models.CommissionType
}

func (a ChannelAttrs) validate() error {
	v := validation.Violations{}
	if a.Type != "" && !a.Type.Valid() {
		v["channel_type"] = "not_allowed"
	}
	validation.OneOf("commission_type", string(a.CommissionType), []string{string(models.CommissionPercentage), string(models.CommissionFixed)}, v)
	if a.CommissionRate != nil {
		validation.NonNegativeFloat("commission_rate", *a.CommissionRate, v)
	}
	return v.Err()
}

// ChannelFilter narrows List. A zero filter returns every channel.
type ChannelFilter struct {
	Type       models.ChannelType
	ActiveOnly bool
}

type ChannelRepository struct {
	conn *db.Conn
}

func NewChannelRepository(conn *db.Conn) *ChannelRepository { return &ChannelRepository{conn: conn} }

func (r *ChannelRepository) ResolveTx(tx *gorm.DB, name string, attrs ChannelAttrs) (*models.ReferralChannel, error) {
	return resolveByName(tx, name, func() (*models.ReferralChannel, error) {
		if err := attrs.validate(); err != nil {
			return nil, err
		}
		ch := &models.ReferralChannel{
			Name:           name,
			ChannelType:    attrs.Type,
			ContactInfo:    attrs.ContactInfo,
			CommissionRate: attrs.CommissionRate,
			CommissionType: attrs.CommissionType,
			IsActive:       true,
		}
		if ch.ChannelType == "" {
			ch.ChannelType = models.ChannelExternal
		}
		if ch.CommissionType == "" {
			ch.CommissionType = models.CommissionPercentage
		}
		return ch, nil
	})
}

func (r *ChannelRepository) Resolve(ctx context.Context, name string, attrs ChannelAttrs) (*models.ReferralChannel, error) {
	ch, err := commit[models.ReferralChannel](ctx, r.conn, func(tx *gorm.DB) (uint, error) {
		ch, err := r.ResolveTx(tx, name, attrs)
		if err != nil {
			return 0, err
		}
		return ch.ID, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve channel %q: %w", name, err)
	}
	return ch, nil
}

func (r *ChannelRepository) GetByID(ctx context.Context, id uint) (*models.ReferralChannel, error) {
	return findByID[models.ReferralChannel](r.conn.DB(ctx), id)
}

func (r *ChannelRepository) List(ctx context.Context, f ChannelFilter) ([]models.ReferralChannel, error) {
	var out []models.ReferralChannel
	q := r.conn.DB(ctx).Order("id")
	if f.Type != "" {
		q = q.Where("channel_type = ?", f.Type)
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return out, nil
}

// Deactivate stops a channel from being offered and reports whether it existed.
func (r *ChannelRepository) Deactivate(ctx context.Context, id uint) (bool, error) {
	ok, err := updateByID(r.conn.DB(ctx), &models.ReferralChannel{}, id, map[string]any{"is_active": false})
	if err != nil {
		return false, fmt.Errorf("deactivate channel %d: %w", id, err)
	}
	return ok, nil
}
