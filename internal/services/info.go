package services

import (
	"time"

	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
)

// StaffInfo is the caller-facing view of a staff member.
type StaffInfo struct {
	ID             uint             `json:"id"`
	Name           string           `json:"name"`
	Nickname       string           `json:"nickname,omitempty"`
	DisplayName    string           `json:"display_name"`
	Role           models.StaffRole `json:"role"`
	CommissionRate float64          `json:"commission_rate"`
	IsActive       bool             `json:"is_active"`
}

// MembershipInfo is a card as shown alongside its customer.
type MembershipInfo struct {
	ID                uint    `json:"id"`
	CardType          string  `json:"card_type"`
	TotalAmount       float64 `json:"total_amount"`
	Balance           float64 `json:"balance"`
	RemainingSessions *int    `json:"remaining_sessions"`
	Points            int     `json:"points"`
	OpenedAt          string  `json:"opened_at"`
	ExpiresAt         string  `json:"expires_at,omitempty"`
	Expired           bool    `json:"expired"`
	IsActive          bool    `json:"is_active"`
}

// CustomerInfo is a customer with their active cards.
type CustomerInfo struct {
	ID          uint             `json:"id"`
	Name        string           `json:"name"`
	Phone       string           `json:"phone,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	Memberships []MembershipInfo `json:"memberships"`
}

// ChannelInfo is the caller-facing view of a referral channel.
type ChannelInfo struct {
	ID             uint                  `json:"id"`
	Name           string                `json:"name"`
	ChannelType    models.ChannelType    `json:"channel_type"`
	CommissionRate *float64              `json:"commission_rate"`
	CommissionType models.CommissionType `json:"commission_type"`
	IsActive       bool                  `json:"is_active"`
}

func staffInfo(s models.Staff) StaffInfo {
	return StaffInfo{
		ID:             s.ID,
		Name:           s.Name,
		Nickname:       s.Nickname,
		DisplayName:    s.DisplayName(),
		Role:           s.Role,
		CommissionRate: s.CommissionRate,
		IsActive:       s.IsActive,
	}
}

// membershipInfo flags cards whose expiry date is before today.
func membershipInfo(m models.Membership, today time.Time) MembershipInfo {
	info := MembershipInfo{
		ID:                m.ID,
		CardType:          m.CardType,
		TotalAmount:       m.TotalAmount.InexactFloat64(),
		Balance:           m.Balance.InexactFloat64(),
		RemainingSessions: m.RemainingSessions,
		Points:            m.Points,
		OpenedAt:          models.Day(m.OpenedAt).Format(validation.DateLayout),
		Expired:           m.Expired(today),
		IsActive:          m.IsActive,
	}
	if m.ExpiresAt != nil {
		info.ExpiresAt = models.Day(*m.ExpiresAt).Format(validation.DateLayout)
	}
	return info
}

func channelInfo(c models.ReferralChannel) ChannelInfo {
	return ChannelInfo{
		ID:             c.ID,
		Name:           c.Name,
		ChannelType:    c.ChannelType,
		CommissionRate: c.CommissionRate,
		CommissionType: c.CommissionType,
		IsActive:       c.IsActive,
	}
}
