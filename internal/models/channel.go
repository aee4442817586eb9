package models

import (
	"time"

	"gorm.io/datatypes"
)

// ChannelType says where a referral came from.
type ChannelType string

const (
	ChannelInternal ChannelType = "internal"
	ChannelExternal ChannelType = "external"
	ChannelPlatform ChannelType = "platform"
)

// Valid reports whether t is a known channel type.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelInternal, ChannelExternal, ChannelPlatform:
		return true
	}
	return false
}

// CommissionType says how CommissionRate is applied.
type CommissionType string

const (
	CommissionPercentage CommissionType = "percentage"
	CommissionFixed      CommissionType = "fixed"
)

// ReferralChannel is a source of customers that may earn a commission.
type ReferralChannel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string      `gorm:"size:100;not null;index" json:"name"`
	ChannelType ChannelType `gorm:"size:20;not null;default:'external';index" json:"channel_type"`
	ContactInfo string      `gorm:"size:200" json:"contact_info,omitempty"`

	CommissionRate *float64       `gorm:"type:decimal(10,2)" json:"commission_rate,omitempty"`
	CommissionType CommissionType `gorm:"size:20;not null;default:'percentage'" json:"commission_type"`

	IsActive bool   `gorm:"not null;default:true;index" json:"is_active"`
	Notes    string `gorm:"type:text" json:"notes,omitempty"`

	ExtraData datatypes.JSONMap `json:"extra_data,omitempty"`
}

func (ReferralChannel) TableName() string { return "referral_channels" }

// Commission computes what this channel earns on amount. Channels without a
// rate earn nothing.
func (c *ReferralChannel) Commission(amount float64) float64 {
	if c.CommissionRate == nil {
		return 0
	}
	if c.CommissionType == CommissionFixed {
		return *c.CommissionRate
	}
	return amount * *c.CommissionRate / 100
}
