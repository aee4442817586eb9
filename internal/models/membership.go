package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CardTypeStoredValue is the default card: a prepaid balance spent down per visit.
const CardTypeStoredValue = "stored_value"

// Membership is a prepaid card. Balance and RemainingSessions never go negative;
// every change goes through a guarded deduction.
type Membership struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CustomerID uint      `gorm:"not null;index" json:"customer_id"`
	Customer   *Customer `json:"-"`

	CardType          string          `gorm:"size:50;not null" json:"card_type"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	Balance           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"balance"`
	RemainingSessions *int            `json:"remaining_sessions,omitempty"`
	Points            int             `gorm:"not null;default:0" json:"points"`

	OpenedAt  time.Time  `gorm:"type:date;not null" json:"opened_at"`
	ExpiresAt *time.Time `gorm:"type:date" json:"expires_at,omitempty"`
	IsActive  bool       `gorm:"not null;default:true;index" json:"is_active"`

	RawMessageID *uint       `gorm:"index" json:"raw_message_id,omitempty"`
	RawMessage   *RawMessage `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	ExtraData datatypes.JSONMap `json:"extra_data,omitempty"`
}

func (Membership) TableName() string { return "memberships" }

// CanDeduct reports whether the balance covers amount.
func (m *Membership) CanDeduct(amount decimal.Decimal) bool {
	return m.Balance.GreaterThanOrEqual(amount)
}

// CanUseSessions reports whether count sessions remain. Cards without a
// session counter never can.
func (m *Membership) CanUseSessions(count int) bool {
	return m.RemainingSessions != nil && *m.RemainingSessions >= count
}

// Expired reports whether the card is past its expiry date on day.
func (m *Membership) Expired(day time.Time) bool {
	return m.ExpiresAt != nil && Day(day).After(Day(*m.ExpiresAt))
}
