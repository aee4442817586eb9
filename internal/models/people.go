package models

import (
	"time"

	"gorm.io/datatypes"
)

// StaffRole distinguishes regular staff from managers and the ingest bot account.
type StaffRole string

const (
	StaffRoleStaff   StaffRole = "staff"
	StaffRoleManager StaffRole = "manager"
	StaffRoleBot     StaffRole = "bot"
)

// Staff is an employee of the store. Name is the resolution key but is not
// unique: two people may share a name.
type Staff struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `gorm:"size:100;not null;index" json:"name"`
	Nickname string `gorm:"size:100;index" json:"nickname,omitempty"`
	Alias    string `gorm:"size:100" json:"alias,omitempty"`

	Role           StaffRole `gorm:"size:20;not null;default:'staff'" json:"role"`
	CommissionRate float64   `gorm:"type:decimal(5,2);default:0" json:"commission_rate"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`

	ExtraData datatypes.JSONMap `json:"extra_data,omitempty"`
}

func (Staff) TableName() string { return "employees" }

// DisplayName prefers the chat nickname used by the front desk.
func (s *Staff) DisplayName() string {
	if s.Nickname != "" {
		return s.Nickname
	}
	return s.Name
}

// Customer is a store customer, resolved by exact name.
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string `gorm:"size:100;not null;index" json:"name"`
	Phone string `gorm:"size:20;index" json:"phone,omitempty"`
	Notes string `gorm:"type:text" json:"notes,omitempty"`

	ExtraData datatypes.JSONMap `json:"extra_data,omitempty"`
}

func (Customer) TableName() string { return "customers" }
