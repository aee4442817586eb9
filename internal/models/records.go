package models

import (
	"time"

	"gorm.io/datatypes"
)

// ServiceRecord is one service rendered. Once saved it only changes by being
// confirmed or through an amendment that leaves a Correction behind.
type ServiceRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CustomerID    uint         `gorm:"not null;index" json:"customer_id"`
	Customer      *Customer    `json:"-"`
	ServiceTypeID uint         `gorm:"not null;index" json:"service_type_id"`
	ServiceType   *ServiceType `json:"-"`

	// EmployeeID is who performed the service, RecorderID who logged it.
	EmployeeID *uint  `gorm:"index" json:"employee_id,omitempty"`
	Employee   *Staff `gorm:"foreignKey:EmployeeID" json:"-"`
	RecorderID *uint  `gorm:"index" json:"recorder_id,omitempty"`
	Recorder   *Staff `gorm:"foreignKey:RecorderID" json:"-"`

	ReferralChannelID *uint            `gorm:"index" json:"referral_channel_id,omitempty"`
	ReferralChannel   *ReferralChannel `json:"-"`
	MembershipID      *uint            `gorm:"index" json:"membership_id,omitempty"`
	Membership        *Membership      `json:"-"`

	// CommissionTo is the free-text beneficiary as it was written down.
	CommissionTo string `gorm:"size:100" json:"commission_to,omitempty"`

	ServiceDate      time.Time `gorm:"type:date;not null;index" json:"service_date"`
	Amount           float64   `gorm:"type:decimal(10,2);not null" json:"amount"`
	CommissionAmount float64   `gorm:"type:decimal(10,2);not null;default:0" json:"commission_amount"`
	NetAmount        float64   `gorm:"type:decimal(10,2);not null" json:"net_amount"`
	Notes            string    `gorm:"type:text" json:"notes,omitempty"`

	Confirmed   bool       `gorm:"not null;default:false" json:"confirmed"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`

	RawMessageID    *uint       `gorm:"index" json:"raw_message_id,omitempty"`
	RawMessage      *RawMessage `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	ParseConfidence float64     `gorm:"type:decimal(3,2)" json:"parse_confidence"`

	ExtraData datatypes.JSONMap `json:"extra_data,omitempty"`
}

func (ServiceRecord) TableName() string { return "service_records" }

// ProductSale is one retail sale.
type ProductSale struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	Product    *Product  `json:"-"`
	CustomerID *uint     `gorm:"index" json:"customer_id,omitempty"`
	Customer   *Customer `json:"-"`
	RecorderID *uint     `gorm:"index" json:"recorder_id,omitempty"`
	Recorder   *Staff    `gorm:"foreignKey:RecorderID" json:"-"`

	Quantity    int       `gorm:"not null;default:1" json:"quantity"`
	UnitPrice   *float64  `gorm:"type:decimal(10,2)" json:"unit_price,omitempty"`
	TotalAmount float64   `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	SaleDate    time.Time `gorm:"type:date;not null;index" json:"sale_date"`
	Notes       string    `gorm:"type:text" json:"notes,omitempty"`

	Confirmed   bool       `gorm:"not null;default:false" json:"confirmed"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`

	RawMessageID    *uint       `gorm:"index" json:"raw_message_id,omitempty"`
	RawMessage      *RawMessage `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	ParseConfidence float64     `gorm:"type:decimal(3,2)" json:"parse_confidence"`
}

func (ProductSale) TableName() string { return "product_sales" }
