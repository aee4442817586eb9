package models

import (
	"time"

	"gorm.io/datatypes"
)

// ParseStatus tracks how far an inbound message got through parsing.
type ParseStatus string

const (
	ParsePending ParseStatus = "pending"
	ParseParsed  ParseStatus = "parsed"
	ParseFailed  ParseStatus = "failed"
	ParseIgnored ParseStatus = "ignored"
)

// ParseStatuses lists every accepted status.
func ParseStatuses() []string {
	return []string{string(ParsePending), string(ParseParsed), string(ParseFailed), string(ParseIgnored)}
}

// RawMessage is an inbound chat message as received. ExternalID, when present,
// is unique and makes ingestion idempotent.
type RawMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ExternalID *string `gorm:"column:external_msg_id;size:100;uniqueIndex" json:"external_msg_id,omitempty"`
	Sender     string  `gorm:"size:100;not null" json:"sender"`
	SenderID   string  `gorm:"size:100" json:"sender_id,omitempty"`
	Content    string  `gorm:"type:text;not null" json:"content"`
	MsgType    string  `gorm:"size:20;not null;default:'text'" json:"msg_type"`
	GroupID    string  `gorm:"size:100;index" json:"group_id,omitempty"`

	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
	IsAtBot    bool      `gorm:"not null;default:false" json:"is_at_bot"`
	IsBusiness *bool     `json:"is_business,omitempty"`

	ParseStatus ParseStatus       `gorm:"size:20;not null;default:'pending';index" json:"parse_status"`
	ParseResult datatypes.JSONMap `json:"parse_result,omitempty"`
	ParseError  *string           `gorm:"type:text" json:"parse_error,omitempty"`
}

func (RawMessage) TableName() string { return "raw_messages" }

// Correction is an append-only audit entry describing a change to a saved record.
type Correction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OriginalRecordType string            `gorm:"size:50;not null;index:idx_corrections_record" json:"original_record_type"`
	OriginalRecordID   uint              `gorm:"not null;index:idx_corrections_record" json:"original_record_id"`
	CorrectionType     string            `gorm:"size:50;not null" json:"correction_type"`
	OldValue           datatypes.JSONMap `json:"old_value,omitempty"`
	NewValue           datatypes.JSONMap `json:"new_value,omitempty"`
	Reason             string            `gorm:"type:text" json:"reason,omitempty"`

	RawMessageID *uint       `gorm:"index" json:"raw_message_id,omitempty"`
	RawMessage   *RawMessage `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

func (Correction) TableName() string { return "corrections" }

// DailySummary holds the figures for one calendar date; there is at most one per date.
type DailySummary struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SummaryDate time.Time `gorm:"type:date;not null;uniqueIndex" json:"summary_date"`

	TotalServiceRevenue float64 `gorm:"type:decimal(10,2);not null;default:0" json:"total_service_revenue"`
	TotalProductRevenue float64 `gorm:"type:decimal(10,2);not null;default:0" json:"total_product_revenue"`
	TotalCommissions    float64 `gorm:"type:decimal(10,2);not null;default:0" json:"total_commissions"`
	NetRevenue          float64 `gorm:"type:decimal(10,2);not null;default:0" json:"net_revenue"`
	ServiceCount        int     `gorm:"not null;default:0" json:"service_count"`
	ProductSaleCount    int     `gorm:"not null;default:0" json:"product_sale_count"`
	NewMembers          int     `gorm:"not null;default:0" json:"new_members"`
	MembershipRevenue   float64 `gorm:"type:decimal(10,2);not null;default:0" json:"membership_revenue"`

	SummaryText string `gorm:"type:text" json:"summary_text,omitempty"`
	Confirmed   bool   `gorm:"not null;default:false" json:"confirmed"`
}

func (DailySummary) TableName() string { return "daily_summaries" }

// PluginData is a JSON value owned by an extension, keyed by
// (plugin, entity type, entity id, key).
type PluginData struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PluginName string `gorm:"size:50;not null;uniqueIndex:uq_plugin_data_key,priority:1" json:"plugin_name"`
	EntityType string `gorm:"size:50;not null;uniqueIndex:uq_plugin_data_key,priority:2" json:"entity_type"`
	EntityID   uint   `gorm:"not null;uniqueIndex:uq_plugin_data_key,priority:3" json:"entity_id"`
	DataKey    string `gorm:"size:100;not null;uniqueIndex:uq_plugin_data_key,priority:4" json:"data_key"`

	// text keeps SQLite from coercing bare JSON numbers to REAL; the
	// postgres migration declares JSONB.
	DataValue datatypes.JSON `gorm:"type:text" json:"data_value"`
}

func (PluginData) TableName() string { return "plugin_data" }
