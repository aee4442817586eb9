package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RawMessageInput is an inbound chat message. A non-empty ExternalID makes the
// save idempotent.
type RawMessageInput struct {
	ExternalID string
	Sender     string
	SenderID   string
	Content    string
	MsgType    string
	GroupID    string
	Timestamp  time.Time
	IsAtBot    bool
	IsBusiness *bool
	// ParseStatus defaults to pending.
	ParseStatus models.ParseStatus
}

// CorrectionInput describes a change made to a saved record.
type CorrectionInput struct {
	RecordType   string
	RecordID     uint
	Type         string
	OldValue     map[string]any
	NewValue     map[string]any
	Reason       string
	RawMessageID uint
}

func (in CorrectionInput) validate() error {
	v := validation.Violations{}
	validation.Required("original_record_type", in.RecordType, v)
	validation.Required("correction_type", in.Type, v)
	if in.RecordID == 0 {
		v["original_record_id"] = "required"
	}
	return v.Err()
}

type MessageRepository struct {
	conn *db.Conn
}

func NewMessageRepository(conn *db.Conn) *MessageRepository { return &MessageRepository{conn: conn} }

// SaveRawMessage stores msg and returns its id. A message whose external id is
// already stored returns the existing id, including when another writer
// inserted it concurrently.
func (r *MessageRepository) SaveRawMessage(ctx context.Context, in RawMessageInput) (uint, error) {
	status := in.ParseStatus
	if status == "" {
		status = models.ParsePending
	}
	v := validation.Violations{}
	validation.OneOf("parse_status", string(status), models.ParseStatuses(), v)
	if err := v.Err(); err != nil {
		return 0, err
	}
	externalID := strings.TrimSpace(in.ExternalID)

	var id uint
	err := r.conn.WithSession(ctx, func(tx *gorm.DB) error {
		if externalID != "" {
			existing, err := r.byExternalID(tx, externalID)
			if err != nil {
				return err
			}
			if existing != nil {
				id = existing.ID
				return nil
			}
		}
		msg := &models.RawMessage{
			Sender:      in.Sender,
			SenderID:    in.SenderID,
			Content:     in.Content,
			MsgType:     in.MsgType,
			GroupID:     in.GroupID,
			Timestamp:   in.Timestamp.UTC(),
			IsAtBot:     in.IsAtBot,
			IsBusiness:  in.IsBusiness,
			ParseStatus: status,
		}
		if externalID != "" {
			msg.ExternalID = &externalID
		}
		if msg.MsgType == "" {
			msg.MsgType = "text"
		}
		if in.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		id = msg.ID
		return nil
	})
	if externalID != "" && db.IsUniqueViolation(err) {
		existing, lookupErr := r.byExternalID(r.conn.DB(ctx), externalID)
		if lookupErr == nil && existing != nil {
			return existing.ID, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("save raw message: %w", err)
	}
	return id, nil
}

func (r *MessageRepository) byExternalID(q *gorm.DB, externalID string) (*models.RawMessage, error) {
	var out []models.RawMessage
	if err := q.Where("external_msg_id = ?", externalID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// UpdateParseStatus sets the status and, when non-nil, the parse result and
// error. It reports whether the message exists. Numbers in a stored result
// read back as json.Number.
func (r *MessageRepository) UpdateParseStatus(ctx context.Context, id uint, status models.ParseStatus, result map[string]any, errMsg *string) (bool, error) {
	v := validation.Violations{}
	validation.Required("parse_status", string(status), v)
	validation.OneOf("parse_status", string(status), models.ParseStatuses(), v)
	if err := v.Err(); err != nil {
		return false, err
	}
	cols := map[string]any{"parse_status": status}
	if result != nil {
		cols["parse_result"] = datatypes.JSONMap(result)
	}
	if errMsg != nil {
		cols["parse_error"] = *errMsg
	}
	ok, err := updateByID(r.conn.DB(ctx), &models.RawMessage{}, id, cols)
	if err != nil {
		return false, fmt.Errorf("update parse status of message %d: %w", id, err)
	}
	return ok, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id uint) (*models.RawMessage, error) {
	return findByID[models.RawMessage](r.conn.DB(ctx), id)
}

// ByStatus lists messages in a parse status, oldest first. limit <= 0 means no limit.
func (r *MessageRepository) ByStatus(ctx context.Context, status models.ParseStatus, limit int) ([]models.RawMessage, error) {
	var out []models.RawMessage
	q := r.conn.DB(ctx).Where("parse_status = ?", status).Order("timestamp").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("messages with status %s: %w", status, err)
	}
	return out, nil
}

func recordCorrectionTx(tx *gorm.DB, in CorrectionInput) (*models.Correction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	c := &models.Correction{
		OriginalRecordType: in.RecordType,
		OriginalRecordID:   in.RecordID,
		CorrectionType:     in.Type,
		OldValue:           in.OldValue,
		NewValue:           in.NewValue,
		Reason:             in.Reason,
		RawMessageID:       optionalID(in.RawMessageID),
	}
	if err := tx.Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// SaveCorrection appends an audit entry. Corrections are never updated.
func (r *MessageRepository) SaveCorrection(ctx context.Context, in CorrectionInput) (uint, error) {
	var id uint
	err := r.conn.WithSession(ctx, func(tx *gorm.DB) error {
		c, err := recordCorrectionTx(tx, in)
		if err != nil {
			return err
		}
		id = c.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save correction: %w", err)
	}
	return id, nil
}

// Corrections lists the audit trail of one record, oldest first. Numbers in
// the old and new values read back as json.Number.
func (r *MessageRepository) Corrections(ctx context.Context, recordType string, recordID uint) ([]models.Correction, error) {
	var out []models.Correction
	err := r.conn.DB(ctx).
		Where("original_record_type = ? AND original_record_id = ?", recordType, recordID).
		Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("corrections of %s %d: %w", recordType, recordID, err)
	}
	return out, nil
}
