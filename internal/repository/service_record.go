package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
	"gorm.io/gorm"
)

// Entry types in a day's ledger listing.
const (
	EntryService     = "service"
	EntryProductSale = "product_sale"
)

// DailyEntry is one line of a day's ledger, either a service or a product sale.
type DailyEntry struct {
	Type            string  `json:"type"`
	ID              uint    `json:"id"`
	CustomerName    string  `json:"customer_name,omitempty"`
	ServiceType     string  `json:"service_type,omitempty"`
	ProductName     string  `json:"product_name,omitempty"`
	Quantity        int     `json:"quantity,omitempty"`
	Amount          float64 `json:"amount"`
	Commission      float64 `json:"commission"`
	CommissionTo    string  `json:"commission_to,omitempty"`
	ReferralChannel string  `json:"referral_channel,omitempty"`
	NetAmount       float64 `json:"net_amount"`
	Confirmed       bool    `json:"confirmed"`
}

// ServiceRecordInput is a parsed "service rendered" fact.
type ServiceRecordInput struct {
	CustomerName string
	ServiceType  string
	// DefaultPrice and Category seed the service type if it is new.
	DefaultPrice *float64
	Category     string

	Date   Day
	Amount *float64
	// Commission 0 defaults to what the referral channel earns on Amount.
	Commission float64
	// NetAmount overrides Amount - Commission.
	NetAmount *float64

	// ReferralChannelID wins over CommissionTo, which names an external
	// channel to resolve.
	ReferralChannelID *uint
	CommissionTo      string

	EmployeeName     string
	RecorderNickname string
	MembershipID     *uint

	Notes      string
	Confidence *float64
	Confirmed  bool
	ExtraData  map[string]any
}

func (in ServiceRecordInput) validate() (time.Time, error) {
	v := validation.Violations{}
	day, _ := in.Date.resolve("date", v)
	if in.Amount == nil {
		v["amount"] = "required"
	} else {
		validation.NonNegativeFloat("amount", *in.Amount, v)
	}
	validation.NonNegativeFloat("commission", in.Commission, v)
	if in.NetAmount != nil {
		validation.Finite("net_amount", *in.NetAmount, v)
	}
	if in.DefaultPrice != nil {
		validation.NonNegativeFloat("default_price", *in.DefaultPrice, v)
	}
	if in.Confidence != nil {
		validation.RangeFloat("confidence", *in.Confidence, 0, 1, v)
	}
	return day, v.Err()
}

// ServiceRecordAmendment corrects a saved record. Nil fields and a zero Date are left alone.
type ServiceRecordAmendment struct {
	Amount       *float64
	Commission   *float64
	NetAmount    *float64
	Date         Day
	Reason       string
	RawMessageID uint
}

type ServiceRecordRepository struct {
	conn         *db.Conn
	customers    *CustomerRepository
	serviceTypes *ServiceTypeRepository
	staff        *StaffRepository
	channels     *ChannelRepository
}

func NewServiceRecordRepository(conn *db.Conn, customers *CustomerRepository, serviceTypes *ServiceTypeRepository, staff *StaffRepository, channels *ChannelRepository) *ServiceRecordRepository {
	return &ServiceRecordRepository{conn: conn, customers: customers, serviceTypes: serviceTypes, staff: staff, channels: channels}
}

// SaveTx resolves every referenced entity and writes the record inside tx.
// rawMessageID 0 means the record has no source message.
func (r *ServiceRecordRepository) SaveTx(tx *gorm.DB, in ServiceRecordInput, rawMessageID uint) (*models.ServiceRecord, error) {
	day, err := in.validate()
	if err != nil {
		return nil, err
	}

	channel, err := r.referralChannel(tx, in)
	if err != nil {
		return nil, err
	}
	commission := in.Commission
	if commission == 0 && channel != nil {
		commission = channel.Commission(*in.Amount)
	}

	customer, err := r.customers.ResolveTx(tx, in.CustomerName, CustomerAttrs{})
	if err != nil {
		return nil, err
	}
	st, err := r.serviceTypes.ResolveTx(tx, in.ServiceType, ServiceTypeAttrs{DefaultPrice: in.DefaultPrice, Category: in.Category})
	if err != nil {
		return nil, err
	}

	rec := &models.ServiceRecord{
		CustomerID:       customer.ID,
		ServiceTypeID:    st.ID,
		MembershipID:     in.MembershipID,
		CommissionTo:     in.CommissionTo,
		ServiceDate:      day,
		Amount:           *in.Amount,
		CommissionAmount: commission,
		NetAmount:        *in.Amount - commission,
		Notes:            in.Notes,
		Confirmed:        in.Confirmed,
		RawMessageID:     optionalID(rawMessageID),
		ParseConfidence:  0.5,
		ExtraData:        in.ExtraData,
	}
	if in.NetAmount != nil {
		rec.NetAmount = *in.NetAmount
	}
	if in.Confidence != nil {
		rec.ParseConfidence = *in.Confidence
	}
	if in.Confirmed {
		now := time.Now().UTC()
		rec.ConfirmedAt = &now
	}

	if in.EmployeeName != "" {
		emp, err := r.staff.ResolveTx(tx, in.EmployeeName, StaffAttrs{})
		if err != nil {
			return nil, err
		}
		rec.EmployeeID = &emp.ID
	}
	if in.RecorderNickname != "" {
		recorder, err := r.staff.ResolveTx(tx, in.RecorderNickname, StaffAttrs{Nickname: in.RecorderNickname})
		if err != nil {
			return nil, err
		}
		rec.RecorderID = &recorder.ID
	}

	if channel != nil {
		rec.ReferralChannelID = &channel.ID
	}

	if err := tx.Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// referralChannel picks the attribution for a record: the explicit channel id
// first, then the legacy commission_to name as an external channel.
func (r *ServiceRecordRepository) referralChannel(tx *gorm.DB, in ServiceRecordInput) (*models.ReferralChannel, error) {
	switch {
	case in.ReferralChannelID != nil:
		ch, err := findByID[models.ReferralChannel](tx, *in.ReferralChannelID)
		if err != nil {
			return nil, err
		}
		if ch == nil {
			return nil, validation.Single("referral_channel_id", "not_found")
		}
		return ch, nil
	case in.CommissionTo != "":
		return r.channels.ResolveTx(tx, in.CommissionTo, ChannelAttrs{Type: models.ChannelExternal})
	}
	return nil, nil
}

// Save writes the record in its own transaction and returns its id.
func (r *ServiceRecordRepository) Save(ctx context.Context, in ServiceRecordInput, rawMessageID uint) (uint, error) {
	var id uint
	err := r.conn.WithSession(ctx, func(tx *gorm.DB) error {
		rec, err := r.SaveTx(tx, in, rawMessageID)
		if err != nil {
			return err
		}
		id = rec.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save service record: %w", err)
	}
	return id, nil
}

func (r *ServiceRecordRepository) GetByID(ctx context.Context, id uint) (*models.ServiceRecord, error) {
	return findByID[models.ServiceRecord](r.conn.DB(ctx), id)
}

// ByDate lists the services rendered on day, in insertion order.
func (r *ServiceRecordRepository) ByDate(ctx context.Context, day time.Time) ([]DailyEntry, error) {
	type row struct {
		ID               uint
		CustomerName     string
		ServiceType      string
		Amount           float64
		CommissionAmount float64
		CommissionTo     *string
		ChannelName      *string
		NetAmount        float64
		Confirmed        bool
	}
	from, to := dayRange(day)
	var rows []row
	err := r.conn.DB(ctx).Table("service_records AS sr").
		Select("sr.id, c.name AS customer_name, st.name AS service_type, sr.amount, sr.commission_amount, sr.commission_to, rc.name AS channel_name, sr.net_amount, sr.confirmed").
		Joins("JOIN customers c ON c.id = sr.customer_id").
		Joins("JOIN service_types st ON st.id = sr.service_type_id").
		Joins("LEFT JOIN referral_channels rc ON rc.id = sr.referral_channel_id").
		Where("sr.service_date >= ? AND sr.service_date < ?", from, to).
		Order("sr.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("service records on %s: %w", from.Format(validation.DateLayout), err)
	}

	out := make([]DailyEntry, 0, len(rows))
	for _, rw := range rows {
		e := DailyEntry{
			Type:         EntryService,
			ID:           rw.ID,
			CustomerName: rw.CustomerName,
			ServiceType:  rw.ServiceType,
			Amount:       rw.Amount,
			Commission:   rw.CommissionAmount,
			NetAmount:    rw.NetAmount,
			Confirmed:    rw.Confirmed,
		}
		if rw.CommissionTo != nil {
			e.CommissionTo = *rw.CommissionTo
		}
		if rw.ChannelName != nil {
			e.ReferralChannel = *rw.ChannelName
		}
		out = append(out, e)
	}
	return out, nil
}

// Confirm marks a record as checked by a human and reports whether it existed.
func (r *ServiceRecordRepository) Confirm(ctx context.Context, id uint) (bool, error) {
	ok, err := updateByID(r.conn.DB(ctx), &models.ServiceRecord{}, id, map[string]any{
		"confirmed":    true,
		"confirmed_at": time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("confirm service record %d: %w", id, err)
	}
	return ok, nil
}

// Amend corrects amount, commission, net amount or date of a saved record and
// leaves a Correction holding the old and new values. It returns nil when the
// record does not exist.
func (r *ServiceRecordRepository) Amend(ctx context.Context, id uint, a ServiceRecordAmendment) (*models.ServiceRecord, error) {
	v := validation.Violations{}
	var newDay time.Time
	if !a.Date.IsZero() {
		newDay, _ = a.Date.resolve("date", v)
	}
	if a.Amount != nil {
		validation.NonNegativeFloat("amount", *a.Amount, v)
	}
	if a.Commission != nil {
		validation.NonNegativeFloat("commission", *a.Commission, v)
	}
	if a.NetAmount != nil {
		validation.Finite("net_amount", *a.NetAmount, v)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	rec, err := commit[models.ServiceRecord](ctx, r.conn, func(tx *gorm.DB) (uint, error) {
		rec, err := findByID[models.ServiceRecord](forUpdate(tx), id)
		if err != nil || rec == nil {
			return 0, err
		}
		oldVals, newVals := map[string]any{}, map[string]any{}
		set := func(col string, before, after any) {
			if before != after {
				oldVals[col], newVals[col] = before, after
			}
		}

		amount, commission := rec.Amount, rec.CommissionAmount
		if a.Amount != nil {
			amount = *a.Amount
		}
		if a.Commission != nil {
			commission = *a.Commission
		}
		net := rec.NetAmount
		switch {
		case a.NetAmount != nil:
			net = *a.NetAmount
		case a.Amount != nil || a.Commission != nil:
			net = amount - commission
		}
		set("amount", rec.Amount, amount)
		set("commission_amount", rec.CommissionAmount, commission)
		set("net_amount", rec.NetAmount, net)
		if !newDay.IsZero() && !newDay.Equal(models.Day(rec.ServiceDate)) {
			oldVals["service_date"] = models.Day(rec.ServiceDate).Format(validation.DateLayout)
			newVals["service_date"] = newDay.Format(validation.DateLayout)
		}
		if len(newVals) == 0 {
			return rec.ID, nil
		}

		cols := map[string]any{}
		for col, val := range newVals {
			cols[col] = val
		}
		if _, ok := cols["service_date"]; ok {
			cols["service_date"] = newDay
		}
		if err := tx.Model(rec).Updates(cols).Error; err != nil {
			return 0, err
		}
		_, err = recordCorrectionTx(tx, CorrectionInput{
			RecordType:   "service_record",
			RecordID:     rec.ID,
			Type:         "amend",
			OldValue:     oldVals,
			NewValue:     newVals,
			Reason:       a.Reason,
			RawMessageID: a.RawMessageID,
		})
		return rec.ID, err
	})
	if err != nil {
		return nil, fmt.Errorf("amend service record %d: %w", id, err)
	}
	return rec, nil
}
