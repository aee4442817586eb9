package repository

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/diewo77/go-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRecordSaveAndListByDate(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	msgID, err := r.messages.SaveRawMessage(ctx, RawMessageInput{ExternalID: "wx-1", Sender: "front desk", Content: "Alice haircut 80"})
	require.NoError(t, err)
	meituan, err := r.channels.Resolve(ctx, "meituan", ChannelAttrs{Type: models.ChannelPlatform})
	require.NoError(t, err)

	id, err := r.serviceRecords.Save(ctx, ServiceRecordInput{
		CustomerName:      "Alice",
		ServiceType:       "Haircut",
		Date:              DayText("2024-01-28"),
		Amount:            ptr(80.0),
		Commission:        12,
		ReferralChannelID: &meituan.ID,
		NetAmount:         ptr(68.0),
	}, msgID)
	require.NoError(t, err)
	require.NotZero(t, id)

	day, _ := ParseDay("2024-01-28")
	entries, err := r.serviceRecords.ByDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, EntryService, e.Type)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "Alice", e.CustomerName)
	assert.Equal(t, "Haircut", e.ServiceType)
	assert.Equal(t, 80.0, e.Amount)
	assert.Equal(t, 12.0, e.Commission)
	assert.Equal(t, 68.0, e.NetAmount)
	assert.Equal(t, "meituan", e.ReferralChannel)
	assert.False(t, e.Confirmed)

	other, err := r.serviceRecords.ByDate(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, other)

	rec, err := r.serviceRecords.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.RawMessageID)
	assert.Equal(t, msgID, *rec.RawMessageID)
	assert.Equal(t, 0.5, rec.ParseConfidence)
	assert.Nil(t, rec.ConfirmedAt)
}

func TestServiceRecordDefaults(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	id, err := r.serviceRecords.Save(ctx, ServiceRecordInput{
		CustomerName:     "Bob",
		ServiceType:      "tuina",
		DefaultPrice:     ptr(120.0),
		Category:         "massage",
		Date:             DayOf(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)),
		Amount:           ptr(120.0),
		Commission:       20,
		EmployeeName:     "Master Li",
		RecorderNickname: "desk",
		Confidence:       ptr(0.9),
		Confirmed:        true,
		ExtraData:        map[string]any{"room": "3"},
	}, 0)
	require.NoError(t, err)

	rec, err := r.serviceRecords.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.NetAmount)
	assert.Equal(t, 0.9, rec.ParseConfidence)
	assert.True(t, rec.Confirmed)
	assert.NotNil(t, rec.ConfirmedAt)
	assert.Nil(t, rec.RawMessageID)
	assert.Nil(t, rec.ReferralChannelID)
	assert.Equal(t, "3", rec.ExtraData["room"])
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rec.ServiceDate.UTC())

	require.NotNil(t, rec.EmployeeID)
	emp, err := r.staff.GetByID(ctx, *rec.EmployeeID)
	require.NoError(t, err)
	assert.Equal(t, "Master Li", emp.Name)
	require.NotNil(t, rec.RecorderID)
	recorder, err := r.staff.GetByID(ctx, *rec.RecorderID)
	require.NoError(t, err)
	assert.Equal(t, "desk", recorder.Nickname)

	st, err := r.serviceTypes.FindByName(ctx, "tuina")
	require.NoError(t, err)
	require.NotNil(t, st.DefaultPrice)
	assert.Equal(t, 120.0, *st.DefaultPrice)
}

func TestServiceRecordReferralPrecedence(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	dianping, err := r.channels.Resolve(ctx, "dianping", ChannelAttrs{Type: models.ChannelPlatform})
	require.NoError(t, err)

	t.Run("explicit id wins", func(t *testing.T) {
		id, err := r.serviceRecords.Save(ctx, ServiceRecordInput{
			CustomerName: "Alice", ServiceType: "massage", Date: DayText("2024-01-28"),
			Amount: ptr(100.0), ReferralChannelID: &dianping.ID, CommissionTo: "Uncle Wang",
		}, 0)
		require.NoError(t, err)
		rec, err := r.serviceRecords.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, rec.ReferralChannelID)
		assert.Equal(t, dianping.ID, *rec.ReferralChannelID)
		assert.Equal(t, "Uncle Wang", rec.CommissionTo)

		ch, err := findByName[models.ReferralChannel](r.conn.DB(ctx), "Uncle Wang")
		require.NoError(t, err)
		assert.Nil(t, ch, "no channel is created when an id is given")
	})

	t.Run("commission_to falls back to an external channel", func(t *testing.T) {
		id, err := r.serviceRecords.Save(ctx, ServiceRecordInput{
			CustomerName: "Alice", ServiceType: "massage", Date: DayText("2024-01-28"),
			Amount: ptr(100.0), Commission: 10, CommissionTo: "Uncle Wang",
		}, 0)
		require.NoError(t, err)
		rec, err := r.serviceRecords.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, rec.ReferralChannelID)

		ch, err := r.channels.GetByID(ctx, *rec.ReferralChannelID)
		require.NoError(t, err)
		assert.Equal(t, "Uncle Wang", ch.Name)
		assert.Equal(t, models.ChannelExternal, ch.ChannelType)
	})

	t.Run("channel rate fills a missing commission", func(t *testing.T) {
		meituan, err := r.channels.Resolve(ctx, "meituan", ChannelAttrs{Type: models.ChannelPlatform, CommissionRate: ptr(8.0)})
		require.NoError(t, err)
		id, err := r.serviceRecords.Save(ctx, ServiceRecordInput{
			CustomerName: "Alice", ServiceType: "massage", Date: DayText("2024-01-28"),
			Amount: ptr(200.0), ReferralChannelID: &meituan.ID,
		}, 0)
		require.NoError(t, err)
		rec, err := r.serviceRecords.GetByID(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, 16.0, rec.CommissionAmount, 1e-9)
		assert.InDelta(t, 184.0, rec.NetAmount, 1e-9)

		id, err = r.serviceRecords.Save(ctx, ServiceRecordInput{
			CustomerName: "Alice", ServiceType: "massage", Date: DayText("2024-01-28"),
			Amount: ptr(200.0), Commission: 5, ReferralChannelID: &meituan.ID,
		}, 0)
		require.NoError(t, err)
		rec, err = r.serviceRecords.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 5.0, rec.CommissionAmount, "an explicit commission wins")
	})

	t.Run("unknown channel id is rejected", func(t *testing.T) {
		missing := uint(9999)
		_, err := r.serviceRecords.Save(ctx, ServiceRecordInput{
			CustomerName: "Nobody", ServiceType: "massage", Date: DayText("2024-01-28"),
			Amount: ptr(100.0), ReferralChannelID: &missing,
		}, 0)
		requireValidation(t, err, "referral_channel_id")
		c, err := r.customers.FindByName(ctx, "Nobody")
		require.NoError(t, err)
		assert.Nil(t, c)
	})
}

func TestServiceRecordValidation(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    ServiceRecordInput
		field string
	}{
		{"missing date", ServiceRecordInput{CustomerName: "Ghost", Amount: ptr(10.0)}, "date"},
		{"malformed date", ServiceRecordInput{CustomerName: "Ghost", Amount: ptr(10.0), Date: DayText("2024/01/28")}, "date"},
		{"missing amount", ServiceRecordInput{CustomerName: "Ghost", Date: DayText("2024-01-28")}, "amount"},
		{"negative amount", ServiceRecordInput{CustomerName: "Ghost", Amount: ptr(-1.0), Date: DayText("2024-01-28")}, "amount"},
		{"negative commission", ServiceRecordInput{CustomerName: "Ghost", Amount: ptr(10.0), Commission: -2, Date: DayText("2024-01-28")}, "commission"},
		{"confidence above one", ServiceRecordInput{CustomerName: "Ghost", Amount: ptr(10.0), Confidence: ptr(1.5), Date: DayText("2024-01-28")}, "confidence"},
		{"NaN amount", ServiceRecordInput{CustomerName: "Ghost", Amount: ptr(math.NaN()), Date: DayText("2024-01-28")}, "amount"},
		{"infinite commission", ServiceRecordInput{CustomerName: "Ghost", Amount: ptr(10.0), Commission: math.Inf(1), Date: DayText("2024-01-28")}, "commission"},
		{"NaN net amount", ServiceRecordInput{CustomerName: "Ghost", Amount: ptr(10.0), NetAmount: ptr(math.NaN()), Date: DayText("2024-01-28")}, "net_amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.serviceRecords.Save(ctx, tt.in, 0)
			requireValidation(t, err, tt.field)
		})
	}

	c, err := r.customers.FindByName(ctx, "Ghost")
	require.NoError(t, err)
	assert.Nil(t, c, "rejected input must not create entities")
}

func TestServiceRecordConfirm(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	id, err := r.serviceRecords.Save(ctx, ServiceRecordInput{CustomerName: "Alice", ServiceType: "massage", Date: DayText("2024-01-28"), Amount: ptr(100.0)}, 0)
	require.NoError(t, err)

	ok, err := r.serviceRecords.Confirm(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	rec, err := r.serviceRecords.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Confirmed)
	assert.NotNil(t, rec.ConfirmedAt)

	ok, err = r.serviceRecords.Confirm(ctx, id+100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceRecordAmend(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	id, err := r.serviceRecords.Save(ctx, ServiceRecordInput{
		CustomerName: "Alice", ServiceType: "massage", Date: DayText("2024-01-28"),
		Amount: ptr(100.0), Commission: 10,
	}, 0)
	require.NoError(t, err)
	msgID, err := r.messages.SaveRawMessage(ctx, RawMessageInput{Sender: "boss", Content: "Alice paid 120 not 100, on the 29th"})
	require.NoError(t, err)

	rec, err := r.serviceRecords.Amend(ctx, id, ServiceRecordAmendment{
		Amount:       ptr(120.0),
		Date:         DayText("2024-01-29"),
		Reason:       "wrong amount",
		RawMessageID: msgID,
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 120.0, rec.Amount)
	assert.Equal(t, 10.0, rec.CommissionAmount)
	assert.Equal(t, 110.0, rec.NetAmount)

	moved, err := r.serviceRecords.ByDate(ctx, time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, moved, 1)

	corrections, err := r.messages.Corrections(ctx, "service_record", id)
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	c := corrections[0]
	assert.Equal(t, "amend", c.CorrectionType)
	assert.Equal(t, "wrong amount", c.Reason)
	assert.Equal(t, json.Number("100"), c.OldValue["amount"])
	assert.Equal(t, json.Number("120"), c.NewValue["amount"])
	assert.Equal(t, json.Number("90"), c.OldValue["net_amount"])
	assert.Equal(t, json.Number("110"), c.NewValue["net_amount"])
	assert.Equal(t, "2024-01-28", c.OldValue["service_date"])
	assert.Equal(t, "2024-01-29", c.NewValue["service_date"])
	assert.NotContains(t, c.NewValue, "commission_amount")
	require.NotNil(t, c.RawMessageID)
	assert.Equal(t, msgID, *c.RawMessageID)

	t.Run("no change writes no correction", func(t *testing.T) {
		_, err := r.serviceRecords.Amend(ctx, id, ServiceRecordAmendment{Amount: ptr(120.0)})
		require.NoError(t, err)
		corrections, err := r.messages.Corrections(ctx, "service_record", id)
		require.NoError(t, err)
		assert.Len(t, corrections, 1)
	})

	t.Run("missing record", func(t *testing.T) {
		rec, err := r.serviceRecords.Amend(ctx, id+100, ServiceRecordAmendment{Amount: ptr(1.0)})
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("invalid amendment", func(t *testing.T) {
		_, err := r.serviceRecords.Amend(ctx, id, ServiceRecordAmendment{Commission: ptr(-5.0)})
		requireValidation(t, err, "commission")
	})
}
