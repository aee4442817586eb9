package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/go-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveRawMessageDedup(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	in := RawMessageInput{
		ExternalID: "wx-42",
		Sender:     "front desk",
		SenderID:   "u-1",
		Content:    "Alice massage 100",
		GroupID:    "g-1",
		Timestamp:  time.Date(2024, 1, 28, 10, 30, 0, 0, time.UTC),
		IsAtBot:    true,
	}
	first, err := r.messages.SaveRawMessage(ctx, in)
	require.NoError(t, err)
	in.Content = "edited text is ignored"
	second, err := r.messages.SaveRawMessage(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var n int64
	require.NoError(t, r.conn.DB(ctx).Model(&models.RawMessage{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	msg, err := r.messages.GetByID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Alice massage 100", msg.Content)
	assert.Equal(t, "text", msg.MsgType)
	assert.Equal(t, models.ParsePending, msg.ParseStatus)
	assert.True(t, msg.IsAtBot)
	assert.Nil(t, msg.IsBusiness)
}

func TestSaveRawMessageWithoutExternalID(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	a, err := r.messages.SaveRawMessage(ctx, RawMessageInput{Sender: "x", Content: "hi"})
	require.NoError(t, err)
	b, err := r.messages.SaveRawMessage(ctx, RawMessageInput{Sender: "x", Content: "hi"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	msg, err := r.messages.GetByID(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, msg.ExternalID)
	assert.False(t, msg.Timestamp.IsZero())

	_, err = r.messages.SaveRawMessage(ctx, RawMessageInput{Sender: "x", Content: "hi", ParseStatus: "done"})
	requireValidation(t, err, "parse_status")
}

func TestSaveRawMessageConcurrentDedup(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	ids := make([]uint, 8)
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = r.messages.SaveRawMessage(ctx, RawMessageInput{ExternalID: "wx-race", Sender: "x", Content: "same"})
		}(i)
	}
	wg.Wait()
	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestUpdateParseStatus(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	id, err := r.messages.SaveRawMessage(ctx, RawMessageInput{ExternalID: "wx-7", Sender: "x", Content: "Bob tuina 120"})
	require.NoError(t, err)

	ok, err := r.messages.UpdateParseStatus(ctx, id, models.ParseParsed, map[string]any{"type": "service", "amount": 120}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	msg, err := r.messages.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ParseParsed, msg.ParseStatus)
	assert.Equal(t, "service", msg.ParseResult["type"])
	assert.Equal(t, json.Number("120"), msg.ParseResult["amount"])
	assert.Nil(t, msg.ParseError)

	reason := "amount unreadable"
	ok, err = r.messages.UpdateParseStatus(ctx, id, models.ParseFailed, nil, &reason)
	require.NoError(t, err)
	assert.True(t, ok)

	msg, err = r.messages.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ParseFailed, msg.ParseStatus)
	assert.Equal(t, "service", msg.ParseResult["type"], "nil result keeps the stored one")
	require.NotNil(t, msg.ParseError)
	assert.Equal(t, reason, *msg.ParseError)

	ok, err = r.messages.UpdateParseStatus(ctx, id+100, models.ParseIgnored, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.messages.UpdateParseStatus(ctx, id, "bogus", nil, nil)
	requireValidation(t, err, "parse_status")
	_, err = r.messages.UpdateParseStatus(ctx, id, "", nil, nil)
	requireValidation(t, err, "parse_status")
}

func TestMessagesByStatus(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 28, 9, 0, 0, 0, time.UTC)
	for i, status := range []models.ParseStatus{models.ParsePending, models.ParseParsed, models.ParsePending, models.ParsePending} {
		_, err := r.messages.SaveRawMessage(ctx, RawMessageInput{Sender: "x", Content: "m", Timestamp: base.Add(time.Duration(i) * time.Minute), ParseStatus: status})
		require.NoError(t, err)
	}

	pending, err := r.messages.ByStatus(ctx, models.ParsePending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	limited, err := r.messages.ByStatus(ctx, models.ParsePending, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.True(t, limited[0].Timestamp.Before(limited[1].Timestamp))
}

func TestSaveCorrection(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	id, err := r.messages.SaveCorrection(ctx, CorrectionInput{
		RecordType: "product_sale",
		RecordID:   3,
		Type:       "delete",
		OldValue:   map[string]any{"total_amount": 45.0},
		Reason:     "duplicate entry",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := r.messages.Corrections(ctx, "product_sale", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, json.Number("45"), got[0].OldValue["total_amount"])
	assert.Nil(t, got[0].RawMessageID)

	none, err := r.messages.Corrections(ctx, "service_record", 3)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = r.messages.SaveCorrection(ctx, CorrectionInput{RecordType: "product_sale"})
	requireValidation(t, err, "original_record_id")
}
