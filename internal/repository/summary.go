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

// SummaryFields is a partial update of a day's summary. Nil fields keep their
// stored value.
type SummaryFields struct {
	TotalServiceRevenue *float64
	TotalProductRevenue *float64
	TotalCommissions    *float64
	NetRevenue          *float64
	ServiceCount        *int
	ProductSaleCount    *int
	NewMembers          *int
	MembershipRevenue   *float64
	SummaryText         *string
	Confirmed           *bool
}

func (f SummaryFields) validate() error {
	v := validation.Violations{}
	for field, val := range map[string]*float64{
		"total_service_revenue": f.TotalServiceRevenue,
		"total_product_revenue": f.TotalProductRevenue,
		"total_commissions":     f.TotalCommissions,
		"membership_revenue":    f.MembershipRevenue,
	} {
		if val != nil {
			validation.NonNegativeFloat(field, *val, v)
		}
	}
	for field, val := range map[string]*int{
		"service_count":      f.ServiceCount,
		"product_sale_count": f.ProductSaleCount,
		"new_members":        f.NewMembers,
	} {
		if val != nil && *val < 0 {
			v[field] = "must_not_be_negative"
		}
	}
	return v.Err()
}

func (f SummaryFields) columns() map[string]any {
	cols := map[string]any{}
	put := func(col string, ok bool, val any) {
		if ok {
			cols[col] = val
		}
	}
	put("total_service_revenue", f.TotalServiceRevenue != nil, deref(f.TotalServiceRevenue))
	put("total_product_revenue", f.TotalProductRevenue != nil, deref(f.TotalProductRevenue))
	put("total_commissions", f.TotalCommissions != nil, deref(f.TotalCommissions))
	put("net_revenue", f.NetRevenue != nil, deref(f.NetRevenue))
	put("service_count", f.ServiceCount != nil, deref(f.ServiceCount))
	put("product_sale_count", f.ProductSaleCount != nil, deref(f.ProductSaleCount))
	put("new_members", f.NewMembers != nil, deref(f.NewMembers))
	put("membership_revenue", f.MembershipRevenue != nil, deref(f.MembershipRevenue))
	put("summary_text", f.SummaryText != nil, deref(f.SummaryText))
	put("confirmed", f.Confirmed != nil, deref(f.Confirmed))
	return cols
}

func (f SummaryFields) apply(s *models.DailySummary) {
	if f.TotalServiceRevenue != nil {
		s.TotalServiceRevenue = *f.TotalServiceRevenue
	}
	if f.TotalProductRevenue != nil {
		s.TotalProductRevenue = *f.TotalProductRevenue
	}
	if f.TotalCommissions != nil {
		s.TotalCommissions = *f.TotalCommissions
	}
	if f.NetRevenue != nil {
		s.NetRevenue = *f.NetRevenue
	}
	if f.ServiceCount != nil {
		s.ServiceCount = *f.ServiceCount
	}
	if f.ProductSaleCount != nil {
		s.ProductSaleCount = *f.ProductSaleCount
	}
	if f.NewMembers != nil {
		s.NewMembers = *f.NewMembers
	}
	if f.MembershipRevenue != nil {
		s.MembershipRevenue = *f.MembershipRevenue
	}
	if f.SummaryText != nil {
		s.SummaryText = *f.SummaryText
	}
	if f.Confirmed != nil {
		s.Confirmed = *f.Confirmed
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

type SummaryRepository struct {
	conn *db.Conn
}

func NewSummaryRepository(conn *db.Conn) *SummaryRepository { return &SummaryRepository{conn: conn} }

// Save merges f into the summary for day, creating it if needed, and returns
// its id. The unique index on summary_date keeps one row per day; a concurrent
// insert that loses the race is retried as a merge.
func (r *SummaryRepository) Save(ctx context.Context, day time.Time, f SummaryFields) (uint, error) {
	if day.IsZero() {
		return 0, validation.Single("date", "required")
	}
	if err := f.validate(); err != nil {
		return 0, err
	}
	day = models.Day(day)

	id, err := r.save(ctx, day, f)
	if db.IsUniqueViolation(err) {
		id, err = r.save(ctx, day, f)
	}
	if err != nil {
		return 0, fmt.Errorf("save summary for %s: %w", day.Format(validation.DateLayout), err)
	}
	return id, nil
}

func (r *SummaryRepository) save(ctx context.Context, day time.Time, f SummaryFields) (uint, error) {
	var id uint
	err := r.conn.WithSession(ctx, func(tx *gorm.DB) error {
		existing, err := r.byDate(forUpdate(tx), day)
		if err != nil {
			return err
		}
		if existing != nil {
			id = existing.ID
			cols := f.columns()
			if len(cols) == 0 {
				return nil
			}
			return tx.Model(existing).Updates(cols).Error
		}
		row := &models.DailySummary{SummaryDate: day}
		f.apply(row)
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		id = row.ID
		return nil
	})
	return id, err
}

func (r *SummaryRepository) byDate(q *gorm.DB, day time.Time) (*models.DailySummary, error) {
	from, to := dayRange(day)
	var out []models.DailySummary
	if err := q.Where("summary_date >= ? AND summary_date < ?", from, to).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// GetByDate returns the summary for day, or nil when none was saved.
func (r *SummaryRepository) GetByDate(ctx context.Context, day time.Time) (*models.DailySummary, error) {
	s, err := r.byDate(r.conn.DB(ctx), day)
	if err != nil {
		return nil, fmt.Errorf("summary for %s: %w", models.Day(day).Format(validation.DateLayout), err)
	}
	return s, nil
}

// Range lists the summaries from one day through another, both inclusive.
func (r *SummaryRepository) Range(ctx context.Context, from, to time.Time) ([]models.DailySummary, error) {
	start, _ := dayRange(from)
	_, end := dayRange(to)
	var out []models.DailySummary
	err := r.conn.DB(ctx).Where("summary_date >= ? AND summary_date < ?", start, end).Order("summary_date").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("summaries %s..%s: %w", start.Format(validation.DateLayout), models.Day(to).Format(validation.DateLayout), err)
	}
	return out, nil
}

// Compute totals the ledger for day: services rendered, products sold and
// cards opened. Nothing is written.
func (r *SummaryRepository) Compute(ctx context.Context, day time.Time) (SummaryFields, error) {
	from, to := dayRange(day)
	q := r.conn.DB(ctx)

	type totals struct {
		Revenue    float64
		Commission float64
		Entries    int
	}
	var svc, sales, cards totals
	err := q.Model(&models.ServiceRecord{}).
		Select("COALESCE(SUM(amount), 0) AS revenue, COALESCE(SUM(commission_amount), 0) AS commission, COUNT(*) AS entries").
		Where("service_date >= ? AND service_date < ?", from, to).
		Scan(&svc).Error
	if err != nil {
		return SummaryFields{}, fmt.Errorf("total services: %w", err)
	}
	err = q.Model(&models.ProductSale{}).
		Select("COALESCE(SUM(total_amount), 0) AS revenue, COUNT(*) AS entries").
		Where("sale_date >= ? AND sale_date < ?", from, to).
		Scan(&sales).Error
	if err != nil {
		return SummaryFields{}, fmt.Errorf("total product sales: %w", err)
	}
	err = q.Model(&models.Membership{}).
		Select("COALESCE(SUM(total_amount), 0) AS revenue, COUNT(*) AS entries").
		Where("opened_at >= ? AND opened_at < ?", from, to).
		Scan(&cards).Error
	if err != nil {
		return SummaryFields{}, fmt.Errorf("total memberships: %w", err)
	}

	net := svc.Revenue + sales.Revenue - svc.Commission
	text := fmt.Sprintf("%d services, %d product sales, %d new members; net %.2f",
		svc.Entries, sales.Entries, cards.Entries, net)
	return SummaryFields{
		TotalServiceRevenue: &svc.Revenue,
		TotalProductRevenue: &sales.Revenue,
		TotalCommissions:    &svc.Commission,
		NetRevenue:          &net,
		ServiceCount:        &svc.Entries,
		ProductSaleCount:    &sales.Entries,
		NewMembers:          &cards.Entries,
		MembershipRevenue:   &cards.Revenue,
		SummaryText:         &text,
	}, nil
}
