package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MembershipInput is a parsed "card opened" fact.
type MembershipInput struct {
	CustomerName string
	// CardType defaults to models.CardTypeStoredValue.
	CardType          string
	Amount            *float64
	RemainingSessions *int
	Points            int
	// Date is the day the card was opened.
	Date      Day
	ExpiresAt Day
	ExtraData map[string]any
}

type membershipDates struct {
	opened  time.Time
	expires *time.Time
}

func (in MembershipInput) validate() (membershipDates, error) {
	v := validation.Violations{}
	var d membershipDates
	d.opened, _ = in.Date.resolve("date", v)
	if !in.ExpiresAt.IsZero() {
		if t, ok := in.ExpiresAt.resolve("expires_at", v); ok {
			d.expires = &t
		}
	}
	if in.Amount == nil {
		v["amount"] = "required"
	} else {
		money("amount", *in.Amount, v)
	}
	if in.RemainingSessions != nil && *in.RemainingSessions < 0 {
		v["remaining_sessions"] = "must_not_be_negative"
	}
	if in.Points < 0 {
		v["points"] = "must_not_be_negative"
	}
	return d, v.Err()
}

// money accepts finite, non-negative, whole-cent amounts.
func money(field string, val float64, v validation.Violations) {
	validation.NonNegativeFloat(field, val, v)
	if _, bad := v[field]; !bad {
		validation.Cents(field, val, v)
	}
}

type MembershipRepository struct {
	conn      *db.Conn
	customers *CustomerRepository
}

func NewMembershipRepository(conn *db.Conn, customers *CustomerRepository) *MembershipRepository {
	return &MembershipRepository{conn: conn, customers: customers}
}

// SaveTx opens a card for the named customer. The balance starts at the amount paid.
func (r *MembershipRepository) SaveTx(tx *gorm.DB, in MembershipInput, rawMessageID uint) (*models.Membership, error) {
	dates, err := in.validate()
	if err != nil {
		return nil, err
	}
	customer, err := r.customers.ResolveTx(tx, in.CustomerName, CustomerAttrs{})
	if err != nil {
		return nil, err
	}

	total := decimal.NewFromFloat(*in.Amount)
	m := &models.Membership{
		CustomerID:        customer.ID,
		CardType:          in.CardType,
		TotalAmount:       total,
		Balance:           total,
		RemainingSessions: in.RemainingSessions,
		Points:            in.Points,
		OpenedAt:          dates.opened,
		ExpiresAt:         dates.expires,
		IsActive:          true,
		RawMessageID:      optionalID(rawMessageID),
		ExtraData:         in.ExtraData,
	}
	if m.CardType == "" {
		m.CardType = models.CardTypeStoredValue
	}
	if err := tx.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MembershipRepository) Save(ctx context.Context, in MembershipInput, rawMessageID uint) (uint, error) {
	var id uint
	err := r.conn.WithSession(ctx, func(tx *gorm.DB) error {
		m, err := r.SaveTx(tx, in, rawMessageID)
		if err != nil {
			return err
		}
		id = m.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save membership: %w", err)
	}
	return id, nil
}

func (r *MembershipRepository) GetByID(ctx context.Context, id uint) (*models.Membership, error) {
	return findByID[models.Membership](r.conn.DB(ctx), id)
}

// ActiveByCustomer lists a customer's active cards, oldest first.
func (r *MembershipRepository) ActiveByCustomer(ctx context.Context, customerID uint) ([]models.Membership, error) {
	var out []models.Membership
	err := r.conn.DB(ctx).Where("customer_id = ? AND is_active = ?", customerID, true).Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("active memberships of customer %d: %w", customerID, err)
	}
	return out, nil
}

// ByCustomer lists every card a customer ever held, oldest first.
func (r *MembershipRepository) ByCustomer(ctx context.Context, customerID uint) ([]models.Membership, error) {
	var out []models.Membership
	if err := r.conn.DB(ctx).Where("customer_id = ?", customerID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("memberships of customer %d: %w", customerID, err)
	}
	return out, nil
}

func (r *MembershipRepository) Deactivate(ctx context.Context, id uint) (bool, error) {
	ok, err := updateByID(r.conn.DB(ctx), &models.Membership{}, id, map[string]any{"is_active": false})
	if err != nil {
		return false, fmt.Errorf("deactivate membership %d: %w", id, err)
	}
	return ok, nil
}

// DeductBalanceTx takes amount off the balance. It returns nil without
// touching the row when the card is missing or the balance is short.
func (r *MembershipRepository) DeductBalanceTx(tx *gorm.DB, id uint, amount float64) (*models.Membership, error) {
	v := validation.Violations{}
	money("amount", amount, v)
	if err := v.Err(); err != nil {
		return nil, err
	}
	amt := decimal.NewFromFloat(amount)

	m, err := findByID[models.Membership](forUpdate(tx), id)
	if err != nil || m == nil {
		return nil, err
	}
	if !m.CanDeduct(amt) {
		return nil, nil
	}
	m.Balance = m.Balance.Sub(amt)
	if err := tx.Model(m).Update("balance", m.Balance).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MembershipRepository) DeductBalance(ctx context.Context, id uint, amount float64) (*models.Membership, error) {
	m, err := r.ledger(ctx, func(tx *gorm.DB) (*models.Membership, error) {
		return r.DeductBalanceTx(tx, id, amount)
	})
	if err != nil {
		return nil, fmt.Errorf("deduct balance of membership %d: %w", id, err)
	}
	return m, nil
}

// DeductSessionTx uses count sessions. Cards without a session counter always decline.
func (r *MembershipRepository) DeductSessionTx(tx *gorm.DB, id uint, count int) (*models.Membership, error) {
	v := validation.Violations{}
	validation.PositiveInt("count", count, v)
	if err := v.Err(); err != nil {
		return nil, err
	}
	m, err := findByID[models.Membership](forUpdate(tx), id)
	if err != nil || m == nil {
		return nil, err
	}
	if !m.CanUseSessions(count) {
		return nil, nil
	}
	left := *m.RemainingSessions - count
	m.RemainingSessions = &left
	if err := tx.Model(m).Update("remaining_sessions", left).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MembershipRepository) DeductSession(ctx context.Context, id uint, count int) (*models.Membership, error) {
	m, err := r.ledger(ctx, func(tx *gorm.DB) (*models.Membership, error) {
		return r.DeductSessionTx(tx, id, count)
	})
	if err != nil {
		return nil, fmt.Errorf("deduct sessions of membership %d: %w", id, err)
	}
	return m, nil
}

// AddPointsTx credits loyalty points. It returns nil when the card is missing.
func (r *MembershipRepository) AddPointsTx(tx *gorm.DB, id uint, points int) (*models.Membership, error) {
	res := tx.Model(&models.Membership{}).Where("id = ?", id).Update("points", gorm.Expr("points + ?", points))
	if res.Error != nil || res.RowsAffected == 0 {
		return nil, res.Error
	}
	return findByID[models.Membership](tx, id)
}

func (r *MembershipRepository) AddPoints(ctx context.Context, id uint, points int) (*models.Membership, error) {
	m, err := r.ledger(ctx, func(tx *gorm.DB) (*models.Membership, error) {
		return r.AddPointsTx(tx, id, points)
	})
	if err != nil {
		return nil, fmt.Errorf("add points to membership %d: %w", id, err)
	}
	return m, nil
}

func (r *MembershipRepository) ledger(ctx context.Context, fn func(tx *gorm.DB) (*models.Membership, error)) (*models.Membership, error) {
	return commit[models.Membership](ctx, r.conn, func(tx *gorm.DB) (uint, error) {
		m, err := fn(tx)
		if err != nil || m == nil {
			return 0, err
		}
		return m.ID, nil
	})
}
