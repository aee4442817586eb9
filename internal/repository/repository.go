// Package repository turns loosely specified business facts into ledger rows.
//
// Most operations come in two shapes. The XxxTx form takes the caller's
// transaction and composes into a larger unit of work. The plain form opens its
// own session, commits, and re-reads the row so the caller gets a value that is
// not tied to any transaction.
//
// Absent rows and declined ledger operations are reported as a nil result with
// a nil error. Bad input yields a *validation.Error before anything is written.
// Everything else is a storage failure.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Day is a calendar date given either as a time or as YYYY-MM-DD text.
type Day struct {
	t    time.Time
	text string
}

// DayOf wraps a time; only its calendar date is kept.
func DayOf(t time.Time) Day { return Day{t: t} }

// DayText wraps a YYYY-MM-DD string.
func DayText(s string) Day { return Day{text: s} }

// IsZero reports whether no date was given.
func (d Day) IsZero() bool { return d.t.IsZero() && strings.TrimSpace(d.text) == "" }

func (d Day) resolve(field string, v validation.Violations) (time.Time, bool) {
	if !d.t.IsZero() {
		return models.Day(d.t), true
	}
	return validation.Date(field, d.text, v)
}

// ParseDay validates s as YYYY-MM-DD and returns its UTC midnight.
func ParseDay(s string) (time.Time, error) {
	v := validation.Violations{}
	t, _ := DayText(s).resolve("date", v)
	return t, v.Err()
}

// dayRange returns the half-open bounds [day, day+1) used to match date columns.
func dayRange(day time.Time) (time.Time, time.Time) {
	start := models.Day(day)
	return start, start.AddDate(0, 0, 1)
}

func optionalID(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}

func likePattern(keyword string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(keyword) + "%"
}

// forUpdate locks the selected rows until the transaction ends. SQLite has no
// row locks; its single writer connection already serialises ledger updates.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// findByID loads one row, returning nil when it does not exist.
func findByID[T any](q *gorm.DB, id uint) (*T, error) {
	var out T
	err := q.First(&out, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// findByName loads the oldest row whose name matches exactly.
func findByName[T any](q *gorm.DB, name string) (*T, error) {
	var out T
	err := q.Where("name = ?", name).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// resolveByName returns the oldest row named name or inserts the one built by
// create. create only runs on a miss, so its attributes and their checks
// apply to new rows only.
func resolveByName[T any](tx *gorm.DB, name string, create func() (*T, error)) (*T, error) {
	existing, err := findByName[T](tx, name)
	if err != nil || existing != nil {
		return existing, err
	}
	row, err := create()
	if err != nil {
		return nil, err
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// commit runs fn in its own session and re-reads the row whose id fn returns.
// An id of zero means fn found nothing to return.
func commit[T any](ctx context.Context, conn *db.Conn, fn func(tx *gorm.DB) (uint, error)) (*T, error) {
	var id uint
	err := conn.WithSession(ctx, func(tx *gorm.DB) error {
		var err error
		id, err = fn(tx)
		return err
	})
	if err != nil || id == 0 {
		return nil, err
	}
	return findByID[T](conn.DB(ctx), id)
}

// updateByID applies a partial column map to one row and reports whether it existed.
func updateByID(q *gorm.DB, model any, id uint, cols map[string]any) (bool, error) {
	if len(cols) == 0 {
		var n int64
		if err := q.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
			return false, err
		}
		return n > 0, nil
	}
	res := q.Model(model).Where("id = ?", id).Updates(cols)
	return res.RowsAffected > 0, res.Error
}
