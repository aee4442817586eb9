package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PluginScope addresses the values one plugin keeps about one entity.
type PluginScope struct {
	Plugin     string
	EntityType string
	EntityID   uint
}

func (s PluginScope) String() string {
	return fmt.Sprintf("%s/%s/%d", s.Plugin, s.EntityType, s.EntityID)
}

func (s PluginScope) where(q *gorm.DB) *gorm.DB {
	return q.Where("plugin_name = ? AND entity_type = ? AND entity_id = ?", s.Plugin, s.EntityType, s.EntityID)
}

type PluginRepository struct {
	conn *db.Conn
}

func NewPluginRepository(conn *db.Conn) *PluginRepository { return &PluginRepository{conn: conn} }

// Save stores value under key, replacing any previous value, and returns the row id.
// value must be JSON encodable.
func (r *PluginRepository) Save(ctx context.Context, scope PluginScope, key string, value any) (uint, error) {
	v := validation.Violations{}
	validation.Required("plugin_name", scope.Plugin, v)
	validation.Required("entity_type", scope.EntityType, v)
	validation.Required("data_key", key, v)
	if err := v.Err(); err != nil {
		return 0, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return 0, validation.Single("data_value", "not_encodable")
	}

	id, err := r.save(ctx, scope, key, raw)
	if db.IsUniqueViolation(err) {
		id, err = r.save(ctx, scope, key, raw)
	}
	if err != nil {
		return 0, fmt.Errorf("save plugin data %s/%s: %w", scope, key, err)
	}
	return id, nil
}

func (r *PluginRepository) save(ctx context.Context, scope PluginScope, key string, raw []byte) (uint, error) {
	var id uint
	err := r.conn.WithSession(ctx, func(tx *gorm.DB) error {
		existing, err := r.find(forUpdate(tx), scope, key)
		if err != nil {
			return err
		}
		if existing != nil {
			id = existing.ID
			return tx.Model(existing).Update("data_value", datatypes.JSON(raw)).Error
		}
		row := &models.PluginData{
			PluginName: scope.Plugin,
			EntityType: scope.EntityType,
			EntityID:   scope.EntityID,
			DataKey:    key,
			DataValue:  datatypes.JSON(raw),
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		id = row.ID
		return nil
	})
	return id, err
}

func (r *PluginRepository) find(q *gorm.DB, scope PluginScope, key string) (*models.PluginData, error) {
	var out []models.PluginData
	if err := scope.where(q).Where("data_key = ?", key).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// Get decodes the value stored under key. It returns nil when nothing is stored.
func (r *PluginRepository) Get(ctx context.Context, scope PluginScope, key string) (any, error) {
	row, err := r.find(r.conn.DB(ctx), scope, key)
	if err != nil {
		return nil, fmt.Errorf("get plugin data %s/%s: %w", scope, key, err)
	}
	if row == nil {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(row.DataValue, &out); err != nil {
		return nil, fmt.Errorf("decode plugin data %s/%s: %w", scope, key, err)
	}
	return out, nil
}

// GetInto decodes the value under key into dst and reports whether one was stored.
func (r *PluginRepository) GetInto(ctx context.Context, scope PluginScope, key string, dst any) (bool, error) {
	row, err := r.find(r.conn.DB(ctx), scope, key)
	if err != nil {
		return false, fmt.Errorf("get plugin data %s/%s: %w", scope, key, err)
	}
	if row == nil {
		return false, nil
	}
	if err := json.Unmarshal(row.DataValue, dst); err != nil {
		return false, fmt.Errorf("decode plugin data %s/%s: %w", scope, key, err)
	}
	return true, nil
}

// GetAll returns every key in scope with its decoded value.
func (r *PluginRepository) GetAll(ctx context.Context, scope PluginScope) (map[string]any, error) {
	var rows []models.PluginData
	if err := scope.where(r.conn.DB(ctx)).Order("data_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get plugin data %s: %w", scope, err)
	}
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		var val any
		if err := json.Unmarshal(row.DataValue, &val); err != nil {
			return nil, fmt.Errorf("decode plugin data %s/%s: %w", scope, row.DataKey, err)
		}
		out[row.DataKey] = val
	}
	return out, nil
}

// Delete removes one key and returns how many rows went away.
func (r *PluginRepository) Delete(ctx context.Context, scope PluginScope, key string) (int64, error) {
	res := scope.where(r.conn.DB(ctx)).Where("data_key = ?", key).Delete(&models.PluginData{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete plugin data %s/%s: %w", scope, key, res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAll removes every key in scope.
func (r *PluginRepository) DeleteAll(ctx context.Context, scope PluginScope) (int64, error) {
	res := scope.where(r.conn.DB(ctx)).Delete(&models.PluginData{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete plugin data %s: %w", scope, res.Error)
	}
	return res.RowsAffected, nil
}
