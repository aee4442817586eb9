package repository

import (
	"context"
	"testing"
	"time"

	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestPluginSaveIsUpsert(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	scope := PluginScope{Plugin: "fitness", EntityType: "customer", EntityID: 7}

	first, err := r.plugins.Save(ctx, scope, "weight", 71.5)
	require.NoError(t, err)
	second, err := r.plugins.Save(ctx, scope, "weight", 70.2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, err := r.plugins.Get(ctx, scope, "weight")
	require.NoError(t, err)
	assert.Equal(t, 70.2, got)

	third, err := r.plugins.Save(ctx, scope, "goal", "lose 5kg")
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	var n int64
	require.NoError(t, r.conn.DB(ctx).Model(&models.PluginData{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)

	other := PluginScope{Plugin: "fitness", EntityType: "customer", EntityID: 8}
	_, err = r.plugins.Save(ctx, other, "weight", 90)
	require.NoError(t, err)

	all, err := r.plugins.GetAll(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"weight": 70.2, "goal": "lose 5kg"}, all)
}

func TestPluginScalarValues(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	scope := PluginScope{Plugin: "gym", EntityType: "customer", EntityID: 2}

	tests := []struct {
		key           string
		first, second any
		want          any
	}{
		{"visits", 1, 2, 2.0},
		{"weight", 71.5, 70.25, 70.25},
		{"vip", false, true, true},
		{"coach", "amy", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			first, err := r.plugins.Save(ctx, scope, tt.key, tt.first)
			require.NoError(t, err)
			second, err := r.plugins.Save(ctx, scope, tt.key, tt.second)
			require.NoError(t, err)
			assert.Equal(t, first, second)

			got, err := r.plugins.Get(ctx, scope, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	var coach *string
	ok, err := r.plugins.GetInto(ctx, scope, "coach", &coach)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, coach)

	all, err := r.plugins.GetAll(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"visits": 2.0, "weight": 70.25, "vip": true, "coach": nil}, all)
}

func TestPluginResaveBumpsUpdatedAt(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	scope := PluginScope{Plugin: "salon", EntityType: "customer", EntityID: 4}

	id, err := r.plugins.Save(ctx, scope, "shade", 7)
	require.NoError(t, err)
	var before models.PluginData
	require.NoError(t, r.conn.DB(ctx).First(&before, id).Error)

	time.Sleep(10 * time.Millisecond)
	_, err = r.plugins.Save(ctx, scope, "shade", 8)
	require.NoError(t, err)
	var after models.PluginData
	require.NoError(t, r.conn.DB(ctx).First(&after, id).Error)

	assert.True(t, after.UpdatedAt.After(before.UpdatedAt), "updated_at %v not after %v", after.UpdatedAt, before.UpdatedAt)
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
}

func TestPluginKeyIsUniqueInStorage(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	row := func() *models.PluginData {
		return &models.PluginData{PluginName: "gym", EntityType: "customer", EntityID: 1, DataKey: "goal", DataValue: datatypes.JSON(`"bulk"`)}
	}
	require.NoError(t, r.conn.DB(ctx).Create(row()).Error)
	err := r.conn.DB(ctx).Create(row()).Error
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err), "got %v", err)
}

func TestPluginNestedValues(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	scope := PluginScope{Plugin: "salon", EntityType: "customer", EntityID: 1}

	value := map[string]any{
		"allergies": []any{"ammonia", "latex"},
		"history": map[string]any{
			"colour": map[string]any{"last": "2024-01-02", "shade": 7.1},
			"visits": 12.0,
		},
		"vip": true,
	}
	_, err := r.plugins.Save(ctx, scope, "profile", value)
	require.NoError(t, err)

	got, err := r.plugins.Get(ctx, scope, "profile")
	require.NoError(t, err)
	assert.Equal(t, value, got)

	type colour struct {
		Last  string  `json:"last"`
		Shade float64 `json:"shade"`
	}
	var dst struct {
		Allergies []string `json:"allergies"`
		History   struct {
			Colour colour `json:"colour"`
		} `json:"history"`
	}
	ok, err := r.plugins.GetInto(ctx, scope, "profile", &dst)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"ammonia", "latex"}, dst.Allergies)
	assert.Equal(t, 7.1, dst.History.Colour.Shade)

	ok, err = r.plugins.GetInto(ctx, scope, "absent", &dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPluginDelete(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	scope := PluginScope{Plugin: "gym", EntityType: "employee", EntityID: 3}

	for _, key := range []string{"certs", "shift", "rating"} {
		_, err := r.plugins.Save(ctx, scope, key, key)
		require.NoError(t, err)
	}

	n, err := r.plugins.Delete(ctx, scope, "shift")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := r.plugins.Get(ctx, scope, "shift")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err = r.plugins.Delete(ctx, scope, "shift")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = r.plugins.DeleteAll(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	all, err := r.plugins.GetAll(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPluginSaveValidation(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	_, err := r.plugins.Save(ctx, PluginScope{EntityType: "customer", EntityID: 1}, "k", 1)
	requireValidation(t, err, "plugin_name")
	_, err = r.plugins.Save(ctx, PluginScope{Plugin: "p", EntityType: "customer", EntityID: 1}, "", 1)
	requireValidation(t, err, "data_key")
	_, err = r.plugins.Save(ctx, PluginScope{Plugin: "p", EntityType: "customer", EntityID: 1}, "fn", func() {})
	requireValidation(t, err, "data_value")
}
