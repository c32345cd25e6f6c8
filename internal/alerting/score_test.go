package alerting

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-service/internal/model"
)

func TestHealthScoreEmptyTenant(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.Tenant{ID: 1, Name: "empty", OwnerID: 1}).Error)

	score, err := HealthScore(db, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, score)
}

func TestHealthScoreWeightsBands(t *testing.T) {
	db := newTestDB(t)
	tenant := model.Tenant{
		ID: 1, Name: "acme", OwnerID: 1,
		DefaultCriticalThreshold:  5,
		DefaultAttentionThreshold: 20,
	}
	require.NoError(t, db.Create(&tenant).Error)
	lc := NewLifecycle(nil, nil)

	// 10 products: 5 red, 5 orange
	for i := 0; i < 10; i++ {
		stock := 3 // red
		if i >= 5 {
			stock = 10 // orange
		}
		product := model.Product{
			ID:       fmt.Sprintf("prod-%d", i),
			TenantID: tenant.ID,
			Name:     fmt.Sprintf("Product %d", i),
			Quantity: stock,
		}
		require.NoError(t, db.Create(&product).Error)
		require.NoError(t, lc.Apply(db, tenant.ID, product.ID, stock))
	}

	// 100 - (0.5*40 + 0.5*15) = 72.5, rounded to 73
	score, err := HealthScore(db, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 73, score)
}

func TestHealthScoreAllHealthy(t *testing.T) {
	db := newTestDB(t)
	tenant := model.Tenant{
		ID: 1, Name: "acme", OwnerID: 1,
		DefaultCriticalThreshold:  5,
		DefaultAttentionThreshold: 20,
	}
	require.NoError(t, db.Create(&tenant).Error)

	for i := 0; i < 4; i++ {
		require.NoError(t, db.Create(&model.Product{
			ID:       fmt.Sprintf("prod-%d", i),
			TenantID: tenant.ID,
			Name:     fmt.Sprintf("Product %d", i),
			Quantity: 100,
		}).Error)
	}

	score, err := HealthScore(db, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, score)
}
