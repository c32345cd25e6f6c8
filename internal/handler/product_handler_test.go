package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"inventory-service/internal/model"
)

func strPtr(s string) *string     { return &s }
func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestApplyProductRequestLeavesAbsentFieldsUntouched(t *testing.T) {
	critical, attention := 3, 12
	product := model.Product{
		ID:                       "prod-1",
		TenantID:                 1,
		Name:                     "Widget",
		Description:              "A widget",
		SKU:                      "W-1",
		Price:                    9.5,
		Quantity:                 40,
		CustomCriticalThreshold:  &critical,
		CustomAttentionThreshold: &attention,
	}

	applyProductRequest(&product, &ProductRequest{Name: strPtr("Renamed")})

	assert.Equal(t, "Renamed", product.Name)
	assert.Equal(t, "A widget", product.Description)
	assert.Equal(t, "W-1", product.SKU)
	assert.Equal(t, 9.5, product.Price)
	assert.Equal(t, &critical, product.CustomCriticalThreshold)
	assert.Equal(t, &attention, product.CustomAttentionThreshold)
	assert.Equal(t, 40, product.Quantity)
}

func TestApplyProductRequestSetsProvidedFields(t *testing.T) {
	product := model.Product{ID: "prod-1", TenantID: 1, Name: "Widget"}

	applyProductRequest(&product, &ProductRequest{
		Description:              strPtr("New description"),
		SKU:                      strPtr("SKU-2"),
		Price:                    floatPtr(12),
		CustomCriticalThreshold:  intPtr(2),
		CustomAttentionThreshold: intPtr(8),
	})

	assert.Equal(t, "Widget", product.Name, "absent name keeps the stored one")
	assert.Equal(t, "New description", product.Description)
	assert.Equal(t, "SKU-2", product.SKU)
	assert.Equal(t, float64(12), product.Price)
	assert.Equal(t, 2, *product.CustomCriticalThreshold)
	assert.Equal(t, 8, *product.CustomAttentionThreshold)
}

func TestApplyProductRequestIgnoresEmptyName(t *testing.T) {
	product := model.Product{ID: "prod-1", Name: "Widget"}

	applyProductRequest(&product, &ProductRequest{Name: strPtr("")})

	assert.Equal(t, "Widget", product.Name)
}
