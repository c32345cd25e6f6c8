package alerting

import "inventory-service/internal/model"

// Threshold modes reported by ResolveEffectiveThresholds.
const (
	ModeCustom   = "custom"
	ModeDefaults = "defaults"
)

// EffectiveThresholds is the (critical, attention) pair actually used for a
// product after resolving custom vs tenant-default precedence.
type EffectiveThresholds struct {
	Critical  int
	Attention int
	Mode      string
}

// ResolveEffectiveThresholds returns the thresholds in effect for a product.
// The custom pair is used only when both values are present, both are
// strictly positive and critical < attention. Anything else falls back to the
// tenant defaults silently; a half-configured product is not an error.
func ResolveEffectiveThresholds(product *model.Product, tenant *model.Tenant) EffectiveThresholds {
	custom := product.CustomCriticalThreshold
	attention := product.CustomAttentionThreshold

	if custom != nil && attention != nil &&
		*custom > 0 && *attention > 0 &&
		*custom < *attention {
		return EffectiveThresholds{
			Critical:  *custom,
			Attention: *attention,
			Mode:      ModeCustom,
		}
	}

	return EffectiveThresholds{
		Critical:  tenant.DefaultCriticalThreshold,
		Attention: tenant.DefaultAttentionThreshold,
		Mode:      ModeDefaults,
	}
}

// ClassifyLevel maps a stock level onto the tri-level alert scale. Both
// boundaries are inclusive on the unhealthy side: stock == critical is red,
// stock == attention is orange. Zero and negative stock classify as red
// through the plain comparison, no special case.
func ClassifyLevel(stock, critical, attention int) string {
	switch {
	case stock <= critical:
		return model.AlertLevelRed
	case stock <= attention:
		return model.AlertLevelOrange
	default:
		return model.AlertLevelGreen
	}
}
