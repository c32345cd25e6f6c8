package handler

import (
	"inventory-service/internal/alerting"
	"inventory-service/internal/inventory"
	"inventory-service/internal/syncer"
)

var (
	syncEngine      *syncer.Engine
	movementService *inventory.Service
	alertLifecycle  *alerting.Lifecycle
)

// Init wires the handlers to the service layer. Called once from main after
// the database and notifier are up.
func Init(engine *syncer.Engine, movements *inventory.Service, lifecycle *alerting.Lifecycle) {
	syncEngine = engine
	movementService = movements
	alertLifecycle = lifecycle
}
