package hub

import "github.com/stitchworks/factory-pulse/internal/domain"

// Roles known to the hub. Role names match the ERP's user roles.
const (
	RoleAdmin             = "admin"
	RoleManager           = "manager"
	RoleProductionManager = "production_manager"
	RoleSupervisor        = "supervisor"
	RoleOperator          = "operator"
	RoleQCInspector       = "qc_inspector"
	RoleQualityManager    = "quality_manager"
	RoleMaintenance       = "maintenance"
	RoleWarehouse         = "warehouse"
	RolePurchasing        = "purchasing"
)

// Role entitlement per update kind. Machine and inventory state stay off
// the wire for roles without clearance.
var (
	productionRoles = []string{RoleAdmin, RoleManager, RoleProductionManager, RoleSupervisor, RoleOperator}
	machineRoles    = []string{RoleAdmin, RoleManager, RoleMaintenance, RoleSupervisor}
	inventoryRoles  = []string{RoleAdmin, RoleManager, RoleWarehouse, RolePurchasing}
	analyticsRoles  = []string{RoleAdmin, RoleManager}
)

// alertRoles maps alert type to its specialist roles; admin and manager are
// appended to every alert's audience.
var alertRoles = map[string][]string{
	domain.AlertBottleneck: {RoleProductionManager, RoleSupervisor},
	domain.AlertDelay:      {RoleProductionManager, RoleSupervisor},
	domain.AlertQuality:    {RoleQCInspector, RoleQualityManager},
	domain.AlertMachine:    {RoleMaintenance, RoleSupervisor},
	domain.AlertInventory:  {RoleWarehouse, RolePurchasing},
}

// AlertTargetRoles returns the de-duplicated audience for an alert type.
func AlertTargetRoles(alertType string) []string {
	roles := append([]string{RoleAdmin, RoleManager}, alertRoles[alertType]...)
	seen := make(map[string]bool, len(roles))
	out := roles[:0]
	for _, r := range roles {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func canSeeMachines(role string) bool {
	for _, r := range machineRoles {
		if r == role {
			return true
		}
	}
	return false
}

func canSeeInventory(role string) bool {
	for _, r := range inventoryRoles {
		if r == role {
			return true
		}
	}
	return false
}
