package rbac

// Role constants
const (
	RoleAdmin    = "admin"
	RoleOwner    = "owner"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Permission constants
const (
	PermRunHunt      = "run_hunt"      // trigger the daily run for every tenant
	PermProcessHunt  = "process_hunt"  // on-demand run of one campaign
	PermManualSend   = "manual_send"
	PermManageBudget = "manage_budget" // grant credits
	PermRefund       = "refund_credits"
	PermViewBudget   = "view_budget"
	PermViewJobs     = "view_jobs"
	PermManageHunts  = "manage_hunts" // campaigns, channel settings
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermRunHunt, PermProcessHunt, PermManualSend, PermManageBudget, PermRefund,
		PermViewBudget, PermViewJobs, PermManageHunts,
	},
	RoleOwner: {
		PermProcessHunt, PermManualSend, PermManageBudget, PermViewBudget, PermViewJobs,
		PermManageHunts,
	},
	RoleOperator: {
		PermProcessHunt, PermManualSend, PermViewBudget, PermViewJobs,
		// Operator CANNOT: PermManageBudget
	},
	RoleViewer: {
		PermViewBudget, PermViewJobs,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsFinancialOperation reports whether the permission moves credits.
func IsFinancialOperation(permission string) bool {
	return permission == PermManageBudget || permission == PermRefund
}
