package teamService

import "github.com/nikhil/doussel/internal/models"

// Team permissions
const (
	PermTeamEdit        = "team.edit"
	PermMembersInvite   = "members.invite"
	PermMembersManage   = "members.manage"
	PermAuditView       = "audit.view"
	PermPropertiesView  = "properties.view"
	PermPropertiesEdit  = "properties.edit"
	PermLeasesView      = "leases.view"
	PermLeasesCreate    = "leases.create"
	PermLeasesEdit      = "leases.edit"
	PermLeasesTerminate = "leases.terminate"
	PermPaymentsView    = "payments.view"
	PermPaymentsRecord  = "payments.record"
	PermFinanceView     = "finance.view"
	PermExpensesManage  = "expenses.manage"
	PermImportsManage   = "imports.manage"
	PermMessagesSend    = "messages.send"
)

var rolePermissions = map[string][]string{
	models.TeamRoleOwner: {
		PermTeamEdit, PermMembersInvite, PermMembersManage, PermAuditView,
		PermPropertiesView, PermPropertiesEdit, PermLeasesView, PermLeasesCreate, PermLeasesEdit,
		PermLeasesTerminate, PermPaymentsView, PermPaymentsRecord, PermFinanceView, PermExpensesManage,
		PermImportsManage, PermMessagesSend,
	},
	models.TeamRoleManager: {
		PermTeamEdit, PermMembersInvite, PermAuditView,
		PermPropertiesView, PermPropertiesEdit, PermLeasesView, PermLeasesCreate, PermLeasesEdit,
		PermLeasesTerminate, PermPaymentsView, PermPaymentsRecord, PermFinanceView, PermExpensesManage,
		PermImportsManage, PermMessagesSend,
	},
	models.TeamRoleAccountant: {
		PermPropertiesView, PermLeasesView, PermPaymentsView, PermPaymentsRecord, PermFinanceView,
		PermExpensesManage, PermImportsManage,
	},
	models.TeamRoleAgent: {
		PermPropertiesView, PermPropertiesEdit, PermLeasesView, PermLeasesCreate, PermMessagesSend,
	},
}

// RoleHasPermission reports whether a team role grants perm.
func RoleHasPermission(role, perm string) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// ValidRole reports whether role is one of the team roles.
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}
