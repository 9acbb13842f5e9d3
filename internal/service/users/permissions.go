package profileService

import "github.com/nikhil/doussel/internal/models"

// Platform permissions per back-office action.
var Permissions = map[string][]string{
	"admin.dashboard.view": {models.RoleAdmin, models.RoleModerateur, models.RoleAgent, models.RoleSuperAdmin},

	"admin.properties.view":   {models.RoleAdmin, models.RoleModerateur, models.RoleAgent, models.RoleSuperAdmin},
	"admin.properties.create": {models.RoleAdmin, models.RoleAgent, models.RoleSuperAdmin},
	"admin.properties.edit":   {models.RoleAdmin, models.RoleModerateur, models.RoleAgent, models.RoleSuperAdmin},
	"admin.properties.delete": {models.RoleAdmin, models.RoleSuperAdmin},

	"admin.moderation.view":    {models.RoleAdmin, models.RoleModerateur, models.RoleSuperAdmin},
	"admin.moderation.approve": {models.RoleAdmin, models.RoleModerateur, models.RoleSuperAdmin},
	"admin.moderation.reject":  {models.RoleAdmin, models.RoleModerateur, models.RoleSuperAdmin},

	"admin.leads.view":   {models.RoleAdmin, models.RoleModerateur, models.RoleAgent, models.RoleSuperAdmin},
	"admin.leads.manage": {models.RoleAdmin, models.RoleModerateur, models.RoleAgent, models.RoleSuperAdmin},

	"admin.users.view":   {models.RoleAdmin, models.RoleSuperAdmin},
	"admin.users.manage": {models.RoleAdmin, models.RoleSuperAdmin},

	"admin.roles.view":              {models.RoleAdmin, models.RoleSuperAdmin},
	"admin.roles.manage":            {models.RoleAdmin, models.RoleSuperAdmin},
	"admin.roles.manage_superadmin": {models.RoleSuperAdmin},
}

// HasPermission reports whether any of roles is allowed perm. Unknown
// permissions are denied.
func HasPermission(roles []string, perm string) bool {
	allowed, ok := Permissions[perm]
	if !ok {
		return false
	}
	return models.HasRole(roles, allowed...)
}

// BackOfficeRoles may open the admin area at all.
var BackOfficeRoles = []string{models.RoleAdmin, models.RoleModerateur, models.RoleAgent, models.RoleSuperAdmin}

// ModeratorRoles may approve or reject listings.
var ModeratorRoles = Permissions["admin.moderation.approve"]
