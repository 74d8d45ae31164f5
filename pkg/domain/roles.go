package domain

// Permission names a capability checked by the API before staff operations.
type Permission string

const (
	PermManageUsers      Permission = "users.manage"
	PermManageSettings   Permission = "settings.manage"
	PermManageEmployees  Permission = "employees.manage"
	PermViewSalaries     Permission = "employees.salary"
	PermAuthorProjects   Permission = "projects.author"
	PermPublishProjects  Permission = "projects.publish"
	PermModerateComments Permission = "comments.moderate"
	PermManageInquiries  Permission = "inquiries.manage"
	PermViewDashboard    Permission = "dashboard.view"
)

var rolePermissions = map[UserRole]map[Permission]struct{}{
	RoleSuperAdmin: permSet(
		PermManageUsers, PermManageSettings, PermManageEmployees, PermViewSalaries,
		PermAuthorProjects, PermPublishProjects, PermModerateComments, PermManageInquiries,
		PermViewDashboard,
	),
	RoleAdmin: permSet(
		PermManageUsers, PermManageSettings, PermManageEmployees,
		PermAuthorProjects, PermPublishProjects, PermModerateComments, PermManageInquiries,
		PermViewDashboard,
	),
	RoleFinance: permSet(PermViewSalaries, PermViewDashboard),
	RoleHigherManager: permSet(
		PermManageEmployees, PermAuthorProjects, PermPublishProjects, PermModerateComments,
		PermManageInquiries, PermViewDashboard,
	),
	RoleCrafter:  permSet(PermAuthorProjects, PermViewDashboard),
	RoleEmployee: permSet(PermViewDashboard),
	RoleUser:     permSet(),
}

func permSet(perms ...Permission) map[Permission]struct{} {
	out := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		out[p] = struct{}{}
	}
	return out
}

// Can reports whether the role grants the permission.
func (r UserRole) Can(p Permission) bool {
	_, ok := rolePermissions[r][p]
	return ok
}

// IsStaff reports whether the role belongs to the studio rather than the public.
func (r UserRole) IsStaff() bool {
	return r.Valid() && r != RoleUser
}

// CanEditAnyProject reports whether the role may edit projects authored by others.
// Crafters may only edit their own.
func (r UserRole) CanEditAnyProject() bool {
	return r.Can(PermAuthorProjects) && r != RoleCrafter
}

// CanAssignRole reports whether a user holding r may grant target.
func (r UserRole) CanAssignRole(target UserRole) bool {
	if !r.Can(PermManageUsers) || !target.Valid() {
		return false
	}
	if target == RoleSuperAdmin {
		return r == RoleSuperAdmin
	}
	return true
}
