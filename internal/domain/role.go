package domain

type RoleName string

const (
	RoleUser           RoleName = "user"
	RoleRequester      RoleName = "requester"
	RoleStorageManager RoleName = "storage_manager"
	RoleTenantAdmin    RoleName = "tenant_admin"
	RoleSuperAdmin     RoleName = "super_admin"
	RoleSuperVera      RoleName = "superVera"
)

// IsGlobal reports whether the role bypasses organization scoping.
func (r RoleName) IsGlobal() bool {
	return r == RoleSuperAdmin || r == RoleSuperVera
}

// RoleAssignment is a user's role within one organization.
type RoleAssignment struct {
	UserID string   `json:"user_id"`
	OrgID  string   `json:"organization_id"`
	Role   RoleName `json:"role_name"`
}

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}
