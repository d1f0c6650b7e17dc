package authz

import "storage-booking-backend/internal/domain"

var (
	AllRoles = []domain.RoleName{
		domain.RoleUser,
		domain.RoleRequester,
		domain.RoleStorageManager,
		domain.RoleTenantAdmin,
		domain.RoleSuperAdmin,
		domain.RoleSuperVera,
	}

	// OrgAdminRoles may decide on items their organization provides.
	OrgAdminRoles = []domain.RoleName{domain.RoleStorageManager, domain.RoleTenantAdmin}

	// BookedByOrgRoles make a booking count as placed on behalf of the active org.
	BookedByOrgRoles = []domain.RoleName{domain.RoleTenantAdmin, domain.RoleStorageManager, domain.RoleRequester}
)

var (
	CreateBooking    = Permission{Roles: AllRoles}
	ViewAvailability = Permission{Roles: AllRoles}
	ViewOwnBookings  = Permission{Roles: AllRoles}

	// ManageOrgItems covers confirm, reject, pickup, return, cancel-as-admin,
	// delete and payment updates; it is evaluated per providing organization.
	ManageOrgItems = Permission{Roles: OrgAdminRoles, SameOrg: true}

	ListAllBookings = Permission{Roles: []domain.RoleName{domain.RoleSuperAdmin}}
)
