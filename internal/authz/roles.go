package authz

// Роли admin API (claim "role" в JWT).
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

func IsKnown(role string) bool {
	return role == RoleViewer || role == RoleAdmin
}

func IsReadOnly(role string) bool {
	return role == RoleViewer
}
