package domain

// Role governs which operations a user may perform.
type Role string

const (
	RoleAdministrator Role = "Administrator"
	RoleManager       Role = "Manager"
	RoleOperator      Role = "Operator"
)

// Roles lists every known role.
var Roles = []Role{RoleAdministrator, RoleManager, RoleOperator}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleManager, RoleOperator:
		return true
	}
	return false
}
