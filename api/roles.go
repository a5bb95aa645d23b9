package api

// Role is the role id the API hands out with a user.
type Role int

const (
	RoleUnspecified    Role = 0
	RoleMinistrant     Role = 1
	RoleOberministrant Role = 2
	RoleAdministrator  Role = 3
)

// Privileged roles unlock master data and planning.
func (r Role) Privileged() bool {
	return r == RoleOberministrant || r == RoleAdministrator
}

func (r Role) String() string {
	switch r {
	case RoleMinistrant:
		return "Ministrant"
	case RoleOberministrant:
		return "Oberministrant"
	case RoleAdministrator:
		return "Administrator"
	}
	return "Unbekannt"
}
