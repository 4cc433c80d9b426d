package domain

import "strings"

type Role string

const (
	RoleOwner    Role = "owner"
	RoleCustomer Role = "customer"
)

// ParseRole normaliza un tag de rol. Devuelve false si no es conocido.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleOwner:
		return RoleOwner, true
	case RoleCustomer:
		return RoleCustomer, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleCustomer
}
