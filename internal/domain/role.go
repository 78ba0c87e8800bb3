package domain

import (
	"fmt"
	"slices"
	"strings"
)

type Role string

const (
	RoleCustomer         Role = "customer"
	RoleInventoryManager Role = "inventory_manager"
	RoleSales            Role = "sales"
	RoleIT               Role = "it"
	RoleAnalyst          Role = "analyst"
	RoleAdministrative   Role = "administrative"
	RoleSuperAdmin       Role = "super_admin"
)

var DefaultRoles = []Role{
	RoleCustomer,
	RoleInventoryManager,
	RoleSales,
	RoleIT,
	RoleAnalyst,
	RoleAdministrative,
	RoleSuperAdmin,
}

// RoleSet is the configured set of roles an account may hold. It carries no
// hierarchy: a gate lists every role it admits.
type RoleSet struct {
	roles []Role
}

func NewRoleSet(names []string) (RoleSet, error) {
	if len(names) == 0 {
		return RoleSet{roles: slices.Clone(DefaultRoles)}, nil
	}
	out := make([]Role, 0, len(names))
	for _, n := range names {
		r := Role(strings.ToLower(strings.TrimSpace(n)))
		if r == "" {
			continue
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return RoleSet{}, fmt.Errorf("%w: role set is empty", ErrConfiguration)
	}
	if !slices.Contains(out, RoleCustomer) {
		return RoleSet{}, fmt.Errorf("%w: role set must contain %q", ErrConfiguration, RoleCustomer)
	}
	return RoleSet{roles: out}, nil
}

func (s RoleSet) Contains(r Role) bool {
	return slices.Contains(s.roles, r)
}

func (s RoleSet) Roles() []Role {
	return slices.Clone(s.roles)
}
