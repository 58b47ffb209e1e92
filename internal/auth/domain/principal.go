package domain

import "slices"

// RolePrefix is the access-control prefix convention applied when mapping
// roles to authorities for downstream authorization checks.
const RolePrefix = "ROLE_"

// Principal is the verified identity handed to token generation and produced
// by token validation. It is transient: constructed per request and never
// persisted as-is.
type Principal struct {
	UserID   string
	Email    string
	Roles    []string
	TenantID string // empty in single-tenant deployments
}

// Authorities maps the principal's roles onto prefixed authority strings,
// e.g. "partner" -> "ROLE_partner". Order follows Roles.
func (p Principal) Authorities() []string {
	if len(p.Roles) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		out = append(out, RolePrefix+r)
	}
	return out
}

// HasRole reports whether the principal holds the given (unprefixed) role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}
