package auth

import "strings"

// Role is the access level carried in a token's role claim.
type Role string

const (
	// RoleViewer reads readings, statistics, anomaly reports and exports, and
	// drives the plant-floor slideshow.
	RoleViewer Role = "viewer"
	// RoleOperator additionally records readings, either through the guided
	// entry session under /entry or by posting to /readings, and edits
	// anomaly notes.
	RoleOperator Role = "operator"
	// RoleAdmin additionally changes display settings and reads the audit log.
	RoleAdmin Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// ParseRole maps a role claim to a Role. Case and surrounding blanks are
// ignored so "Operator " from an identity provider still matches.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role grants everything required grants. An
// unknown role satisfies nothing.
func RoleAtLeast(role Role, required Role) bool {
	rank, ok := roleRanks[role]
	return ok && rank >= roleRanks[required]
}
