package auth

import "strings"

// Role scopes what a caller may do against the fleet API. A viewer reads
// telemetry, KPIs, and schedules. An operator additionally ingests
// readings, transitions anomalies, applies optimization scenarios, and
// triggers recomputes. An admin additionally publishes threshold
// configurations and retires machines.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole maps a role claim to a known role. Claims are matched
// case-insensitively so tokens minted by other services interoperate.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	_, ok := roleRanks[role]
	if !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role grants everything required does.
// Unknown roles grant nothing.
func RoleAtLeast(role Role, required Role) bool {
	rank, ok := roleRanks[role]
	if !ok {
		return false
	}
	return rank >= roleRanks[required]
}
