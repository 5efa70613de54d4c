package domain

// Role is the access level carried by an API token.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleAgent  Role = "agent"
	RoleIngest Role = "ingest"
)

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleIngest:
		return true
	}
	return false
}
