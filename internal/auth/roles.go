package auth

// Role is a tenant-scoped authorization level with a total order:
// student < teacher < admin.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

var roleRanks = map[Role]int{
	RoleStudent: 1,
	RoleTeacher: 2,
	RoleAdmin:   3,
}

// Rank returns the role's position in the order; unknown roles rank 0,
// below student.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r grants everything other does.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// HighestRole folds a role set down to its maximum by rank. A user with no
// roles (or only unknown ones) gets the empty role, which ranks below
// everything.
func HighestRole(roles []Role) Role {
	var best Role
	for _, r := range roles {
		if r.Rank() > best.Rank() {
			best = r
		}
	}
	return best
}
