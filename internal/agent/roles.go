package agent

// Role identifies which kind of agent an executor invocation drives. Each
// role gets a distinct tool allow-list: engineers modify code, reviewers and
// planners only read it.
type Role string

const (
	RoleEngineer     Role = "Engineer"
	RoleTechLead     Role = "TechLead"
	RoleProductOwner Role = "ProductOwner"
)

// AllowedTools returns the tool allow-list for the role.
func (r Role) AllowedTools() []string {
	switch r {
	case RoleEngineer:
		return []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep"}
	case RoleTechLead:
		return []string{"Read", "Glob", "Grep", "Bash"}
	case RoleProductOwner:
		return []string{"Read", "Glob", "Grep"}
	default:
		return nil
	}
}

// CanModify reports whether the role is allowed to change files.
func (r Role) CanModify() bool {
	return r == RoleEngineer
}
