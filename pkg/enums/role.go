package enums

import (
	"fmt"
	"strings"
)

// Role is the side of the marketplace a user is acting on for a request.
type Role string

const (
	RoleRequester Role = "requester"
	RoleRunner    Role = "runner"
)

var validRoles = []Role{
	RoleRequester,
	RoleRunner,
}

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role, ignoring case and whitespace.
func ParseRole(value string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
