package api

import (
	"strings"

	"github.com/google/uuid"
)

type User struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// NewTestUser returns a user with unique, randomly generated credentials.
func NewTestUser(roles ...string) User {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return User{
		Username:  "probe_" + suffix,
		Email:     "probe_" + suffix + "@example.com",
		Password:  "Pw@" + suffix + "!1",
		FirstName: "Probe",
		LastName:  suffix,
		Roles:     roles,
	}
}
