package api

import (
	"strings"

	"github.com/samber/lo"
)

// Target names users to remove during cleanup: a raw identifier, a user
// record, or a collection of targets.
type Target interface {
	identifiers() []string
}

// Username is a username or email address.
type Username string

func (u Username) identifiers() []string {
	id := strings.TrimSpace(string(u))
	if id == "" {
		return nil
	}
	return []string{id}
}

func (u User) identifiers() []string {
	return Username(u.Username).identifiers()
}

type Targets []Target

func (t Targets) identifiers() []string {
	var out []string
	for _, target := range t {
		if target == nil {
			continue
		}
		out = append(out, target.identifiers()...)
	}
	return out
}

// Usernames wraps plain identifiers as targets.
func Usernames(ids ...string) Targets {
	return lo.Map(ids, func(id string, _ int) Target { return Username(id) })
}

// Users wraps user records as targets.
func Users(users ...User) Targets {
	return lo.Map(users, func(u User, _ int) Target { return u })
}

// FlattenTargets resolves nested targets to distinct identifiers in first
// seen order.
func FlattenTargets(targets ...Target) []string {
	return lo.Uniq(Targets(targets).identifiers())
}
