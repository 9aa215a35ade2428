// Package authz decides who may read or change a guild's defense policy.
package authz

import (
	"errors"

	"github.com/1sec-project/guildshield/internal/policy"
)

// ErrUnauthorized is returned when an actor fails a gate.
var ErrUnauthorized = errors.New("unauthorized")

// Actor is the member invoking a command.
type Actor struct {
	ID string `json:"id"`
	// Administrator is the platform's top-level guild permission flag.
	Administrator bool `json:"administrator"`
}

// IsOwnerOrAdmin reports whether actor owns the guild or holds the
// administrator permission.
func IsOwnerOrAdmin(actor Actor, ownerID string) bool {
	if actor.ID == "" {
		return false
	}
	return actor.ID == ownerID || actor.Administrator
}

// CanManageDefense gates every policy command except operator management.
func CanManageDefense(actor Actor, ownerID string, p *policy.Policy) bool {
	if IsOwnerOrAdmin(actor, ownerID) {
		return true
	}
	return actor.ID != "" && p != nil && p.IsOperator(actor.ID)
}

// CanManageOperators gates granting and revoking operator status. Operators
// themselves never pass, so they cannot widen their own circle.
func CanManageOperators(actor Actor, ownerID string) bool {
	return IsOwnerOrAdmin(actor, ownerID)
}
