// Package policy decides whether a caller may perform a product operation.
//
// Creation and listing of one's own products are gated by role; every
// mutation of an existing product is gated by ownership alone. A denial is
// reported as models.ErrForbidden and never disguised as a missing product.
package policy

import (
	"github.com/pkg/errors"

	"products/internal/models"
)

// Action is a class of operation subject to authorization.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
	ActionAdjustStock
	ActionListOwn
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	case ActionAdjustStock:
		return "adjust stock"
	case ActionListOwn:
		return "list own products"
	default:
		return "unknown"
	}
}

// Caller is the identity resolved from a validated session.
type Caller struct {
	ID   string
	Role string
}

// CallerFromUser builds a Caller from a users-service profile.
func CallerFromUser(u *models.User) Caller {
	if u == nil {
		return Caller{}
	}
	return Caller{ID: u.ID, Role: u.Role}
}

// Authenticated reports whether the caller carries an identity.
func (c Caller) Authenticated() bool {
	return c.ID != ""
}

// IsSeller reports whether the caller has the seller role.
func (c Caller) IsSeller() bool {
	return c.Role == models.RoleSeller
}

// Authorize returns nil when caller may perform action on a product owned by
// sellerID. sellerID is ignored for ActionCreate and ActionListOwn.
func Authorize(caller Caller, action Action, sellerID string) error {
	if !caller.Authenticated() {
		return errors.Wrapf(models.ErrUnauthorized, "%s requires a session", action)
	}

	switch action {
	case ActionCreate, ActionListOwn:
		if !caller.IsSeller() {
			return errors.Wrapf(models.ErrForbidden, "only sellers can %s", action)
		}
		return nil
	case ActionUpdate, ActionDelete, ActionAdjustStock:
		if caller.ID != sellerID {
			return errors.Wrapf(models.ErrForbidden, "only the owning seller can %s", action)
		}
		return nil
	default:
		return errors.Wrapf(models.ErrForbidden, "unknown action %d", int(action))
	}
}
