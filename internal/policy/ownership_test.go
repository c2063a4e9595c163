package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"products/internal/models"
	"products/internal/policy"
)

func TestAuthorize(t *testing.T) {
	seller := policy.Caller{ID: "seller-a", Role: models.RoleSeller}
	otherSeller := policy.Caller{ID: "seller-b", Role: models.RoleSeller}
	buyer := policy.Caller{ID: "buyer-1", Role: "customer"}
	anonymous := policy.Caller{}

	tests := []struct {
		name     string
		caller   policy.Caller
		action   policy.Action
		sellerID string
		wantErr  error
	}{
		{"seller creates", seller, policy.ActionCreate, "", nil},
		{"buyer cannot create", buyer, policy.ActionCreate, "", models.ErrForbidden},
		{"seller lists own", seller, policy.ActionListOwn, "", nil},
		{"buyer cannot list own", buyer, policy.ActionListOwn, "", models.ErrForbidden},
		{"owner updates", seller, policy.ActionUpdate, "seller-a", nil},
		{"other seller cannot update", otherSeller, policy.ActionUpdate, "seller-a", models.ErrForbidden},
		{"owner deletes", seller, policy.ActionDelete, "seller-a", nil},
		{"other seller cannot delete", otherSeller, policy.ActionDelete, "seller-a", models.ErrForbidden},
		{"owner adjusts stock", seller, policy.ActionAdjustStock, "seller-a", nil},
		{"other seller cannot adjust stock", otherSeller, policy.ActionAdjustStock, "seller-a", models.ErrForbidden},
		// Ownership, not role, gates mutations.
		{"owner without seller role updates", policy.Caller{ID: "seller-a", Role: "customer"}, policy.ActionUpdate, "seller-a", nil},
		{"anonymous create", anonymous, policy.ActionCreate, "", models.ErrUnauthorized},
		{"anonymous update", anonymous, policy.ActionUpdate, "seller-a", models.ErrUnauthorized},
		{"unknown action", seller, policy.Action(99), "seller-a", models.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Authorize(tt.caller, tt.action, tt.sellerID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestCallerFromUser(t *testing.T) {
	assert.Equal(t, policy.Caller{}, policy.CallerFromUser(nil))

	caller := policy.CallerFromUser(&models.User{ID: "u1", Role: models.RoleSeller, Email: "a@b.c"})
	assert.True(t, caller.Authenticated())
	assert.True(t, caller.IsSeller())
	assert.Equal(t, "u1", caller.ID)
}
