// internal/app/system/authz/authz.go
package authz

import (
	"net/http"

	"github.com/dalemusser/leavedesk/internal/app/system/auth"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActorFromRequest builds the Actor for the signed-in user. A session whose
// user ID is malformed yields no actor.
func ActorFromRequest(r *http.Request) (Actor, bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return Actor{}, false
	}
	id, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return Actor{}, false
	}
	a := Actor{
		ID:         id,
		Name:       user.Name,
		Email:      user.Email,
		Role:       user.Role,
		Department: user.Department,
	}
	if mid, err := primitive.ObjectIDFromHex(user.ManagerID); err == nil {
		a.ManagerID = &mid
	}
	return a, true
}

// ActorFromUser builds the Actor for a stored user.
func ActorFromUser(u models.User) Actor {
	a := Actor{
		ID:         u.ID,
		Name:       u.FullName,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
	}
	if u.ManagerID != nil {
		mid := *u.ManagerID
		a.ManagerID = &mid
	}
	return a
}
