package service

import (
	"github.com/noah-isme/campus-events-api/internal/live"
	"github.com/noah-isme/campus-events-api/internal/models"
)

// Actor is the authenticated account a use case runs on behalf of.
type Actor struct {
	UserID   string
	Email    string
	FullName string
	Role     models.Role
}

// ActorFromClaims builds an Actor from validated access token claims.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Email: claims.Email, FullName: claims.FullName, Role: claims.Role}
}

// Viewer returns the predicate identity used by live queries.
func (a Actor) Viewer() live.Viewer {
	return live.Viewer{UserID: a.UserID, Email: a.Email, Role: a.Role}
}

// IsOrganizer reports whether the actor publishes events.
func (a Actor) IsOrganizer() bool {
	return a.Role == models.RoleOrganizer
}
