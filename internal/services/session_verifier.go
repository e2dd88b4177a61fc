package services

import (
	"context"
	"errors"
	"log"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/models"
	"uptask/pkg/apierrors"
	"uptask/pkg/auth"
)

// SessionVerifier turns a bearer credential into the projected user it names.
// Resolved users are cached briefly so a burst of requests costs one lookup.
type SessionVerifier struct {
	jwtAuth *auth.LocalJWTAuth
	users   UserRepository
	cache   *cache.Cache
}

// NewSessionVerifier creates a verifier. ttl <= 0 disables the user cache.
func NewSessionVerifier(jwtAuth *auth.LocalJWTAuth, users UserRepository, ttl time.Duration) *SessionVerifier {
	v := &SessionVerifier{jwtAuth: jwtAuth, users: users}
	if ttl > 0 {
		v.cache = cache.New(ttl, 2*ttl)
	}
	return v
}

// Verify validates the credential and loads the user without password hash or token
func (v *SessionVerifier) Verify(ctx context.Context, credential string) (*models.User, error) {
	if credential == "" {
		return nil, apierrors.Unauthorized("Missing session token")
	}

	userID, err := v.jwtAuth.VerifyToken(credential)
	if err != nil {
		log.Printf("[AUTH] Token rejected: %v", err)
		return nil, apierrors.Unauthorized("Invalid session token")
	}

	if v.cache != nil {
		if cached, ok := v.cache.Get(userID); ok {
			user := *cached.(*models.User)
			return &user, nil
		}
	}

	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, apierrors.Unauthorized("Invalid session token")
	}

	user, err := v.users.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierrors.Unauthorized("Session user no longer exists")
		}
		return nil, apierrors.Internal("Failed to load session user", err)
	}

	projected := user.Projected()
	if v.cache != nil {
		v.cache.Set(userID, projected, cache.DefaultExpiration)
	}
	result := *projected
	return &result, nil
}

// Forget drops a cached user so the next request reloads it. A cached user is served for
// up to the cache ttl, so any path that removes or disables an account must call Forget.
func (v *SessionVerifier) Forget(userID string) {
	if v.cache != nil {
		v.cache.Delete(userID)
	}
}
