package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"uptask/internal/models"
	"uptask/internal/services"
	"uptask/pkg/apierrors"
	"uptask/pkg/auth"
)

const localsUser = "user"

// SessionAuthMiddleware verifies the session token and stores the projected user on the request.
// Supports both Authorization header and query parameter (for WebSocket connections).
// Requests without a valid session stop here.
func SessionAuthMiddleware(verifier *services.SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string

		if authHeader := c.Get("Authorization"); authHeader != "" {
			if extracted, err := auth.ExtractToken(authHeader); err == nil {
				token = extracted
			}
		}
		if token == "" {
			token = c.Query("token")
		}

		user, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			kind := apierrors.KindOf(err)
			if kind == apierrors.KindInternal {
				log.Printf("❌ [AUTH] Session lookup failed: %v", err)
			}
			return c.Status(apierrors.HTTPStatus(kind)).JSON(fiber.Map{
				"error": apierrors.MessageOf(err),
			})
		}

		c.Locals(localsUser, user)
		c.Locals("user_id", user.ID.Hex())
		c.Locals("user_email", user.Email)
		return c.Next()
	}
}

// CurrentUser returns the user stored by SessionAuthMiddleware, or nil
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localsUser).(*models.User)
	return user
}
