package handlers

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"uptask/internal/services"
	"uptask/pkg/apierrors"
)

// HeaderConnectionID carries the realtime connection id of the caller so its own
// socket is skipped when the change is broadcast.
const HeaderConnectionID = "X-Connection-ID"

// respondError writes {"error": msg} with the status of the error kind.
// Causes of 5xx failures are logged and never sent to the caller.
func respondError(c *fiber.Ctx, err error) error {
	kind := apierrors.KindOf(err)
	status := apierrors.HTTPStatus(kind)
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ %s %s failed (%s): %v", c.Method(), c.Path(), kind, err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": apierrors.MessageOf(err),
	})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid request body",
	})
}

// requestContext carries the caller's realtime connection id into the services
func requestContext(c *fiber.Ctx) context.Context {
	return services.WithOrigin(c.UserContext(), c.Get(HeaderConnectionID))
}
