package handlers

import (
	"github.com/gofiber/fiber/v2"

	"uptask/internal/middleware"
	"uptask/internal/models"
	"uptask/internal/services"
)

// ProjectHandler handles project and collaborator endpoints
type ProjectHandler struct {
	projects      *services.ProjectService
	collaboration *services.CollaborationService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *services.ProjectService, collaboration *services.CollaborationService) *ProjectHandler {
	return &ProjectHandler{
		projects:      projects,
		collaboration: collaboration,
	}
}

// List returns the projects the caller created or collaborates on
// GET /api/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := h.projects.ListProjectsVisibleTo(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(projects)
}

// Create creates a project owned by the caller
// POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req models.ProjectInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	project, err := h.projects.CreateProject(c.UserContext(), middleware.CurrentUser(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(project)
}

// Get returns a project with its tasks and collaborators
// GET /api/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	detail, err := h.projects.GetProject(c.UserContext(), c.Params("id"), middleware.CurrentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(detail)
}

// Update edits a project
// PUT /api/projects/:id
func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	var req models.ProjectInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	project, err := h.projects.UpdateProject(c.UserContext(), c.Params("id"), middleware.CurrentUser(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(project)
}

// Delete removes a project and its tasks
// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	if err := h.projects.DeleteProject(c.UserContext(), c.Params("id"), middleware.CurrentUser(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Project deleted"})
}

// SearchCollaborator looks up an account by email before inviting it
// POST /api/projects/collaborators/search
func (h *ProjectHandler) SearchCollaborator(c *fiber.Ctx) error {
	var req EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	user, err := h.collaboration.FindUserByEmail(c.UserContext(), req.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// AddCollaborator invites an account by email
// POST /api/projects/:id/collaborators
func (h *ProjectHandler) AddCollaborator(c *fiber.Ctx) error {
	var req EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	user, err := h.collaboration.AddCollaborator(c.UserContext(), c.Params("id"), middleware.CurrentUser(c), req.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":      "Collaborator added",
		"collaborator": user,
	})
}

// RemoveCollaborator revokes a collaborator
// DELETE /api/projects/:id/collaborators/:userId
func (h *ProjectHandler) RemoveCollaborator(c *fiber.Ctx) error {
	if err := h.collaboration.RemoveCollaborator(c.UserContext(), c.Params("id"), middleware.CurrentUser(c), c.Params("userId")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Collaborator removed"})
}
