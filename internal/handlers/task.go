package handlers

import (
	"github.com/gofiber/fiber/v2"

	"uptask/internal/middleware"
	"uptask/internal/models"
	"uptask/internal/services"
)

// TaskHandler handles task endpoints
type TaskHandler struct {
	tasks *services.TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// Create adds a task to the project named in the body
// POST /api/tasks
func (h *TaskHandler) Create(c *fiber.Ctx) error {
	var req models.TaskInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	task, err := h.tasks.CreateTask(requestContext(c), req.Project, middleware.CurrentUser(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

// Get returns a task
// GET /api/tasks/:id
func (h *TaskHandler) Get(c *fiber.Ctx) error {
	task, err := h.tasks.GetTask(c.UserContext(), c.Params("id"), middleware.CurrentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(task)
}

// Update edits a task
// PUT /api/tasks/:id
func (h *TaskHandler) Update(c *fiber.Ctx) error {
	var req models.TaskInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	task, err := h.tasks.UpdateTask(requestContext(c), c.Params("id"), middleware.CurrentUser(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(task)
}

// Delete removes a task
// DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	if err := h.tasks.DeleteTask(requestContext(c), c.Params("id"), middleware.CurrentUser(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Task deleted"})
}

// ToggleState flips a task between pending and complete
// POST /api/tasks/:id/state
func (h *TaskHandler) ToggleState(c *fiber.Ctx) error {
	task, err := h.tasks.ToggleTaskState(requestContext(c), c.Params("id"), middleware.CurrentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(task)
}
