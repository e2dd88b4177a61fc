// Package memstore is an in-process document store with the same semantics as
// the MongoDB stores. It backs development runs without MONGODB_URI and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/database"
	"uptask/internal/models"
)

// Store holds every collection behind one lock
type Store struct {
	mu       sync.RWMutex
	users    map[primitive.ObjectID]models.User
	projects map[primitive.ObjectID]models.Project
	tasks    map[primitive.ObjectID]models.Task
	ops      map[string]models.PendingOperation
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:    make(map[primitive.ObjectID]models.User),
		projects: make(map[primitive.ObjectID]models.Project),
		tasks:    make(map[primitive.ObjectID]models.Task),
		ops:      make(map[string]models.PendingOperation),
	}
}

// Users returns the user collection
func (s *Store) Users() *Users { return &Users{s: s} }

// Projects returns the project collection
func (s *Store) Projects() *Projects { return &Projects{s: s} }

// Tasks returns the task collection
func (s *Store) Tasks() *Tasks { return &Tasks{s: s} }

// Journal returns the pending operation collection
func (s *Store) Journal() *Journal { return &Journal{s: s} }

func cloneIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, len(ids))
	copy(out, ids)
	return out
}

func cloneProject(p models.Project) *models.Project {
	p.Collaborators = cloneIDs(p.Collaborators)
	p.Tasks = cloneIDs(p.Tasks)
	return &p
}

func cloneTask(t models.Task) *models.Task {
	if t.CompletedBy != nil {
		id := *t.CompletedBy
		t.CompletedBy = &id
	}
	return &t
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, database.ErrNotFound)
}

// Users implements the user repository
type Users struct{ s *Store }

func (u *Users) Create(_ context.Context, user *models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	for _, existing := range u.s.users {
		if existing.Email == user.Email {
			return fmt.Errorf("email %q already registered: %w", user.Email, database.ErrDuplicate)
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	u.s.users[user.ID] = *user
	return nil
}

func (u *Users) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	user, ok := u.s.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return &user, nil
}

func (u *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, notFound("user")
}

func (u *Users) FindByToken(_ context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, notFound("user")
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.users {
		if user.Token == token {
			return &user, nil
		}
	}
	return nil, notFound("user")
}

func (u *Users) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	var users []models.User
	for _, id := range ids {
		if user, ok := u.s.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (u *Users) Update(_ context.Context, user *models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	stored, ok := u.s.users[user.ID]
	if !ok {
		return notFound("user")
	}
	user.UpdatedAt = time.Now()
	stored.Name = user.Name
	stored.PasswordHash = user.PasswordHash
	stored.Token = user.Token
	stored.Confirmed = user.Confirmed
	stored.UpdatedAt = user.UpdatedAt
	u.s.users[user.ID] = stored
	return nil
}

// Projects implements the project repository
type Projects struct{ s *Store }

func (p *Projects) Create(_ context.Context, project *models.Project) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if project.ID.IsZero() {
		project.ID = primitive.NewObjectID()
	}
	if project.Collaborators == nil {
		project.Collaborators = []primitive.ObjectID{}
	}
	if project.Tasks == nil {
		project.Tasks = []primitive.ObjectID{}
	}
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now
	p.s.projects[project.ID] = *cloneProject(*project)
	return nil
}

func (p *Projects) FindByID(_ context.Context, id primitive.ObjectID) (*models.Project, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	project, ok := p.s.projects[id]
	if !ok {
		return nil, notFound("project")
	}
	return cloneProject(project), nil
}

func (p *Projects) FindCollaboratorOrCreator(_ context.Context, userID primitive.ObjectID) ([]models.Project, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	projects := []models.Project{}
	for _, project := range p.s.projects {
		if project.Creator == userID || project.HasCollaborator(userID) {
			projects = append(projects, *cloneProject(project))
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.Before(projects[j].CreatedAt)
	})
	return projects, nil
}

func (p *Projects) UpdateDetails(_ context.Context, project *models.Project) error {
	return p.mutate(project.ID, true, func(stored *models.Project) {
		stored.Name = project.Name
		stored.Description = project.Description
		stored.Client = project.Client
		stored.Deadline = project.Deadline
	})
}

func (p *Projects) AddCollaborator(_ context.Context, projectID, userID primitive.ObjectID) error {
	return p.mutate(projectID, true, func(stored *models.Project) {
		if !stored.HasCollaborator(userID) {
			stored.Collaborators = append(stored.Collaborators, userID)
		}
	})
}

func (p *Projects) RemoveCollaborator(_ context.Context, projectID, userID primitive.ObjectID) error {
	return p.mutate(projectID, true, func(stored *models.Project) {
		stored.Collaborators = without(stored.Collaborators, userID)
	})
}

func (p *Projects) AddTask(_ context.Context, projectID, taskID primitive.ObjectID) error {
	return p.mutate(projectID, true, func(stored *models.Project) {
		if !stored.HasTask(taskID) {
			stored.Tasks = append(stored.Tasks, taskID)
		}
	})
}

func (p *Projects) RemoveTask(_ context.Context, projectID, taskID primitive.ObjectID) error {
	return p.mutate(projectID, false, func(stored *models.Project) {
		stored.Tasks = without(stored.Tasks, taskID)
	})
}

func (p *Projects) Delete(_ context.Context, id primitive.ObjectID) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	delete(p.s.projects, id)
	return nil
}

func (p *Projects) mutate(id primitive.ObjectID, mustMatch bool, fn func(*models.Project)) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	stored, ok := p.s.projects[id]
	if !ok {
		if mustMatch {
			return notFound("project")
		}
		return nil
	}
	project := cloneProject(stored)
	fn(project)
	project.UpdatedAt = time.Now()
	p.s.projects[id] = *project
	return nil
}

func without(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// Tasks implements the task repository
type Tasks struct{ s *Store }

func (t *Tasks) Create(_ context.Context, task *models.Task) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	if _, exists := t.s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s: %w", task.ID.Hex(), database.ErrDuplicate)
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	t.s.tasks[task.ID] = *cloneTask(*task)
	return nil
}

func (t *Tasks) FindByID(_ context.Context, id primitive.ObjectID) (*models.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	task, ok := t.s.tasks[id]
	if !ok {
		return nil, notFound("task")
	}
	return cloneTask(task), nil
}

func (t *Tasks) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var tasks []models.Task
	for _, id := range ids {
		if task, ok := t.s.tasks[id]; ok {
			tasks = append(tasks, *cloneTask(task))
		}
	}
	return tasks, nil
}

func (t *Tasks) UpdateContent(_ context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now()
	return t.mutate(task.ID, func(stored *models.Task) {
		stored.Name = task.Name
		stored.Description = task.Description
		stored.Priority = task.Priority
		stored.Deadline = task.Deadline
		stored.UpdatedAt = task.UpdatedAt
	})
}

func (t *Tasks) SetState(_ context.Context, id primitive.ObjectID, state bool, completedBy *primitive.ObjectID) error {
	return t.mutate(id, func(stored *models.Task) {
		stored.State = state
		stored.CompletedBy = nil
		if completedBy != nil {
			completer := *completedBy
			stored.CompletedBy = &completer
		}
		stored.UpdatedAt = time.Now()
	})
}

func (t *Tasks) mutate(id primitive.ObjectID, fn func(*models.Task)) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	stored, ok := t.s.tasks[id]
	if !ok {
		return notFound("task")
	}
	fn(&stored)
	t.s.tasks[id] = *cloneTask(stored)
	return nil
}

func (t *Tasks) Delete(_ context.Context, id primitive.ObjectID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	delete(t.s.tasks, id)
	return nil
}

func (t *Tasks) DeleteByProject(_ context.Context, projectID primitive.ObjectID) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var n int64
	for id, task := range t.s.tasks {
		if task.Project == projectID {
			delete(t.s.tasks, id)
			n++
		}
	}
	return n, nil
}

// Journal implements the operation journal
type Journal struct{ s *Store }

func (j *Journal) Begin(_ context.Context, op *models.PendingOperation) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	if _, exists := j.s.ops[op.ID]; exists {
		return fmt.Errorf("operation %s: %w", op.ID, database.ErrDuplicate)
	}
	now := time.Now()
	op.CreatedAt = now
	op.UpdatedAt = now
	j.s.ops[op.ID] = *op
	return nil
}

func (j *Journal) Complete(_ context.Context, id string) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	delete(j.s.ops, id)
	return nil
}

func (j *Journal) MarkFailed(_ context.Context, id string, cause error) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	op, ok := j.s.ops[id]
	if !ok {
		return nil
	}
	op.Attempts++
	if cause != nil {
		op.LastError = cause.Error()
	}
	op.UpdatedAt = time.Now()
	j.s.ops[id] = op
	return nil
}

func (j *Journal) ListPending(_ context.Context, before time.Time, limit int) ([]models.PendingOperation, error) {
	j.s.mu.RLock()
	defer j.s.mu.RUnlock()

	var ops []models.PendingOperation
	for _, op := range j.s.ops {
		if op.UpdatedAt.Before(before) {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(a, b int) bool {
		return ops[a].UpdatedAt.Before(ops[b].UpdatedAt)
	})
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	return ops, nil
}
