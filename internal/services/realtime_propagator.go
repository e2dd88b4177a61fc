package services

import (
	"context"

	"uptask/internal/models"
	"uptask/pkg/apierrors"
)

type originKey struct{}

// WithOrigin tags ctx with the realtime connection that caused a mutation
func WithOrigin(ctx context.Context, connID string) context.Context {
	if connID == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, connID)
}

// OriginFrom returns the originating connection id, if any
func OriginFrom(ctx context.Context) string {
	connID, _ := ctx.Value(originKey{}).(string)
	return connID
}

// TaskEventPublisher receives task changes after they are persisted
type TaskEventPublisher interface {
	Publish(ctx context.Context, projectID, eventType string, task models.TaskDetail)
}

// RealtimePropagator fans task changes out to the project room.
// Delivery is best-effort and at-most-once; the originating connection is skipped.
type RealtimePropagator struct {
	rooms *RoomRegistry
}

// NewRealtimePropagator creates a propagator over an injected registry
func NewRealtimePropagator(rooms *RoomRegistry) *RealtimePropagator {
	return &RealtimePropagator{rooms: rooms}
}

// Publish emits eventType with the task payload to every other member of the room
func (p *RealtimePropagator) Publish(ctx context.Context, projectID, eventType string, task models.TaskDetail) {
	p.rooms.Broadcast(projectID, models.RealtimeEvent{
		Type:      eventType,
		ProjectID: projectID,
		Data:      task,
	}, OriginFrom(ctx))
}

// RealtimeService authorizes room membership for realtime connections
type RealtimeService struct {
	projects ProjectRepository
	rooms    *RoomRegistry
	metrics  *Metrics
}

// NewRealtimeService creates a realtime service over an injected registry
func NewRealtimeService(projects ProjectRepository, rooms *RoomRegistry, metrics *Metrics) *RealtimeService {
	return &RealtimeService{projects: projects, rooms: rooms, metrics: metrics}
}

// JoinProjectRoom subscribes a connection to a project the actor can read
func (s *RealtimeService) JoinProjectRoom(ctx context.Context, connID, projectID string, actor *models.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	oid, err := parseID(projectID, msgProjectNotFound)
	if err != nil {
		return err
	}
	project, err := loadVisibleProject(ctx, s.projects, oid, actor, msgProjectNotFound)
	if err != nil {
		if apierrors.Is(err, apierrors.KindNotFound) {
			s.metrics.RecordDenied("join_project_room", string(apierrors.KindNotFound))
		}
		return err
	}
	if err := s.rooms.Join(connID, project.ID.Hex()); err != nil {
		return apierrors.Internal("Failed to join project room", err)
	}
	return nil
}

// LeaveProjectRoom unsubscribes a connection from a project room
func (s *RealtimeService) LeaveProjectRoom(connID, projectID string) {
	s.rooms.Leave(connID, projectID)
}
