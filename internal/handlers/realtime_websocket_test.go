package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptask/internal/database/memstore"
	"uptask/internal/models"
	"uptask/internal/services"
)

func TestRealtimeHandleFrame(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	rooms := services.NewRoomRegistry(nil)
	defer rooms.Close()
	h := NewRealtimeWebSocketHandler(services.NewRealtimeService(store.Projects(), rooms, nil), rooms, nil, 0, 0)

	ana := &models.User{Name: "ana", Email: "ana@example.com"}
	require.NoError(t, store.Users().Create(ctx, ana))
	eve := &models.User{Name: "eve", Email: "eve@example.com"}
	require.NoError(t, store.Users().Create(ctx, eve))
	project := &models.Project{Name: "Website", Description: "d", Client: "c", Creator: ana.ID}
	require.NoError(t, store.Projects().Create(ctx, project))

	conn, err := rooms.Connect(ana.ID.Hex(), 8)
	require.NoError(t, err)
	intruder, err := rooms.Connect(eve.ID.Hex(), 8)
	require.NoError(t, err)

	tests := []struct {
		name     string
		connID   string
		user     *models.User
		frame    models.ClientFrame
		wantType string
	}{
		{name: "ping", connID: conn.ID, user: ana, frame: models.ClientFrame{Type: models.FramePing}, wantType: models.EventPong},
		{name: "join", connID: conn.ID, user: ana, frame: models.ClientFrame{Type: models.FrameJoinProject, ProjectID: project.ID.Hex()}, wantType: models.EventJoined},
		{name: "join without access", connID: intruder.ID, user: eve, frame: models.ClientFrame{Type: models.FrameJoinProject, ProjectID: project.ID.Hex()}, wantType: models.EventError},
		{name: "leave", connID: conn.ID, user: ana, frame: models.ClientFrame{Type: models.FrameLeaveProject, ProjectID: project.ID.Hex()}, wantType: models.EventLeft},
		{name: "unknown", connID: conn.ID, user: ana, frame: models.ClientFrame{Type: "shout"}, wantType: models.EventError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.handleFrame(ctx, tt.connID, tt.user, tt.frame)

			events := conn.Events()
			if tt.connID == intruder.ID {
				events = intruder.Events()
			}
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantType, (<-events).Type)
		})
	}

	assert.False(t, rooms.IsMember(intruder.ID, project.ID.Hex()))
	assert.False(t, rooms.IsMember(conn.ID, project.ID.Hex()))
}
