package services

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptask/internal/models"
	"uptask/pkg/apierrors"
)

func TestRoomRegistry_JoinBroadcastLeave(t *testing.T) {
	rooms := NewRoomRegistry(nil)
	defer rooms.Close()

	a, err := rooms.Connect("user-a", 4)
	require.NoError(t, err)
	b, err := rooms.Connect("user-b", 4)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	require.NoError(t, rooms.Join(a.ID, "p1"))
	require.NoError(t, rooms.Join(b.ID, "p1"))
	require.NoError(t, rooms.Join(b.ID, "p1"))
	assert.Equal(t, 2, rooms.RoomSize("p1"))

	event := models.RealtimeEvent{Type: models.EventTaskAdded, ProjectID: "p1"}
	assert.Equal(t, 1, rooms.Broadcast("p1", event, a.ID))
	assert.Len(t, a.Events(), 0)
	assert.Len(t, b.Events(), 1)

	assert.Equal(t, 2, rooms.Broadcast("p1", event, ""))
	assert.Equal(t, 0, rooms.Broadcast("p2", event, ""))

	rooms.Leave(b.ID, "p1")
	assert.False(t, rooms.IsMember(b.ID, "p1"))
	assert.Equal(t, 1, rooms.RoomCount())

	rooms.Leave(a.ID, "p1")
	assert.Equal(t, 0, rooms.RoomCount())
}

func TestRoomRegistry_FullBufferDropsWithoutBlocking(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	rooms := NewRoomRegistry(metrics)
	defer rooms.Close()

	conn, err := rooms.Connect("user-a", 1)
	require.NoError(t, err)
	require.NoError(t, rooms.Join(conn.ID, "p1"))

	event := models.RealtimeEvent{Type: models.EventTaskEdited}
	assert.Equal(t, 1, rooms.Broadcast("p1", event, ""))
	assert.Equal(t, 0, rooms.Broadcast("p1", event, ""))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RealtimeEvents.WithLabelValues(models.EventTaskEdited, "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RealtimeEvents.WithLabelValues(models.EventTaskEdited, "dropped")))
}

func TestRoomRegistry_DisconnectLeavesEveryRoom(t *testing.T) {
	rooms := NewRoomRegistry(nil)
	defer rooms.Close()

	conn, err := rooms.Connect("user-a", 4)
	require.NoError(t, err)
	require.NoError(t, rooms.Join(conn.ID, "p1"))
	require.NoError(t, rooms.Join(conn.ID, "p2"))

	rooms.Disconnect(conn.ID)
	rooms.Disconnect(conn.ID)

	assert.Equal(t, 0, rooms.RoomCount())
	assert.Equal(t, 0, rooms.ConnectionCount())
	_, open := <-conn.Done()
	assert.False(t, open)
	assert.ErrorIs(t, rooms.Join(conn.ID, "p1"), ErrUnknownConnection)
	assert.False(t, rooms.Send(conn.ID, models.RealtimeEvent{Type: models.EventJoined}))
}

func TestRoomRegistry_EvictUserOnlyTouchesThatUser(t *testing.T) {
	rooms := NewRoomRegistry(nil)
	defer rooms.Close()

	phone, _ := rooms.Connect("bob", 4)
	laptop, _ := rooms.Connect("bob", 4)
	ana, _ := rooms.Connect("ana", 4)
	for _, c := range []*RealtimeConn{phone, laptop, ana} {
		require.NoError(t, rooms.Join(c.ID, "p1"))
	}
	require.NoError(t, rooms.Join(phone.ID, "p2"))

	assert.Equal(t, 2, rooms.EvictUser("p1", "bob"))
	assert.Equal(t, 1, rooms.RoomSize("p1"))
	assert.True(t, rooms.IsMember(ana.ID, "p1"))
	assert.True(t, rooms.IsMember(phone.ID, "p2"))

	event := <-laptop.Events()
	assert.Equal(t, models.EventAccessRevoked, event.Type)
	assert.Len(t, ana.Events(), 0)
}

func TestRoomRegistry_CloseRefusesNewWork(t *testing.T) {
	rooms := NewRoomRegistry(nil)
	conn, err := rooms.Connect("user-a", 4)
	require.NoError(t, err)
	require.NoError(t, rooms.Join(conn.ID, "p1"))

	rooms.Close()
	rooms.Close()

	<-conn.Done()
	assert.Equal(t, 0, rooms.ConnectionCount())
	_, err = rooms.Connect("user-b", 4)
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.ErrorIs(t, rooms.Join(conn.ID, "p1"), ErrRegistryClosed)
}

func TestRoomRegistry_ConcurrentUse(t *testing.T) {
	rooms := NewRoomRegistry(nil)
	defer rooms.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := rooms.Connect("user", 8)
			if err != nil {
				return
			}
			_ = rooms.Join(conn.ID, "shared")
			rooms.Broadcast("shared", models.RealtimeEvent{Type: models.EventTaskAdded}, conn.ID)
			rooms.Disconnect(conn.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, rooms.ConnectionCount())
	assert.Equal(t, 0, rooms.RoomCount())
}

func TestJoinProjectRoom_RequiresReadAccess(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "ana")
	eve := f.user(t, "eve")
	project := f.project(t, ana)

	conn, err := f.rooms.Connect(eve.ID.Hex(), 4)
	require.NoError(t, err)

	err = f.realtime.JoinProjectRoom(context.Background(), conn.ID, project.ID.Hex(), eve)
	requireKind(t, err, apierrors.KindNotFound)
	assert.False(t, f.rooms.IsMember(conn.ID, project.ID.Hex()))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AccessDenied.WithLabelValues("join_project_room", "not_found")))

	err = f.realtime.JoinProjectRoom(context.Background(), conn.ID, "bogus", eve)
	requireKind(t, err, apierrors.KindNotFound)

	err = f.realtime.JoinProjectRoom(context.Background(), "unknown-conn", project.ID.Hex(), ana)
	requireKind(t, err, apierrors.KindInternal)

	owner, err := f.rooms.Connect(ana.ID.Hex(), 4)
	require.NoError(t, err)
	require.NoError(t, f.realtime.JoinProjectRoom(context.Background(), owner.ID, project.ID.Hex(), ana))
	f.realtime.LeaveProjectRoom(owner.ID, project.ID.Hex())
	assert.False(t, f.rooms.IsMember(owner.ID, project.ID.Hex()))
}
