package models

// Realtime event kinds broadcast to a project room
const (
	EventTaskAdded        = "task-added"
	EventTaskRemoved      = "task-removed"
	EventTaskEdited       = "task-edited"
	EventTaskStateChanged = "task-state-changed"
)

// Client frame types accepted on the realtime socket
const (
	FrameJoinProject  = "join-project"
	FrameLeaveProject = "leave-project"
	FramePing         = "ping"
)

// RealtimeEvent is a server frame delivered to room members
type RealtimeEvent struct {
	Type      string      `json:"type"`
	ProjectID string      `json:"project_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ClientFrame is a frame received from a realtime client
type ClientFrame struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id,omitempty"`
}

// Server-only frames
const (
	EventConnected     = "connected"
	EventJoined        = "joined-project"
	EventLeft          = "left-project"
	EventAccessRevoked = "project-access-revoked"
	EventError         = "error"
	EventPong          = "pong"
)
