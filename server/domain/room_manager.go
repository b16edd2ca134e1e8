package domain

import (
	"context"
	"sync"
)

//go:generate go tool mockgen -destination=./mocks/room_manager_mock.go -package=mocks . RoomManager

// RoomManager はJoin時にRoomIDが指定されなかったセッションの割り当て先を決めます。
type RoomManager interface {
	GetRoom(ctx context.Context, sessionID SessionID) (RoomID, error)
}

// SimpleRoomManager は全セッションを1つのルームに割り当てます。
type SimpleRoomManager struct {
	mu          sync.Mutex
	defaultRoom RoomID
	assigned    map[SessionID]RoomID
}

var _ RoomManager = (*SimpleRoomManager)(nil)

func NewSimpleRoomManager(defaultRoom RoomID) *SimpleRoomManager {
	return &SimpleRoomManager{
		defaultRoom: defaultRoom,
		assigned:    make(map[SessionID]RoomID),
	}
}

func (m *SimpleRoomManager) GetRoom(ctx context.Context, sessionID SessionID) (RoomID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if roomID, ok := m.assigned[sessionID]; ok {
		return roomID, nil
	}
	m.assigned[sessionID] = m.defaultRoom
	return m.defaultRoom, nil
}
