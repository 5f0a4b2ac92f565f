package chat

import (
	"sync"

	"PPAdmin/logger"

	"go.uber.org/zap"
)

// Registry tracks live sockets per user and user subscriptions per room.
// Both maps share one lock and no socket I/O happens while it is held.
// A key exists only while its inner set is non-empty.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Socket   // user -> socket_id -> socket
	rooms  map[string]map[string]struct{} // room -> user set
	nSock  int
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]Socket),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Connect registers s under userID. The transport handshake must already
// be complete.
func (r *Registry) Connect(userID string, s Socket) {
	if userID == "" || s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byUser[userID]
	if m == nil {
		m = make(map[string]Socket)
		r.byUser[userID] = m
	}
	if _, dup := m[s.ID()]; !dup {
		r.nSock++
	}
	m[s.ID()] = s
	r.observeLocked()
}

// Disconnect removes s and then drops userID from every room it was
// subscribed to. Unknown sockets are ignored.
func (r *Registry) Disconnect(userID string, s Socket) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byUser[userID]
	if !ok {
		return
	}
	if _, ok := m[s.ID()]; !ok {
		return
	}
	delete(m, s.ID())
	r.nSock--
	if len(m) == 0 {
		delete(r.byUser, userID)
	}
	for roomID, members := range r.rooms {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	r.observeLocked()
}

func (r *Registry) JoinRoom(roomID, userID string) {
	if roomID == "" || userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[roomID]
	if members == nil {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[userID] = struct{}{}
	r.observeLocked()
}

func (r *Registry) LeaveRoom(roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	r.observeLocked()
}

// CloseAll empties the registry and closes every socket it held. Meant
// for shutdown only.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	old := r.byUser
	r.byUser = make(map[string]map[string]Socket)
	r.rooms = make(map[string]map[string]struct{})
	r.nSock = 0
	r.observeLocked()
	r.mu.Unlock()

	for userID, m := range old {
		for _, s := range m {
			if err := s.Close(); err != nil {
				logger.Debug("[Registry] close socket", zap.String("user_id", userID), zap.String("socket_id", s.ID()), zap.Error(err))
			}
		}
	}
}

// UserSockets returns a snapshot of userID's sockets.
func (r *Registry) UserSockets(userID string) []Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]Socket, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// RoomMembers returns a snapshot of the users subscribed to roomID.
func (r *Registry) RoomMembers(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for u := range members {
		out = append(out, u)
	}
	return out
}

func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

func (r *Registry) IsConnected(userID string) bool {
	return r.ConnectionCount(userID) > 0
}

func (r *Registry) InRoom(roomID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][userID]
	return ok
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// observeLocked publishes sizes to the gauges; caller holds mu.
func (r *Registry) observeLocked() {
	connectedUsers.Set(float64(len(r.byUser)))
	connectedSockets.Set(float64(r.nSock))
	activeRooms.Set(float64(len(r.rooms)))
}
