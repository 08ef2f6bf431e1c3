package registry

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"opschat/internal/observability"
)

// Conn is the live handle the registry fans events out to. Deliver must not
// block; it reports false when the connection can no longer accept writes.
type Conn interface {
	Deliver(payload []byte) bool
	Close()
}

// ConnInfo describes a registered connection for logging and telemetry.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

type entry struct {
	conn Conn
	info ConnInfo
}

// Registry tracks presence and room subscriptions for a single process.
// It is rebuilt from scratch on restart; nothing here is persisted. All
// maps are guarded by mu since every connection goroutine touches them.
type Registry struct {
	mu     sync.RWMutex
	conns  map[int]entry            // userID -> live connection
	rooms  map[int]map[int]struct{} // chatID -> joined userIDs
	joined map[int]map[int]struct{} // userID -> chatIDs, for O(joined) cleanup
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns:  make(map[int]entry),
		rooms:  make(map[int]map[int]struct{}),
		joined: make(map[int]map[int]struct{}),
	}
}

// AddConnection registers the live handle for a user. A prior connection for
// the same user is replaced: the new socket wins and the old one is closed.
func (r *Registry) AddConnection(userID int, conn Conn, info ConnInfo) {
	r.mu.Lock()
	old, hadOld := r.conns[userID]
	r.conns[userID] = entry{conn: conn, info: info}
	r.mu.Unlock()

	if hadOld {
		log.Printf("registry: replacing connection for user %d (old conn %s)", userID, old.info.ConnID)
		old.conn.Close()
	}
}

// RemoveConnection drops the user from the online set and from every joined
// room. The conn argument guards against a stale close racing a reconnect:
// when non-nil, removal only happens if it is still the registered handle.
func (r *Registry) RemoveConnection(userID int, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[userID]
	if !ok {
		return
	}
	if conn != nil && current.conn != conn {
		return
	}

	delete(r.conns, userID)
	for chatID := range r.joined[userID] {
		if members, ok := r.rooms[chatID]; ok {
			delete(members, userID)
			if len(members) == 0 {
				delete(r.rooms, chatID)
			}
		}
	}
	delete(r.joined, userID)
}

// JoinChatRoom subscribes the user to a room. Idempotent, and independent of
// persisted participation.
func (r *Registry) JoinChatRoom(userID, chatID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[chatID]; !ok {
		r.rooms[chatID] = make(map[int]struct{})
	}
	r.rooms[chatID][userID] = struct{}{}

	if _, ok := r.joined[userID]; !ok {
		r.joined[userID] = make(map[int]struct{})
	}
	r.joined[userID][chatID] = struct{}{}
}

// LeaveChatRoom unsubscribes the user from a room. Idempotent.
func (r *Registry) LeaveChatRoom(userID, chatID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.rooms[chatID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, chatID)
		}
	}
	if chats, ok := r.joined[userID]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(r.joined, userID)
		}
	}
}

// OnlineUsers returns every connected user id, ascending.
func (r *Registry) OnlineUsers() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]int, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	sort.Ints(users)
	return users
}

// RoomOccupancy reports how many users are joined to each room.
func (r *Registry) RoomOccupancy() map[int]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	occupancy := make(map[int]int, len(r.rooms))
	for chatID, members := range r.rooms {
		occupancy[chatID] = len(members)
	}
	return occupancy
}

// IsUserOnline reports whether the user has a live connection.
func (r *Registry) IsUserOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// OnlineUsersInChat returns the ids of users joined to the room that are
// currently connected, in ascending order.
func (r *Registry) OnlineUsersInChat(chatID int) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]int, 0, len(r.rooms[chatID]))
	for userID := range r.rooms[chatID] {
		if _, online := r.conns[userID]; online {
			users = append(users, userID)
		}
	}
	sort.Ints(users)
	return users
}

// BroadcastToChatRoom delivers event to every socket currently joined to the
// room except excludeUserID (0 excludes nobody). Delivery is best-effort:
// sockets that cannot accept the write are closed and dropped, nothing is
// queued or retried.
func (r *Registry) BroadcastToChatRoom(chatID int, event any, excludeUserID int) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("registry: marshal broadcast event: %v", err)
		return
	}

	r.mu.RLock()
	targets := make([]entry, 0, len(r.rooms[chatID]))
	targetIDs := make([]int, 0, len(r.rooms[chatID]))
	for userID := range r.rooms[chatID] {
		if userID == excludeUserID {
			continue
		}
		if e, online := r.conns[userID]; online {
			targets = append(targets, e)
			targetIDs = append(targetIDs, userID)
		}
	}
	r.mu.RUnlock()

	observability.ObserveFanout(len(targets))
	for i, target := range targets {
		if !target.conn.Deliver(payload) {
			log.Printf("registry: dropping unresponsive connection %s (user %d)", target.info.ConnID, targetIDs[i])
			target.conn.Close()
			r.RemoveConnection(targetIDs[i], target.conn)
		}
	}
}

// CloseAll closes every live connection and clears all state. Used during
// service shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		conns = append(conns, e.conn)
	}
	r.conns = make(map[int]entry)
	r.rooms = make(map[int]map[int]struct{})
	r.joined = make(map[int]map[int]struct{})
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
