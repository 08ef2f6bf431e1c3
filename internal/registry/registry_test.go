package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	delivered [][]byte
	accept    bool
	closed    int
}

func (f *fakeConn) Deliver(payload []byte) bool {
	if !f.accept {
		return false
	}
	f.delivered = append(f.delivered, payload)
	return true
}

func (f *fakeConn) Close() { f.closed++ }

func TestAddConnectionReplacesExisting(t *testing.T) {
	reg := New()
	old := &fakeConn{accept: true}
	replacement := &fakeConn{accept: true}

	reg.AddConnection(1, old, ConnInfo{ConnID: "a"})
	reg.AddConnection(1, replacement, ConnInfo{ConnID: "b"})

	assert.Equal(t, 1, old.closed)
	assert.True(t, reg.IsUserOnline(1))
}

func TestRemoveConnectionIgnoresStaleConn(t *testing.T) {
	reg := New()
	old := &fakeConn{accept: true}
	replacement := &fakeConn{accept: true}

	reg.AddConnection(1, old, ConnInfo{ConnID: "a"})
	reg.AddConnection(1, replacement, ConnInfo{ConnID: "b"})

	// the old socket's cleanup must not evict the replacement
	reg.RemoveConnection(1, old)
	assert.True(t, reg.IsUserOnline(1))

	reg.RemoveConnection(1, replacement)
	assert.False(t, reg.IsUserOnline(1))
}

func TestRemoveConnectionClearsRooms(t *testing.T) {
	reg := New()
	conn := &fakeConn{accept: true}

	reg.AddConnection(1, conn, ConnInfo{})
	reg.JoinChatRoom(1, 10)
	reg.JoinChatRoom(1, 11)
	require.Equal(t, []int{1}, reg.OnlineUsersInChat(10))

	reg.RemoveConnection(1, conn)

	assert.Empty(t, reg.OnlineUsersInChat(10))
	assert.Empty(t, reg.OnlineUsersInChat(11))
}

func TestJoinAndLeaveAreIdempotent(t *testing.T) {
	reg := New()
	reg.AddConnection(1, &fakeConn{accept: true}, ConnInfo{})

	reg.JoinChatRoom(1, 10)
	reg.JoinChatRoom(1, 10)
	assert.Equal(t, []int{1}, reg.OnlineUsersInChat(10))

	reg.LeaveChatRoom(1, 10)
	reg.LeaveChatRoom(1, 10)
	assert.Empty(t, reg.OnlineUsersInChat(10))
}

func TestOnlineUsersInChatOmitsOfflineMembers(t *testing.T) {
	reg := New()
	conn1 := &fakeConn{accept: true}
	conn2 := &fakeConn{accept: true}

	reg.AddConnection(1, conn1, ConnInfo{})
	reg.AddConnection(2, conn2, ConnInfo{})
	reg.JoinChatRoom(2, 10)
	reg.JoinChatRoom(1, 10)
	require.Equal(t, []int{1, 2}, reg.OnlineUsersInChat(10))

	reg.RemoveConnection(2, conn2)
	assert.Equal(t, []int{1}, reg.OnlineUsersInChat(10))
}

func TestBroadcastExcludesSenderAndNonMembers(t *testing.T) {
	reg := New()
	sender := &fakeConn{accept: true}
	member := &fakeConn{accept: true}
	outsider := &fakeConn{accept: true}

	reg.AddConnection(1, sender, ConnInfo{})
	reg.AddConnection(2, member, ConnInfo{})
	reg.AddConnection(3, outsider, ConnInfo{})
	reg.JoinChatRoom(1, 10)
	reg.JoinChatRoom(2, 10)

	reg.BroadcastToChatRoom(10, map[string]string{"type": "chat_message"}, 1)

	assert.Empty(t, sender.delivered)
	assert.Len(t, member.delivered, 1)
	assert.Empty(t, outsider.delivered)
}

func TestBroadcastDropsUnresponsiveConnection(t *testing.T) {
	reg := New()
	stuck := &fakeConn{accept: false}

	reg.AddConnection(1, stuck, ConnInfo{})
	reg.JoinChatRoom(1, 10)

	reg.BroadcastToChatRoom(10, map[string]string{"type": "chat_message"}, 0)

	assert.Equal(t, 1, stuck.closed)
	assert.False(t, reg.IsUserOnline(1))
}

func TestOnlineUsersAndRoomOccupancy(t *testing.T) {
	reg := New()
	conn1 := &fakeConn{accept: true}
	conn2 := &fakeConn{accept: true}

	reg.AddConnection(2, conn2, ConnInfo{})
	reg.AddConnection(1, conn1, ConnInfo{})
	reg.JoinChatRoom(1, 10)
	reg.JoinChatRoom(2, 10)
	reg.JoinChatRoom(2, 11)

	assert.Equal(t, []int{1, 2}, reg.OnlineUsers())
	assert.Equal(t, map[int]int{10: 2, 11: 1}, reg.RoomOccupancy())

	reg.RemoveConnection(2, conn2)
	assert.Equal(t, []int{1}, reg.OnlineUsers())
	assert.Equal(t, map[int]int{10: 1}, reg.RoomOccupancy())
}

func TestCloseAllClosesEveryConnection(t *testing.T) {
	reg := New()
	conn1 := &fakeConn{accept: true}
	conn2 := &fakeConn{accept: true}

	reg.AddConnection(1, conn1, ConnInfo{})
	reg.AddConnection(2, conn2, ConnInfo{})
	reg.JoinChatRoom(1, 10)

	reg.CloseAll()

	assert.Equal(t, 1, conn1.closed)
	assert.Equal(t, 1, conn2.closed)
	assert.False(t, reg.IsUserOnline(1))
	assert.Empty(t, reg.OnlineUsersInChat(10))
}
