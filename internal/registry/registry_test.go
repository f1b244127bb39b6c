package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
)

func TestJoinPreservesOrder(t *testing.T) {
	reg := New(nil, 0)

	a := domain.NewParticipant()
	b := domain.NewParticipant()
	c := domain.NewParticipant()

	assert.Equal(t, []string{a.ID}, reg.Join("standup", a))
	assert.Equal(t, []string{a.ID, b.ID}, reg.Join("standup", b))
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, reg.Join("standup", c))
}

func TestJoinIsCaseInsensitive(t *testing.T) {
	reg := New(nil, 0)

	a := domain.NewParticipant()
	b := domain.NewParticipant()

	reg.Join("Standup", a)
	members := reg.Join("STANDUP", b)

	assert.Equal(t, []string{a.ID, b.ID}, members)
	assert.Equal(t, 1, reg.RoomCount())
}

func TestDoubleJoinIsNoOp(t *testing.T) {
	reg := New(nil, 0)

	a := domain.NewParticipant()
	b := domain.NewParticipant()
	reg.Join("standup", a)
	reg.Join("standup", b)

	again := reg.Join("standup", a)
	assert.Equal(t, []string{a.ID, b.ID}, again)

	// Joining a different room while already a member keeps the participant
	// where it is: an identifier appears in at most one room at a time.
	elsewhere := reg.Join("retro", a)
	assert.Equal(t, []string{a.ID, b.ID}, elsewhere)
	assert.Equal(t, 1, reg.RoomCount())
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	reg := New(nil, 0)

	a := domain.NewParticipant()
	b := domain.NewParticipant()
	reg.Join("standup", a)
	reg.Join("standup", b)

	_, ok := reg.RecordChat(a.ID, domain.NewChatEntry(a.ID, "alice", "hello"))
	require.True(t, ok)

	key, remaining, ok := reg.Leave(a.ID)
	require.True(t, ok)
	assert.Equal(t, "standup", key)
	require.Len(t, remaining, 1)
	assert.Equal(t, b.ID, remaining[0].ID)
	assert.Equal(t, 1, reg.RoomCount())

	_, _, ok = reg.Leave(b.ID)
	require.True(t, ok)
	assert.Equal(t, 0, reg.RoomCount())

	// Chat log went with the room.
	assert.Empty(t, reg.History("standup"))
}

func TestLeaveIsIdempotent(t *testing.T) {
	reg := New(nil, 0)

	a := domain.NewParticipant()
	reg.Join("standup", a)

	_, _, ok := reg.Leave(a.ID)
	require.True(t, ok)

	_, _, ok = reg.Leave(a.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, reg.RoomCount())
}

func TestRecordChatWithoutRoom(t *testing.T) {
	reg := New(nil, 0)

	stranger := domain.NewParticipant()
	members, ok := reg.RecordChat(stranger.ID, domain.NewChatEntry(stranger.ID, "x", "hi"))
	assert.False(t, ok)
	assert.Nil(t, members)
}

func TestHistoryOrder(t *testing.T) {
	reg := New(nil, 0)

	a := domain.NewParticipant()
	reg.Join("standup", a)

	for i := 0; i < 5; i++ {
		_, ok := reg.RecordChat(a.ID, domain.NewChatEntry(a.ID, "alice", fmt.Sprintf("msg-%d", i)))
		require.True(t, ok)
	}

	history := reg.History("standup")
	require.Len(t, history, 5)
	for i, entry := range history {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), entry.Body)
	}
}

func TestHistoryLimitKeepsNewest(t *testing.T) {
	reg := New(nil, 3)

	a := domain.NewParticipant()
	reg.Join("standup", a)

	for i := 0; i < 5; i++ {
		reg.RecordChat(a.ID, domain.NewChatEntry(a.ID, "alice", fmt.Sprintf("msg-%d", i)))
	}

	history := reg.History("standup")
	require.Len(t, history, 3)
	assert.Equal(t, "msg-2", history[0].Body)
	assert.Equal(t, "msg-4", history[2].Body)
}

func TestHistoryOfUnknownRoom(t *testing.T) {
	reg := New(nil, 0)
	assert.Empty(t, reg.History("nowhere"))
}

func TestConcurrentJoinLeave(t *testing.T) {
	reg := New(nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := domain.NewParticipant()
			room := fmt.Sprintf("room-%d", n%4)
			reg.Join(room, p)
			reg.RecordChat(p.ID, domain.NewChatEntry(p.ID, "bot", "hi"))
			reg.Leave(p.ID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.RoomCount())
}
