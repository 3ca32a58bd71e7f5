package internal_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/typing-race/internal"
)

// TestOutbound 測試外送佇列的發送與關閉語義
func TestOutbound(t *testing.T) {
	t.Run("send and receive", func(t *testing.T) {
		out := internal.NewOutbound(4)

		ok := out.Send([]byte("hello"))
		assert.True(t, ok)

		select {
		case msg := <-out.Queue():
			assert.Equal(t, []byte("hello"), msg)
		default:
			t.Fatal("expected a queued message")
		}
	})

	t.Run("send to full queue drops without blocking", func(t *testing.T) {
		out := internal.NewOutbound(1)

		require.True(t, out.Send([]byte("first")))

		done := make(chan bool, 1)
		go func() {
			done <- out.Send([]byte("second"))
		}()

		select {
		case ok := <-done:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("send blocked on a full queue")
		}
	})

	t.Run("send after close is a no-op", func(t *testing.T) {
		out := internal.NewOutbound(4)
		out.Close()

		assert.False(t, out.Send([]byte("late")))

		// 佇列已關閉，讀取端觀察到結束
		_, ok := <-out.Queue()
		assert.False(t, ok)
	})

	t.Run("double close does not panic", func(t *testing.T) {
		out := internal.NewOutbound(4)
		out.Close()
		assert.NotPanics(t, out.Close)
	})
}

// TestRoomBroadcast 測試房間廣播只觸及連線中的玩家
func TestRoomBroadcast(t *testing.T) {
	room := internal.NewRoom(uuid.New(), internal.Text{Content: "cat"}, internal.Dictionary{Name: "test"})

	connected := internal.NewOutbound(4)
	dropped := internal.NewOutbound(4)

	room.Mu.Lock()
	room.Players[uuid.New()] = &internal.Player{
		Username:  "alice",
		Status:    internal.StatusIdle,
		Connected: true,
		Out:       connected,
	}
	room.Players[uuid.New()] = &internal.Player{
		Username:  "bob",
		Status:    internal.StatusDropped,
		Connected: false,
		Out:       dropped,
	}
	room.Mu.Unlock()

	room.Broadcast(internal.NewErrorMessage("ping"))

	select {
	case msg := <-connected.Queue():
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(msg, &decoded))
		assert.Equal(t, "Error", decoded["type"])
	default:
		t.Fatal("connected player should receive the broadcast")
	}

	select {
	case <-dropped.Queue():
		t.Fatal("disconnected player should not receive the broadcast")
	default:
	}
}

// TestRoomUnicast 測試單播與玩家不存在時的行為
func TestRoomUnicast(t *testing.T) {
	room := internal.NewRoom(uuid.New(), internal.Text{Content: "cat"}, internal.Dictionary{Name: "test"})

	userID := uuid.New()
	out := internal.NewOutbound(4)
	room.Mu.Lock()
	room.Players[userID] = &internal.Player{
		Username:  "alice",
		Status:    internal.StatusIdle,
		Connected: true,
		Out:       out,
	}
	room.Mu.Unlock()

	room.Unicast(userID, internal.NewErrorMessage("only for alice"))
	select {
	case msg := <-out.Queue():
		assert.Contains(t, string(msg), "only for alice")
	default:
		t.Fatal("expected a unicast message")
	}

	// 不存在的玩家是 no-op，不 panic
	assert.NotPanics(t, func() {
		room.Unicast(uuid.New(), internal.NewErrorMessage("nobody"))
	})
}

// TestRoomSnapshot 測試統計快照內容
func TestRoomSnapshot(t *testing.T) {
	room := internal.NewRoom(uuid.New(), internal.Text{Content: "cat"}, internal.Dictionary{Name: "test"})

	room.Mu.Lock()
	room.Players[uuid.New()] = &internal.Player{
		Username:  "alice",
		Mistakes:  2,
		Progress:  66.7,
		Status:    internal.StatusStarted,
		Connected: true,
		Out:       internal.NewOutbound(1),
	}
	room.Mu.Unlock()

	snapshot := room.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "alice", snapshot[0].Username)
	assert.Equal(t, 2, snapshot[0].Mistakes)
	assert.InDelta(t, 66.7, snapshot[0].Progress, 0.001)
	assert.Equal(t, internal.StatusStarted, snapshot[0].Status)
}
