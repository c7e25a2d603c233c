package chatclient

import (
	"math/rand"
	"testing"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func push(from, to string) *domain.Message {
	return &domain.Message{SenderID: from, ReceiverID: to, Content: "x"}
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

func TestTracker_CountsWhileNothingOpen(t *testing.T) {
	tr := NewUnreadTracker("bob")

	tr.PushReceived(push("alice", "bob"))
	tr.PushReceived(push("alice", "bob"))

	assert.Equal(t, 2, tr.Count("alice"))
	assert.Equal(t, 2, tr.Total())
	assert.Equal(t, "alice", tr.LatestSender())

	tr.Open("alice")
	assert.Equal(t, 0, tr.Count("alice"))
	assert.Equal(t, 0, tr.Total())
	assert.Empty(t, tr.BySender())
}

func TestTracker_OpenClearsOnlyThatSender(t *testing.T) {
	tr := NewUnreadTracker("bob")
	for i := 0; i < 3; i++ {
		tr.PushReceived(push("alice", "bob"))
	}
	for i := 0; i < 2; i++ {
		tr.PushReceived(push("carol", "bob"))
	}

	tr.Open("alice")

	assert.Equal(t, map[string]int{"carol": 2}, tr.BySender())
	assert.Equal(t, 2, tr.Total())
}

func TestTracker_SuppressesOpenConversation(t *testing.T) {
	tr := NewUnreadTracker("bob")
	tr.Open("alice")

	tr.PushReceived(push("alice", "bob"))
	tr.PushReceived(push("carol", "bob"))

	assert.Equal(t, 0, tr.Count("alice"))
	assert.Equal(t, 1, tr.Count("carol"))
	assert.Equal(t, "carol", tr.LatestSender())

	tr.Close()
	assert.Equal(t, "", tr.Active())
	assert.Equal(t, 1, tr.Count("carol"), "close keeps counts accumulated while open")

	tr.PushReceived(push("alice", "bob"))
	assert.Equal(t, 1, tr.Count("alice"))
}

func TestTracker_IgnoresForeignAndOwnPushes(t *testing.T) {
	tr := NewUnreadTracker("bob")

	tr.PushReceived(push("alice", "carol"))
	tr.PushReceived(push("bob", "alice"))
	tr.PushReceived(push("bob", "bob"))
	tr.PushReceived(nil)

	assert.Equal(t, 0, tr.Total())
	assert.Equal(t, "", tr.LatestSender())
}

func TestTracker_CloseIf(t *testing.T) {
	tr := NewUnreadTracker("bob")
	tr.Open("alice")

	tr.CloseIf("carol")
	assert.Equal(t, "alice", tr.Active())

	tr.CloseIf("alice")
	assert.Equal(t, "", tr.Active())
}

func TestTracker_Reset(t *testing.T) {
	tr := NewUnreadTracker("bob")
	tr.PushReceived(push("alice", "bob"))
	tr.PushReceived(push("carol", "bob"))
	tr.PushReceived(push("carol", "bob"))

	tr.ResetSender("carol")
	assert.Equal(t, map[string]int{"alice": 1}, tr.BySender())

	tr.ResetSender("nobody")
	assert.Equal(t, 1, tr.Total())

	tr.Reset()
	assert.Equal(t, 0, tr.Total())
	assert.Empty(t, tr.BySender())
}

func TestTracker_ListenerSeesConsistentSnapshots(t *testing.T) {
	tr := NewUnreadTracker("bob")

	var snaps []Snapshot
	tr.OnChange(func(s Snapshot) { snaps = append(snaps, s) })

	tr.PushReceived(push("alice", "bob"))
	tr.Open("alice")
	tr.PushReceived(push("alice", "bob")) // suppressed, no notification
	tr.Close()

	require.Len(t, snaps, 3)
	assert.Equal(t, 1, snaps[0].Total)
	assert.Equal(t, "alice", snaps[0].LatestSender)
	assert.Equal(t, 0, snaps[1].Total)
	assert.Equal(t, "alice", snaps[1].Active)
	assert.Equal(t, "", snaps[2].Active)

	for _, s := range snaps {
		assert.Equal(t, sum(s.BySender), s.Total)
	}
}

func TestTracker_TotalNeverDrifts(t *testing.T) {
	users := []string{"alice", "bob", "carol", "dave"}
	self := "bob"
	rng := rand.New(rand.NewSource(42))

	tr := NewUnreadTracker(self)
	expected := map[string]int{}
	active := ""

	for step := 0; step < 2000; step++ {
		u := users[rng.Intn(len(users))]
		switch rng.Intn(6) {
		case 0, 1, 2:
			to := self
			if rng.Intn(5) == 0 {
				to = users[rng.Intn(len(users))]
			}
			tr.PushReceived(push(u, to))
			if to == self && u != self && active != u {
				expected[u]++
			}
		case 3:
			tr.Open(u)
			active = u
			delete(expected, u)
		case 4:
			tr.Close()
			active = ""
		case 5:
			if rng.Intn(2) == 0 {
				tr.ResetSender(u)
				delete(expected, u)
			} else {
				tr.Reset()
				expected = map[string]int{}
			}
		}

		got := tr.BySender()
		require.Equal(t, sum(got), tr.Total(), "step %d", step)
		require.Equal(t, expected, got, "step %d", step)
	}
}
