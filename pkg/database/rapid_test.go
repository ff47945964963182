package database

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Property: for any message times and any invitation time, an invitee
// without shared history sees exactly the messages sent at or after their
// horizon, oldest first.
func TestVisibilityHorizonProperty(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "rapid.db"))
	require.NoError(t, err)
	defer db.Close()

	alice, err := db.CreateUser("alice", "pw")
	require.NoError(t, err)
	bob, err := db.CreateUser("bob", "pw")
	require.NoError(t, err)

	chatSeq := 0

	rapid.Check(t, func(t *rapid.T) {
		chatSeq++
		chatName := fmt.Sprintf("chat-%d", chatSeq)

		sentTimes := rapid.SliceOfN(rapid.Int64Range(100, 1000), 0, 20).Draw(t, "sentTimes")
		inviteAt := rapid.Int64Range(100, 1000).Draw(t, "inviteAt")

		db.now = func() time.Time { return time.Unix(100, 0) }
		if err := db.CreateChat(chatName, alice, nil); err != nil {
			t.Fatalf("create chat: %v", err)
		}

		type msg struct {
			sentAt int64
			body   string
		}
		msgs := make([]msg, len(sentTimes))
		for i, sentAt := range sentTimes {
			msgs[i] = msg{sentAt: sentAt, body: fmt.Sprintf("m%d", i)}
			if err := db.CreateMessage(chatName, alice, time.Unix(sentAt, 0), msgs[i].body); err != nil {
				t.Fatalf("create message: %v", err)
			}
		}

		db.now = func() time.Time { return time.Unix(inviteAt, 0) }
		if err := db.InviteUserToChat(chatName, alice, bob, false); err != nil {
			t.Fatalf("invite: %v", err)
		}

		got, err := db.GetChatMessages(chatName, bob)
		if err != nil {
			t.Fatalf("get messages: %v", err)
		}

		// Expected: stable sort by sent time keeps insertion order for ties,
		// then drop everything before the horizon
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].sentAt < msgs[j].sentAt })
		var expected []string
		for _, m := range msgs {
			if m.sentAt >= inviteAt {
				expected = append(expected, m.body)
			}
		}

		if len(got) != len(expected) {
			t.Fatalf("visible count mismatch: expected %d, got %d (horizon %d)", len(expected), len(got), inviteAt)
		}
		for i := range expected {
			if got[i] != expected[i] {
				t.Fatalf("position %d: expected %q, got %q", i, expected[i], got[i])
			}
		}
	})
}
