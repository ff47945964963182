package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInRoundTrip(t *testing.T) {
	msg := &SignInMessage{Username: "alice", Password: "s3cret"}

	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &SignInMessage{}
	require.NoError(t, decoded.Decode(payload))
	assert.Equal(t, msg, decoded)
}

func TestSignInRejectsEmptyUsername(t *testing.T) {
	msg := &SignInMessage{Password: "s3cret"}
	_, err := msg.Encode()
	assert.ErrorIs(t, err, ErrEmptyUsername)
}

func TestCreateMessageValidation(t *testing.T) {
	_, err := (&CreateMessageMessage{Body: "hi"}).Encode()
	assert.ErrorIs(t, err, ErrEmptyChatName)

	_, err = (&CreateMessageMessage{ChatName: "general"}).Encode()
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestUpdateChatsRoundTrip(t *testing.T) {
	since := time.Unix(1700000000, 0)
	msg := &UpdateChatsMessage{Username: "bob", Since: since}

	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &UpdateChatsMessage{}
	require.NoError(t, decoded.Decode(payload))
	assert.Equal(t, "bob", decoded.Username)
	assert.True(t, decoded.Since.Equal(since))
}

func TestChatListRoundTrip(t *testing.T) {
	now := time.Unix(1700000123, 0)
	msg := &ChatListMessage{
		Chats:      []string{"general", "random", "ops"},
		ServerTime: now,
	}

	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &ChatListMessage{}
	require.NoError(t, decoded.Decode(payload))
	assert.Equal(t, msg.Chats, decoded.Chats)
	assert.True(t, decoded.ServerTime.Equal(now))
}

func TestChatListPreservesOrder(t *testing.T) {
	// The list is an ordered sync result, not a set
	msg := &ChatListMessage{
		Chats:      []string{"zebra", "alpha", "middle"},
		ServerTime: time.Unix(1, 0),
	}

	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &ChatListMessage{}
	require.NoError(t, decoded.Decode(payload))
	assert.Equal(t, []string{"zebra", "alpha", "middle"}, decoded.Chats)
}

func TestCreateChatRoundTrip(t *testing.T) {
	msg := &CreateChatMessage{
		ChatName: "project-x",
		Members:  []string{"alice", "bob"},
	}

	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &CreateChatMessage{}
	require.NoError(t, decoded.Decode(payload))
	assert.Equal(t, msg, decoded)
}

func TestCreateChatEmptyMembers(t *testing.T) {
	msg := &CreateChatMessage{ChatName: "solo"}

	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &CreateChatMessage{}
	require.NoError(t, decoded.Decode(payload))
	assert.Equal(t, "solo", decoded.ChatName)
	assert.Empty(t, decoded.Members)
}

func TestInviteUserRoundTrip(t *testing.T) {
	for _, share := range []bool{true, false} {
		msg := &InviteUserMessage{
			ChatName:     "general",
			Invitee:      "carol",
			ShareHistory: share,
		}

		payload, err := msg.Encode()
		require.NoError(t, err)

		decoded := &InviteUserMessage{}
		require.NoError(t, decoded.Decode(payload))
		assert.Equal(t, msg, decoded)
	}
}

func TestAnnounceRoundTrip(t *testing.T) {
	msg := &AnnounceMessage{ReplyAddr: "127.0.0.1:53122"}

	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &AnnounceMessage{}
	require.NoError(t, decoded.Decode(payload))
	assert.Equal(t, "127.0.0.1:53122", decoded.ReplyAddr)
}

func TestErrorMessageRoundTrip(t *testing.T) {
	msg := &ErrorMessage{Message: "no chat named general"}

	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &ErrorMessage{}
	require.NoError(t, decoded.Decode(payload))
	assert.Equal(t, msg.Message, decoded.Message)
}

func TestMessageListRoundTrip(t *testing.T) {
	msg := &MessageListMessage{Messages: []string{"first", "second", "third"}}

	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &MessageListMessage{}
	require.NoError(t, decoded.Decode(payload))
	assert.Equal(t, msg.Messages, decoded.Messages)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	msg := &SignInMessage{Username: "alice", Password: "pw"}
	payload, err := msg.Encode()
	require.NoError(t, err)

	decoded := &SignInMessage{}
	assert.Error(t, decoded.Decode(payload[:3]))
}

func TestKindName(t *testing.T) {
	assert.Equal(t, "SIGN_IN", KindName(KindSignIn))
	assert.Equal(t, "ANNOUNCE", KindName(KindAnnounce))
	assert.Equal(t, "CLIENT_ERROR", KindName(KindClientError))
	assert.Equal(t, "UNKNOWN", KindName(0x7F))
}
