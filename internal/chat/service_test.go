// ABOUTME: Tests for the routing core
// ABOUTME: Covers persist-then-broadcast sequencing, membership gating, delivery counts

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vickykushwahaa/realtime-chat/internal/hub"
	"github.com/vickykushwahaa/realtime-chat/internal/protocol"
	"github.com/vickykushwahaa/realtime-chat/internal/store"
)

func setupService(t *testing.T) (*Service, *store.MockStore, *hub.Hub) {
	t.Helper()
	ms := store.NewMockStore()
	h := hub.New(nil)
	t.Cleanup(h.Close)
	return New(ms, h, nil), ms, h
}

func drainDeliveries(t *testing.T, ch <-chan []byte) []protocol.ReceiveMessage {
	t.Helper()
	var out []protocol.ReceiveMessage
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return out
			}
			var d protocol.ReceiveMessage
			require.NoError(t, json.Unmarshal(payload, &d))
			out = append(out, d)
		default:
			return out
		}
	}
}

func TestService_StartConversation_JoinsRequesterOnly(t *testing.T) {
	svc, _, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)

	assert.Equal(t, 1, h.Members(conv.ID), "only the requester's connection joins")
	assert.Contains(t, h.Channels(aliceConn), conv.ID)
}

func TestService_StartConversation_BothSidesResolveSameChannel(t *testing.T) {
	svc, _, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	bobConn := h.NewConnection("bob")

	conv1, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)
	conv2, err := svc.StartConversation(ctx, bobConn, "alice")
	require.NoError(t, err)

	assert.Equal(t, conv1.ID, conv2.ID)
	assert.Equal(t, 2, h.Members(conv1.ID))
}

func TestService_SendMessage_DeliveredToAllJoined(t *testing.T) {
	svc, ms, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	bobConn := h.NewConnection("bob")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.JoinChannel(ctx, bobConn, conv.ID))

	msg, err := svc.SendMessage(ctx, SendRequest{
		ChannelID: conv.ID,
		SenderID:  "alice",
		Text:      "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ms.MessageCount(conv.ID))

	for _, conn := range []*hub.Connection{aliceConn, bobConn} {
		deliveries := drainDeliveries(t, conn.Outbound())
		require.Len(t, deliveries, 1)
		assert.Equal(t, protocol.TypeReceiveMessage, deliveries[0].Type)
		assert.Equal(t, "hi", deliveries[0].Text)
		assert.Equal(t, msg.ID, deliveries[0].MessageID)
		assert.Equal(t, conv.ID, deliveries[0].ChatID)
	}
}

func TestService_SendMessage_SenderEchoIncluded(t *testing.T) {
	svc, _, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, SendRequest{ChannelID: conv.ID, SenderID: "alice", Text: "solo"})
	require.NoError(t, err)

	deliveries := drainDeliveries(t, aliceConn.Outbound())
	require.Len(t, deliveries, 1, "sender's UI updates via the channel broadcast")
}

func TestService_SendMessage_PersistsBeforeLateJoiner(t *testing.T) {
	svc, ms, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)

	// Alice sends before bob joins: message is durable, bob gets no live copy.
	_, err = svc.SendMessage(ctx, SendRequest{ChannelID: conv.ID, SenderID: "alice", Text: "early"})
	require.NoError(t, err)
	assert.Equal(t, 1, ms.MessageCount(conv.ID))

	bobConn := h.NewConnection("bob")
	require.NoError(t, svc.JoinChannel(ctx, bobConn, conv.ID))
	assert.Empty(t, drainDeliveries(t, bobConn.Outbound()), "no redelivery on late join")

	// History still shows the early message.
	history, err := svc.History(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "early", history[0].Text)
}

func TestService_SendMessage_EmptyTextRejected(t *testing.T) {
	svc, ms, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err = svc.SendMessage(ctx, SendRequest{ChannelID: conv.ID, SenderID: "alice", Text: text})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
	assert.Equal(t, 0, ms.MessageCount(conv.ID), "rejected sends must not persist")
	assert.Empty(t, drainDeliveries(t, aliceConn.Outbound()), "rejected sends must not broadcast")
}

func TestService_SendMessage_MissingIDsRejected(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, SendRequest{SenderID: "alice", Text: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.SendMessage(ctx, SendRequest{ChannelID: "c", Text: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_SendMessage_UnknownChannelNotFound(t *testing.T) {
	svc, _, h := setupService(t)

	aliceConn := h.NewConnection("alice")
	h.Join(aliceConn, "no-such-conv")

	_, err := svc.SendMessage(context.Background(), SendRequest{
		ChannelID: "no-such-conv",
		SenderID:  "alice",
		Text:      "hello?",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, drainDeliveries(t, aliceConn.Outbound()), "no broadcast for a failed send")
}

func TestService_SendMessage_NonMemberForbidden(t *testing.T) {
	svc, ms, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, SendRequest{ChannelID: conv.ID, SenderID: "mallory", Text: "intrusion"})
	assert.ErrorIs(t, err, ErrNotAMember)
	assert.Equal(t, 0, ms.MessageCount(conv.ID))
}

func TestService_SendMessage_StoreFailureShortCircuits(t *testing.T) {
	svc, ms, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)

	ms.SaveMessageErr = errors.New("disk full")
	_, err = svc.SendMessage(ctx, SendRequest{ChannelID: conv.ID, SenderID: "alice", Text: "doomed"})
	require.Error(t, err)
	assert.Empty(t, drainDeliveries(t, aliceConn.Outbound()),
		"a persistence failure must not produce a ghost broadcast")
}

func TestService_SendMessage_NoCrossConversationLeakage(t *testing.T) {
	svc, _, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	carolConn := h.NewConnection("carol")

	convAB, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)
	_, err = svc.StartConversation(ctx, carolConn, "dave")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, SendRequest{ChannelID: convAB.ID, SenderID: "alice", Text: "secret"})
	require.NoError(t, err)

	assert.Empty(t, drainDeliveries(t, carolConn.Outbound()),
		"connections joined to other channels must never receive the payload")
}

func TestService_SendMessage_DisconnectedMemberSkipped(t *testing.T) {
	svc, _, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	bobConn := h.NewConnection("bob")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.JoinChannel(ctx, bobConn, conv.ID))

	h.Remove(bobConn)

	_, err = svc.SendMessage(ctx, SendRequest{ChannelID: conv.ID, SenderID: "alice", Text: "still here?"})
	require.NoError(t, err)

	assert.Len(t, drainDeliveries(t, aliceConn.Outbound()), 1)
	assert.Equal(t, 1, h.Members(conv.ID), "disconnect must strip the stale membership")
}

func TestService_JoinChannel_RequiresMembership(t *testing.T) {
	svc, _, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)

	malloryConn := h.NewConnection("mallory")
	err = svc.JoinChannel(ctx, malloryConn, conv.ID)
	assert.ErrorIs(t, err, ErrNotAMember)
	assert.Equal(t, 1, h.Members(conv.ID))
}

func TestService_JoinChannel_UnknownConversation(t *testing.T) {
	svc, _, h := setupService(t)

	conn := h.NewConnection("alice")
	err := svc.JoinChannel(context.Background(), conn, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_LeaveChannel_StopsDelivery(t *testing.T) {
	svc, _, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	bobConn := h.NewConnection("bob")
	conv, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.JoinChannel(ctx, bobConn, conv.ID))

	svc.LeaveChannel(bobConn, conv.ID)

	_, err = svc.SendMessage(ctx, SendRequest{ChannelID: conv.ID, SenderID: "alice", Text: "bye"})
	require.NoError(t, err)

	assert.Empty(t, drainDeliveries(t, bobConn.Outbound()))
	assert.Len(t, drainDeliveries(t, aliceConn.Outbound()), 1)
}

func TestService_History_UnknownConversation(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.History(context.Background(), "missing", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_ListConversations(t *testing.T) {
	svc, _, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	_, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)
	_, err = svc.StartConversation(ctx, aliceConn, "carol")
	require.NoError(t, err)

	convs, err := svc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 2)

	_, err = svc.ListConversations(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// Scenario from the design notes: alice starts a conversation with bob,
// bob independently starts the reversed pair, both join, alice sends "hi",
// both connections receive it.
func TestService_EndToEndPairScenario(t *testing.T) {
	svc, ms, h := setupService(t)
	ctx := context.Background()

	aliceConn := h.NewConnection("alice")
	conv1, err := svc.StartConversation(ctx, aliceConn, "bob")
	require.NoError(t, err)

	bobConn := h.NewConnection("bob")
	conv2, err := svc.StartConversation(ctx, bobConn, "alice")
	require.NoError(t, err)
	require.Equal(t, conv1.ID, conv2.ID)

	_, err = svc.SendMessage(ctx, SendRequest{ChannelID: conv1.ID, SenderID: "alice", Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, 1, ms.MessageCount(conv1.ID))
	for _, conn := range []*hub.Connection{aliceConn, bobConn} {
		deliveries := drainDeliveries(t, conn.Outbound())
		require.Len(t, deliveries, 1)
		assert.Equal(t, "hi", deliveries[0].Text)
	}
}
