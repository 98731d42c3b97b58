// ABOUTME: Tests for the connection registry and channel fan-out
// ABOUTME: Covers join idempotency, leave, disconnect cleanup, delivery isolation

package hub

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func drain(ch <-chan []byte) []string {
	var out []string
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, string(payload))
		default:
			return out
		}
	}
}

func TestHub_BroadcastReachesAllMembers(t *testing.T) {
	h := New(nil)
	defer h.Close()

	alice := h.NewConnection("alice")
	bob := h.NewConnection("bob")
	h.Join(alice, "conv1")
	h.Join(bob, "conv1")

	delivered := h.Broadcast("conv1", []byte("hi"))
	assert.Equal(t, 2, delivered)

	assert.Equal(t, []string{"hi"}, drain(alice.Outbound()))
	assert.Equal(t, []string{"hi"}, drain(bob.Outbound()))
}

func TestHub_SenderReceivesOwnBroadcast(t *testing.T) {
	h := New(nil)
	defer h.Close()

	alice := h.NewConnection("alice")
	h.Join(alice, "conv1")

	h.Broadcast("conv1", []byte("echo"))
	assert.Equal(t, []string{"echo"}, drain(alice.Outbound()),
		"sender's own connection updates via the channel, not a local echo")
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	h := New(nil)
	defer h.Close()

	alice := h.NewConnection("alice")
	h.Join(alice, "conv1")
	h.Join(alice, "conv1")
	h.Join(alice, "conv1")

	assert.Equal(t, 1, h.Members("conv1"))

	h.Broadcast("conv1", []byte("once"))
	assert.Equal(t, []string{"once"}, drain(alice.Outbound()),
		"double join must not cause duplicate delivery")
}

func TestHub_NoCrossChannelLeakage(t *testing.T) {
	h := New(nil)
	defer h.Close()

	alice := h.NewConnection("alice")
	carol := h.NewConnection("carol")
	h.Join(alice, "conv1")
	h.Join(carol, "conv2")

	h.Broadcast("conv1", []byte("private"))

	assert.Equal(t, []string{"private"}, drain(alice.Outbound()))
	assert.Empty(t, drain(carol.Outbound()), "members of other channels must not receive the payload")
}

func TestHub_MultiChannelMembership(t *testing.T) {
	h := New(nil)
	defer h.Close()

	alice := h.NewConnection("alice")
	h.Join(alice, "conv1")
	h.Join(alice, "conv2")

	h.Broadcast("conv1", []byte("one"))
	h.Broadcast("conv2", []byte("two"))
	h.Broadcast("conv3", []byte("three"))

	assert.ElementsMatch(t, []string{"one", "two"}, drain(alice.Outbound()))
	assert.ElementsMatch(t, []string{"conv1", "conv2"}, h.Channels(alice))
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := New(nil)
	defer h.Close()

	alice := h.NewConnection("alice")
	bob := h.NewConnection("bob")
	h.Join(alice, "conv1")
	h.Join(bob, "conv1")

	h.Leave(alice, "conv1")

	delivered := h.Broadcast("conv1", []byte("after-leave"))
	assert.Equal(t, 1, delivered)
	assert.Empty(t, drain(alice.Outbound()))
	assert.Equal(t, []string{"after-leave"}, drain(bob.Outbound()))
}

func TestHub_RemoveCleansAllMemberships(t *testing.T) {
	h := New(nil)
	defer h.Close()

	alice := h.NewConnection("alice")
	h.Join(alice, "conv1")
	h.Join(alice, "conv2")

	h.Remove(alice)

	assert.Equal(t, 0, h.Members("conv1"))
	assert.Equal(t, 0, h.Members("conv2"))
	assert.Equal(t, 0, h.ConnectionCount())

	// Broadcasting after removal must not attempt delivery to the stale entry.
	assert.Equal(t, 0, h.Broadcast("conv1", []byte("ghost")))

	// Outbound channel is closed.
	_, ok := <-alice.Outbound()
	assert.False(t, ok)
}

func TestHub_RemovedConnectionCannotRejoin(t *testing.T) {
	h := New(nil)
	defer h.Close()

	alice := h.NewConnection("alice")
	h.Remove(alice)

	h.Join(alice, "conv1")
	assert.Equal(t, 0, h.Members("conv1"))
}

func TestHub_SlowConsumerDoesNotBlockOthers(t *testing.T) {
	h := New(nil)
	defer h.Close()

	slow := h.NewConnection("slow")
	fast := h.NewConnection("fast")
	h.Join(slow, "conv1")
	h.Join(fast, "conv1")

	// Overflow the slow connection's buffer; fast drains as it goes.
	received := 0
	for i := range sendBufferSize * 2 {
		h.Broadcast("conv1", fmt.Appendf(nil, "msg-%d", i))
		received += len(drain(fast.Outbound()))
	}
	received += len(drain(fast.Outbound()))

	assert.Equal(t, sendBufferSize*2, received,
		"fast consumer must receive every broadcast despite the slow one dropping")
}

func TestHub_ExactlyOneCopyPerMember(t *testing.T) {
	h := New(nil)
	defer h.Close()

	conns := make([]*Connection, 5)
	for i := range conns {
		conns[i] = h.NewConnection(fmt.Sprintf("user-%d", i))
		h.Join(conns[i], "conv1")
	}

	delivered := h.Broadcast("conv1", []byte("fanout"))
	assert.Equal(t, 5, delivered)
	for i, conn := range conns {
		assert.Len(t, drain(conn.Outbound()), 1, "connection %d", i)
	}
}

func TestHub_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	h := New(nil)
	defer h.Close()

	var wg sync.WaitGroup
	for i := range 10 {
		conn := h.NewConnection(fmt.Sprintf("user-%d", i))
		wg.Go(func() {
			for range 50 {
				h.Join(conn, "busy")
				h.Broadcast("busy", []byte("x"))
				drain(conn.Outbound())
				h.Leave(conn, "busy")
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 0, h.Members("busy"))
}

func TestConnection_Send(t *testing.T) {
	h := New(nil)
	defer h.Close()

	conn := h.NewConnection("alice")
	assert.True(t, conn.Send([]byte("direct reply")))
	assert.Equal(t, []string{"direct reply"}, drain(conn.Outbound()))

	h.Remove(conn)
	assert.False(t, conn.Send([]byte("after removal")))
}
