package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

const testTimeout = 2 * time.Second

type sentFrame struct {
	data interface{}
	op   discord.GatewayOp
}

// fakeConn records what handlers send instead of writing to a socket.
type fakeConn struct {
	mu       sync.Mutex
	sequence *int32
	sendErr  error

	sent       chan sentFrame
	reconnects chan websocket.StatusCode
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		sent:       make(chan sentFrame, 64),
		reconnects: make(chan websocket.StatusCode, 64),
	}
}

func (c *fakeConn) Send(_ context.Context, op discord.GatewayOp, data interface{}) error {
	c.mu.Lock()
	err := c.sendErr
	c.mu.Unlock()

	if err != nil {
		return err
	}

	c.sent <- sentFrame{op: op, data: data}

	return nil
}

func (c *fakeConn) Reconnect(code websocket.StatusCode) {
	c.reconnects <- code
}

func (c *fakeConn) LastSequence() *int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sequence
}

func (c *fakeConn) setSequence(sequence int32) {
	c.mu.Lock()
	c.sequence = &sequence
	c.mu.Unlock()
}

func (c *fakeConn) nextSent(t *testing.T) sentFrame {
	t.Helper()

	select {
	case frame := <-c.sent:
		return frame
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a frame to be sent")
	}

	return sentFrame{}
}

func (c *fakeConn) nextReconnect(t *testing.T) websocket.StatusCode {
	t.Helper()

	select {
	case code := <-c.reconnects:
		return code
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a reconnect")
	}

	return 0
}

func (c *fakeConn) assertNoSent(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case frame := <-c.sent:
		t.Fatalf("unexpected frame sent: op %d", frame.op)
	case <-time.After(wait):
	}
}

func (c *fakeConn) assertNoReconnect(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case code := <-c.reconnects:
		t.Fatalf("unexpected reconnect with code %d", code)
	case <-time.After(wait):
	}
}

func mustDecode(t *testing.T, frame string) *Event {
	t.Helper()

	event, err := DecodeEvent([]byte(frame))
	require.NoError(t, err)
	require.NotNil(t, event)

	return event
}
