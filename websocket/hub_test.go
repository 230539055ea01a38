package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	written []interface{}
	fail    bool
	closed  bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func startHub(t *testing.T) *Hub {
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestPushReachesEveryConnectionOfUser(t *testing.T) {
	h := startHub(t)
	user, other := uuid.New(), uuid.New()
	tab1, tab2, stranger := &fakeConn{}, &fakeConn{}, &fakeConn{}

	h.Register(&Client{UserID: user, Conn: tab1})
	h.Register(&Client{UserID: user, Conn: tab2})
	h.Register(&Client{UserID: other, Conn: stranger})
	require.Eventually(t, func() bool { return h.Connected(user) == 2 }, time.Second, 5*time.Millisecond)

	h.Push(user, map[string]string{"type": "booking.confirmed"})

	assert.Eventually(t, func() bool { return tab1.count() == 1 && tab2.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, stranger.count())
}

func TestBrokenConnectionIsDropped(t *testing.T) {
	h := startHub(t)
	user := uuid.New()
	broken := &fakeConn{fail: true}
	h.Register(&Client{UserID: user, Conn: broken})

	h.Push(user, "hello")

	assert.Eventually(t, func() bool { return h.Connected(user) == 0 }, time.Second, 5*time.Millisecond)
	broken.mu.Lock()
	assert.True(t, broken.closed)
	broken.mu.Unlock()
}

func TestUnregisterKeepsOtherTabs(t *testing.T) {
	h := startHub(t)
	user := uuid.New()
	tab1, tab2 := &fakeConn{}, &fakeConn{}
	h.Register(&Client{UserID: user, Conn: tab1})
	h.Register(&Client{UserID: user, Conn: tab2})

	h.Unregister(&Client{UserID: user, Conn: tab1})
	h.Push(user, "x")

	assert.Eventually(t, func() bool { return tab2.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.Connected(user))
	assert.Zero(t, tab1.count())
}

func TestStoppedHubDoesNotBlockCallers(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	user := uuid.New()
	open := &fakeConn{}
	h.Register(&Client{UserID: user, Conn: open})
	cancel()
	<-stopped

	done := make(chan struct{})
	late := &fakeConn{}
	go func() {
		h.Unregister(&Client{UserID: user, Conn: open})
		h.Register(&Client{UserID: user, Conn: late})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub calls blocked after shutdown")
	}
	open.mu.Lock()
	assert.True(t, open.closed)
	open.mu.Unlock()
	late.mu.Lock()
	assert.True(t, late.closed)
	late.mu.Unlock()
	assert.Zero(t, h.Connected(user))
}
