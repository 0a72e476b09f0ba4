package ws

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Envelope
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, v.(Envelope))
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received(msgType string) []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := []Envelope{}
	for _, env := range f.frames {
		if env.Type == msgType {
			matched = append(matched, env)
		}
	}
	return matched
}

type fakeVerifier struct {
	accounts map[string]string
}

func (f *fakeVerifier) GetAccountIDByToken(_ context.Context, token string) (string, error) {
	if id, ok := f.accounts[token]; ok {
		return id, nil
	}
	return "", fmt.Errorf("invalid token")
}

func newTestHub() *Hub {
	return NewHub(&fakeVerifier{accounts: map[string]string{"tok-alice": "acct-alice"}}, zap.NewNop())
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestRegisterSendsConnectedFrame(t *testing.T) {
	hub := newTestHub()
	conn := &fakeConn{}

	sess := hub.Register(conn)

	require.NotEmpty(t, sess.Handle())
	eventually(t, func() bool { return len(conn.received(ConnectedMessage)) == 1 })
	assert.Equal(t, sess.Handle(), conn.received(ConnectedMessage)[0].Handle)
	assert.Equal(t, 1, hub.Count())
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	hub := newTestHub()
	connA, connB := &fakeConn{}, &fakeConn{}
	sessA := hub.Register(connA)
	sessB := hub.Register(connB)

	hub.HandleMessage(sessA, []byte(`{"type":"subscribe","channel":"swap:abc"}`))
	hub.HandleMessage(sessB, []byte(`{"type":"subscribe","channel":"swap:xyz"}`))
	eventually(t, func() bool {
		return len(connA.received(SubscribedMessage)) == 1 && len(connB.received(SubscribedMessage)) == 1
	})

	hub.Broadcast("swap:abc", map[string]string{"status": "processing"})

	eventually(t, func() bool { return len(connA.received(BroadcastMessage)) == 1 })
	got := connA.received(BroadcastMessage)[0]
	assert.Equal(t, "swap:abc", got.Channel)
	assert.Empty(t, connB.received(BroadcastMessage))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := newTestHub()
	conn := &fakeConn{}
	sess := hub.Register(conn)

	hub.HandleMessage(sess, []byte(`{"type":"subscribe","channel":"swap:abc"}`))
	hub.HandleMessage(sess, []byte(`{"type":"unsubscribe","channel":"swap:abc"}`))
	eventually(t, func() bool { return len(conn.received(UnsubscribedMessage)) == 1 })

	hub.Broadcast("swap:abc", "payload")

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, conn.received(BroadcastMessage))
}

func TestSendToIdentityTargetsAuthenticatedSessions(t *testing.T) {
	hub := newTestHub()
	connAlice, connAnon := &fakeConn{}, &fakeConn{}
	sessAlice := hub.Register(connAlice)
	sessAnon := hub.Register(connAnon)

	hub.HandleMessage(sessAlice, []byte(`{"type":"authenticate","token":"tok-alice"}`))
	eventually(t, func() bool { return len(connAlice.received(AuthenticatedMessage)) == 1 })
	assert.Equal(t, "acct-alice", connAlice.received(AuthenticatedMessage)[0].Identity)

	// the anonymous session subscribes to an unrelated channel; identity
	// delivery must still skip it
	hub.HandleMessage(sessAnon, []byte(`{"type":"subscribe","channel":"campaign:1"}`))

	hub.SendToIdentity("acct-alice", "direct")

	eventually(t, func() bool { return len(connAlice.received(DirectMessage)) == 1 })
	assert.Empty(t, connAnon.received(DirectMessage))
}

func TestAuthenticateFailureLeavesConnectionOpen(t *testing.T) {
	hub := newTestHub()
	conn := &fakeConn{}
	sess := hub.Register(conn)

	hub.HandleMessage(sess, []byte(`{"type":"authenticate","token":"bogus"}`))

	eventually(t, func() bool { return len(conn.received(ErrorMessage)) == 1 })
	assert.Equal(t, 1, hub.Count())

	// still usable
	hub.HandleMessage(sess, []byte(`{"type":"subscribe","channel":"swap:abc"}`))
	eventually(t, func() bool { return len(conn.received(SubscribedMessage)) == 1 })
}

func TestMalformedMessageIsIsolated(t *testing.T) {
	hub := newTestHub()
	connBad, connGood := &fakeConn{}, &fakeConn{}
	sessBad := hub.Register(connBad)
	sessGood := hub.Register(connGood)

	hub.HandleMessage(sessGood, []byte(`{"type":"subscribe","channel":"swap:abc"}`))
	hub.HandleMessage(sessBad, []byte(`{not json`))

	eventually(t, func() bool { return len(connBad.received(ErrorMessage)) == 1 })

	hub.Broadcast("swap:abc", "payload")
	eventually(t, func() bool { return len(connGood.received(BroadcastMessage)) == 1 })
	assert.Equal(t, 2, hub.Count())
}

func TestDeregisterRemovesImmediately(t *testing.T) {
	hub := newTestHub()
	conn := &fakeConn{}
	sess := hub.Register(conn)
	hub.HandleMessage(sess, []byte(`{"type":"subscribe","channel":"swap:abc"}`))

	hub.Deregister(sess)

	assert.Equal(t, 0, hub.Count())
	hub.Broadcast("swap:abc", "payload")
	eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.closed
	})
	assert.Empty(t, conn.received(BroadcastMessage))
}

func TestUnknownMessageTypeReturnsError(t *testing.T) {
	hub := newTestHub()
	conn := &fakeConn{}
	sess := hub.Register(conn)

	hub.HandleMessage(sess, []byte(`{"type":"dance"}`))

	eventually(t, func() bool { return len(conn.received(ErrorMessage)) == 1 })
	assert.Contains(t, conn.received(ErrorMessage)[0].Reason, "dance")
}

func TestConcurrentBroadcastAndChurn(t *testing.T) {
	hub := newTestHub()
	conn := &fakeConn{}
	sess := hub.Register(conn)
	hub.HandleMessage(sess, []byte(`{"type":"subscribe","channel":"swap:abc"}`))
	eventually(t, func() bool { return len(conn.received(SubscribedMessage)) == 1 })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Broadcast("swap:abc", "payload")
		}()
		go func() {
			defer wg.Done()
			extra := hub.Register(&fakeConn{})
			hub.Deregister(extra)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, hub.Count())
}
