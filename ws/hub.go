package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lucsky/cuid"
	"go.uber.org/zap"
)

// TokenVerifier resolves an access token to an account identity. The token
// service implements it.
type TokenVerifier interface {
	GetAccountIDByToken(ctx context.Context, token string) (string, error)
}

const authenticateTimeout = 5 * time.Second

// Hub is the in-process connection registry. Broadcasts take the read lock so
// they proceed concurrently; connect/disconnect and subscription churn take
// the write lock. Channels are opaque strings with no authorization check;
// access control is the caller's concern via unguessable names.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	tokens TokenVerifier
	log    *zap.Logger
}

func NewHub(tokens TokenVerifier, log *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		tokens:   tokens,
		log:      log,
	}
}

// Register adds a connection to the registry, starts its write pump and
// acknowledges with a connected frame carrying the assigned handle.
func (h *Hub) Register(conn Conn) *Session {
	sess := &Session{
		handle:   cuid.New(),
		conn:     conn,
		channels: make(map[string]struct{}),
		send:     make(chan Envelope, sessionSendBuffer),
	}

	h.mu.Lock()
	h.sessions[sess.handle] = sess
	h.mu.Unlock()

	go sess.writePump()
	sess.enqueue(Envelope{Type: ConnectedMessage, Handle: sess.handle})
	return sess
}

// Deregister removes the session immediately; no grace period, no replay on
// reconnect.
func (h *Hub) Deregister(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(sess)
}

// drop must be called with the write lock held.
func (h *Hub) drop(sess *Session) {
	delete(h.sessions, sess.handle)
	sess.close()
}

// Serve owns the connection's read side: it registers the session, dispatches
// inbound frames until the connection fails or closes, then deregisters.
func (h *Hub) Serve(conn Conn) {
	sess := h.Register(conn)
	defer h.Deregister(sess)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.HandleMessage(sess, data)
	}
}

// HandleMessage processes one inbound frame. A malformed or unknown frame
// produces an error frame on this one connection and nothing else; one bad
// connection never affects another.
func (h *Hub) HandleMessage(sess *Session, data []byte) {
	env := new(Envelope)
	if err := json.Unmarshal(data, env); err != nil {
		sess.enqueue(Envelope{Type: ErrorMessage, Reason: "malformed message"})
		return
	}

	switch env.Type {
	case AuthenticateMessage:
		h.authenticate(sess, env.Token)
	case SubscribeMessage:
		h.subscribe(sess, env.Channel)
	case UnsubscribeMessage:
		h.unsubscribe(sess, env.Channel)
	default:
		sess.enqueue(Envelope{Type: ErrorMessage, Reason: "unknown message type: " + env.Type})
	}
}

// authenticate binds an identity to the session. Failure leaves the
// connection open and unauthenticated; the client may retry.
func (h *Hub) authenticate(sess *Session, token string) {
	if token == "" {
		sess.enqueue(Envelope{Type: ErrorMessage, Reason: "token is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authenticateTimeout)
	defer cancel()

	identity, err := h.tokens.GetAccountIDByToken(ctx, token)
	if err != nil {
		sess.enqueue(Envelope{Type: ErrorMessage, Reason: "authentication failed"})
		return
	}

	h.mu.Lock()
	sess.identity = identity
	h.mu.Unlock()

	sess.enqueue(Envelope{Type: AuthenticatedMessage, Identity: identity})
}

func (h *Hub) subscribe(sess *Session, channel string) {
	if channel == "" {
		sess.enqueue(Envelope{Type: ErrorMessage, Reason: "channel is required"})
		return
	}

	h.mu.Lock()
	sess.channels[channel] = struct{}{}
	h.mu.Unlock()

	sess.enqueue(Envelope{Type: SubscribedMessage, Channel: channel})
}

func (h *Hub) unsubscribe(sess *Session, channel string) {
	if channel == "" {
		sess.enqueue(Envelope{Type: ErrorMessage, Reason: "channel is required"})
		return
	}

	h.mu.Lock()
	delete(sess.channels, channel)
	h.mu.Unlock()

	sess.enqueue(Envelope{Type: UnsubscribedMessage, Channel: channel})
}

// Broadcast delivers a payload to every session subscribed to the channel.
// Sessions whose buffers are full are dropped rather than blocking delivery
// to the rest.
func (h *Hub) Broadcast(channel string, payload any) {
	h.fanOut(Envelope{Type: BroadcastMessage, Channel: channel, Payload: payload}, func(sess *Session) bool {
		_, ok := sess.channels[channel]
		return ok
	})
}

// SendToIdentity delivers a payload to every session currently authenticated
// as the identity, regardless of subscriptions.
func (h *Hub) SendToIdentity(identity string, payload any) {
	if identity == "" {
		return
	}
	h.fanOut(Envelope{Type: DirectMessage, Payload: payload}, func(sess *Session) bool {
		return sess.identity == identity
	})
}

func (h *Hub) fanOut(env Envelope, match func(*Session) bool) {
	var stalled []*Session

	h.mu.RLock()
	for _, sess := range h.sessions {
		if !match(sess) {
			continue
		}
		if !sess.enqueue(env) {
			stalled = append(stalled, sess)
		}
	}
	h.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}
	h.mu.Lock()
	for _, sess := range stalled {
		h.log.Warn("dropping stalled connection", zap.String("handle", sess.handle))
		h.drop(sess)
	}
	h.mu.Unlock()
}

// Count reports the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
