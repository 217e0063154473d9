package chat

import (
	"context"
	"sync"
	"time"

	"ChatRelay/logger"
	"ChatRelay/module/chat/store"
	"ChatRelay/service/push"
	"ChatRelay/service/storage"
	"ChatRelay/tools/errs"
	"ChatRelay/tools/safe"
)

const (
	// HistoryLimit caps the private backlog delivered on join.
	HistoryLimit = 50

	systemUsername = "system"

	presenceOpTimeout = 2 * time.Second
)

// PushNotifier fans a persisted message out to absent-but-reachable recipients.
type PushNotifier interface {
	Dispatch(room, senderUsername, body string, candidates []push.Recipient)
}

// Coordinator orchestrates the join/send/typing/disconnect protocol over the
// Registry, the message store, and the push notifier.
//
// mu serializes every membership mutation with the broadcasts derived from it,
// so no observer ever sees an online-users view that predates a completed
// mutation of the same room. Store and push calls happen outside the lock.
type Coordinator struct {
	mu       sync.Mutex
	reg      *Registry
	fanout   *Fanout
	store    store.MessageStore
	pusher   PushNotifier
	presence bool // mirror membership to redis when true
}

func NewCoordinator(reg *Registry, fanout *Fanout, st store.MessageStore, pusher PushNotifier, presence bool) *Coordinator {
	return &Coordinator{
		reg:      reg,
		fanout:   fanout,
		store:    st,
		pusher:   pusher,
		presence: presence,
	}
}

// RegisterPushToken stores the delivery token on the session. Valid in any
// state, idempotent, no broadcast.
func (co *Coordinator) RegisterPushToken(c *Client, token string) error {
	if token == "" {
		return errs.ErrValidation.WrapMsg("pushToken is required")
	}
	if _, ok := co.reg.Upsert(c.ConnID, SessionPatch{PushToken: &token}); !ok {
		return errs.ErrConnectionGone.WrapMsg("conn", c.ConnID)
	}
	return nil
}

// JoinRoom joins (or switches) the connection to room. Membership commit and
// the join broadcasts happen atomically under mu; the private history fetch
// follows and degrades gracefully on store failure. Switching rooms sends
// nothing to the old room: the protocol has no leave event.
func (co *Coordinator) JoinRoom(ctx context.Context, c *Client, username, room string) error {
	if username == "" || room == "" {
		return errs.ErrValidation.WrapMsg("username and room are required")
	}

	co.mu.Lock()
	prev, ok := co.reg.Upsert(c.ConnID, SessionPatch{Username: &username, Room: &room})
	if !ok {
		co.mu.Unlock()
		return errs.ErrConnectionGone.WrapMsg("conn", c.ConnID)
	}
	sys := BuildMessageFrame(systemUsername, username+" has joined the room", time.Now().UTC(), true)
	online := BuildOnlineUsersFrame(co.reg.MembersOf(room))
	for _, member := range co.reg.ClientsOf(room) {
		member.TrySend(sys)
		member.TrySend(online)
	}
	co.mu.Unlock()

	co.mirrorPresence(func(pctx context.Context) {
		if prev.Room != "" && prev.Room != room {
			if err := storage.RoomOffline(pctx, prev.Room, prev.Username); err != nil {
				logger.Debugf("[presence] offline mirror failed room=%s: %v", prev.Room, err)
			}
		}
		if err := storage.RoomOnline(pctx, room, username); err != nil {
			logger.Debugf("[presence] online mirror failed room=%s: %v", room, err)
		}
	})

	history, err := co.store.Recent(ctx, room, HistoryLimit)
	if err != nil {
		// The join already succeeded; only the private backlog is skipped.
		logger.Errorf("[join] history fetch failed room=%s user=%s: %v", room, username, err)
		return nil
	}
	c.TrySend(BuildChatHistoryFrame(history))
	return nil
}

// SendMessage persists the message and only then broadcasts it with the
// store-assigned timestamp. On persistence failure nothing is broadcast and
// the message is lost. Push dispatch follows the broadcast asynchronously.
func (co *Coordinator) SendMessage(ctx context.Context, c *Client, username, room, body string) error {
	if username == "" || room == "" || body == "" {
		return errs.ErrValidation.WrapMsg("username, room and message are required")
	}

	msg, err := co.store.Append(ctx, room, username, body)
	if err != nil {
		return err
	}

	payload := BuildMessageFrame(msg.Username, msg.Body, msg.CreatedAt, false)
	for _, member := range co.reg.ClientsOf(room) {
		member.TrySend(payload)
	}

	candidates := recipientsOf(co.reg.MembersOf(room))
	co.pusher.Dispatch(room, username, body, candidates)
	return nil
}

// Typing relays the indicator to every other member of the room.
// No persistence, no registry mutation.
func (co *Coordinator) Typing(c *Client, username, room string, isTyping bool) error {
	if username == "" || room == "" {
		return errs.ErrValidation.WrapMsg("username and room are required")
	}

	members := co.reg.ClientsOf(room)
	targets := make([]*Client, 0, len(members))
	for _, member := range members {
		if member.ConnID == c.ConnID {
			continue
		}
		targets = append(targets, member)
	}
	co.fanout.Broadcast(targets, BuildUserTypingFrame(username, isTyping))
	return nil
}

// Disconnect removes the session and, when it was in a room, announces the
// departure and refreshes that room's online view. Disconnecting an unknown
// or never-joined connection broadcasts nothing.
func (co *Coordinator) Disconnect(c *Client) {
	co.mu.Lock()
	last, ok := co.reg.Remove(c.ConnID)
	if !ok || last.Room == "" {
		co.mu.Unlock()
		return
	}
	sys := BuildMessageFrame(systemUsername, last.Username+" has left the room", time.Now().UTC(), true)
	online := BuildOnlineUsersFrame(co.reg.MembersOf(last.Room))
	for _, member := range co.reg.ClientsOf(last.Room) {
		member.TrySend(sys)
		member.TrySend(online)
	}
	co.mu.Unlock()

	co.mirrorPresence(func(pctx context.Context) {
		if err := storage.RoomOffline(pctx, last.Room, last.Username); err != nil {
			logger.Debugf("[presence] offline mirror failed room=%s: %v", last.Room, err)
		}
	})
}

func (co *Coordinator) mirrorPresence(f func(ctx context.Context)) {
	if !co.presence {
		return
	}
	safe.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), presenceOpTimeout)
		defer cancel()
		f(ctx)
	})
}

func recipientsOf(members []Session) []push.Recipient {
	out := make([]push.Recipient, 0, len(members))
	for _, s := range members {
		out = append(out, push.Recipient{
			Username:  s.Username,
			PushToken: s.PushToken,
		})
	}
	return out
}
