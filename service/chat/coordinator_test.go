package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ChatRelay/module/chat/model"
	"ChatRelay/service/push"
	"ChatRelay/tools/errs"
)

type fakeStore struct {
	mu        sync.Mutex
	messages  []model.ChatMessage
	appendErr error
	recentErr error
	lastLimit int
	seq       int
}

func (f *fakeStore) Append(_ context.Context, room, username, body string) (model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return model.ChatMessage{}, f.appendErr
	}
	f.seq++
	msg := model.ChatMessage{
		ServerMsgID: fmt.Sprintf("m%d", f.seq),
		Room:        room,
		Username:    username,
		Body:        body,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, f.seq, 0, time.UTC),
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeStore) Recent(_ context.Context, room string, limit int) ([]model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	var inRoom []model.ChatMessage
	for _, m := range f.messages {
		if m.Room == room {
			inRoom = append(inRoom, m)
		}
	}
	if len(inRoom) > limit {
		inRoom = inRoom[len(inRoom)-limit:]
	}
	return inRoom, nil
}

type pushCall struct {
	Room       string
	Sender     string
	Body       string
	Candidates []push.Recipient
}

type fakePusher struct {
	mu    sync.Mutex
	calls []pushCall
}

func (f *fakePusher) Dispatch(room, senderUsername, body string, candidates []push.Recipient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{Room: room, Sender: senderUsername, Body: body, Candidates: candidates})
}

func (f *fakePusher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestCoordinator(st *fakeStore, pusher *fakePusher) (*Coordinator, *Registry) {
	reg := NewRegistry()
	fanout := NewFanout(1, 16)
	return NewCoordinator(reg, fanout, st, pusher, false), reg
}

func mustJoin(t *testing.T, co *Coordinator, reg *Registry, connID, username, room string) *Client {
	t.Helper()
	c := newTestClient(connID)
	reg.Add(c)
	if err := co.JoinRoom(context.Background(), c, username, room); err != nil {
		t.Fatalf("JoinRoom(%s, %s): %v", username, room, err)
	}
	return c
}

// drainFrames pops every frame currently queued on the client.
func drainFrames(t *testing.T, c *Client) []testFrame {
	t.Helper()
	var out []testFrame
	for {
		select {
		case raw := <-c.Send:
			var f testFrame
			if err := json.Unmarshal(raw, &f); err != nil {
				t.Fatalf("unmarshal frame %q: %v", raw, err)
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

// waitFrame blocks for one frame, for paths delivered off-goroutine.
func waitFrame(t *testing.T, c *Client) testFrame {
	t.Helper()
	select {
	case raw := <-c.Send:
		var f testFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal frame %q: %v", raw, err)
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return testFrame{}
	}
}

func TestJoinRoomDeliversSystemOnlineAndHistory(t *testing.T) {
	st := &fakeStore{}
	co, reg := newTestCoordinator(st, &fakePusher{})
	if _, err := st.Append(context.Background(), "lobby", "carol", "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Append(context.Background(), "lobby", "carol", "anyone here?"); err != nil {
		t.Fatal(err)
	}

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")
	frames := drainFrames(t, alice)
	if len(frames) != 3 {
		t.Fatalf("want 3 frames (message, onlineUsers, chatHistory), got %d", len(frames))
	}

	if frames[0].Event != EventMessage {
		t.Fatalf("frame 0 event = %q", frames[0].Event)
	}
	var sys MessagePayload
	if err := json.Unmarshal(frames[0].Data, &sys); err != nil {
		t.Fatal(err)
	}
	if !sys.IsSystem || sys.Username != "system" || !strings.Contains(sys.Message, "alice has joined") {
		t.Fatalf("system message payload = %+v", sys)
	}

	if frames[1].Event != EventOnlineUsers {
		t.Fatalf("frame 1 event = %q", frames[1].Event)
	}
	var online []OnlineUser
	if err := json.Unmarshal(frames[1].Data, &online); err != nil {
		t.Fatal(err)
	}
	if len(online) != 1 || online[0].Username != "alice" || online[0].Room != "lobby" {
		t.Fatalf("online users = %+v", online)
	}

	if frames[2].Event != EventChatHistory {
		t.Fatalf("frame 2 event = %q", frames[2].Event)
	}
	var history []MessagePayload
	if err := json.Unmarshal(frames[2].Data, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("want 2 history entries, got %d", len(history))
	}
	if history[0].Message != "hi" || history[1].Message != "anyone here?" {
		t.Fatalf("history should be oldest first, got %+v", history)
	}
	if !history[0].Timestamp.Before(history[1].Timestamp) {
		t.Fatalf("history timestamps out of order: %v then %v", history[0].Timestamp, history[1].Timestamp)
	}

	if st.lastLimit != HistoryLimit {
		t.Fatalf("history fetch limit = %d, want %d", st.lastLimit, HistoryLimit)
	}
}

func TestJoinRoomBroadcastReachesExistingMembers(t *testing.T) {
	co, reg := newTestCoordinator(&fakeStore{}, &fakePusher{})

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")
	drainFrames(t, alice)

	mustJoin(t, co, reg, "c-bob", "bob", "lobby")

	frames := drainFrames(t, alice)
	if len(frames) != 2 {
		t.Fatalf("alice should get the join announcement and the refreshed view, got %d frames", len(frames))
	}
	var sys MessagePayload
	if err := json.Unmarshal(frames[0].Data, &sys); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sys.Message, "bob has joined") {
		t.Fatalf("announcement = %+v", sys)
	}
	var online []OnlineUser
	if err := json.Unmarshal(frames[1].Data, &online); err != nil {
		t.Fatal(err)
	}
	if len(online) != 2 {
		t.Fatalf("refreshed view should list both members, got %+v", online)
	}
}

func TestJoinRoomHistoryFailureDegrades(t *testing.T) {
	st := &fakeStore{recentErr: errs.ErrStoreUnavailable.WrapMsg("down")}
	co, reg := newTestCoordinator(st, &fakePusher{})

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")

	frames := drainFrames(t, alice)
	if len(frames) != 2 {
		t.Fatalf("join should still announce and refresh, got %d frames", len(frames))
	}
	for _, f := range frames {
		if f.Event == EventChatHistory {
			t.Fatal("no history frame should be sent when the fetch fails")
		}
	}
}

func TestJoinRoomValidation(t *testing.T) {
	co, reg := newTestCoordinator(&fakeStore{}, &fakePusher{})
	c := newTestClient("c1")
	reg.Add(c)

	for _, tt := range []struct{ username, room string }{
		{"", "lobby"},
		{"alice", ""},
		{"", ""},
	} {
		err := co.JoinRoom(context.Background(), c, tt.username, tt.room)
		if !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("JoinRoom(%q, %q) = %v, want validation error", tt.username, tt.room, err)
		}
	}
	if len(drainFrames(t, c)) != 0 {
		t.Fatal("rejected join must not broadcast")
	}
}

func TestSendMessageBroadcastsStoreTimestamp(t *testing.T) {
	st := &fakeStore{}
	co, reg := newTestCoordinator(st, &fakePusher{})

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")
	bob := mustJoin(t, co, reg, "c-bob", "bob", "lobby")
	drainFrames(t, alice)
	drainFrames(t, bob)

	if err := co.SendMessage(context.Background(), alice, "alice", "lobby", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	for _, c := range []*Client{alice, bob} {
		frames := drainFrames(t, c)
		if len(frames) != 1 || frames[0].Event != EventMessage {
			t.Fatalf("member %s frames = %+v", c.ConnID, frames)
		}
		var msg MessagePayload
		if err := json.Unmarshal(frames[0].Data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Username != "alice" || msg.Message != "hello" || msg.IsSystem {
			t.Fatalf("message payload = %+v", msg)
		}
		if !msg.Timestamp.Equal(st.messages[0].CreatedAt) {
			t.Fatalf("broadcast timestamp %v != store timestamp %v", msg.Timestamp, st.messages[0].CreatedAt)
		}
	}
}

func TestSendMessageStoreFailureSuppressesBroadcast(t *testing.T) {
	st := &fakeStore{appendErr: errs.ErrStoreUnavailable.WrapMsg("down")}
	pusher := &fakePusher{}
	co, reg := newTestCoordinator(st, pusher)

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")
	bob := mustJoin(t, co, reg, "c-bob", "bob", "lobby")
	drainFrames(t, alice)
	drainFrames(t, bob)

	err := co.SendMessage(context.Background(), alice, "alice", "lobby", "hello")
	if !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Fatalf("SendMessage = %v, want store-unavailable error", err)
	}
	if got := len(drainFrames(t, alice)) + len(drainFrames(t, bob)); got != 0 {
		t.Fatalf("unpersisted message must not be broadcast, got %d frames", got)
	}
	if pusher.callCount() != 0 {
		t.Fatal("unpersisted message must not be pushed")
	}
}

func TestSendMessagePushCandidates(t *testing.T) {
	pusher := &fakePusher{}
	co, reg := newTestCoordinator(&fakeStore{}, pusher)

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")
	bob := mustJoin(t, co, reg, "c-bob", "bob", "lobby")
	if err := co.RegisterPushToken(bob, "ExponentPushToken[bob-token]"); err != nil {
		t.Fatalf("RegisterPushToken: %v", err)
	}

	if err := co.SendMessage(context.Background(), alice, "alice", "lobby", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	if len(pusher.calls) != 1 {
		t.Fatalf("want 1 push dispatch, got %d", len(pusher.calls))
	}
	call := pusher.calls[0]
	if call.Room != "lobby" || call.Sender != "alice" || call.Body != "hello" {
		t.Fatalf("push call = %+v", call)
	}
	tokens := map[string]string{}
	for _, r := range call.Candidates {
		tokens[r.Username] = r.PushToken
	}
	if tokens["bob"] != "ExponentPushToken[bob-token]" {
		t.Fatalf("bob's token missing from candidates: %+v", call.Candidates)
	}
	if _, ok := tokens["alice"]; !ok {
		t.Fatal("candidate set is the full membership; the dispatcher filters the sender")
	}
}

func TestTypingExcludesSender(t *testing.T) {
	co, reg := newTestCoordinator(&fakeStore{}, &fakePusher{})

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")
	bob := mustJoin(t, co, reg, "c-bob", "bob", "lobby")
	drainFrames(t, alice)
	drainFrames(t, bob)

	if err := co.Typing(alice, "alice", "lobby", true); err != nil {
		t.Fatalf("Typing: %v", err)
	}

	f := waitFrame(t, bob)
	if f.Event != EventUserTyping {
		t.Fatalf("bob frame event = %q", f.Event)
	}
	var payload UserTypingPayload
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Username != "alice" || !payload.IsTyping {
		t.Fatalf("typing payload = %+v", payload)
	}

	time.Sleep(50 * time.Millisecond)
	if got := drainFrames(t, alice); len(got) != 0 {
		t.Fatalf("sender must not receive its own typing indicator, got %+v", got)
	}
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	co, reg := newTestCoordinator(&fakeStore{}, &fakePusher{})

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")
	bob := mustJoin(t, co, reg, "c-bob", "bob", "lobby")
	drainFrames(t, alice)
	drainFrames(t, bob)

	co.Disconnect(alice)

	frames := drainFrames(t, bob)
	if len(frames) != 2 {
		t.Fatalf("bob should get the departure and the refreshed view, got %d", len(frames))
	}
	var sys MessagePayload
	if err := json.Unmarshal(frames[0].Data, &sys); err != nil {
		t.Fatal(err)
	}
	if !sys.IsSystem || !strings.Contains(sys.Message, "alice has left") {
		t.Fatalf("departure message = %+v", sys)
	}
	var online []OnlineUser
	if err := json.Unmarshal(frames[1].Data, &online); err != nil {
		t.Fatal(err)
	}
	if len(online) != 1 || online[0].Username != "bob" {
		t.Fatalf("refreshed view = %+v", online)
	}

	if got := drainFrames(t, alice); len(got) != 0 {
		t.Fatalf("the departing client receives nothing, got %+v", got)
	}
}

func TestDisconnectNeverJoinedIsNoOp(t *testing.T) {
	co, reg := newTestCoordinator(&fakeStore{}, &fakePusher{})

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")
	drainFrames(t, alice)

	idle := newTestClient("c-idle")
	reg.Add(idle)
	co.Disconnect(idle)

	if got := drainFrames(t, alice); len(got) != 0 {
		t.Fatalf("disconnect of a never-joined conn is silent, got %+v", got)
	}
	if _, ok := reg.Get("c-idle"); ok {
		t.Fatal("session should still be removed")
	}

	// Unknown connection: same, just quieter.
	co.Disconnect(newTestClient("c-ghost"))
}

// Switching rooms is join-only: the old room is never told. Members left
// behind keep their last onlineUsers view until the next event touches
// their room.
func TestRoomSwitchIsSilentToOldRoom(t *testing.T) {
	co, reg := newTestCoordinator(&fakeStore{}, &fakePusher{})

	alice := mustJoin(t, co, reg, "c-alice", "alice", "lobby")
	bob := mustJoin(t, co, reg, "c-bob", "bob", "lobby")
	drainFrames(t, alice)
	drainFrames(t, bob)

	if err := co.JoinRoom(context.Background(), alice, "alice", "games"); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if got := drainFrames(t, bob); len(got) != 0 {
		t.Fatalf("old room must receive nothing on a switch, got %+v", got)
	}
	if members := reg.MembersOf("lobby"); len(members) != 1 || members[0].Username != "bob" {
		t.Fatalf("lobby membership after switch = %+v", members)
	}
	if members := reg.MembersOf("games"); len(members) != 1 || members[0].Username != "alice" {
		t.Fatalf("games membership after switch = %+v", members)
	}
}

func TestRegisterPushToken(t *testing.T) {
	co, reg := newTestCoordinator(&fakeStore{}, &fakePusher{})
	c := newTestClient("c1")
	reg.Add(c)

	if err := co.RegisterPushToken(c, ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("empty token = %v, want validation error", err)
	}
	if err := co.RegisterPushToken(newTestClient("c-ghost"), "ExponentPushToken[x]"); !errors.Is(err, errs.ErrConnectionGone) {
		t.Fatalf("unknown conn = %v, want connection-gone error", err)
	}

	if err := co.RegisterPushToken(c, "ExponentPushToken[x]"); err != nil {
		t.Fatalf("RegisterPushToken: %v", err)
	}
	// Idempotent re-registration.
	if err := co.RegisterPushToken(c, "ExponentPushToken[x]"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	s, _ := reg.Get("c1")
	if s.PushToken != "ExponentPushToken[x]" {
		t.Fatalf("session token = %q", s.PushToken)
	}
	if got := drainFrames(t, c); len(got) != 0 {
		t.Fatalf("token registration never broadcasts, got %+v", got)
	}
}
