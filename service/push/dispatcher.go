package push

import (
	"context"
	"fmt"
	"time"

	"ChatRelay/logger"
	"ChatRelay/tools/safe"

	"github.com/google/uuid"
)

// BatchSize is the provider-mandated maximum number of messages per submission.
const BatchSize = 100

const dispatchTimeout = 10 * time.Second

// Recipient is one candidate for a push notification: a session's username and
// its registered delivery token, possibly empty.
type Recipient struct {
	Username  string
	PushToken string
}

// Dispatcher fans a room message out to absent-but-reachable recipients.
// At-most-once, best-effort: no retry, no dead-letter queue.
type Dispatcher struct {
	transport Transport
}

func NewDispatcher(transport Transport) *Dispatcher {
	return &Dispatcher{transport: transport}
}

// Dispatch computes the recipient set for the message and submits it in
// independent batches. It returns immediately; each batch runs on its own
// goroutine and a failing batch never affects the others or the caller.
func (d *Dispatcher) Dispatch(room, senderUsername, body string, candidates []Recipient) {
	if d == nil || d.transport == nil {
		return
	}

	messages := d.buildMessages(room, senderUsername, body, candidates)
	if len(messages) == 0 {
		return
	}

	for _, batch := range Partition(messages, BatchSize) {
		batch := batch
		safe.SafeGo(func() {
			ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
			defer cancel()
			if err := d.transport.SendBatch(ctx, batch); err != nil {
				logger.Errorf("[push] batch %s failed room=%s size=%d: %v",
					batch.BatchID, room, len(batch.Messages), err)
			}
		})
	}
}

func (d *Dispatcher) buildMessages(room, senderUsername, body string, candidates []Recipient) []Message {
	out := make([]Message, 0, len(candidates))
	for _, r := range candidates {
		if r.Username == senderUsername || r.PushToken == "" {
			continue
		}
		if !IsValidToken(r.PushToken) {
			logger.Warnf("[push] invalid token for user=%s room=%s, skipping", r.Username, room)
			continue
		}
		out = append(out, Message{
			To:    r.PushToken,
			Title: fmt.Sprintf("New message in %s", room),
			Body:  fmt.Sprintf("%s: %s", senderUsername, body),
			Sound: "default",
		})
	}
	return out
}

// Partition splits messages into provider-sized batches, each with its own ID.
func Partition(messages []Message, size int) []Batch {
	if size <= 0 {
		size = BatchSize
	}
	batches := make([]Batch, 0, (len(messages)+size-1)/size)
	for start := 0; start < len(messages); start += size {
		end := start + size
		if end > len(messages) {
			end = len(messages)
		}
		batches = append(batches, Batch{
			BatchID:  uuid.NewString(),
			Messages: messages[start:end],
		})
	}
	return batches
}
