package handlers

import (
	"context"
	"time"

	"ChatRelay/service/chat"
	"ChatRelay/tools/decode"
)

const persistTimeout = 5 * time.Second

type SendMessageHandler struct{}

func NewSendMessageHandler() chat.Handler { return &SendMessageHandler{} }

func (h *SendMessageHandler) Event() string { return chat.EventSendMessage }

func (h *SendMessageHandler) Handle(ctx *chat.Context, f *chat.EventFrame, c *chat.Client) error {
	payload, err := decode.DecodeMap[chat.SendMessagePayload](f.Data)
	if err != nil {
		return err
	}

	// The room and username come from the event, not the registry; the relay
	// trusts the caller the way the wire protocol always has.
	callCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return ctx.S.Coordinator().SendMessage(callCtx, c, payload.Username, payload.Room, payload.Message)
}
