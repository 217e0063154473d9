package handlers

import (
	"ChatRelay/service/chat"
	"ChatRelay/tools/decode"
)

type TypingHandler struct{}

func NewTypingHandler() chat.Handler { return &TypingHandler{} }

func (h *TypingHandler) Event() string { return chat.EventTyping }

func (h *TypingHandler) Handle(ctx *chat.Context, f *chat.EventFrame, c *chat.Client) error {
	payload, err := decode.DecodeMap[chat.TypingPayload](f.Data)
	if err != nil {
		return err
	}
	return ctx.S.Coordinator().Typing(c, payload.Username, payload.Room, payload.IsTyping)
}
