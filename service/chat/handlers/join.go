package handlers

import (
	"context"
	"time"

	"ChatRelay/service/chat"
	"ChatRelay/tools/decode"
)

const historyFetchTimeout = 5 * time.Second

type JoinRoomHandler struct{}

func NewJoinRoomHandler() chat.Handler { return &JoinRoomHandler{} }

func (h *JoinRoomHandler) Event() string { return chat.EventJoinRoom }

func (h *JoinRoomHandler) Handle(ctx *chat.Context, f *chat.EventFrame, c *chat.Client) error {
	payload, err := decode.DecodeMap[chat.JoinRoomPayload](f.Data)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(context.Background(), historyFetchTimeout)
	defer cancel()
	return ctx.S.Coordinator().JoinRoom(callCtx, c, payload.Username, payload.Room)
}
