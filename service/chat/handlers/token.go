package handlers

import (
	"ChatRelay/service/chat"
	"ChatRelay/tools/decode"
)

type RegisterPushTokenHandler struct{}

func NewRegisterPushTokenHandler() chat.Handler { return &RegisterPushTokenHandler{} }

func (h *RegisterPushTokenHandler) Event() string { return chat.EventRegisterPushToken }

func (h *RegisterPushTokenHandler) Handle(ctx *chat.Context, f *chat.EventFrame, c *chat.Client) error {
	payload, err := decode.DecodeMap[chat.RegisterPushTokenPayload](f.Data)
	if err != nil {
		return err
	}
	return ctx.S.Coordinator().RegisterPushToken(c, payload.PushToken)
}
