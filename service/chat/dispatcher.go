package chat

import (
	"ChatRelay/tools/errs"
)

// Handler processes one inbound event type.
type Handler interface {
	Event() string
	Handle(*Context, *EventFrame, *Client) error
}

// Context hands the server to handlers without import cycles.
type Context struct {
	S *Server
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Event()] = h }

func (d *Dispatcher) Dispatch(ctx *Context, f *EventFrame, c *Client) error {
	h, ok := d.handlers[f.Event]
	if !ok {
		return errs.ErrValidation.WrapMsg("no handler for event", "event", f.Event)
	}
	return h.Handle(ctx, f, c)
}

func (d *Dispatcher) GetHandler(event string) Handler {
	return d.handlers[event]
}
