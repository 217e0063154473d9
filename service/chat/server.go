package chat

import (
	"ChatRelay/module/chat/store"
)

// Server bundles the relay's coordination pieces: the registry, the fanout
// pool, the event dispatcher, and the coordinator that drives them.
type Server struct {
	nodeID        string
	sendQueueSize int
	reg           *Registry
	fanout        *Fanout
	disp          *Dispatcher
	coord         *Coordinator
}

// Options for NewServer. Zero values pick the defaults below.
type Options struct {
	NodeID        string
	SendQueueSize int
	FanoutWorkers int
	FanoutQueue   int
	Presence      bool // mirror room membership to redis
}

const (
	defaultSendQueueSize = 256
	defaultFanoutWorkers = 4
	defaultFanoutQueue   = 1024
)

func NewServer(opts Options, st store.MessageStore, pusher PushNotifier) *Server {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = defaultSendQueueSize
	}
	if opts.FanoutWorkers <= 0 {
		opts.FanoutWorkers = defaultFanoutWorkers
	}
	if opts.FanoutQueue <= 0 {
		opts.FanoutQueue = defaultFanoutQueue
	}

	reg := NewRegistry()
	fanout := NewFanout(opts.FanoutWorkers, opts.FanoutQueue)
	return &Server{
		nodeID:        opts.NodeID,
		sendQueueSize: opts.SendQueueSize,
		reg:           reg,
		fanout:        fanout,
		disp:          NewDispatcher(),
		coord:         NewCoordinator(reg, fanout, st, pusher, opts.Presence),
	}
}

func (s *Server) NodeID() string            { return s.nodeID }
func (s *Server) Registry() *Registry       { return s.reg }
func (s *Server) Disp() *Dispatcher         { return s.disp }
func (s *Server) Coordinator() *Coordinator { return s.coord }
