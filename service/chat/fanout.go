package chat

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout delivers a payload to many send queues off the caller's goroutine.
// Used for events with no ordering contract relative to membership broadcasts.
type Fanout struct {
	jobs chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range f.jobs {
				for _, c := range job.conns {
					// Slow or closed client: drop, the disconnect path cleans up.
					_ = c.TrySend(job.payload)
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload}
}
