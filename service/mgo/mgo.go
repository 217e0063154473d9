package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"ChatRelay/data/mongoutil"
	"ChatRelay/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoManager supervises the MongoDB connection: connects with backoff,
// closes readyCh once on first success, and reconnects after health-check failures.
type MongoManager struct {
	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{}
	readyOnce sync.Once

	lastErr atomic.Value // error
}

var globalMgr = MongoManager{readyCh: make(chan struct{})}

// StartAsync runs until ctx is done. The first successful connection closes
// Ready(); later disconnects trigger automatic reconnection.
func StartAsync(ctx context.Context, cfg *mongoutil.Config) {
	go func() {
		const (
			baseBackoff = 200 * time.Millisecond
			maxBackoff  = 5 * time.Second
			healthEvery = 10 * time.Second
			failThresh  = 3
		)

		for {
			attempt := 0
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				cli, err := mongoutil.NewMongoDB(ctx, cfg)
				if err == nil {
					globalMgr.mu.Lock()
					globalMgr.client = cli
					globalMgr.mu.Unlock()
					globalMgr.readyOnce.Do(func() { close(globalMgr.readyCh) })
					break
				}

				globalMgr.lastErr.Store(err)

				backoff := baseBackoff << attempt
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				jitter := time.Duration(rand.Int63n(int64(backoff / 5)))
				timer := time.NewTimer(backoff - jitter/2)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				if attempt < 6 {
					attempt++
				}
			}

			// health loop; returning drops back to the connect loop
			fail := 0
			ticker := time.NewTicker(healthEvery)
			func() {
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						disconnect()
						return
					case <-ticker.C:
						globalMgr.mu.RLock()
						c := globalMgr.client
						globalMgr.mu.RUnlock()
						if c == nil {
							return
						}
						if err := c.GetDB().Client().Ping(ctx, nil); err != nil {
							fail++
							globalMgr.lastErr.Store(err)
							if fail >= failThresh {
								disconnect()
								return
							}
						} else {
							fail = 0
						}
					}
				}
			}()

			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
}

func disconnect() {
	globalMgr.mu.Lock()
	defer globalMgr.mu.Unlock()
	if globalMgr.client != nil {
		_ = globalMgr.client.GetDB().Client().Disconnect(context.Background())
		globalMgr.client = nil
	}
}

// Ready is closed after the first successful connection.
func Ready() <-chan struct{} {
	return globalMgr.readyCh
}

func Manager() *MongoManager {
	return &globalMgr
}

// Err returns the most recent connection error.
func Err() error {
	if v := globalMgr.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func GetDB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.client == nil {
		panic("Mongo not ready: wait Ready() or use TryGetDB()")
	}
	return globalMgr.client.GetDB()
}

func TryGetDB() (*mongo.Database, bool) {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.client == nil {
		return nil, false
	}
	return globalMgr.client.GetDB(), true
}

// WaitReady blocks until the first connection succeeds or ctx ends.
func WaitReady(ctx context.Context, m *MongoManager) error {
	m.mu.RLock()
	clientNil := m.client == nil
	m.mu.RUnlock()
	if !clientNil {
		return nil
	}
	if m.readyCh == nil {
		return errs.New("mongo manager not started")
	}
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
