package storage

import (
	"context"
	"time"

	rdx "ChatRelay/service/storage/redis"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Room presence mirror. The in-process registry stays authoritative for
// broadcasts; these sets only expose online membership to tooling outside the
// relay process. All operations are best-effort: callers log failures and move on.

const presenceTTL = 2 * time.Hour

// presence key: chat:room:<room>:online
// Members: usernames currently connected to the room.
func roomKey(room string) string { return "chat:room:" + room + ":online" }

var errNotInitialized = errors.New("redis not initialized")

// RoomOnline adds user to the room's online set and renews the set TTL.
func RoomOnline(ctx context.Context, room, user string) error {
	rdb := rdx.GetRedis()
	if rdb == nil {
		return errNotInitialized
	}
	pipe := rdb.TxPipeline()
	pipe.SAdd(ctx, roomKey(room), user)
	pipe.Expire(ctx, roomKey(room), presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RoomOffline removes user from the room's online set.
func RoomOffline(ctx context.Context, room, user string) error {
	rdb := rdx.GetRedis()
	if rdb == nil {
		return errNotInitialized
	}
	return rdb.SRem(ctx, roomKey(room), user).Err()
}

// RoomMembers returns the mirrored member set; empty when the room has no key.
func RoomMembers(ctx context.Context, room string) ([]string, error) {
	rdb := rdx.GetRedis()
	if rdb == nil {
		return nil, errNotInitialized
	}
	vals, err := rdb.SMembers(ctx, roomKey(room)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return vals, nil
}
