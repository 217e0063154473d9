package model

import "time"

// ChatMessage is the persisted record for one room message.
// Immutable once written; CreatedAt is assigned at persistence time and is the
// authoritative ordering key within a room.
type ChatMessage struct {
	ServerMsgID string    `bson:"server_msg_id" json:"server_msg_id"`
	Room        string    `bson:"room" json:"room"`
	Username    string    `bson:"username" json:"username"`
	Body        string    `bson:"body" json:"body"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}
