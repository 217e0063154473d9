package global

import (
	"context"
	"strings"

	"ChatRelay/data/mongoutil"
	"ChatRelay/logger"
	mgoSrv "ChatRelay/service/mgo"
	"ChatRelay/service/push"
	rdx "ChatRelay/service/storage/redis"
	"ChatRelay/tools"
	"ChatRelay/tools/ids"
)

// AppConfig is the relay's process configuration. Defaults suit local
// development; every field can be overridden through the environment.
type AppConfig struct {
	NodeID   string
	Port     int
	Presence bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI      string
	MongoDatabase string
	MongoUser     string
	MongoPassword string

	NatsServers []string
	PushSubject string
}

var Global = AppConfig{
	NodeID:   "relay_1",
	Port:     8080,
	Presence: true,

	RedisAddr:     "127.0.0.1:6379",
	RedisPassword: "",
	RedisDB:       0,

	MongoURI:      "mongodb://localhost:27017",
	MongoDatabase: "chatrelay",

	NatsServers: []string{"nats://127.0.0.1:4222"},
	PushSubject: "push.batches",
}

// LoadEnv overlays environment variables onto the defaults.
func LoadEnv() {
	Global.NodeID = tools.GetEnv("RELAY_NODE_ID", Global.NodeID)
	Global.Port = tools.GetEnvInt("RELAY_PORT", Global.Port)
	Global.Presence = tools.GetEnvBool("RELAY_PRESENCE", Global.Presence)

	Global.RedisAddr = tools.GetEnv("REDIS_ADDR", Global.RedisAddr)
	Global.RedisPassword = tools.GetEnv("REDIS_PASSWORD", Global.RedisPassword)
	Global.RedisDB = tools.GetEnvInt("REDIS_DB", Global.RedisDB)

	Global.MongoURI = tools.GetEnv("MONGO_URI", Global.MongoURI)
	Global.MongoDatabase = tools.GetEnv("MONGO_DATABASE", Global.MongoDatabase)
	Global.MongoUser = tools.GetEnv("MONGO_USER", Global.MongoUser)
	Global.MongoPassword = tools.GetEnv("MONGO_PASSWORD", Global.MongoPassword)

	if v := tools.GetEnv("NATS_SERVERS", ""); v != "" {
		Global.NatsServers = strings.Split(v, ",")
	}
	Global.PushSubject = tools.GetEnv("PUSH_SUBJECT", Global.PushSubject)
}

// ConfigAll wires the shared collaborators: ids, redis, mongo.
func ConfigAll(ctx context.Context) {
	ConfigIds()
	ConfigRedis()
	ConfigMgo(ctx)
}

func ConfigIds() {
	ids.SetNodeID(100)
}

func ConfigRedis() {
	err := rdx.InitRedis(rdx.Config{
		Addr:     Global.RedisAddr,
		Password: Global.RedisPassword,
		DB:       Global.RedisDB,
	})
	if err != nil {
		// Presence mirroring is best-effort; run without it.
		logger.Warnf("[config] redis unavailable, presence mirror disabled: %v", err)
		Global.Presence = false
	}
}

func ConfigMgo(ctx context.Context) {
	cfg := &mongoutil.Config{
		Uri:         Global.MongoURI,
		Database:    Global.MongoDatabase,
		Username:    Global.MongoUser,
		Password:    Global.MongoPassword,
		MaxPoolSize: 20,
		MaxRetry:    3,
	}
	mgoSrv.StartAsync(ctx, cfg)
}

// ConfigPushTransport connects the NATS-backed push transport.
// A nil transport means push delivery is disabled.
func ConfigPushTransport() push.Transport {
	transport, err := push.NewNatsTransport(push.NatsConfig{
		Servers: Global.NatsServers,
		Name:    Global.NodeID,
		Subject: Global.PushSubject,
	})
	if err != nil {
		logger.Warnf("[config] nats unavailable, push delivery disabled: %v", err)
		return nil
	}
	return transport
}
