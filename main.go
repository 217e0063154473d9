package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ChatRelay/global"
	"ChatRelay/logger"
	"ChatRelay/module/chat/store"
	"ChatRelay/service/chat"
	"ChatRelay/service/chat/handlers"
	mgoSrv "ChatRelay/service/mgo"
	"ChatRelay/service/push"
	rdx "ChatRelay/service/storage/redis"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	global.LoadEnv()
	global.ConfigAll(ctx)

	msgStore := store.NewMongoMessageStore(mgoSrv.TryGetDB)
	pusher := push.NewDispatcher(global.ConfigPushTransport())

	srv := chat.NewServer(chat.Options{
		NodeID:   global.Global.NodeID,
		Presence: global.Global.Presence,
	}, msgStore, pusher)

	srv.Disp().Register(handlers.NewRegisterPushTokenHandler())
	srv.Disp().Register(handlers.NewJoinRoomHandler())
	srv.Disp().Register(handlers.NewSendMessageHandler())
	srv.Disp().Register(handlers.NewTypingHandler())

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", srv.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		_, storeReady := mgoSrv.TryGetDB()
		c.JSON(http.StatusOK, gin.H{"node": global.Global.NodeID, "store": storeReady})
	})

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", global.Global.Port),
		Handler: r,
	}

	go func() {
		logger.Infof("[main] relay %s listening on %s", global.Global.NodeID, httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[main] http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("[main] shutdown: %v", err)
	}
	rdx.CloseRedis()
}
