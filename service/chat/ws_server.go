package chat

import (
	"net"
	"net/http"
	"time"

	"ChatRelay/logger"
	"ChatRelay/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second

	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and runs the connection until the transport
// closes. One read loop dispatches inbound frames; one writer goroutine
// drains the send queue. Every handler failure is logged and the loop
// continues — nothing in here is fatal to the process.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	connID := ids.GenerateString()
	client := NewClient(connID, ws, s.sendQueueSize)
	s.reg.Add(client)
	logger.Infof("[HandleWS] connected conn=%s remote=%s", connID, ws.RemoteAddr())

	done := make(chan struct{})
	go s.writePump(client, done)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed conn=%s err=%v", connID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s err=%v", connID, rerr)
			} else {
				logger.Infof("[WS] read err conn=%s err=%v", connID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrameJSON(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[WS] parse frame err conn=%s err=%v sample=%q", connID, perr, sample)
			continue
		}

		if herr := s.disp.Dispatch(&Context{S: s}, frame, client); herr != nil {
			logger.Infof("[WS] handle event=%s conn=%s err=%v", frame.Event, connID, herr)
		}
	}

	// Disconnect path: registry removal and departure broadcasts first, then
	// the send queue is closed so the writer can drain and exit.
	s.coord.Disconnect(client)
	client.CloseSend()
	<-done
}

func (s *Server) writePump(c *Client, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.WS.Close()
		close(done)
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			if !ok {
				_ = c.WS.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[WS] write err conn=%s err=%v", c.ConnID, err)
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
