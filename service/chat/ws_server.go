package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"MProject/logger"
	security "MProject/middleware/security"
	"MProject/module/presence"
	"MProject/tools/ids"
	"MProject/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	readLimit     = 1 << 20 // 1MB
	readDeadline  = 90 * time.Second
	writeDeadline = 10 * time.Second
	sendQueueSize = 64
)

// Server websocket 网关。连接生命周期事件从这里进 presence，
// presence 的任何错误都在其内部消化，不会断开这里的连接。
type Server struct {
	mgr   *ConnManager
	coord *presence.Coordinator
}

func NewServer(mgr *ConnManager, coord *presence.Coordinator) *Server {
	return &Server{mgr: mgr, coord: coord}
}

func (s *Server) ConnMgr() *ConnManager { return s.mgr }

// HandleWS GET /ws（身份由前置的 auth middleware 解出）
func (s *Server) HandleWS(c *gin.Context) {
	user := security.AuthedUser(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[WS] upgrade error: %v", err)
		return
	}

	w := &WsConn{
		SnowID:    ids.GenerateString(),
		SessionID: uuid.NewString(),
		UserID:    user,
		Conn:      ws,
		Remote:    ws.RemoteAddr(),
		SendChan:  make(chan []byte, sendQueueSize),
		Done:      make(chan struct{}),
	}
	s.mgr.Add(w)

	// 写协程：唯一往 socket 写的地方
	safe.SafeGo(func() { s.writeLoop(w) })

	ctx := context.Background()
	// 握手本身就是一次前台活跃：先报活跃再报连接，
	// 这样 OnConnect 的即时广播出去就是 active，不会先闪一下降档态
	s.coord.OnHeartbeat(ctx, user, w.SessionID)
	s.coord.OnConnect(ctx, user, w.SessionID)
	trySend(w, BuildConnAck(w.SessionID, s.mgr.GwID()))
	// 新端先直投一份全量列表，其他人走全局广播
	s.coord.SendOnlineUsersTo(ctx, user)
	s.coord.BroadcastOnlineUsers(ctx)

	logger.Infof("[WS] connected user=%s session=%s remote=%s", user, w.SessionID, w.Remote)

	s.readLoop(w)

	// ---- 连接收尾 ----
	s.mgr.Remove(w.SnowID)
	close(w.Done)
	closeQuiet(ws)
	s.coord.OnDisconnect(ctx, user, w.SessionID)
	s.coord.BroadcastOnlineUsers(ctx)
	logger.Infof("[WS] disconnected user=%s session=%s", user, w.SessionID)
}

// readLoop 只读不写，出错即退出（写协程负责收尾）
func (s *Server) readLoop(w *WsConn) {
	ws := w.Conn
	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed session=%s", w.SessionID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout session=%s", w.SessionID)
			} else {
				logger.Infof("[WS] read err session=%s err=%v", w.SessionID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(readDeadline))

		frame, perr := ParseClientFrame(data)
		if perr != nil {
			logger.Infof("[WS] bad frame session=%s err=%v len=%d", w.SessionID, perr, len(data))
			continue
		}

		switch frame.Type {
		case FramePing, FrameActivity:
			s.mgr.Touch(w.SnowID)
			s.coord.OnHeartbeat(context.Background(), w.UserID, w.SessionID)
			trySend(w, BuildPong())
		case FrameLogout:
			s.coord.OnLogout(context.Background(), w.UserID)
			// 踢掉该账号本节点的其他端；registry 那边 RemoveAll 已清干净
			for _, other := range s.mgr.RemoveUser(w.UserID) {
				if other.SnowID != w.SnowID {
					closeQuiet(other.Conn)
				}
			}
			return
		default:
			logger.Debugf("[WS] unknown frame type=%q session=%s", frame.Type, w.SessionID)
		}
	}
}

func (s *Server) writeLoop(w *WsConn) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-w.Done:
			return
		case payload := <-w.SendChan:
			_ = w.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := w.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[WS] write err session=%s err=%v", w.SessionID, err)
				return
			}
		case <-ping.C:
			_ = w.Conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}
