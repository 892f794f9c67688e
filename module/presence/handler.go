package presence

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler REST 查询入口（原样保留老客户端在用的路径）
type Handler struct {
	coord *Coordinator
}

func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/online", h.OnlineUsers)
	g.GET("/:username/online", h.IsOnline)
	g.GET("/:username/status", h.Status)
	g.POST("/:username/heartbeat", h.Heartbeat)
}

// OnlineUsers GET /api/users/online
func (h *Handler) OnlineUsers(c *gin.Context) {
	users, err := h.coord.OnlineUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
		return
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, users)
}

// IsOnline GET /api/users/:username/online
func (h *Handler) IsOnline(c *gin.Context) {
	r, _, err := h.coord.Status(c.Request.Context(), c.Param("username"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, r.Online)
}

// Status GET /api/users/:username/status
func (h *Handler) Status(c *gin.Context) {
	user := c.Param("username")
	r, devices, err := h.coord.Status(c.Request.Context(), user)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, StatusEvent{
		Type:         EventTypeStatusUpdate,
		Username:     user,
		Online:       r.Online,
		Status:       r.State,
		LastSeenText: r.LastSeenText,
		Devices:      devices,
	})
}

// Heartbeat POST /api/users/:username/heartbeat
// 显式前台活跃信号（原 update-last-seen 接口）。
// body 可带 sessionId，带了才会顺便续会话 TTL。
func (h *Handler) Heartbeat(c *gin.Context) {
	var body struct {
		SessionID string `json:"sessionId"`
	}
	_ = c.ShouldBindJSON(&body)

	h.coord.OnHeartbeat(c.Request.Context(), c.Param("username"), body.SessionID)
	c.Status(http.StatusOK)
}
