package security

import (
	"net/http"
	"strings"

	jwtlib "MProject/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 后续模块统一用这俩 key 读取
const (
	CtxAuthKey = "authorization" // string
	CtxUserKey = "authUser"      // string
)

type Options struct {
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
	AllowQueryToken           bool   // WS 握手场景：?token=xxx
	JWT                       jwtlib.Options
}

func DefaultOptions(jwt jwtlib.Options) *Options {
	return &Options{
		HeaderToken:               CtxAuthKey,
		EnableAuthorizationBearer: true,
		AllowQueryToken:           true,
		JWT:                       jwt,
	}
}

// Middleware 校验 bearer token，把 userID 写入 gin context。
// presence 事件里身份解析失败属于 UnknownUser 路径，由业务层告警，
// 这里只拦截完全没带 token 的请求。
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}

		// 浏览器 WebSocket 不能带自定义 header
		if token == "" && opts.AllowQueryToken {
			token = strings.TrimSpace(c.Query("token"))
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := jwtlib.Verify(opts.JWT, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(CtxAuthKey, token)
		c.Set(CtxUserKey, claims.UserID())
		c.Next()
	}
}

// AuthedUser 读取 Middleware 写入的 userID
func AuthedUser(c *gin.Context) string {
	u, _ := c.Get(CtxUserKey)
	s, _ := u.(string)
	return s
}
