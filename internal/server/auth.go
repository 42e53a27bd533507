package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-API-Key"

type authErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// requireAPIKey 校验 X-API-Key（header 名大小写不敏感，值去首尾空白后常量时间比较）
func (s *Server) requireAPIKey() gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(s.cfg.APIKey))
	return func(c *gin.Context) {
		got := strings.TrimSpace(c.GetHeader(apiKeyHeader))
		if got == "" {
			unauthorized(c, "Missing API key. Please provide X-API-Key header.")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			unauthorized(c, "Invalid API key")
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	var body authErrorBody
	body.Error.Code = "UNAUTHORIZED"
	body.Error.Message = msg
	c.Header("WWW-Authenticate", "ApiKey")
	c.AbortWithStatusJSON(http.StatusUnauthorized, body)
}
