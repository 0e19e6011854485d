package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// getAdminSubject: кто вызвал admin API (sub из JWT), для логов.
func getAdminSubject(c *gin.Context) string {
	v, ok := c.Get("admin_subject")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// parseUserIDParam reads a positive Telegram user id from the named path param.
func parseUserIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
