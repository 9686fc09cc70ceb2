package utils

import "github.com/gin-gonic/gin"

func Success(c *gin.Context, data gin.H) {
	c.JSON(200, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// ErrorWithFields is Error plus extra top-level fields such as the failed stage.
func ErrorWithFields(c *gin.Context, code int, msg string, fields gin.H) {
	body := gin.H{
		"success": false,
		"error":   msg,
	}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(code, body)
}
