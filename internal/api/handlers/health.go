package handlers

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// HealthCheck returns the health status of the API
func HealthCheck(c *gin.Context) {
	engineCommand := os.Getenv("STRUDEL_COMMAND")
	engineStatus := "disabled"

	if strings.TrimSpace(engineCommand) != "" {
		engineStatus = "enabled"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"engine": gin.H{
			"status":  engineStatus,
			"command": engineCommand,
		},
	})
}
