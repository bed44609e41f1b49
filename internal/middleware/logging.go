package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		// Probes and scrapes would drown out the request log.
		SkipPaths: []string{"/health", "/metrics"},
		Formatter: func(param gin.LogFormatterParams) string {
			logger.WithFields(logrus.Fields{
				"status_code": param.StatusCode,
				"latency":     param.Latency,
				"client_ip":   param.ClientIP,
				"method":      param.Method,
				"path":        param.Path,
				"user_agent":  param.Request.UserAgent(),
				"error":       param.ErrorMessage,
				"timestamp":   param.TimeStamp.Format(time.RFC3339),
			}).Info("HTTP Request")

			return ""
		},
	})
}

func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"panic":     recovered,
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"client_ip": c.ClientIP(),
		}).Error("Panic recovered")

		c.JSON(500, gin.H{
			"error": gin.H{
				"code":    "INTERNAL_SERVER_ERROR",
				"message": "Internal server error",
			},
		})
	})
}
