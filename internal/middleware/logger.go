package middleware

import (
	"time"

	"clewdr-go/internal/logging"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs one structured line per completed request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		formatVal, _ := c.Get("ingress_format")
		credVal, _ := c.Get("credential_id")
		extras := log.Fields{
			"status":        c.Writer.Status(),
			"latency_ms":    logging.DurationMS(latency),
			"method":        method,
			"path":          path,
			"ingress_format": formatVal,
			"credential_id": credVal,
		}
		logging.WithReq(c, extras).Info("http_request")
	}
}
