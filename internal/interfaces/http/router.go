package http

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitpos/internal/shared/logger"
)

const requestIDHeader = "X-Request-ID"

// NewRouter wires the HTTP surface: health, metrics, rates and the
// three checkout lifecycles.
func NewRouter(mode string, h *Handler, log logger.Interface) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/currencies", h.ListCurrencies)
		api.GET("/rates", h.ListRates)
		api.GET("/convert", h.Convert)
		api.POST("/prices", h.CreateMultiPrice)

		api.POST("/checkout/lightning", h.CreateLightningInvoice)
		api.GET("/checkout/lightning/:hash", h.GetLightningInvoice)

		api.POST("/checkout/bitcoin", h.CreateBitcoinInvoice)
		api.GET("/checkout/bitcoin/:id", h.GetBitcoinPayment)

		api.POST("/checkout/usdt", h.CreateUSDTInvoice)
		api.GET("/checkout/usdt/:id", h.GetUSDTPayment)

		api.GET("/proofs/unsynced", h.ListUnsyncedProofs)
		api.GET("/proofs/order/:orderID", h.GetProofByOrder)
		api.POST("/proofs/:id/sync", h.MarkProofSynced)
	}

	return r
}

// requestID assigns an ID to every request unless the caller brought
// one, and echoes it back so receipts can be traced across retries.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= 500 {
			log.Errorw("request failed",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"request_id", c.GetString("request_id"),
			)
			return
		}
		log.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"request_id", c.GetString("request_id"),
		)
	}
}
