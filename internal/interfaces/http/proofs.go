package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
)

func (h *Handler) ListUnsyncedProofs(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, apperrors.NewValidationError("invalid limit", raw))
			return
		}
		limit = n
	}

	proofs, err := h.proofs.ListUnsynced(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, len(proofs))
	for i, p := range proofs {
		out[i] = proofJSON(p)
	}
	c.JSON(http.StatusOK, gin.H{"proofs": out})
}

func (h *Handler) GetProofByOrder(c *gin.Context) {
	proof, err := h.proofs.GetByOrderID(c.Request.Context(), c.Param("orderID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proofJSON(proof))
}

func (h *Handler) MarkProofSynced(c *gin.Context) {
	id := c.Param("id")
	if err := h.proofs.MarkSynced(c.Request.Context(), id, time.Now()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "synced": true})
}

func proofJSON(p *payment.PaymentProof) gin.H {
	out := gin.H{
		"id":           p.ID,
		"order_id":     p.OrderID,
		"payment_hash": p.PaymentHash,
		"preimage":     p.Preimage,
		"amount_sats":  p.AmountSats,
		"method":       p.Method.String(),
		"is_offline":   p.IsOffline,
		"received_at":  p.ReceivedAt,
	}
	if p.SyncedAt != nil {
		out["synced_at"] = *p.SyncedAt
	}
	return out
}
