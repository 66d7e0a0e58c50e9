package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"bitpos/internal/application/bitcoin"
	appcurrency "bitpos/internal/application/currency"
	"bitpos/internal/application/lightning"
	"bitpos/internal/application/usdt"
	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

// ProofRepository is the persistence surface the handler needs.
type ProofRepository interface {
	Save(ctx context.Context, proof *payment.PaymentProof) error
	GetByOrderID(ctx context.Context, orderID string) (*payment.PaymentProof, error)
	ListUnsynced(ctx context.Context, limit int) ([]*payment.PaymentProof, error)
	MarkSynced(ctx context.Context, proofID string, at time.Time) error
}

// Handler serves the checkout API. Live payment aggregates are held in
// memory keyed by their lookup handle; a POS till tracks tens of open
// checkouts, not thousands.
type Handler struct {
	engine    *appcurrency.Engine
	lightning *lightning.Service
	bitcoin   *bitcoin.Service
	usdt      *usdt.Service
	proofs    ProofRepository
	log       logger.Interface

	mu           sync.Mutex
	lnInvoices   map[string]*payment.LightningInvoice // by payment hash
	btcPayments  map[string]*payment.BitcoinPayment   // by payment ID
	usdtPayments map[string]*payment.USDTPayment      // by payment ID
}

func NewHandler(
	engine *appcurrency.Engine,
	ln *lightning.Service,
	btc *bitcoin.Service,
	u *usdt.Service,
	proofs ProofRepository,
	log logger.Interface,
) *Handler {
	return &Handler{
		engine:       engine,
		lightning:    ln,
		bitcoin:      btc,
		usdt:         u,
		proofs:       proofs,
		log:          log.Named("http"),
		lnInvoices:   make(map[string]*payment.LightningInvoice),
		btcPayments:  make(map[string]*payment.BitcoinPayment),
		usdtPayments: make(map[string]*payment.USDTPayment),
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsValidation(err):
		status = http.StatusBadRequest
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsConfiguration(err):
		status = http.StatusServiceUnavailable
	case apperrors.IsNetwork(err):
		status = http.StatusBadGateway
	case apperrors.IsVerification(err):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// savePaymentProof records a settled payment, detached from the request
// that created the invoice.
func (h *Handler) savePaymentProof(proof *payment.PaymentProof, err error) {
	if err != nil {
		h.log.Errorw("failed to build payment proof", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.proofs.Save(ctx, proof); err != nil {
		h.log.Errorw("failed to persist payment proof",
			"proof_id", proof.ID,
			"order_id", proof.OrderID,
			"error", err,
		)
		return
	}
	h.log.Infow("payment proof recorded",
		"proof_id", proof.ID,
		"order_id", proof.OrderID,
		"method", proof.Method,
	)
}
