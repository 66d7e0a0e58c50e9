package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
)

type lightningInvoiceRequest struct {
	OrderID     string  `json:"order_id" binding:"required"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Currency    string  `json:"currency" binding:"required"`
	Description string  `json:"description"`
}

func (h *Handler) CreateLightningInvoice(c *gin.Context) {
	var req lightningInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("invalid request body").WithCause(err))
		return
	}

	amountSats := h.engine.ToSats(req.Amount, req.Currency)
	if amountSats <= 0 {
		writeError(c, apperrors.NewValidationError("amount converts to zero satoshis"))
		return
	}

	invoice, err := h.lightning.CreateInvoice(c.Request.Context(), amountSats, req.Description, map[string]interface{}{
		"order_id":      req.OrderID,
		"fiat_amount":   req.Amount,
		"fiat_currency": req.Currency,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.mu.Lock()
	h.lnInvoices[invoice.PaymentHash()] = invoice
	h.mu.Unlock()

	orderID := req.OrderID
	err = h.lightning.WatchPayment(context.Background(), invoice, func(inv *payment.LightningInvoice) {
		h.savePaymentProof(h.lightning.CreatePaymentProof(orderID, inv, false))
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, lightningInvoiceJSON(invoice))
}

func (h *Handler) GetLightningInvoice(c *gin.Context) {
	hash := c.Param("hash")

	h.mu.Lock()
	invoice, ok := h.lnInvoices[hash]
	h.mu.Unlock()

	if !ok {
		writeError(c, apperrors.NewNotFoundError("unknown payment hash", hash))
		return
	}
	c.JSON(http.StatusOK, lightningInvoiceJSON(invoice))
}

func lightningInvoiceJSON(inv *payment.LightningInvoice) gin.H {
	out := gin.H{
		"id":           inv.ID(),
		"bolt11":       inv.Bolt11(),
		"payment_hash": inv.PaymentHash(),
		"amount_sats":  inv.AmountSats(),
		"description":  inv.Description(),
		"status":       inv.Status().String(),
		"backend":      inv.Backend(),
		"expires_at":   inv.ExpiresAt(),
		"created_at":   inv.CreatedAt(),
	}
	if p := inv.Preimage(); p != nil {
		out["preimage"] = *p
	}
	return out
}

type bitcoinInvoiceRequest struct {
	OrderID     string  `json:"order_id" binding:"required"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Currency    string  `json:"currency" binding:"required"`
	Description string  `json:"description"`
}

func (h *Handler) CreateBitcoinInvoice(c *gin.Context) {
	var req bitcoinInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("invalid request body").WithCause(err))
		return
	}

	p, err := h.bitcoin.CreateInvoice(c.Request.Context(), req.OrderID, req.Amount, req.Currency, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}

	h.mu.Lock()
	h.btcPayments[p.ID()] = p
	h.mu.Unlock()

	err = h.bitcoin.WatchPayment(context.Background(), p, func(settled *payment.BitcoinPayment) {
		h.savePaymentProof(h.bitcoin.CreatePaymentProof(settled, false))
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bitcoinPaymentJSON(p))
}

func (h *Handler) GetBitcoinPayment(c *gin.Context) {
	id := c.Param("id")

	h.mu.Lock()
	p, ok := h.btcPayments[id]
	h.mu.Unlock()

	if !ok {
		writeError(c, apperrors.NewNotFoundError("unknown payment", id))
		return
	}
	c.JSON(http.StatusOK, bitcoinPaymentJSON(p))
}

func bitcoinPaymentJSON(p *payment.BitcoinPayment) gin.H {
	return gin.H{
		"id":                     p.ID(),
		"order_id":               p.OrderID(),
		"provider":               p.Provider(),
		"provider_invoice_id":    p.ProviderInvoiceID(),
		"address":                p.Address(),
		"amount_btc":             p.AmountBTC(),
		"amount_sats":            p.AmountSats(),
		"amount_fiat":            p.AmountFiat(),
		"currency":               p.Currency(),
		"exchange_rate":          p.ExchangeRate(),
		"confirmations":          p.Confirmations(),
		"required_confirmations": p.RequiredConfirmations(),
		"status":                 p.Status().String(),
		"expires_at":             p.ExpiresAt(),
		"created_at":             p.CreatedAt(),
	}
}

type usdtInvoiceRequest struct {
	OrderID  string  `json:"order_id" binding:"required"`
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Currency string  `json:"currency" binding:"required"`
	Network  string  `json:"network"`
}

func (h *Handler) CreateUSDTInvoice(c *gin.Context) {
	var req usdtInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("invalid request body").WithCause(err))
		return
	}

	p, err := h.usdt.CreateInvoice(c.Request.Context(), req.OrderID, req.Amount, req.Currency, payment.Network(req.Network))
	if err != nil {
		writeError(c, err)
		return
	}

	h.mu.Lock()
	h.usdtPayments[p.ID()] = p
	h.mu.Unlock()

	err = h.usdt.WatchPayment(context.Background(), p, func(settled *payment.USDTPayment) {
		txHash := ""
		if t := settled.TxHash(); t != nil {
			txHash = *t
		}
		h.savePaymentProof(payment.NewPaymentProof(
			settled.OrderID(),
			txHash,
			"",
			int64(settled.AmountRaw()),
			payment.MethodUSDT,
			false,
		))
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, usdtPaymentJSON(p))
}

func (h *Handler) GetUSDTPayment(c *gin.Context) {
	id := c.Param("id")

	h.mu.Lock()
	p, ok := h.usdtPayments[id]
	h.mu.Unlock()

	if !ok {
		writeError(c, apperrors.NewNotFoundError("unknown payment", id))
		return
	}
	c.JSON(http.StatusOK, usdtPaymentJSON(p))
}

func usdtPaymentJSON(p *payment.USDTPayment) gin.H {
	out := gin.H{
		"id":                     p.ID(),
		"order_id":               p.OrderID(),
		"network":                p.Network().String(),
		"address":                p.Address(),
		"amount_usdt":            p.AmountUSDT(),
		"amount_fiat":            p.AmountFiat(),
		"currency":               p.Currency(),
		"exchange_rate":          p.ExchangeRate(),
		"network_fee":            p.NetworkFee(),
		"confirmations":          p.Confirmations(),
		"required_confirmations": p.RequiredConfirmations(),
		"status":                 p.Status().String(),
		"expires_at":             p.ExpiresAt(),
		"created_at":             p.CreatedAt(),
	}
	if t := p.TxHash(); t != nil {
		out["tx_hash"] = *t
	}
	return out
}
