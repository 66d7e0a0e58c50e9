package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appcurrency "bitpos/internal/application/currency"
	"bitpos/internal/domain/currency"
	apperrors "bitpos/internal/shared/errors"
)

type currencyResponse struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	DecimalPlaces int    `json:"decimal_places"`
}

func (h *Handler) ListCurrencies(c *gin.Context) {
	all := currency.All()
	out := make([]currencyResponse, len(all))
	for i, cur := range all {
		out[i] = currencyResponse{
			Code:          cur.Code,
			Name:          cur.Name,
			Symbol:        cur.Symbol,
			DecimalPlaces: cur.DecimalPlaces,
		}
	}
	c.JSON(http.StatusOK, gin.H{"currencies": out, "base": h.engine.BaseCurrency()})
}

type rateResponse struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Rate      float64 `json:"rate"`
	Source    string  `json:"source"`
	UpdatedAt string  `json:"updated_at"`
}

func (h *Handler) ListRates(c *gin.Context) {
	rates := h.engine.Rates()
	out := make([]rateResponse, len(rates))
	for i, r := range rates {
		out[i] = rateResponse{
			From:      r.From,
			To:        r.To,
			Rate:      r.Rate,
			Source:    r.Source.String(),
			UpdatedAt: r.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	c.JSON(http.StatusOK, gin.H{"rates": out})
}

type convertQuery struct {
	Amount float64 `form:"amount" binding:"required,gt=0"`
	From   string  `form:"from" binding:"required"`
	To     string  `form:"to" binding:"required"`
}

func (h *Handler) Convert(c *gin.Context) {
	var q convertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, apperrors.NewValidationError("invalid query").WithCause(err))
		return
	}
	if !currency.IsSupported(q.From) || !currency.IsSupported(q.To) {
		writeError(c, apperrors.NewValidationError("unsupported currency pair", q.From+"/"+q.To))
		return
	}

	rate := h.engine.GetRate(q.From, q.To)
	converted := q.Amount * rate

	c.JSON(http.StatusOK, gin.H{
		"amount":    q.Amount,
		"from":      q.From,
		"to":        q.To,
		"rate":      rate,
		"converted": converted,
		"formatted": appcurrency.Format(converted, q.To, appcurrency.FormatOptions{ShowCode: true}),
	})
}

type multiPriceRequest struct {
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Currency string  `json:"currency" binding:"required"`
}

func (h *Handler) CreateMultiPrice(c *gin.Context) {
	var req multiPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("invalid request body").WithCause(err))
		return
	}

	price, err := h.engine.CreateMultiPrice(req.Amount, req.Currency)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"base":          price.Base,
		"base_currency": price.BaseCurrency,
		"lak":           price.LAK,
		"thb":           price.THB,
		"usd":           price.USD,
		"btc":           price.BTC,
		"sats":          price.SATS,
		"created_at":    price.CreatedAt,
	})
}
