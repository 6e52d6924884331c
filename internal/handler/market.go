package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetSymbols godoc
// @Summary      List tradable symbols
// @Description  Returns every futures symbol currently trading on the exchange
// @Tags         market
// @Produce      json
// @Success      200  {array}   string
// @Failure      502  {object}  map[string]string
// @Router       /symbols [get]
func (h *Handler) GetSymbols(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-symbols")
	defer span.End()

	symbols, err := h.market.Symbols(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	span.SetAttributes(attribute.Int("symbols", len(symbols)))
	c.JSON(http.StatusOK, symbols)
}

// GetTopCryptos godoc
// @Summary      Top coins by market cap
// @Description  Returns the top 100 coins by market capitalisation, priced in USD
// @Tags         market
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/top-cryptos [get]
func (h *Handler) GetTopCryptos(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-top-cryptos")
	defer span.End()

	coins, err := h.market.TopCoins(ctx)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to fetch top cryptocurrencies: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": coins})
}
